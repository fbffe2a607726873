package gpu

import "testing"

func TestSelectRateControlCurveHighPresetUsesConstantQP(t *testing.T) {
	c := SelectRateControlCurve(9, 1920, 1080, 1)
	if c.Mode != ModeConstantQP {
		t.Fatalf("preset 9 selected mode %v, want ModeConstantQP", c.Mode)
	}
}

func TestSelectRateControlCurveLowPresetUsesVBR(t *testing.T) {
	c := SelectRateControlCurve(3, 1920, 1080, 3)
	if c.Mode != ModeVBR {
		t.Fatalf("preset 3 selected mode %v, want ModeVBR", c.Mode)
	}
	_, vbr := c.Layer(0)
	if vbr.AverageBitrateBps == 0 {
		t.Fatal("base layer has zero average bitrate")
	}
}

func TestRateControlCurveLayersReduceBitrate(t *testing.T) {
	c := SelectRateControlCurve(2, 1920, 1080, 3)
	_, base := c.Layer(0)
	_, l1 := c.Layer(1)
	_, l2 := c.Layer(2)

	if !(base.AverageBitrateBps > l1.AverageBitrateBps && l1.AverageBitrateBps > l2.AverageBitrateBps) {
		t.Fatalf("bitrate did not decrease per layer: base=%d l1=%d l2=%d",
			base.AverageBitrateBps, l1.AverageBitrateBps, l2.AverageBitrateBps)
	}
}

func TestRateControlCurveScalesWithResolution(t *testing.T) {
	hd := SelectRateControlCurve(3, 1920, 1080, 1)
	fourK := SelectRateControlCurve(3, 3840, 2160, 1)

	_, hdVbr := hd.Layer(0)
	_, fourKVbr := fourK.Layer(0)

	if fourKVbr.AverageBitrateBps <= hdVbr.AverageBitrateBps {
		t.Fatalf("4K bitrate %d should exceed 1080p bitrate %d", fourKVbr.AverageBitrateBps, hdVbr.AverageBitrateBps)
	}
}
