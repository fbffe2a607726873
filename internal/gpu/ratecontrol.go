package gpu

import "math"

// RateControlMode mirrors the two strategies a Vulkan Video encoder can
// run under: a cascading constant-QP ladder for the highest quality
// presets, or a layered VBR curve for everything else.
type RateControlMode int

const (
	ModeConstantQP RateControlMode = iota
	ModeVBR
)

const (
	minQP        = 17
	baselineDims = 1920.0 * 1080.0
	vbvSizeMs    = 2500
)

var baselineAvgBitrateMbps = [10]float64{2.5, 3.0, 4.0, 5.0, 6.0, 8.0, 10.0, 12.0, 25.0, 50.0}
var baselinePeakBitrateMbps = [10]float64{5.0, 8.0, 10.0, 15.0, 20.0, 30.0, 40.0, 60.0, 80.0, 100.0}

// VbrSettings is one hierarchical layer's VBR target.
type VbrSettings struct {
	AverageBitrateBps uint64
	PeakBitrateBps    uint64
	MinQP, MaxQP      uint32
}

// RateControlCurve is the per-session rate-control decision, selected
// once from the preset and then queried per layer per frame.
type RateControlCurve struct {
	Mode RateControlMode

	// constant-QP fields
	targetQP uint32
	maxQP    uint32

	// VBR fields
	vbrBase   VbrSettings
	numLayers uint32
}

// VBVSizeMs is the video buffering verifier window the VBR curve targets.
func (c RateControlCurve) VBVSizeMs() int { return vbvSizeMs }

// SelectRateControlCurve picks a mode and its parameters from a quality
// preset (0-9, higher is better quality) and the session's negotiated
// resolution, following the same preset-to-bitrate mapping as a
// cascading-QP/VBR encoder selection would.
func SelectRateControlCurve(preset int, width, height int, layers uint32) RateControlCurve {
	if preset < 0 {
		preset = 0
	}
	if preset > 9 {
		preset = 9
	}
	minqp := uint32(minQP)
	targetQP := uint32(40 - 2*preset)
	if targetQP < minqp {
		targetQP = minqp
	}
	maxQP := uint32(51)

	if preset >= 7 {
		return RateControlCurve{
			Mode:     ModeConstantQP,
			targetQP: clampU32(targetQP, minqp, maxQP),
			maxQP:    maxQP,
		}
	}

	scale := math.Sqrt(float64(width*height) / baselineDims)
	const mbps = 1_000_000.0
	avg := uint64(math.Round(baselineAvgBitrateMbps[preset] * mbps * scale))
	peak := uint64(math.Round(baselinePeakBitrateMbps[preset] * mbps * scale))

	if layers == 0 {
		layers = 1
	}
	return RateControlCurve{
		Mode:      ModeVBR,
		numLayers: layers,
		vbrBase: VbrSettings{
			AverageBitrateBps: avg,
			PeakBitrateBps:    peak,
			MinQP:             minqp,
			MaxQP:             clampU32(targetQP, minqp, maxQP),
		},
	}
}

// Layer returns the effective per-layer parameters for a hierarchical
// temporal layer (0 = base layer). In constant-QP mode the QP steps up
// per layer (see layerQP). In VBR mode with more than one layer, layer n
// gets 1/2^(n+1) of the base bitrates, so the base layer itself gets
// half; each layer's MaxQP is capped at the base MaxQP, so the layerQP
// step does not raise it.
func (c RateControlCurve) Layer(layer uint32) (qp uint32, vbr VbrSettings) {
	switch c.Mode {
	case ModeConstantQP:
		return clampU32(layerQP(c.targetQP, layer), 0, c.maxQP), VbrSettings{}
	default:
		if c.numLayers <= 1 {
			return 0, c.vbrBase
		}
		denom := uint64(1) << (layer + 1)
		maxQP := clampU32(layerQP(c.vbrBase.MaxQP, layer), c.vbrBase.MinQP, c.vbrBase.MaxQP)
		return 0, VbrSettings{
			AverageBitrateBps: c.vbrBase.AverageBitrateBps / denom,
			PeakBitrateBps:    c.vbrBase.PeakBitrateBps / denom,
			MinQP:             c.vbrBase.MinQP,
			MaxQP:             maxQP,
		}
	}
}

// layerQP steps the QP up per temporal layer: target, target+5,
// target+7, target+9...
func layerQP(targetQP uint32, layer uint32) uint32 {
	step := uint32(1)
	if layer < 1 {
		step = 0
	}
	return targetQP + 3*step + layer*2
}

func clampU32(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
