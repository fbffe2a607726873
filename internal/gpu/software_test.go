package gpu

import (
	"context"
	"testing"

	"github.com/mmserver/mmserverd/internal/media"
)

func solidRGBA(w, h int, r, g, b, a byte) []byte {
	buf := make([]byte, w*h*4)
	for i := 0; i < w*h; i++ {
		buf[i*4], buf[i*4+1], buf[i*4+2], buf[i*4+3] = r, g, b, a
	}
	return buf
}

func TestSoftwareDeviceCompositeBlendsOpaqueTop(t *testing.T) {
	d := NewSoftwareDevice(4, 4)
	ctx := context.Background()

	bottom := CompositeInput{PixelsRGBA: solidRGBA(4, 4, 255, 0, 0, 255), Width: 4, Height: 4}
	top := CompositeInput{PixelsRGBA: solidRGBA(4, 4, 0, 255, 0, 255), Width: 2, Height: 2, X: 1, Y: 1}

	if err := d.Composite(ctx, []CompositeInput{bottom, top}); err != nil {
		t.Fatalf("Composite: %v", err)
	}

	// Outside the top layer's footprint, the bottom colour survives.
	off := (0*4 + 0) * 4
	if d.canvas[off] != 255 || d.canvas[off+1] != 0 {
		t.Fatalf("pixel (0,0) = %v, want opaque red", d.canvas[off:off+4])
	}
	// Inside the top layer's footprint, it fully occludes the bottom.
	off = (1*4 + 1) * 4
	if d.canvas[off] != 0 || d.canvas[off+1] != 255 {
		t.Fatalf("pixel (1,1) = %v, want opaque green", d.canvas[off:off+4])
	}
}

func TestSoftwareDeviceFirstFrameIsKeyframe(t *testing.T) {
	d := NewSoftwareDevice(2, 2)
	ctx := context.Background()

	if err := d.Composite(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if err := d.Convert(ctx, media.ProfileHD); err != nil {
		t.Fatal(err)
	}
	au, err := d.Encode(ctx, EncodeParams{Width: 2, Height: 2, Codec: media.CodecH264})
	if err != nil {
		t.Fatal(err)
	}
	if !au.IsKeyframe {
		t.Fatal("first encoded frame was not a keyframe")
	}
	if len(au.HeaderPrefix) == 0 {
		t.Fatal("keyframe missing header prefix")
	}

	au2, err := d.Encode(ctx, EncodeParams{Width: 2, Height: 2, Codec: media.CodecH264})
	if err != nil {
		t.Fatal(err)
	}
	if au2.IsKeyframe || len(au2.HeaderPrefix) != 0 {
		t.Fatal("second frame should not repeat header prefix")
	}
}

func TestSoftwareDeviceForceKeyframe(t *testing.T) {
	d := NewSoftwareDevice(2, 2)
	ctx := context.Background()
	d.Composite(ctx, nil)
	d.Convert(ctx, media.ProfileHD)
	d.Encode(ctx, EncodeParams{Width: 2, Height: 2})

	au, err := d.Encode(ctx, EncodeParams{Width: 2, Height: 2, ForceKeyframe: true})
	if err != nil {
		t.Fatal(err)
	}
	if !au.IsKeyframe {
		t.Fatal("ForceKeyframe did not produce a keyframe")
	}
}
