package gpu

import (
	"testing"

	"github.com/mmserver/mmserverd/internal/media"
)

func TestConvertRGBAWhiteIsLuma235(t *testing.T) {
	pixels := solidRGBA(2, 2, 255, 255, 255, 255)
	img := ConvertRGBA(pixels, 2, 2, media.ProfileHD)

	for _, y := range img.Y {
		if y < 230 {
			t.Fatalf("white pixel luma = %d, want close to 235 (narrow-range white)", y)
		}
	}
	for _, c := range img.CbCr {
		if c < 124 || c > 132 {
			t.Fatalf("white pixel chroma = %d, want close to 128 (neutral)", c)
		}
	}
}

func TestConvertRGBABlackIsLuma16(t *testing.T) {
	pixels := solidRGBA(2, 2, 0, 0, 0, 255)
	img := ConvertRGBA(pixels, 2, 2, media.ProfileHD)

	for _, y := range img.Y {
		if y > 20 {
			t.Fatalf("black pixel luma = %d, want close to 16 (narrow-range black)", y)
		}
	}
}

func TestConvertRGBADimensions(t *testing.T) {
	pixels := solidRGBA(8, 4, 10, 20, 30, 255)
	img := ConvertRGBA(pixels, 8, 4, media.ProfileHD)

	if len(img.Y) != 8*4 {
		t.Fatalf("Y plane length %d, want %d", len(img.Y), 8*4)
	}
	if len(img.CbCr) != (8/2)*(4/2)*2 {
		t.Fatalf("CbCr plane length %d, want %d", len(img.CbCr), (8/2)*(4/2)*2)
	}
}
