package gpu

import "github.com/mmserver/mmserverd/internal/media"

// bt709 and bt2020 are the narrow-range RGB-to-YCbCr coefficients used
// by the convert stage, matching the matrices a hardware colour-space
// converter would be programmed with for each OutputProfile.
var (
	bt709  = yuvMatrix{kr: 0.2126, kb: 0.0722}
	bt2020 = yuvMatrix{kr: 0.2627, kb: 0.0593}
)

type yuvMatrix struct{ kr, kb float64 }

func matrixFor(profile media.OutputProfile) yuvMatrix {
	if profile == media.ProfileHDR10 {
		return bt2020
	}
	return bt709
}

// rgbToYCbCr converts one premultiplied-alpha linear RGB8 pixel to
// narrow-range YCbCr using the given matrix, unpremultiplying by alpha
// first so compositing seams don't bleed into the chroma planes.
func rgbToYCbCr(m yuvMatrix, r, g, b, a byte) (y, cb, cr byte) {
	var fr, fg, fb float64
	if a > 0 {
		scale := 255.0 / float64(a)
		fr = float64(r) * scale
		fg = float64(g) * scale
		fb = float64(b) * scale
	}
	fr, fg, fb = clamp255(fr), clamp255(fg), clamp255(fb)

	kr, kb := m.kr, m.kb
	kg := 1 - kr - kb

	yf := kr*fr + kg*fg + kb*fb
	cbf := (fb - yf) / (2 * (1 - kb))
	crf := (fr - yf) / (2 * (1 - kr))

	// Narrow-range (studio swing) encoding: Y in [16,235], Cb/Cr in [16,240].
	y = byte(clamp255(16 + yf*(235-16)/255))
	cb = byte(clamp255(128 + cbf*(240-16)/255))
	cr = byte(clamp255(128 + crf*(240-16)/255))
	return
}

func clamp255(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

// PlanarImage is a 4:2:0 chroma-subsampled image: one full-resolution
// luma plane and two quarter-resolution chroma planes (NV12 layout:
// interleaved Cb/Cr).
type PlanarImage struct {
	Width, Height int
	Y             []byte
	CbCr          []byte // interleaved, (Width/2)*(Height/2)*2 bytes
}

// ConvertRGBA downsamples a premultiplied RGBA8 image to 4:2:0 NV12
// using 2x2 box-filtered chroma, which is what a hardware downscaler
// does for a non-HDR source.
func ConvertRGBA(pixels []byte, width, height int, profile media.OutputProfile) PlanarImage {
	m := matrixFor(profile)
	img := PlanarImage{
		Width:  width,
		Height: height,
		Y:      make([]byte, width*height),
		CbCr:   make([]byte, (width/2)*(height/2)*2),
	}

	stride := width * 4
	for yy := 0; yy < height; yy++ {
		for xx := 0; xx < width; xx++ {
			off := yy*stride + xx*4
			r, g, b, a := pixels[off], pixels[off+1], pixels[off+2], pixels[off+3]
			lum, _, _ := rgbToYCbCr(m, r, g, b, a)
			img.Y[yy*width+xx] = lum
		}
	}

	cw, ch := width/2, height/2
	for cy := 0; cy < ch; cy++ {
		for cx := 0; cx < cw; cx++ {
			var cbSum, crSum int
			for dy := 0; dy < 2; dy++ {
				for dx := 0; dx < 2; dx++ {
					off := (cy*2+dy)*stride + (cx*2+dx)*4
					r, g, b, a := pixels[off], pixels[off+1], pixels[off+2], pixels[off+3]
					_, cb, cr := rgbToYCbCr(m, r, g, b, a)
					cbSum += int(cb)
					crSum += int(cr)
				}
			}
			idx := (cy*cw + cx) * 2
			img.CbCr[idx] = byte(cbSum / 4)
			img.CbCr[idx+1] = byte(crSum / 4)
		}
	}
	return img
}
