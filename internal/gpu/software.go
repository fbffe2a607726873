package gpu

import (
	"context"
	"encoding/binary"

	"github.com/mmserver/mmserverd/internal/media"
)

// SoftwareDevice is a CPU-only VideoDevice used where no Vulkan Video
// encoder is available (tests, CI, and any host without the hardware
// this pipeline otherwise requires). It composites via a plain alpha
// blend, converts via ConvertRGBA, and "encodes" by emitting the
// planar image (the Y plane then the CbCr plane, with no length
// prefix) as its own payload rather than a real
// bitstream — enough to exercise every stage's sequencing, keyframe
// cadence, and layer bookkeeping without a codec implementation.
type SoftwareDevice struct {
	width, height int
	canvas        []byte // premultiplied RGBA8, width*height*4
	converted     PlanarImage
	profile       media.OutputProfile

	frameSeq uint64
}

// NewSoftwareDevice creates a SoftwareDevice with a canvas of the given
// dimensions, which must match the session's negotiated display size.
func NewSoftwareDevice(width, height int) *SoftwareDevice {
	return &SoftwareDevice{
		width:  width,
		height: height,
		canvas: make([]byte, width*height*4),
	}
}

// Composite alpha-blends each input onto the canvas in the order given
// (back to front), clearing to transparent black first.
func (d *SoftwareDevice) Composite(ctx context.Context, surfaces []CompositeInput) error {
	for i := range d.canvas {
		d.canvas[i] = 0
	}
	for _, s := range surfaces {
		d.blend(s)
	}
	return nil
}

func (d *SoftwareDevice) blend(s CompositeInput) {
	srcStride := s.Width * 4
	for y := 0; y < s.Height; y++ {
		dy := s.Y + y
		if dy < 0 || dy >= d.height {
			continue
		}
		for x := 0; x < s.Width; x++ {
			dx := s.X + x
			if dx < 0 || dx >= d.width {
				continue
			}
			so := y*srcStride + x*4
			do := (dy*d.width + dx) * 4
			sr, sg, sb, sa := s.PixelsRGBA[so], s.PixelsRGBA[so+1], s.PixelsRGBA[so+2], s.PixelsRGBA[so+3]
			// Premultiplied "over" compositing: dst = src + dst*(1-srcA).
			inv := 255 - uint16(sa)
			d.canvas[do] = sr + byte(uint16(d.canvas[do])*inv/255)
			d.canvas[do+1] = sg + byte(uint16(d.canvas[do+1])*inv/255)
			d.canvas[do+2] = sb + byte(uint16(d.canvas[do+2])*inv/255)
			d.canvas[do+3] = sa + byte(uint16(d.canvas[do+3])*inv/255)
		}
	}
}

// Convert downsamples the current canvas into the working planar format.
func (d *SoftwareDevice) Convert(ctx context.Context, profile media.OutputProfile) error {
	d.profile = profile
	d.converted = ConvertRGBA(d.canvas, d.width, d.height, profile)
	return nil
}

// Encode serialises the converted planar image as the access unit
// payload, prefixed on keyframes with a codec-shaped parameter-set
// header so a decoder-shaped test can recover dimensions without a
// real bitstream parser. Non-keyframes omit the prefix, matching the
// real codec's differential-refresh behaviour.
func (d *SoftwareDevice) Encode(ctx context.Context, params EncodeParams) (EncodedAccessUnit, error) {
	d.frameSeq++

	isKeyframe := params.ForceKeyframe || d.frameSeq == 1

	payload := make([]byte, 0, len(d.converted.Y)+len(d.converted.CbCr))
	payload = append(payload, d.converted.Y...)
	payload = append(payload, d.converted.CbCr...)

	au := EncodedAccessUnit{Payload: payload, IsKeyframe: isKeyframe}
	if isKeyframe {
		au.HeaderPrefix = keyframeHeaderPrefix(params.Codec, params.Width, params.Height)
	}
	return au, nil
}

// annexBStartCode prefixes every synthetic H.264/H.265 NAL unit below,
// matching the demuxer-side parser's 4-byte start code expectation.
var annexBStartCode = []byte{0x00, 0x00, 0x00, 0x01}

// keyframeHeaderPrefixFuncs is a table of function references per codec
// rather than an inheritance hierarchy, per the dynamic-dispatch
// guidance for codec/colour-space variants.
var keyframeHeaderPrefixFuncs = map[media.Codec]func(width, height int) []byte{
	media.CodecH264: h264KeyframeHeader,
	media.CodecH265: h265KeyframeHeader,
	media.CodecAV1:  av1KeyframeHeader,
}

func keyframeHeaderPrefix(codec media.Codec, width, height int) []byte {
	fn, ok := keyframeHeaderPrefixFuncs[codec]
	if !ok {
		fn = h264KeyframeHeader
	}
	return fn(width, height)
}

func dimsPayload(width, height int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf[0:4], uint32(width))
	binary.BigEndian.PutUint32(buf[4:8], uint32(height))
	return buf
}

// h264KeyframeHeader builds a start-code-delimited SPS+PPS prefix using
// real H.264 NAL type values (7, 8), matching demux/h264_test.go's
// fixtures; the SPS NAL's payload carries the dimensions.
func h264KeyframeHeader(width, height int) []byte {
	var buf []byte
	buf = append(buf, annexBStartCode...)
	buf = append(buf, 0x67) // nal_ref_idc=3, type=7 (SPS)
	buf = append(buf, dimsPayload(width, height)...)
	buf = append(buf, annexBStartCode...)
	buf = append(buf, 0x68) // nal_ref_idc=3, type=8 (PPS)
	return buf
}

// h265KeyframeHeader builds a start-code-delimited VPS+SPS+PPS prefix
// using the 2-byte HEVC NAL header and the real VPS/SPS/PPS type values
// (32, 33, 34) from demux/h265.go, satisfying the requirement that
// every H.265 keyframe packet's payload begins with VPS+SPS+PPS NALs.
func h265KeyframeHeader(width, height int) []byte {
	var buf []byte
	buf = append(buf, annexBStartCode...)
	buf = append(buf, 0x40, 0x01) // type=32 (VPS)
	buf = append(buf, annexBStartCode...)
	buf = append(buf, 0x42, 0x01) // type=33 (SPS)
	buf = append(buf, dimsPayload(width, height)...)
	buf = append(buf, annexBStartCode...)
	buf = append(buf, 0x44, 0x01) // type=34 (PPS)
	return buf
}

// av1KeyframeHeader builds a minimal sequence-header OBU prefix (OBU
// type 1, low-overhead header byte 0x0A) since AV1 has no NAL/start-code
// framing of its own.
func av1KeyframeHeader(width, height int) []byte {
	buf := []byte{0x0A}
	return append(buf, dimsPayload(width, height)...)
}

// Close is a no-op; SoftwareDevice holds no external resources.
func (d *SoftwareDevice) Close() error { return nil }
