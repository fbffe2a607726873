// Package gpu implements the per-session frame pipeline: composite the
// visible surface tree, colour-convert to the codec's working format,
// encode, and packetise for transport. Encoding is mandatory hardware
// work in a full deployment; this package reaches it through the
// VideoDevice interface so the pipeline's stage sequencing, failure
// handling, and keyframe/layer bookkeeping stay exercised and testable
// without a GPU.
package gpu

import (
	"context"

	"github.com/mmserver/mmserverd/internal/media"
)

// EncodeParams describes one encode call's configuration, derived from
// the negotiated session display parameters and the current
// rate-control decision.
type EncodeParams struct {
	Width, Height     int
	Codec             media.Codec
	Layer             uint8
	ForceKeyframe     bool
	TargetQP          uint32 // used when RateControlMode is constant-QP
	AverageBitrateBps uint64
	PeakBitrateBps    uint64
}

// EncodedAccessUnit is one codec access unit returned by a VideoDevice,
// ready to become a media.VideoFrame once stream/frame sequence numbers
// are assigned by the caller.
type EncodedAccessUnit struct {
	Payload      []byte
	HeaderPrefix []byte // SPS/PPS/VPS, present only when IsKeyframe
	IsKeyframe   bool
}

// VideoDevice abstracts the hardware (or software) video encoder. A
// real deployment backs this with Vulkan Video; tests and environments
// without a GPU use the software reference encoder in this package.
type VideoDevice interface {
	// Composite blits the ordered surfaces into the device's working
	// image, linearising colour per surface as needed before blending.
	Composite(ctx context.Context, surfaces []CompositeInput) error

	// Convert downsamples the composited image into the codec's
	// planar chroma-subsampled working format.
	Convert(ctx context.Context, profile media.OutputProfile) error

	// Encode produces one access unit from the device's current
	// converted image.
	Encode(ctx context.Context, params EncodeParams) (EncodedAccessUnit, error)

	// Close releases any device resources (command buffers, images,
	// encoder sessions).
	Close() error
}

// CompositeInput is the minimal surface data a VideoDevice needs to
// blend one layer into the working image; it intentionally doesn't
// depend on the compositor package, which depends on this package's
// sibling Renderer interface instead of the reverse.
type CompositeInput struct {
	PixelsRGBA          []byte // premultiplied-alpha RGBA8, row-major
	Width               int
	Height              int
	X, Y                int
	PremultipliedLinear bool // true if PixelsRGBA is already linear-light
}
