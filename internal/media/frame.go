// Package media defines the frame types that flow from the GPU pipeline
// through a session's fan-out to attachment workers.
package media

// Channel buffer sizes for each attachment's send queues
// (transport.Attachment). Sized to absorb jitter without unbounded
// growth; when a queue is full a frame is dropped rather than blocking
// the producer.
const (
	VideoBufferSize  = 8
	AudioBufferSize  = 16
	CursorBufferSize = 4
)

// Codec identifies a negotiated video codec.
type Codec int

const (
	CodecH264 Codec = iota
	CodecH265
	CodecAV1
)

func (c Codec) String() string {
	switch c {
	case CodecH264:
		return "h264"
	case CodecH265:
		return "h265"
	case CodecAV1:
		return "av1"
	default:
		return "unknown"
	}
}

// OutputProfile is the negotiated output colour profile.
type OutputProfile int

const (
	ProfileHD OutputProfile = iota // BT.709 narrow-range 4:2:0
	ProfileHDR10                   // BT.2020-PQ 4:2:0 10-bit
)

func (p OutputProfile) String() string {
	if p == ProfileHDR10 {
		return "HDR10-BT2020-PQ"
	}
	return "HD-BT709"
}

// VideoFrame is a single encoded video access unit, ready for FEC
// packetisation and dispatch on an attachment's media stream.
type VideoFrame struct {
	PTS               uint64 // microseconds since attachment epoch
	StreamSeq         uint64 // generation counter; never zero
	FrameSeq          uint64 // monotonic within a stream_seq generation
	GroupID           uint32 // bumped on every keyframe; identifies the GOP a delta frame belongs to
	HierarchicalLayer uint8  // temporal layer; 0 = base
	IsKeyframe        bool
	Codec             Codec
	Payload           []byte  // encoded VCL bitstream
	HeaderPrefix      []byte  // SPS/PPS/VPS NALs, present only on keyframes
	FECRatio          float64 // repair-chunk ratio for this layer, from the session's rate-control curve
}

// AudioFrame is a single encoded Opus frame for one attachment's audio
// stream, aligned to the session clock.
type AudioFrame struct {
	PTS        uint64
	Data       []byte
	SampleRate int
	Channels   int
}

// CursorUpdate is an out-of-band cursor shape/image notification, forwarded
// to attached clients for local cursor rendering.
type CursorUpdate struct {
	Hidden bool
	Shape  string // named cursor shape, empty if Image is set
	Image  []byte // RGBA pixels, empty if Shape is set
	Width  int
	Height int
	HotX   int
	HotY   int
}
