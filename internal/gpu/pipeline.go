package gpu

import (
	"context"
	"log/slog"
	"time"

	"github.com/mmserver/mmserverd/internal/compositor"
	"github.com/mmserver/mmserverd/internal/media"
)

// FrameSink receives completed video frames from the pipeline for
// distribution to attached clients.
type FrameSink interface {
	PublishVideo(frame media.VideoFrame)
}

// Pipeline drives a VideoDevice from compositor render input, assigning
// stream/frame sequence numbers and applying the rate-control curve
// before handing the result to a FrameSink. It implements
// compositor.Renderer, so a session wires a Pipeline directly in as its
// compositor's renderer.
type Pipeline struct {
	log     *slog.Logger
	device  VideoDevice
	sink    FrameSink
	codec   media.Codec
	profile media.OutputProfile

	streamSeq uint64
	frameSeq  uint64
	groupID   uint32
	fecRatios []float64 // indexed by hierarchical layer; last entry reused for deeper layers

	// epoch is the first tick's timestamp, set on that frame's Render
	// call; every frame's PTS is measured relative to it so video and
	// audio share the same attachment-epoch clock per media/frame.go.
	epoch time.Time

	curve RateControlCurve
}

// Config bundles a Pipeline's fixed parameters for one session's lifetime.
type Config struct {
	Device    VideoDevice
	Sink      FrameSink
	Codec     media.Codec
	Profile   media.OutputProfile // BT.709 SDR or BT.2020-PQ HDR10, per the session's negotiated DisplayParams.HDR
	StreamSeq uint64              // must be >= 1; bumped by Renegotiate
	FECRatios []float64
	Curve     RateControlCurve
	Log       *slog.Logger
}

// New creates a Pipeline. StreamSeq must be nonzero per the frame
// wire format's invariant that stream_seq is never zero.
func New(cfg Config) *Pipeline {
	if cfg.StreamSeq == 0 {
		cfg.StreamSeq = 1
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		log:       log,
		device:    cfg.Device,
		sink:      cfg.Sink,
		codec:     cfg.Codec,
		profile:   cfg.Profile,
		streamSeq: cfg.StreamSeq,
		fecRatios: cfg.FECRatios,
		curve:     cfg.Curve,
	}
}

// Render implements compositor.Renderer: composite the visible surface
// tree, convert, encode the base layer, and publish the frame to the
// sink; packetising happens later, in the transport's send path.
func (p *Pipeline) Render(ctx context.Context, in compositor.RenderInput) error {
	inputs := make([]CompositeInput, 0, len(in.Surfaces))
	for _, s := range in.Surfaces {
		inputs = append(inputs, CompositeInput{
			PixelsRGBA: s.Buffer.SHMData,
			Width:      s.Buffer.Width,
			Height:     s.Buffer.Height,
			X:          s.X,
			Y:          s.Y,
		})
	}

	if err := p.device.Composite(ctx, inputs); err != nil {
		return err
	}
	if err := p.device.Convert(ctx, p.profile); err != nil {
		return err
	}

	const layer = 0
	qp, vbr := p.curve.Layer(layer)
	params := EncodeParams{
		Codec:             p.codec,
		Layer:             layer,
		ForceKeyframe:     in.Forced,
		TargetQP:          qp,
		AverageBitrateBps: vbr.AverageBitrateBps,
		PeakBitrateBps:    vbr.PeakBitrateBps,
	}
	if len(in.Surfaces) > 0 {
		params.Width = in.Surfaces[0].Buffer.Width
		params.Height = in.Surfaces[0].Buffer.Height
	}

	au, err := p.device.Encode(ctx, params)
	if err != nil {
		return err
	}

	if p.epoch.IsZero() {
		p.epoch = in.Tick
	}
	p.frameSeq++
	if au.IsKeyframe {
		p.groupID++
	}
	frame := media.VideoFrame{
		PTS:               uint64(in.Tick.Sub(p.epoch) / time.Microsecond),
		StreamSeq:         p.streamSeq,
		FrameSeq:          p.frameSeq,
		GroupID:           p.groupID,
		HierarchicalLayer: layer,
		IsKeyframe:        au.IsKeyframe,
		Codec:             p.codec,
		Payload:           au.Payload,
		HeaderPrefix:      au.HeaderPrefix,
		FECRatio:          p.fecRatioFor(layer),
	}

	if p.sink != nil {
		p.sink.PublishVideo(frame)
	}
	return nil
}

// Renegotiate bumps StreamSeq and resets the frame and GOP counters, so
// downstream FEC/decoder state restarts from a clean generation. The
// launcher calls it from the session's refresh handler.
func (p *Pipeline) Renegotiate() {
	p.streamSeq++
	p.frameSeq = 0
	p.groupID = 0
}

func (p *Pipeline) fecRatioFor(layer uint8) float64 {
	if len(p.fecRatios) == 0 {
		return 0
	}
	if int(layer) >= len(p.fecRatios) {
		return p.fecRatios[len(p.fecRatios)-1]
	}
	return p.fecRatios[layer]
}
