package gpu

import (
	"context"
	"testing"
	"time"

	"github.com/mmserver/mmserverd/internal/compositor"
	"github.com/mmserver/mmserverd/internal/media"
)

type recordingSink struct {
	frames []media.VideoFrame
}

func (s *recordingSink) PublishVideo(f media.VideoFrame) {
	s.frames = append(s.frames, f)
}

func TestPipelineRenderAssignsIncreasingFrameSeq(t *testing.T) {
	sink := &recordingSink{}
	p := New(Config{
		Device:    NewSoftwareDevice(4, 4),
		Sink:      sink,
		Codec:     media.CodecH264,
		StreamSeq: 1,
	})

	in := compositor.RenderInput{
		Surfaces: []compositor.RenderSurface{{
			Buffer: compositor.Buffer{Kind: compositor.BufferSHM, Width: 4, Height: 4, SHMData: solidRGBA(4, 4, 1, 2, 3, 255)},
		}},
	}

	for i := 0; i < 3; i++ {
		if err := p.Render(context.Background(), in); err != nil {
			t.Fatalf("Render: %v", err)
		}
	}

	if len(sink.frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(sink.frames))
	}
	for i, f := range sink.frames {
		if f.FrameSeq != uint64(i+1) {
			t.Fatalf("frame %d FrameSeq = %d, want %d", i, f.FrameSeq, i+1)
		}
		if f.StreamSeq != 1 {
			t.Fatalf("frame %d StreamSeq = %d, want 1", i, f.StreamSeq)
		}
	}
	if !sink.frames[0].IsKeyframe {
		t.Fatal("first frame was not a keyframe")
	}
}

func TestPipelineRenderDerivesPTSFromTickClock(t *testing.T) {
	sink := &recordingSink{}
	p := New(Config{Device: NewSoftwareDevice(2, 2), Sink: sink, StreamSeq: 1})

	epoch := time.Now()
	p.Render(context.Background(), compositor.RenderInput{Tick: epoch})
	p.Render(context.Background(), compositor.RenderInput{Tick: epoch.Add(16 * time.Millisecond)})

	if sink.frames[0].PTS != 0 {
		t.Fatalf("first frame PTS = %d, want 0 at epoch", sink.frames[0].PTS)
	}
	want := uint64(16 * time.Millisecond / time.Microsecond)
	if sink.frames[1].PTS != want {
		t.Fatalf("second frame PTS = %d, want %d", sink.frames[1].PTS, want)
	}
}

func TestPipelineRenegotiateResetsFrameSeq(t *testing.T) {
	sink := &recordingSink{}
	p := New(Config{Device: NewSoftwareDevice(2, 2), Sink: sink, StreamSeq: 1})

	p.Render(context.Background(), compositor.RenderInput{})
	p.Renegotiate()
	p.Render(context.Background(), compositor.RenderInput{})

	if sink.frames[1].StreamSeq != 2 {
		t.Fatalf("StreamSeq after renegotiate = %d, want 2", sink.frames[1].StreamSeq)
	}
	if sink.frames[1].FrameSeq != 1 {
		t.Fatalf("FrameSeq after renegotiate = %d, want 1", sink.frames[1].FrameSeq)
	}
}
