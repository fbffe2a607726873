// Package transport implements the QUIC-facing half of the server: the
// connection accept loop, the control-stream RPC dispatcher, and the
// per-connection attachment worker that fans a session's frames out
// onto QUIC media streams.
package transport

import (
	"log/slog"
	"sync/atomic"

	"github.com/mmserver/mmserverd/internal/media"
	"github.com/mmserver/mmserverd/internal/session"
	"github.com/mmserver/mmserverd/internal/wire"
)

// FrameWriter sends one FramePacket-shaped frame onto a QUIC media
// stream or datagram. It is satisfied by the QUIC connection adapter;
// tests use a channel-backed stub.
type FrameWriter interface {
	WriteVideo(frame media.VideoFrame) error
	WriteAudio(frame media.AudioFrame) error
	WriteCursor(update media.CursorUpdate) error
}

// Attachment is one client's binding to a Session: it implements
// session.Attachment by queuing frames for a dedicated send loop per
// media kind, so a slow client backs up its own queues without
// blocking the session's publish path.
type Attachment struct {
	id     string
	log    *slog.Logger
	writer FrameWriter

	// notifyEnded delivers a control-stream Error message to the
	// client when OnSessionEnded fires; set by the connection handler
	// once the attachment's control stream is known. May be nil (e.g.
	// in tests), in which case OnSessionEnded only stops the send loop.
	notifyEnded func(code wire.ErrorCode, message string)

	videoCh chan media.VideoFrame
	audioCh chan media.AudioFrame

	damagedGroup atomic.Uint32

	videoSent    atomic.Int64
	videoDropped atomic.Int64
	audioSent    atomic.Int64
	audioDropped atomic.Int64

	done     chan struct{}
	doneOnce atomic.Bool
}

// NewAttachment creates an Attachment bound to writer, with its send-loop
// channels sized per the session media buffer constants.
func NewAttachment(id string, writer FrameWriter, log *slog.Logger) *Attachment {
	if log == nil {
		log = slog.Default()
	}
	return &Attachment{
		id:      id,
		log:     log.With("attachment", id),
		writer:  writer,
		videoCh: make(chan media.VideoFrame, media.VideoBufferSize),
		audioCh: make(chan media.AudioFrame, media.AudioBufferSize),
		done:    make(chan struct{}),
	}
}

// SetEndNotifier configures the callback used to tell the client its
// session ended on its own. The connection handler sets this once it
// has opened the control stream the attachment was negotiated on.
func (a *Attachment) SetEndNotifier(fn func(code wire.ErrorCode, message string)) {
	a.notifyEnded = fn
}

// ID implements session.Attachment.
func (a *Attachment) ID() string { return a.id }

// SendVideo implements session.Attachment with damaged-group-aware
// backpressure: when the queue is full, a dropped delta frame poisons
// its GOP so every subsequent frame in that group is also dropped
// until the next keyframe, rather than handing the client a stream it
// cannot decode.
func (a *Attachment) SendVideo(frame media.VideoFrame) {
	if frame.IsKeyframe {
		a.damagedGroup.Store(0)
	} else if a.damagedGroup.Load() == frame.GroupID {
		a.videoDropped.Add(1)
		return
	}

	select {
	case a.videoCh <- frame:
		a.videoSent.Add(1)
	default:
		a.videoDropped.Add(1)
		if !frame.IsKeyframe {
			a.damagedGroup.Store(frame.GroupID)
		}
	}
}

// SendAudio implements session.Attachment, dropping the oldest frame
// under backpressure since stale audio is worse than a short gap.
func (a *Attachment) SendAudio(frame media.AudioFrame) {
	select {
	case a.audioCh <- frame:
		a.audioSent.Add(1)
	default:
		select {
		case <-a.audioCh:
			a.audioDropped.Add(1)
		default:
		}
		select {
		case a.audioCh <- frame:
			a.audioSent.Add(1)
		default:
			a.audioDropped.Add(1)
		}
	}
}

// SendCursor implements session.Attachment by writing immediately;
// cursor updates are small, infrequent, and latency-sensitive, so they
// bypass the queued send loops.
func (a *Attachment) SendCursor(update media.CursorUpdate) {
	if err := a.writer.WriteCursor(update); err != nil {
		a.log.Debug("cursor write failed", "error", err)
	}
}

// Stats is a point-in-time snapshot of this attachment's delivery counters.
type Stats struct {
	VideoSent, VideoDropped int64
	AudioSent, AudioDropped int64
}

// Snapshot returns the attachment's current delivery counters.
func (a *Attachment) Snapshot() Stats {
	return Stats{
		VideoSent:    a.videoSent.Load(),
		VideoDropped: a.videoDropped.Load(),
		AudioSent:    a.audioSent.Load(),
		AudioDropped: a.audioDropped.Load(),
	}
}

// Run drains the video and audio queues onto the writer until Close is
// called, prioritizing video the way a session's consumer should,
// since a dropped audio frame is far less noticeable than video judder.
func (a *Attachment) Run() {
	for {
		select {
		case <-a.done:
			return
		case frame := <-a.videoCh:
			if err := a.writer.WriteVideo(frame); err != nil {
				a.log.Debug("video write failed", "error", err)
			}
			continue
		default:
		}

		select {
		case <-a.done:
			return
		case frame := <-a.videoCh:
			if err := a.writer.WriteVideo(frame); err != nil {
				a.log.Debug("video write failed", "error", err)
			}
		case frame := <-a.audioCh:
			if err := a.writer.WriteAudio(frame); err != nil {
				a.log.Debug("audio write failed", "error", err)
			}
		}
	}
}

// Close stops Run and releases the attachment from its session. Used
// when the client itself ends the attachment (Detach, connection
// close); no notification is sent since the client already knows.
func (a *Attachment) Close(mgr *session.Session) {
	a.stopRun()
	if mgr != nil {
		mgr.Detach(a.id)
	}
}

// OnSessionEnded implements session.Attachment: it's called instead of
// Close when the session ends on its own, so the client is told why
// its stream is about to close rather than just losing it silently.
func (a *Attachment) OnSessionEnded(reason string) {
	if a.notifyEnded != nil {
		a.notifyEnded(wire.ErrServerError, reason)
	}
	a.stopRun()
}

func (a *Attachment) stopRun() {
	if a.doneOnce.CompareAndSwap(false, true) {
		close(a.done)
	}
}

var _ session.Attachment = (*Attachment)(nil)
