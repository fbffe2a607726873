package session

import (
	"testing"
	"time"

	"github.com/mmserver/mmserverd/internal/media"
)

type recordingAttachment struct {
	id        string
	videos    []media.VideoFrame
	audios    []media.AudioFrame
	cursors   []media.CursorUpdate
	endReason string
}

func (r *recordingAttachment) ID() string                      { return r.id }
func (r *recordingAttachment) SendVideo(f media.VideoFrame)     { r.videos = append(r.videos, f) }
func (r *recordingAttachment) SendAudio(f media.AudioFrame)     { r.audios = append(r.audios, f) }
func (r *recordingAttachment) SendCursor(u media.CursorUpdate)  { r.cursors = append(r.cursors, u) }
func (r *recordingAttachment) OnSessionEnded(reason string)     { r.endReason = reason }

func testParams() DisplayParams {
	return DisplayParams{Width: 1920, Height: 1080, RefreshHz: 60}
}

func TestSessionAttachReplaysGOP(t *testing.T) {
	t.Parallel()
	s := New("steam", testParams(), 0, nil)
	s.MarkReady()

	s.PublishVideo(media.VideoFrame{FrameSeq: 1, IsKeyframe: true})
	s.PublishVideo(media.VideoFrame{FrameSeq: 2})
	s.PublishVideo(media.VideoFrame{FrameSeq: 3})

	a := &recordingAttachment{id: "a1"}
	if err := s.Attach(a); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if len(a.videos) != 3 {
		t.Fatalf("got %d replayed frames, want 3", len(a.videos))
	}
	if s.State() != StateAttached {
		t.Fatalf("state after Attach = %v, want Attached", s.State())
	}
}

func TestSessionGOPCacheResetsOnKeyframe(t *testing.T) {
	t.Parallel()
	s := New("steam", testParams(), 0, nil)

	s.PublishVideo(media.VideoFrame{FrameSeq: 1, IsKeyframe: true})
	s.PublishVideo(media.VideoFrame{FrameSeq: 2})
	s.PublishVideo(media.VideoFrame{FrameSeq: 3, IsKeyframe: true})

	a := &recordingAttachment{id: "a1"}
	s.Attach(a)
	if len(a.videos) != 1 {
		t.Fatalf("got %d replayed frames after new keyframe reset, want 1", len(a.videos))
	}
}

func TestSessionSupportsConcurrentAttachments(t *testing.T) {
	t.Parallel()
	s := New("steam", testParams(), 0, nil)

	a1 := &recordingAttachment{id: "a1"}
	a2 := &recordingAttachment{id: "a2"}

	if err := s.Attach(a1); err != nil {
		t.Fatalf("first Attach: %v", err)
	}
	if err := s.Attach(a2); err != nil {
		t.Fatalf("second Attach: %v", err)
	}
	if s.AttachmentCount() != 2 {
		t.Fatalf("AttachmentCount = %d, want 2", s.AttachmentCount())
	}

	s.PublishVideo(media.VideoFrame{FrameSeq: 1, IsKeyframe: true})
	if len(a1.videos) != 1 || len(a2.videos) != 1 {
		t.Fatalf("both attachments should receive published frames, got a1=%d a2=%d", len(a1.videos), len(a2.videos))
	}
}

func TestSessionAttachRejectedAfterTerminating(t *testing.T) {
	t.Parallel()
	s := New("steam", testParams(), 0, nil)
	s.BeginTerminating()

	if err := s.Attach(&recordingAttachment{id: "a1"}); err == nil {
		t.Fatal("Attach should fail once the session is terminating")
	}
}

func TestSessionDetachTransitionsToIdle(t *testing.T) {
	t.Parallel()
	s := New("steam", testParams(), 0, nil)
	a := &recordingAttachment{id: "a1"}
	s.Attach(a)

	s.Detach("a1")
	if s.State() != StateIdle {
		t.Fatalf("state after Detach = %v, want Idle", s.State())
	}
	if s.AttachmentCount() != 0 {
		t.Fatal("AttachmentCount should be zero after Detach")
	}
}

func TestSessionStaysAttachedUntilLastDetach(t *testing.T) {
	t.Parallel()
	s := New("steam", testParams(), 0, nil)
	s.Attach(&recordingAttachment{id: "a1"})
	s.Attach(&recordingAttachment{id: "a2"})

	s.Detach("a1")
	if s.State() != StateAttached {
		t.Fatalf("state after detaching one of two attachments = %v, want Attached", s.State())
	}
	s.Detach("a2")
	if s.State() != StateIdle {
		t.Fatalf("state after detaching the last attachment = %v, want Idle", s.State())
	}
}

func TestSessionEndAttachmentsNotifiesAndClears(t *testing.T) {
	t.Parallel()
	s := New("steam", testParams(), 0, nil)
	a1 := &recordingAttachment{id: "a1"}
	a2 := &recordingAttachment{id: "a2"}
	s.Attach(a1)
	s.Attach(a2)

	s.EndAttachments("container exited")
	if a1.endReason != "container exited" || a2.endReason != "container exited" {
		t.Fatalf("expected both attachments notified, got a1=%q a2=%q", a1.endReason, a2.endReason)
	}
	if s.AttachmentCount() != 0 {
		t.Fatal("EndAttachments should clear the attachment set")
	}
}

func TestSessionDetachIgnoresMismatchedID(t *testing.T) {
	t.Parallel()
	s := New("steam", testParams(), 0, nil)
	a := &recordingAttachment{id: "a1"}
	s.Attach(a)

	s.Detach("someone-else")
	if s.State() != StateAttached {
		t.Fatal("Detach with wrong ID should not release the active attachment")
	}
}

func TestSessionShouldReapRespectsIdleTimeout(t *testing.T) {
	t.Parallel()
	s := New("steam", testParams(), 10*time.Millisecond, nil)
	a := &recordingAttachment{id: "a1"}
	s.Attach(a)
	s.Detach("a1")

	if s.ShouldReap() {
		t.Fatal("ShouldReap true immediately after detach")
	}
	time.Sleep(20 * time.Millisecond)
	if !s.ShouldReap() {
		t.Fatal("ShouldReap false after exceeding idle timeout")
	}
}

func TestSessionZeroIdleTimeoutNeverReaps(t *testing.T) {
	t.Parallel()
	s := New("steam", testParams(), 0, nil)
	a := &recordingAttachment{id: "a1"}
	s.Attach(a)
	s.Detach("a1")
	time.Sleep(20 * time.Millisecond)

	if s.ShouldReap() {
		t.Fatal("zero idle timeout should disable automatic reaping")
	}
}

func TestSessionCursorReplayedOnAttach(t *testing.T) {
	t.Parallel()
	s := New("steam", testParams(), 0, nil)
	s.PublishCursor(media.CursorUpdate{Shape: "text"})

	a := &recordingAttachment{id: "a1"}
	s.Attach(a)
	if len(a.cursors) != 1 || a.cursors[0].Shape != "text" {
		t.Fatal("cursor state not replayed to newly attached client")
	}
}
