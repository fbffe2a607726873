// Package session tracks the lifecycle of active application sessions:
// one per running container, shared by any number of concurrently
// attached clients, with a GOP/audio cache so a newly attaching (or
// reattaching) client gets decodable content immediately rather than
// waiting for the next keyframe.
package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmserver/mmserverd/internal/media"
)

// State is a Session's position in its lifecycle.
type State int

const (
	StateStarting State = iota
	StateReady
	StateAttached
	StateIdle
	StateTerminating
	StateGone
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateAttached:
		return "attached"
	case StateIdle:
		return "idle"
	case StateTerminating:
		return "terminating"
	case StateGone:
		return "gone"
	default:
		return "unknown"
	}
}

// DisplayParams are the immutable-for-session-lifetime display
// parameters negotiated when the session starts. Codec and HDR are part
// of the match key alongside width/height/refresh rate, since the GPU
// pipeline encodes a session's frames in exactly one codec and colour
// profile for every attached client.
type DisplayParams struct {
	Width, Height int
	RefreshHz     int
	HDR           bool
	Codec         media.Codec
}

// Key identifies a session's (application, display parameters) pairing
// used to find a reattachable session for a given application request.
type Key struct {
	Application string
	Params      DisplayParams
}

func (k Key) String() string {
	return fmt.Sprintf("%s@%dx%d@%dHz/hdr=%v/%s", k.Application, k.Params.Width, k.Params.Height, k.Params.RefreshHz, k.Params.HDR, k.Params.Codec)
}

const audioCacheSize = 50

// Attachment is the interface a transport-layer subscriber implements
// to receive a session's frames. A Session fans out to any number of
// attachments concurrently; it is the connection layer's job to allow
// at most one active attachment per (connection, session) pair.
type Attachment interface {
	ID() string
	SendVideo(frame media.VideoFrame)
	SendAudio(frame media.AudioFrame)
	SendCursor(update media.CursorUpdate)

	// OnSessionEnded is called when the session itself is ending rather
	// than the attachment being detached by its own client (child
	// crash, GPU failure, idle reap): the implementation should surface
	// reason to the client and stop delivering frames.
	OnSessionEnded(reason string)
}

// Session is one running application instance: its lifecycle state,
// display parameters, and the set of attachments currently receiving
// its frames.
type Session struct {
	ID          string
	Application string
	Params      DisplayParams
	StartedAt   time.Time

	log *slog.Logger

	mu          sync.RWMutex
	state       State
	attachments map[string]Attachment
	lastDetach  time.Time
	idleTimeout time.Duration

	gopMu    sync.RWMutex
	gopCache []media.VideoFrame

	audioMu    sync.Mutex
	audioCache []media.AudioFrame

	lastCursor media.CursorUpdate
	haveCursor bool

	// refresh is the launcher's hook back into the compositor/pipeline
	// that actually own the GOP-restart: RequestRefresh on the
	// compositor (forces the next tick to render) plus Renegotiate on
	// the GPU pipeline (bumps stream_seq for a clean new generation).
	// Set once by the session's starter; nil until then.
	refresh func()
}

// New creates a Session in StateStarting. The caller transitions it to
// StateReady once the container and compositor have finished launching.
func New(application string, params DisplayParams, idleTimeout time.Duration, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	id := uuid.NewString()
	return &Session{
		ID:          id,
		Application: application,
		Params:      params,
		StartedAt:   time.Now(),
		log:         log.With("session", id, "application", application),
		state:       StateStarting,
		attachments: make(map[string]Attachment),
		idleTimeout: idleTimeout,
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetRefreshHandler wires the compositor/pipeline refresh hook. Called
// once by the session's starter (internal/launcher) right after both
// collaborators exist.
func (s *Session) SetRefreshHandler(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh = fn
}

// RequestRefresh asks the session's compositor/pipeline to force a new
// keyframe and start a fresh stream_seq generation, per §4.2: an
// attachment worker that detects loss emits an explicit refresh request
// to the session rather than waiting for the next scheduled keyframe.
// A no-op if no handler has been wired yet.
func (s *Session) RequestRefresh() {
	s.mu.RLock()
	fn := s.refresh
	s.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// MarkReady transitions Starting -> Ready once the container and
// compositor have finished launching.
func (s *Session) MarkReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStarting {
		s.state = StateReady
		s.log.Info("session ready")
	}
}

// Attach adds a to the session's set of active subscribers, replaying
// the cached GOP and recent audio so the client can start decoding
// immediately. Any number of attachments may be bound concurrently;
// it's the connection layer's job to enforce at most one active
// attachment per (connection, session) pair. Attach fails only once
// the session has begun tearing down.
func (s *Session) Attach(a Attachment) error {
	s.mu.Lock()
	if s.state == StateTerminating || s.state == StateGone {
		s.mu.Unlock()
		return fmt.Errorf("session: cannot attach, session is %s", s.state)
	}
	s.attachments[a.ID()] = a
	s.state = StateAttached
	s.mu.Unlock()

	s.replayGOP(a)
	s.replayAudio(a)
	if s.haveCursor {
		a.SendCursor(s.lastCursor)
	}

	s.log.Info("attachment bound", "attachment", a.ID())
	return nil
}

// Detach releases the attachment matching id. Once the last attachment
// is released the session transitions to StateIdle and the idle-timeout
// clock starts.
func (s *Session) Detach(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attachments[id]; !ok {
		return
	}
	delete(s.attachments, id)
	if len(s.attachments) == 0 {
		s.lastDetach = time.Now()
		if s.state == StateAttached {
			s.state = StateIdle
		}
	}
	s.log.Info("attachment released", "attachment", id)
}

// IdleFor reports how long the session has had no attachment, or zero
// if it is currently attached or has never been attached.
func (s *Session) IdleFor() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateIdle || s.lastDetach.IsZero() {
		return 0
	}
	return time.Since(s.lastDetach)
}

// ShouldReap reports whether the session has been idle past its
// configured idle timeout (0 means never reap automatically).
func (s *Session) ShouldReap() bool {
	if s.idleTimeout <= 0 {
		return false
	}
	return s.IdleFor() >= s.idleTimeout
}

// BeginTerminating transitions to StateTerminating so no new attachment
// is accepted while the container is torn down.
func (s *Session) BeginTerminating() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateTerminating
	s.log.Info("session terminating")
}

// EndAttachments notifies every currently bound attachment that the
// session is ending on its own (not because the client detached) and
// clears the attachment set, per §4.6: per-session failures terminate
// the session and surface ServerError to every attached worker. Callers
// invoke this after BeginTerminating, once no further Attach can race
// in.
func (s *Session) EndAttachments(reason string) {
	for _, a := range s.attachmentSnapshot() {
		a.OnSessionEnded(reason)
	}
	s.mu.Lock()
	s.attachments = make(map[string]Attachment)
	s.mu.Unlock()
}

// MarkGone transitions to the terminal StateGone.
func (s *Session) MarkGone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateGone
	s.log.Info("session gone")
}

// PublishVideo fans a frame out to every active attachment and updates
// the GOP cache for future replay. It implements gpu.FrameSink. This is
// a single-producer/multi-consumer ring: the session is the sole
// producer, and each attachment consumes at its own pace without
// blocking the others or the producer.
func (s *Session) PublishVideo(frame media.VideoFrame) {
	s.gopMu.Lock()
	if frame.IsKeyframe {
		s.gopCache = s.gopCache[:0]
	}
	s.gopCache = append(s.gopCache, frame)
	s.gopMu.Unlock()

	for _, a := range s.attachmentSnapshot() {
		a.SendVideo(frame)
	}
}

// PublishAudio fans an audio frame out to every active attachment and
// updates the replay cache.
func (s *Session) PublishAudio(frame media.AudioFrame) {
	s.audioMu.Lock()
	if len(s.audioCache) >= audioCacheSize {
		copy(s.audioCache, s.audioCache[1:])
		s.audioCache[len(s.audioCache)-1] = frame
	} else {
		s.audioCache = append(s.audioCache, frame)
	}
	s.audioMu.Unlock()

	for _, a := range s.attachmentSnapshot() {
		a.SendAudio(frame)
	}
}

// PublishCursor forwards a cursor update to every active attachment and
// remembers it for replay to the next attaching client.
func (s *Session) PublishCursor(update media.CursorUpdate) {
	s.mu.Lock()
	s.lastCursor = update
	s.haveCursor = true
	s.mu.Unlock()
	for _, a := range s.attachmentSnapshot() {
		a.SendCursor(update)
	}
}

// attachmentSnapshot returns the currently bound attachments, safe to
// iterate without holding s.mu (a slow SendVideo must never block a
// concurrent Attach/Detach).
func (s *Session) attachmentSnapshot() []Attachment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Attachment, 0, len(s.attachments))
	for _, a := range s.attachments {
		out = append(out, a)
	}
	return out
}

func (s *Session) replayGOP(a Attachment) {
	s.gopMu.RLock()
	defer s.gopMu.RUnlock()
	for _, frame := range s.gopCache {
		a.SendVideo(frame)
	}
}

func (s *Session) replayAudio(a Attachment) {
	s.audioMu.Lock()
	defer s.audioMu.Unlock()
	for _, frame := range s.audioCache {
		a.SendAudio(frame)
	}
}

// AttachmentCount returns the number of currently bound attachments.
func (s *Session) AttachmentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.attachments)
}

// AttachmentIDs returns the IDs of every currently bound attachment.
func (s *Session) AttachmentIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.attachments))
	for id := range s.attachments {
		ids = append(ids, id)
	}
	return ids
}
