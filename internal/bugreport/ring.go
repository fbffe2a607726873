package bugreport

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
)

// RingHandler is an slog.Handler that retains the last capacity log
// lines per session, identified by the "session" attribute each of the
// server's per-session loggers carries. Installed as one handler in a
// slog.Logger's chain (via slog.NewJSONHandler wrapped by this), it lets
// --bug-report capture recent history for a session without the server
// needing to keep a separate log file per session on disk.
type RingHandler struct {
	next     slog.Handler
	capacity int
	store    *ringStore
	session  string // "session" attribute bound via WithAttrs, if any
}

// ringStore is shared across every handler derived from the same root
// via WithAttrs/WithGroup, so they buffer into one set of per-session
// logs rather than each tracking their own.
type ringStore struct {
	mu   sync.Mutex
	logs map[string][]string
}

// NewRingHandler wraps next, retaining up to capacity lines per session.
func NewRingHandler(next slog.Handler, capacity int) *RingHandler {
	return &RingHandler{next: next, capacity: capacity, store: &ringStore{logs: make(map[string][]string)}}
}

func (h *RingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *RingHandler) Handle(ctx context.Context, record slog.Record) error {
	var buf bytes.Buffer
	buf.WriteString(record.Time.Format("15:04:05.000"))
	buf.WriteByte(' ')
	buf.WriteString(record.Level.String())
	buf.WriteByte(' ')
	buf.WriteString(record.Message)

	sessionID := h.session
	record.Attrs(func(a slog.Attr) bool {
		buf.WriteByte(' ')
		buf.WriteString(a.String())
		if a.Key == "session" {
			sessionID = a.Value.String()
		}
		return true
	})

	if sessionID != "" {
		h.store.mu.Lock()
		lines := append(h.store.logs[sessionID], buf.String())
		if len(lines) > h.capacity {
			lines = lines[len(lines)-h.capacity:]
		}
		h.store.logs[sessionID] = lines
		h.store.mu.Unlock()
	}

	return h.next.Handle(ctx, record)
}

func (h *RingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	session := h.session
	for _, a := range attrs {
		if a.Key == "session" {
			session = a.Value.String()
		}
	}
	return &RingHandler{next: h.next.WithAttrs(attrs), capacity: h.capacity, store: h.store, session: session}
}

func (h *RingHandler) WithGroup(name string) slog.Handler {
	return &RingHandler{next: h.next.WithGroup(name), capacity: h.capacity, store: h.store, session: h.session}
}

// SessionLog returns the buffered log lines for a session ID, newest last.
func (h *RingHandler) SessionLog(sessionID string) []string {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	lines := h.store.logs[sessionID]
	out := make([]string, len(lines))
	copy(out, lines)
	return out
}

// Forget drops a session's buffered log once it is no longer needed,
// called when a session is reaped or terminated normally.
func (h *RingHandler) Forget(sessionID string) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	delete(h.store.logs, sessionID)
}
