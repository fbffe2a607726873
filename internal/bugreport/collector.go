package bugreport

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mmserver/mmserverd/internal/session"
)

// Collector assembles a bug report archive from the running server's
// session manager, captured logs, and config file.
type Collector struct {
	sessions   *session.Manager
	ring       *RingHandler
	configPath string
}

// NewCollector creates a Collector. ring may be nil if log capture
// wasn't wired in, in which case the archive omits per-session logs.
func NewCollector(sessions *session.Manager, ring *RingHandler, configPath string) *Collector {
	return &Collector{sessions: sessions, ring: ring, configPath: configPath}
}

// WriteTo writes a complete bug report archive to w.
func (c *Collector) WriteTo(w *Writer) error {
	now := time.Now()

	if err := w.Add(c.summaryEntry(now)); err != nil {
		return err
	}

	if c.configPath != "" {
		data, err := os.ReadFile(c.configPath)
		if err == nil {
			if err := w.Add(Entry{Name: "config.json", Contents: data, ModTime: now}); err != nil {
				return err
			}
		}
	}

	for _, s := range c.sessions.List() {
		if err := w.Add(c.sessionEntry(s, now)); err != nil {
			return err
		}
	}

	return nil
}

func (c *Collector) summaryEntry(now time.Time) Entry {
	var b strings.Builder
	fmt.Fprintf(&b, "generated_at: %s\n", now.Format(time.RFC3339))
	sessions := c.sessions.List()
	fmt.Fprintf(&b, "session_count: %d\n", len(sessions))
	for _, s := range sessions {
		fmt.Fprintf(&b, "- %s application=%s state=%s started=%s\n",
			s.ID, s.Application, s.State(), s.StartedAt.Format(time.RFC3339))
	}
	return Entry{Name: "summary.txt", Contents: []byte(b.String()), ModTime: now}
}

func (c *Collector) sessionEntry(s *session.Session, now time.Time) Entry {
	var b strings.Builder
	fmt.Fprintf(&b, "session: %s\n", s.ID)
	fmt.Fprintf(&b, "application: %s\n", s.Application)
	fmt.Fprintf(&b, "state: %s\n", s.State())
	fmt.Fprintf(&b, "started_at: %s\n", s.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "attachments: %s\n", strings.Join(s.AttachmentIDs(), ", "))
	b.WriteString("\n--- log ---\n")
	if c.ring != nil {
		for _, line := range c.ring.SessionLog(s.ID) {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return Entry{Name: fmt.Sprintf("sessions/%s.log", s.ID), Contents: []byte(b.String()), ModTime: now}
}
