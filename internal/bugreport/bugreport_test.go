package bugreport

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mmserver/mmserverd/internal/session"
)

func TestWriterProducesReadableArchive(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.Add(Entry{Name: "hello.txt", Contents: []byte("hi")}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	gz, err := gzip.NewReader(&buf)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	tr := tar.NewReader(gz)
	hdr, err := tr.Next()
	if err != nil {
		t.Fatalf("tar.Next: %v", err)
	}
	if hdr.Name != "hello.txt" {
		t.Errorf("Name = %q, want hello.txt", hdr.Name)
	}
	contents, err := io.ReadAll(tr)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(contents) != "hi" {
		t.Errorf("contents = %q, want hi", contents)
	}
}

func TestRingHandlerBuffersPerSession(t *testing.T) {
	ring := NewRingHandler(slog.NewTextHandler(io.Discard, nil), 3)
	log := slog.New(ring).With("session", "sess-1")

	for i := 0; i < 5; i++ {
		log.Info("tick", "n", i)
	}

	lines := ring.SessionLog("sess-1")
	if len(lines) != 3 {
		t.Fatalf("SessionLog returned %d lines, want 3 (capacity)", len(lines))
	}

	ring.Forget("sess-1")
	if lines := ring.SessionLog("sess-1"); len(lines) != 0 {
		t.Errorf("expected no lines after Forget, got %d", len(lines))
	}
}

func TestCollectorWriteToIncludesSessions(t *testing.T) {
	mgr := session.NewManager(slog.Default())
	s := session.New("demo", session.DisplayParams{Width: 1920, Height: 1080, RefreshHz: 60}, time.Minute, slog.Default())
	mgr.Create(s)

	ring := NewRingHandler(slog.NewTextHandler(io.Discard, nil), 10)
	c := NewCollector(mgr, ring, "")

	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := c.WriteTo(w); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	gz, err := gzip.NewReader(&buf)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	tr := tar.NewReader(gz)
	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("tar.Next: %v", err)
		}
		names = append(names, hdr.Name)
	}

	wantSessionLog := "sessions/" + s.ID + ".log"
	found := false
	for _, n := range names {
		if n == wantSessionLog {
			found = true
		}
	}
	if !found {
		t.Errorf("expected archive to contain %s, got %v", wantSessionLog, names)
	}
}
