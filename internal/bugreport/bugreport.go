// Package bugreport captures a snapshot of server state, per-session
// logs, and the active configuration into a single gzip-compressed tar
// archive, for the server's --bug-report mode.
package bugreport

import (
	"archive/tar"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"
)

// Entry is one file to include in the archive.
type Entry struct {
	Name     string // archive-relative path, e.g. "sessions/<id>.log"
	Contents []byte
	ModTime  time.Time
}

// Writer assembles an Entry set into a gzip-compressed tar stream.
type Writer struct {
	gz  *gzip.Writer
	tw  *tar.Writer
	err error
}

// NewWriter wraps w with gzip+tar encoding. Callers must call Close to
// flush both layers.
func NewWriter(w io.Writer) *Writer {
	gz := gzip.NewWriter(w)
	return &Writer{gz: gz, tw: tar.NewWriter(gz)}
}

// Add writes one entry to the archive.
func (bw *Writer) Add(e Entry) error {
	if bw.err != nil {
		return bw.err
	}
	modTime := e.ModTime
	if modTime.IsZero() {
		modTime = time.Now()
	}
	hdr := &tar.Header{
		Name:    e.Name,
		Mode:    0o644,
		Size:    int64(len(e.Contents)),
		ModTime: modTime,
	}
	if err := bw.tw.WriteHeader(hdr); err != nil {
		bw.err = fmt.Errorf("bugreport: write header %s: %w", e.Name, err)
		return bw.err
	}
	if _, err := bw.tw.Write(e.Contents); err != nil {
		bw.err = fmt.Errorf("bugreport: write contents %s: %w", e.Name, err)
		return bw.err
	}
	return nil
}

// Close flushes the tar and gzip layers. Safe to call once.
func (bw *Writer) Close() error {
	if err := bw.tw.Close(); err != nil {
		return fmt.Errorf("bugreport: close tar: %w", err)
	}
	if err := bw.gz.Close(); err != nil {
		return fmt.Errorf("bugreport: close gzip: %w", err)
	}
	return nil
}
