// Package sink writes extracted records as webdataset-style tar shards.
package sink

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgallion1/figcap/internal/paper"
)

var ErrClosed = errors.New("sink: closed")

// Sink receives finished records. Implementations are goroutine-safe.
type Sink interface {
	Write(d paper.Datum) error
}

// TarSink groups each record under a monotonic key: <key>.<ext> holds the
// image, <key>.txt the caption and <key>.url the paper location.
type TarSink struct {
	mu     sync.Mutex
	tw     *tar.Writer
	closer io.Closer
	next   int
	closed bool
	now    func() time.Time
}

// NewTarSink writes to w. Close flushes the tar footer but does not close w.
func NewTarSink(w io.Writer) *TarSink {
	return &TarSink{tw: tar.NewWriter(w), now: time.Now}
}

// CreateTarSink creates (or truncates) the file at name.
func CreateTarSink(name string) (*TarSink, error) {
	f, err := os.Create(name)
	if err != nil {
		return nil, fmt.Errorf("create sink %s: %w", name, err)
	}
	s := NewTarSink(f)
	s.closer = f
	return s, nil
}

// Write appends one record. Records are never interleaved.
func (s *TarSink) Write(d paper.Datum) error {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(d.ImagePath), "."))
	if ext == "" {
		ext = "png"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	key := strconv.Itoa(s.next)
	s.next++

	parts := []struct {
		name string
		data []byte
	}{
		{key + "." + ext, d.Image},
		{key + ".txt", []byte(d.Caption)},
		{key + ".url", []byte(d.URL)},
	}
	mod := s.now()
	for _, p := range parts {
		hdr := &tar.Header{
			Name:    p.name,
			Mode:    0o644,
			Size:    int64(len(p.data)),
			ModTime: mod,
			Format:  tar.FormatPAX,
		}
		if err := s.tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("write %s header: %w", p.name, err)
		}
		if _, err := s.tw.Write(p.data); err != nil {
			return fmt.Errorf("write %s: %w", p.name, err)
		}
	}
	return nil
}

// Count returns how many records were written.
func (s *TarSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Close finishes the tar stream and closes the file it owns, if any.
func (s *TarSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.tw.Close()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Collector keeps records in memory; used by synchronous single-paper
// extraction.
type Collector struct {
	mu      sync.Mutex
	records []paper.Datum
}

func (c *Collector) Write(d paper.Datum) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, d)
	return nil
}

// Records returns a copy of what has been collected.
func (c *Collector) Records() []paper.Datum {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]paper.Datum(nil), c.records...)
}
