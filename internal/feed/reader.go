// Package feed reads the adversary activity feed, a growing text file with one
// event per line.
package feed

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Source yields lines from the feed on each poll.
type Source interface {
	Poll() ([]string, error)
	Path() string
}

// Reader delivers lines appended to the feed since the previous poll. It owns
// its cursor; two Readers on the same file progress independently.
type Reader struct {
	path   string
	offset int64
	logger *slog.Logger
}

// NewReader creates an incremental reader positioned at the start of path.
func NewReader(path string, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		path:   path,
		logger: logger.With("component", "feed", "path", path),
	}
}

// Path returns the feed path.
func (r *Reader) Path() string {
	return r.path
}

// Offset returns the byte offset of the next unread line.
func (r *Reader) Offset() int64 {
	return r.offset
}

// SkipExisting moves the cursor to the current end of the feed so only lines
// written afterwards are delivered. A missing feed leaves the cursor at 0.
func (r *Reader) SkipExisting() error {
	info, err := os.Stat(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat feed: %w", err)
	}
	r.offset = info.Size()
	return nil
}

// Poll returns complete lines appended since the last poll. A missing feed is
// empty. A trailing line without a newline is left unread until it is
// completed. If the feed shrank below the cursor it was truncated or
// replaced, and reading restarts from the beginning.
func (r *Reader) Poll() ([]string, error) {
	f, err := os.Open(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open feed: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat feed: %w", err)
	}

	size := info.Size()
	if size < r.offset {
		r.logger.Warn("feed shrank, re-reading from start", "size", size, "offset", r.offset)
		r.offset = 0
	}
	if size == r.offset {
		return nil, nil
	}

	if _, err := f.Seek(r.offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek feed: %w", err)
	}

	delta := make([]byte, size-r.offset)
	n, err := io.ReadFull(f, delta)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("read feed: %w", err)
	}
	delta = delta[:n]

	end := bytes.LastIndexByte(delta, '\n')
	if end < 0 {
		return nil, nil
	}
	r.offset += int64(end + 1)

	return splitLines(delta[:end+1]), nil
}

// SnapshotReader returns every complete line currently in the feed on each
// poll. Lines that are still present are delivered again on every cycle; a
// trailing line without its newline is held back until completed.
type SnapshotReader struct {
	path string
}

// NewSnapshotReader creates a full-content reader.
func NewSnapshotReader(path string) *SnapshotReader {
	return &SnapshotReader{path: path}
}

// Path returns the feed path.
func (s *SnapshotReader) Path() string {
	return s.path
}

// Poll returns the complete lines of the whole feed.
func (s *SnapshotReader) Poll() ([]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read feed: %w", err)
	}
	end := bytes.LastIndexByte(data, '\n')
	if end < 0 {
		return nil, nil
	}
	return splitLines(data[:end+1]), nil
}

// splitLines splits data on newlines, trimming surrounding whitespace and
// dropping blank lines.
func splitLines(data []byte) []string {
	var lines []string
	for _, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
