package response

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lancejames221b/CyberSentinelAI/internal/schema"
)

// ActivityLog appends human-readable lines of the form
// "[YYYY-MM-DDTHH:MM:SSZ] message" to a file and echoes them to a mirror
// writer (stdout by default).
type ActivityLog struct {
	path   string
	file   *os.File
	writer *bufio.Writer
	mirror io.Writer
	now    func() time.Time
	mu     sync.Mutex
}

// OpenActivityLog opens path for appending, creating parent directories.
// A nil mirror disables echoing.
func OpenActivityLog(path string, mirror io.Writer) (*ActivityLog, error) {
	if path == "" {
		return nil, fmt.Errorf("activity log path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open activity log: %w", err)
	}
	return &ActivityLog{
		path:   path,
		file:   f,
		writer: bufio.NewWriter(f),
		mirror: mirror,
		now:    time.Now,
	}, nil
}

// Path returns the log file path.
func (a *ActivityLog) Path() string { return a.path }

// Log writes one timestamped line.
func (a *ActivityLog) Log(message string) error {
	line := fmt.Sprintf("[%s] %s\n", schema.NewTimestamp(a.now()), message)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.file == nil {
		return fmt.Errorf("activity log closed")
	}
	if _, err := a.writer.WriteString(line); err != nil {
		return fmt.Errorf("write activity: %w", err)
	}
	if err := a.writer.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if a.mirror != nil {
		io.WriteString(a.mirror, line)
	}
	return nil
}

// Logf formats and writes one timestamped line.
func (a *ActivityLog) Logf(format string, args ...any) error {
	return a.Log(fmt.Sprintf(format, args...))
}

// Close flushes and closes the file.
func (a *ActivityLog) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	_ = a.writer.Flush()
	err := a.file.Close()
	a.file = nil
	return err
}
