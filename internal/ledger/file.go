package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lancejames221b/CyberSentinelAI/internal/schema"
)

// FileConfig configures a FileLedger.
type FileConfig struct {
	Path          string `yaml:"path"`
	QueueSize     int    `yaml:"queue_size"`
	StartupRecord bool   `yaml:"startup_record"`
}

// DefaultFileConfig returns the default file ledger configuration.
func DefaultFileConfig() FileConfig {
	return FileConfig{
		Path:          "logs/blue_agent_output.json",
		QueueSize:     256,
		StartupRecord: true,
	}
}

// FileLedger stores the ledger as a single JSON array. Every append is a
// read-modify-write of the whole document, performed by one writer goroutine
// so appends are serialized.
type FileLedger struct {
	path      string
	logger    *slog.Logger
	validator *schema.Validator
	read      func(path string) ([]schema.ResponseRecord, error)

	requests chan appendRequest
	mu       sync.RWMutex // guards closed and sends on requests
	closed   bool
	wg       sync.WaitGroup

	// Metrics
	appended uint64
	failed   uint64
}

type appendRequest struct {
	rec   schema.ResponseRecord
	reply chan appendResult
}

type appendResult struct {
	rec schema.ResponseRecord
	err error
}

// OpenFile opens (or creates) the ledger document and starts its writer.
// When the document is missing or empty and StartupRecord is set, a
// "system startup" record is appended first.
func OpenFile(cfg FileConfig, logger *slog.Logger) (*FileLedger, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("ledger: path is required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultFileConfig().QueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("ledger: create directory: %w", err)
	}

	fresh := true
	if info, err := os.Stat(cfg.Path); err == nil && info.Size() > 0 {
		fresh = false
	}

	l := &FileLedger{
		path:      cfg.Path,
		logger:    logger.With("component", "ledger", "path", cfg.Path),
		validator: schema.NewValidator(),
		read:      ReadFile,
		requests:  make(chan appendRequest, cfg.QueueSize),
	}

	l.wg.Add(1)
	go l.writer()

	if fresh {
		if cfg.StartupRecord {
			if _, err := l.Append(context.Background(), StartupRecord()); err != nil {
				l.Close()
				return nil, err
			}
		} else if err := writeDocument(l.path, []schema.ResponseRecord{}); err != nil {
			l.Close()
			return nil, err
		}
	}

	return l, nil
}

// Path returns the document path.
func (l *FileLedger) Path() string {
	return l.path
}

// Append queues rec for the writer and waits for it to be persisted.
func (l *FileLedger) Append(ctx context.Context, rec schema.ResponseRecord) (schema.ResponseRecord, error) {
	req := appendRequest{rec: rec, reply: make(chan appendResult, 1)}

	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return rec, ErrClosed
	}
	select {
	case l.requests <- req:
	case <-ctx.Done():
		l.mu.RUnlock()
		return rec, ctx.Err()
	}
	l.mu.RUnlock()

	select {
	case res := <-req.reply:
		return res.rec, res.err
	case <-ctx.Done():
		// The writer still persists the record; only the caller stops waiting.
		return rec, ctx.Err()
	}
}

// Read returns the persisted history. A missing document is an empty history.
func (l *FileLedger) Read(_ context.Context) ([]schema.ResponseRecord, error) {
	return ReadFile(l.path)
}

// Close stops accepting appends and waits until queued ones are written.
func (l *FileLedger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.requests)
	l.mu.Unlock()

	l.wg.Wait()
	return nil
}

// Metrics returns ledger statistics.
func (l *FileLedger) Metrics() Metrics {
	return Metrics{
		Appended: atomic.LoadUint64(&l.appended),
		Failed:   atomic.LoadUint64(&l.failed),
	}
}

// Metrics holds ledger statistics.
type Metrics struct {
	Appended uint64 `json:"appended"`
	Failed   uint64 `json:"failed"`
}

func (l *FileLedger) writer() {
	defer l.wg.Done()

	for req := range l.requests {
		rec, err := l.appendLocked(req.rec)
		if err != nil {
			atomic.AddUint64(&l.failed, 1)
			l.logger.Error("ledger append failed", "detection", req.rec.Detection, "error", err)
		} else {
			atomic.AddUint64(&l.appended, 1)
		}
		req.reply <- appendResult{rec: rec, err: err}
	}
}

// appendLocked runs on the writer goroutine only.
func (l *FileLedger) appendLocked(rec schema.ResponseRecord) (schema.ResponseRecord, error) {
	records, err := l.read(l.path)
	switch {
	case errors.Is(err, ErrMalformedDocument):
		l.logger.Warn("ledger document unparsable, starting new history", "error", err)
		l.preserveCorrupt()
		records = nil
	case err != nil:
		// The document is left untouched so the caller can retry.
		return rec, err
	}

	if rec.Timestamp.IsZero() {
		rec.Timestamp = schema.Now()
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.Sequence = nextSequence(records)

	if err := l.validator.Validate(&rec); err != nil {
		return rec, fmt.Errorf("ledger: %w", err)
	}

	records = append(records, rec)
	if err := writeDocument(l.path, records); err != nil {
		return rec, err
	}
	return rec, nil
}

// preserveCorrupt moves an unparsable document aside before it is replaced.
func (l *FileLedger) preserveCorrupt() {
	backup := fmt.Sprintf("%s.corrupt-%d", l.path, time.Now().UnixNano())
	if err := os.Rename(l.path, backup); err != nil && !errors.Is(err, os.ErrNotExist) {
		l.logger.Warn("failed to preserve corrupt ledger document", "error", err)
		return
	}
	l.logger.Warn("corrupt ledger document preserved", "backup", backup)
}

// ReadFile decodes a ledger document. A missing or empty file yields an
// empty history; undecodable content yields ErrMalformedDocument.
func ReadFile(path string) ([]schema.ResponseRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []schema.ResponseRecord{}, nil
		}
		return nil, fmt.Errorf("ledger: read document: %w", err)
	}
	if len(data) == 0 {
		return []schema.ResponseRecord{}, nil
	}

	var records []schema.ResponseRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if records == nil {
		records = []schema.ResponseRecord{}
	}
	return records, nil
}

// writeDocument replaces the document atomically via a temp file and rename,
// so readers never observe a partially written document.
func writeDocument(path string, records []schema.ResponseRecord) error {
	if records == nil {
		records = []schema.ResponseRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("ledger: encode document: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("ledger: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("ledger: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("ledger: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("ledger: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("ledger: replace document: %w", err)
	}
	return nil
}
