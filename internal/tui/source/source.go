// Package source loads the ledger and activity log for the dashboard.
package source

import (
	"context"
	"time"

	"github.com/lancejames221b/CyberSentinelAI/internal/feed"
	"github.com/lancejames221b/CyberSentinelAI/internal/ledger"
	"github.com/lancejames221b/CyberSentinelAI/internal/schema"
	"github.com/lancejames221b/CyberSentinelAI/internal/summary"
)

// Reader reads the full ledger history.
type Reader interface {
	Read(ctx context.Context) ([]schema.ResponseRecord, error)
}

// FileReader reads a ledger document without taking the writer role, so the
// dashboard can run next to a live engine.
type FileReader string

// Read decodes the document at the path.
func (f FileReader) Read(context.Context) ([]schema.ResponseRecord, error) {
	return ledger.ReadFile(string(f))
}

// Snapshot is one load of the ledger.
type Snapshot struct {
	Summary  summary.Summary
	Records  []schema.ResponseRecord
	LoadedAt time.Time
}

// Source combines a ledger reader with the activity log path.
type Source struct {
	ledger   Reader
	activity string
}

// New creates a source. activityPath may be empty.
func New(r Reader, activityPath string) *Source {
	return &Source{ledger: r, activity: activityPath}
}

// Snapshot loads and summarizes the ledger.
func (s *Source) Snapshot(ctx context.Context) (Snapshot, error) {
	records, err := s.ledger.Read(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Summary: summary.Build(records), Records: records, LoadedAt: time.Now()}, nil
}

// Activity returns the last n activity log lines, oldest first.
func (s *Source) Activity(n int) ([]string, error) {
	if s.activity == "" {
		return nil, nil
	}
	lines, err := feed.NewSnapshotReader(s.activity).Poll()
	if err != nil {
		return nil, err
	}
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}
