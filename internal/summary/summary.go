// Package summary aggregates ledger history for reports and the dashboard.
package summary

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/lancejames221b/CyberSentinelAI/internal/ledger"
	"github.com/lancejames221b/CyberSentinelAI/internal/schema"
)

// Count is a label with its number of records.
type Count struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Summary describes a ledger snapshot.
type Summary struct {
	Total          int       `json:"total"`
	First          time.Time `json:"first,omitempty"`
	Last           time.Time `json:"last,omitempty"`
	LastSequence   uint64    `json:"last_sequence"`
	MeanConfidence float64   `json:"mean_confidence"`
	Categories     []Count   `json:"categories"`
	Detections     []Count   `json:"detections"`
	Sources        []Count   `json:"sources"`
	Verified       bool      `json:"verified"`
	VerifyError    string    `json:"verify_error,omitempty"`
}

// Build summarizes records in ledger order.
func Build(records []schema.ResponseRecord) Summary {
	s := Summary{Total: len(records)}
	if len(records) == 0 {
		s.Verified = true
		return s
	}

	categories := make(map[string]int)
	detections := make(map[string]int)
	sources := make(map[string]int)
	var confidence float64

	for _, rec := range records {
		cat := string(rec.Category)
		if cat == "" {
			cat = "uncategorized"
		}
		categories[cat]++
		detections[rec.Detection]++
		if rec.Source != "" && rec.Source != schema.UnknownSource {
			sources[rec.Source]++
		}
		confidence += rec.Confidence
	}

	s.First = records[0].Timestamp.Time
	s.Last = records[len(records)-1].Timestamp.Time
	s.LastSequence = records[len(records)-1].Sequence
	s.MeanConfidence = confidence / float64(len(records))
	s.Categories = sorted(categories)
	s.Detections = sorted(detections)
	s.Sources = sorted(sources)

	if err := ledger.Verify(records); err != nil {
		s.VerifyError = err.Error()
	} else {
		s.Verified = true
	}
	return s
}

// Load reads l and summarizes it.
func Load(ctx context.Context, l ledger.Ledger) (Summary, []schema.ResponseRecord, error) {
	records, err := l.Read(ctx)
	if err != nil {
		return Summary{}, nil, fmt.Errorf("summary: read ledger: %w", err)
	}
	return Build(records), records, nil
}

// Top returns at most n counts.
func Top(counts []Count, n int) []Count {
	if n >= 0 && len(counts) > n {
		return counts[:n]
	}
	return counts
}

// sorted orders by count descending, then label.
func sorted(m map[string]int) []Count {
	out := make([]Count, 0, len(m))
	for label, n := range m {
		out = append(out, Count{Label: label, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}
