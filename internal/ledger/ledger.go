// Package ledger provides the append-only event ledger of response records.
//
// Two backends are available. FileLedger keeps the whole history in one JSON
// document that a single writer goroutine rewrites on every append, so
// concurrent detectors can never lose each other's records. RedisLedger
// appends to a Redis list, which is atomic on the server side.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/lancejames221b/CyberSentinelAI/internal/schema"
)

// Common ledger errors.
var (
	// ErrClosed is returned when appending to a closed ledger.
	ErrClosed = errors.New("ledger: closed")

	// ErrSequenceGap indicates a missing or out-of-order record.
	ErrSequenceGap = errors.New("ledger: sequence gap detected")

	// ErrMalformedDocument indicates the persisted document could not be parsed.
	ErrMalformedDocument = errors.New("ledger: malformed document")
)

// Ledger is an ordered, append-only store of response records.
type Ledger interface {
	// Append persists rec and returns it with its sequence number and ID set.
	Append(ctx context.Context, rec schema.ResponseRecord) (schema.ResponseRecord, error)
	// Read returns the full history in insertion order.
	Read(ctx context.Context) ([]schema.ResponseRecord, error)
	// Close flushes pending appends and releases resources.
	Close() error
}

// StartupRecord is the record written to a freshly created ledger.
func StartupRecord() schema.ResponseRecord {
	return schema.ResponseRecord{
		Timestamp:  schema.Now(),
		Detection:  "system startup",
		Response:   "initialized advanced monitoring",
		Confidence: 1.0,
		Category:   schema.CategorySystemStartup,
	}
}

// Verify checks that records carry contiguous sequence numbers starting at 1.
// A gap means a record was lost or reordered.
func Verify(records []schema.ResponseRecord) error {
	for i, rec := range records {
		want := uint64(i + 1)
		if rec.Sequence != want {
			return fmt.Errorf("%w: record %d has sequence %d, want %d", ErrSequenceGap, i, rec.Sequence, want)
		}
	}
	return nil
}

// nextSequence returns the sequence number following records. Documents
// written before sequences existed are numbered by position.
func nextSequence(records []schema.ResponseRecord) uint64 {
	next := uint64(len(records)) + 1
	if len(records) > 0 {
		if last := records[len(records)-1].Sequence; last >= next {
			next = last + 1
		}
	}
	return next
}
