package response

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/lancejames221b/CyberSentinelAI/internal/ledger"
	"github.com/lancejames221b/CyberSentinelAI/internal/schema"
)

// ErrUnknownCategory is returned for events whose category has no action.
var ErrUnknownCategory = errors.New("response: no action for category")

// Recorder receives the human-readable activity line of each dispatch.
type Recorder interface {
	Log(message string) error
}

// Forwarder receives records after they are persisted. Forwarding is best
// effort; a failure never fails the dispatch.
type Forwarder interface {
	Push(rec *schema.ResponseRecord) error
}

// Dispatcher maps detection events to their fixed countermeasure, appends the
// resulting record to the ledger and writes the activity line. Dispatchers
// for different profiles may share one ledger and one activity log.
type Dispatcher struct {
	profile  string
	table    Table
	ledger   ledger.Ledger
	activity Recorder
	forward  Forwarder
	logger   *slog.Logger

	// Metrics
	dispatched uint64
	failed     uint64
	forwarded  uint64
	dropped    uint64
}

// NewDispatcher creates a dispatcher for profile using its built-in table.
func NewDispatcher(profile string, l ledger.Ledger, activity Recorder, logger *slog.Logger) *Dispatcher {
	return NewDispatcherWithTable(profile, TableFor(profile), l, activity, logger)
}

// NewDispatcherWithTable creates a dispatcher with a custom table.
func NewDispatcherWithTable(profile string, table Table, l ledger.Ledger, activity Recorder, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		profile:  profile,
		table:    table,
		ledger:   l,
		activity: activity,
		logger:   logger.With("component", "dispatcher", "profile", profile),
	}
}

// SetForwarder registers a forwarder for persisted records.
func (d *Dispatcher) SetForwarder(f Forwarder) {
	d.forward = f
}

// Profile returns the dispatcher's profile name.
func (d *Dispatcher) Profile() string {
	return d.profile
}

// Confidence returns the fixed confidence for category.
func (d *Dispatcher) Confidence(category schema.Category) (float64, bool) {
	action, ok := d.table[category]
	return action.Confidence, ok
}

// Record builds the ledger record for ev without persisting it.
func (d *Dispatcher) Record(ev schema.DetectionEvent) (schema.ResponseRecord, error) {
	action, ok := d.table[ev.Category]
	if !ok {
		return schema.ResponseRecord{}, fmt.Errorf("%w: %s", ErrUnknownCategory, ev.Category)
	}

	ts := schema.Now()
	if !ev.Timestamp.IsZero() {
		ts = schema.NewTimestamp(ev.Timestamp)
	}

	return schema.ResponseRecord{
		Timestamp:  ts,
		Detection:  render(action.Detection, ev),
		Response:   render(action.Response, ev),
		Confidence: action.Confidence,
		ID:         ev.ID,
		Category:   ev.Category,
		Source:     ev.Source,
	}, nil
}

// Dispatch persists the countermeasure for ev. Both the ledger append and the
// activity line are attempted; an error from either is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, ev schema.DetectionEvent) (schema.ResponseRecord, error) {
	rec, err := d.Record(ev)
	if err != nil {
		atomic.AddUint64(&d.failed, 1)
		return rec, err
	}

	stored, ledgerErr := d.ledger.Append(ctx, rec)
	if ledgerErr == nil {
		rec = stored
	}

	var logErr error
	if d.activity != nil {
		logErr = d.activity.Log(render(d.table[ev.Category].Log, ev))
	}

	if err := errors.Join(ledgerErr, logErr); err != nil {
		atomic.AddUint64(&d.failed, 1)
		d.logger.Error("dispatch failed",
			"category", ev.Category,
			"source", ev.Source,
			"error", err,
		)
		return rec, err
	}
	atomic.AddUint64(&d.dispatched, 1)

	if d.forward != nil {
		if err := d.forward.Push(&rec); err != nil {
			atomic.AddUint64(&d.dropped, 1)
			d.logger.Warn("record not forwarded", "sequence", rec.Sequence, "error", err)
		} else {
			atomic.AddUint64(&d.forwarded, 1)
		}
	}

	return rec, nil
}

// Metrics returns dispatcher statistics.
func (d *Dispatcher) Metrics() Metrics {
	return Metrics{
		Dispatched: atomic.LoadUint64(&d.dispatched),
		Failed:     atomic.LoadUint64(&d.failed),
		Forwarded:  atomic.LoadUint64(&d.forwarded),
		Dropped:    atomic.LoadUint64(&d.dropped),
	}
}

// Metrics holds dispatcher statistics.
type Metrics struct {
	Dispatched uint64 `json:"dispatched"`
	Failed     uint64 `json:"failed"`
	Forwarded  uint64 `json:"forwarded"`
	Dropped    uint64 `json:"dropped"`
}
