// Package detector runs classification over the activity feed. Each Detector
// owns one feed reader and runs on its own goroutine; detectors share only
// the dispatcher they report to.
package detector

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/lancejames221b/CyberSentinelAI/internal/feed"
	"github.com/lancejames221b/CyberSentinelAI/internal/logging"
	"github.com/lancejames221b/CyberSentinelAI/internal/rules"
	"github.com/lancejames221b/CyberSentinelAI/internal/schema"
)

// Mode selects how a detector reads the feed.
type Mode string

const (
	// ModeIncremental reads only lines appended since the previous poll.
	ModeIncremental Mode = "incremental"
	// ModeSnapshot re-reads the whole feed every poll.
	ModeSnapshot Mode = "snapshot"
)

// Dispatcher receives detection events.
type Dispatcher interface {
	Confidence(category schema.Category) (float64, bool)
	Dispatch(ctx context.Context, ev schema.DetectionEvent) (schema.ResponseRecord, error)
}

// Hook runs after an event was dispatched successfully.
type Hook func(ctx context.Context, ev schema.DetectionEvent)

// Config holds detector settings.
type Config struct {
	Name string `yaml:"name"`
	Mode Mode   `yaml:"mode"`

	// Escalate emits a brute-force event after a credential attack whose
	// line reports a failed or invalid login.
	Escalate bool `yaml:"escalate"`

	// Retrigger lets snapshot detectors re-emit a still-present line once
	// Cooldown has passed since its last event. Without it every line
	// position is evaluated once.
	Retrigger bool          `yaml:"retrigger"`
	Cooldown  time.Duration `yaml:"cooldown"`

	// JitterMin and JitterMax bound the random delay before acting on a
	// line. Both zero disables the delay.
	JitterMin time.Duration `yaml:"jitter_min"`
	JitterMax time.Duration `yaml:"jitter_max"`

	// SkipExisting starts incremental detectors at the end of the feed.
	SkipExisting bool `yaml:"skip_existing"`

	Poll feed.PollerConfig `yaml:"poll"`
}

// DefaultConfig returns the monitor detector defaults.
func DefaultConfig() Config {
	return Config{
		Name:      "monitor",
		Mode:      ModeIncremental,
		Escalate:  true,
		Cooldown:  5 * time.Second,
		JitterMin: 200 * time.Millisecond,
		JitterMax: time.Second,
		Poll:      feed.DefaultPollerConfig(),
	}
}

// Detector classifies feed lines and dispatches one event per match.
type Detector struct {
	config     Config
	source     feed.Source
	classifier *rules.Classifier
	dispatcher Dispatcher
	logger     *slog.Logger
	hooks      []Hook
	wake       <-chan struct{}

	// Snapshot progress, by line index. Lines [0, evaluated) have been
	// classified; lastEvent[i] is when line i last produced an event.
	evaluated int
	lastEvent []time.Time

	// Metrics
	linesRead  uint64
	events     uint64
	suppressed uint64
	errors     uint64
}

// New creates a detector reading feedPath with its own reader.
func New(cfg Config, feedPath string, classifier *rules.Classifier, dispatcher Dispatcher, logger *slog.Logger) (*Detector, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("detector name is required")
	}
	if cfg.JitterMax < cfg.JitterMin {
		return nil, fmt.Errorf("detector %s: jitter_max must not be less than jitter_min", cfg.Name)
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeIncremental
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig().Cooldown
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "detector", "detector", cfg.Name)

	var source feed.Source
	switch cfg.Mode {
	case ModeIncremental:
		r := feed.NewReader(feedPath, logger)
		if cfg.SkipExisting {
			if err := r.SkipExisting(); err != nil {
				return nil, fmt.Errorf("detector %s: %w", cfg.Name, err)
			}
		}
		source = r
	case ModeSnapshot:
		source = feed.NewSnapshotReader(feedPath)
	default:
		return nil, fmt.Errorf("detector %s: unknown mode %q", cfg.Name, cfg.Mode)
	}

	return &Detector{
		config:     cfg,
		source:     source,
		classifier: classifier,
		dispatcher: dispatcher,
		logger:     logger,
	}, nil
}

// Name returns the detector name.
func (d *Detector) Name() string {
	return d.config.Name
}

// AddHook registers a hook run after each dispatched event.
func (d *Detector) AddHook(h Hook) {
	d.hooks = append(d.hooks, h)
}

// SetWake registers an early-poll signal, typically a feed.Notifier channel.
func (d *Detector) SetWake(wake <-chan struct{}) {
	d.wake = wake
}

// Run polls the feed until ctx is cancelled.
func (d *Detector) Run(ctx context.Context) {
	d.logger.Info("detector started", "mode", d.config.Mode, "feed", d.source.Path())

	p := feed.NewPoller(d.source, d.config.Poll, d.logger)
	if d.wake != nil {
		p.SetWake(d.wake)
	}
	p.Run(ctx, d.handleLines)

	d.logger.Info("detector stopped")
}

func (d *Detector) handleLines(ctx context.Context, lines []string) {
	if d.config.Mode == ModeSnapshot {
		d.handleSnapshot(ctx, lines)
		return
	}
	for _, line := range lines {
		if ctx.Err() != nil {
			return
		}
		atomic.AddUint64(&d.linesRead, 1)
		if _, ok := d.processLine(ctx, line); !ok {
			return
		}
	}
}

// handleSnapshot evaluates each line position of a full-content poll once.
// Identical text at a new position is a new line. With Retrigger, a line
// that produced an event is evaluated again after Cooldown.
func (d *Detector) handleSnapshot(ctx context.Context, lines []string) {
	if len(lines) < d.evaluated {
		d.logger.Warn("feed shrank, evaluating from the start",
			"lines", len(lines),
			"evaluated", d.evaluated,
		)
		d.evaluated = 0
		d.lastEvent = d.lastEvent[:0]
	}

	now := time.Now()
	for i, line := range lines {
		if ctx.Err() != nil {
			return
		}
		atomic.AddUint64(&d.linesRead, 1)

		if i < d.evaluated && !d.retriggers(i, now) {
			atomic.AddUint64(&d.suppressed, 1)
			continue
		}

		matched, ok := d.processLine(ctx, line)
		if !ok {
			return
		}
		if i >= d.evaluated {
			d.lastEvent = append(d.lastEvent, time.Time{})
			d.evaluated = i + 1
		}
		if matched {
			d.lastEvent[i] = time.Now()
		}
	}
}

func (d *Detector) retriggers(i int, now time.Time) bool {
	last := d.lastEvent[i]
	return d.config.Retrigger && !last.IsZero() && now.Sub(last) >= d.config.Cooldown
}

// processLine classifies one line and dispatches its events. matched
// reports a classification; ok is false if ctx ended before dispatch.
func (d *Detector) processLine(ctx context.Context, line string) (matched, ok bool) {
	res, found := d.classifier.Classify(line)
	if !found {
		return false, true
	}

	if !d.delay(ctx) {
		return false, false
	}

	source := rules.ExtractSource(line)
	ev := d.newEvent(res.Category, source, line, res.Target)
	d.emit(ctx, ev)

	if d.config.Escalate && res.Category == schema.CategoryCredentialAttack && rules.IsFailedLogin(line) {
		d.emit(ctx, d.newEvent(schema.CategoryBruteForce, source, line, res.Target))
	}
	return true, true
}

func (d *Detector) newEvent(category schema.Category, source, line, target string) schema.DetectionEvent {
	ev := schema.NewDetectionEvent(category, source, line)
	ev.Detector = d.config.Name
	ev.Target = target
	if c, ok := d.dispatcher.Confidence(category); ok {
		ev.Confidence = c
	}
	return ev
}

func (d *Detector) emit(ctx context.Context, ev schema.DetectionEvent) {
	if _, err := d.dispatcher.Dispatch(ctx, ev); err != nil {
		atomic.AddUint64(&d.errors, 1)
		d.logger.Error("failed to dispatch event",
			"category", ev.Category,
			"source", ev.Source,
			"line", logging.MaskSecrets(ev.RawExcerpt),
			"error", err,
		)
		return
	}
	atomic.AddUint64(&d.events, 1)
	d.logger.Debug("event dispatched", "category", ev.Category, "source", ev.Source)

	for _, h := range d.hooks {
		h(ctx, ev)
	}
}

// delay sleeps for the configured jitter. It returns false if ctx ended first.
func (d *Detector) delay(ctx context.Context) bool {
	wait := d.jitter()
	if wait <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (d *Detector) jitter() time.Duration {
	lo, hi := d.config.JitterMin, d.config.JitterMax
	if hi <= 0 {
		return 0
	}
	if hi == lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
}

// Metrics returns detector statistics.
func (d *Detector) Metrics() Metrics {
	return Metrics{
		LinesRead:  atomic.LoadUint64(&d.linesRead),
		Events:     atomic.LoadUint64(&d.events),
		Suppressed: atomic.LoadUint64(&d.suppressed),
		Errors:     atomic.LoadUint64(&d.errors),
	}
}

// Metrics holds detector statistics.
type Metrics struct {
	LinesRead  uint64 `json:"lines_read"`
	Events     uint64 `json:"events"`
	Suppressed uint64 `json:"suppressed"`
	Errors     uint64 `json:"errors"`
}
