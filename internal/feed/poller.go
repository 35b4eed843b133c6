package feed

import (
	"context"
	"log/slog"
	"time"
)

// PollerConfig holds poll loop timing.
type PollerConfig struct {
	Interval     time.Duration `yaml:"interval"`
	ErrorBackoff time.Duration `yaml:"error_backoff"`
}

// DefaultPollerConfig returns the default poll timing.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:     time.Second,
		ErrorBackoff: 5 * time.Second,
	}
}

// Handler processes one batch of lines. It is called from the poller's
// goroutine, in feed order.
type Handler func(ctx context.Context, lines []string)

// Poller drives a Source on a fixed interval until its context is cancelled.
// Read errors are logged and followed by the error backoff; they never stop
// the loop.
type Poller struct {
	source Source
	config PollerConfig
	logger *slog.Logger
	wake   <-chan struct{}
}

// NewPoller creates a poller for source.
func NewPoller(source Source, cfg PollerConfig, logger *slog.Logger) *Poller {
	defaults := DefaultPollerConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = defaults.ErrorBackoff
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		source: source,
		config: cfg,
		logger: logger.With("component", "poller", "path", source.Path()),
	}
}

// SetWake registers a channel whose signals trigger an immediate poll in
// addition to the interval.
func (p *Poller) SetWake(wake <-chan struct{}) {
	p.wake = wake
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context, handle Handler) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-p.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		next := p.config.Interval
		lines, err := p.source.Poll()
		if err != nil {
			p.logger.Warn("feed poll failed", "error", err, "backoff", p.config.ErrorBackoff)
			next = p.config.ErrorBackoff
		} else if len(lines) > 0 {
			handle(ctx, lines)
		}

		timer.Reset(next)
	}
}
