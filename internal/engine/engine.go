// Package engine assembles the detection pipeline from configuration and
// runs it until its context is cancelled.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/lancejames221b/CyberSentinelAI/internal/config"
	"github.com/lancejames221b/CyberSentinelAI/internal/consumer"
	"github.com/lancejames221b/CyberSentinelAI/internal/decoy"
	"github.com/lancejames221b/CyberSentinelAI/internal/detector"
	"github.com/lancejames221b/CyberSentinelAI/internal/feed"
	"github.com/lancejames221b/CyberSentinelAI/internal/kafka"
	"github.com/lancejames221b/CyberSentinelAI/internal/ledger"
	"github.com/lancejames221b/CyberSentinelAI/internal/queue"
	"github.com/lancejames221b/CyberSentinelAI/internal/response"
	"github.com/lancejames221b/CyberSentinelAI/internal/rules"
	"github.com/lancejames221b/CyberSentinelAI/internal/schema"
	"github.com/lancejames221b/CyberSentinelAI/internal/storage"
)

// Option customizes an Engine.
type Option func(*Engine)

// WithLedger uses l instead of opening the configured backend. The engine
// still closes it on shutdown.
func WithLedger(l ledger.Ledger) Option {
	return func(e *Engine) { e.ledger = l }
}

// WithSinks archives to sinks instead of the configured ClickHouse and Kafka
// sinks.
func WithSinks(sinks ...consumer.Sink) Option {
	return func(e *Engine) { e.sinks = sinks }
}

// WithActivityMirror echoes activity lines to w. It overrides the echo
// setting.
func WithActivityMirror(w io.Writer) Option {
	return func(e *Engine) {
		e.mirror = w
		e.mirrorSet = true
	}
}

// Engine owns the ledger, the activity log, the detectors and the optional
// archive pipeline.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger

	ledger    ledger.Ledger
	activity  *response.ActivityLog
	mirror    io.Writer
	mirrorSet bool

	sinks    []consumer.Sink
	queue    *queue.RingBuffer
	consumer *consumer.Consumer
	closers  []io.Closer

	monitor   *response.Dispatcher
	targeted  *response.Dispatcher
	flags     *decoy.FlagDeployer
	detectors []*detector.Detector
	notifiers []*feed.Notifier
}

// New opens every resource named by cfg. On error, whatever was opened is
// closed again.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		cfg:    cfg,
		logger: logger.With("component", "engine"),
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.open(ctx, logger); err != nil {
		e.close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) open(ctx context.Context, logger *slog.Logger) error {
	if e.ledger == nil {
		l, err := openLedger(ctx, e.cfg.Ledger, logger)
		if err != nil {
			return err
		}
		e.ledger = l
	}

	if !e.mirrorSet && e.cfg.Activity.Echo {
		e.mirror = os.Stdout
	}
	activity, err := response.OpenActivityLog(e.cfg.Activity.Path, e.mirror)
	if err != nil {
		return err
	}
	e.activity = activity

	if e.sinks == nil && e.cfg.Archive.Enabled() {
		if err := e.openSinks(ctx, logger); err != nil {
			return err
		}
	}
	if len(e.sinks) > 0 {
		e.queue = queue.NewRingBuffer(e.cfg.Archive.QueueSize)
		e.consumer = consumer.New(e.queue, e.sinks, e.cfg.Archive.Consumer, logger)
	}

	extra, err := rules.LoadPaths(e.cfg.Rules.Files)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	if e.cfg.HasProfile(response.ProfileMonitor) {
		e.monitor = e.newDispatcher(response.ProfileMonitor, logger)
		sets := append(rules.MonitorRuleSets(e.cfg.Decoys.Honeypots), extra...)
		d, err := detector.New(e.monitorConfig(), e.cfg.Feed.Path, rules.NewClassifier(sets...), e.monitor, logger)
		if err != nil {
			return err
		}
		e.detectors = append(e.detectors, d)
	}

	if e.cfg.HasProfile(response.ProfileTargeted) {
		e.targeted = e.newDispatcher(response.ProfileTargeted, logger)
		e.flags = decoy.NewFlagDeployer(e.targeted, e.activity, e.cfg.Decoys.FlagPaths, logger)
		for _, name := range rules.TargetedWatchers {
			d, err := detector.New(e.watcherConfig(name), e.cfg.Feed.Path,
				rules.NewClassifier(rules.TargetedRuleSet(name)), e.targeted, logger)
			if err != nil {
				return err
			}
			if name == rules.WatcherFileExploration && e.cfg.Decoys.Enabled {
				d.AddHook(e.flags.OnFileExploration)
			}
			e.detectors = append(e.detectors, d)
		}
	}

	if e.cfg.Feed.Watch {
		for _, d := range e.detectors {
			n, err := feed.NewNotifier(e.cfg.Feed.Path, logger)
			if err != nil {
				e.logger.Warn("feed watch unavailable, polling only", "error", err)
				break
			}
			d.SetWake(n.C())
			e.notifiers = append(e.notifiers, n)
		}
	}

	return nil
}

func openLedger(ctx context.Context, cfg config.LedgerConfig, logger *slog.Logger) (ledger.Ledger, error) {
	if cfg.Backend == config.BackendRedis {
		r, err := ledger.OpenRedis(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, err
		}
		if err := r.EnsureStartup(ctx); err != nil {
			r.Close()
			return nil, err
		}
		return r, nil
	}
	return ledger.OpenFile(cfg.File, logger)
}

func (e *Engine) openSinks(ctx context.Context, logger *slog.Logger) error {
	arc := e.cfg.Archive

	if arc.ClickHouse.Enabled {
		e.logger.Info("initializing ClickHouse archive",
			"hosts", arc.ClickHouse.Hosts,
			"database", arc.ClickHouse.Database,
		)
		client, err := storage.NewClickHouseClient(ctx, arc.ClickHouse)
		if err != nil {
			return err
		}
		e.closers = append(e.closers, client)
		if err := client.EnsureDatabase(ctx); err != nil {
			return err
		}
		if err := storage.NewMigrator(client, logger).Run(ctx); err != nil {
			return err
		}
		e.sinks = append(e.sinks, storage.NewBatchWriter(client, arc.BatchWriter, logger))
	}

	if arc.Kafka.Enabled {
		p, err := kafka.NewProducer(arc.Kafka, logger)
		if err != nil {
			return err
		}
		e.sinks = append(e.sinks, p)
	}
	return nil
}

func (e *Engine) newDispatcher(profile string, logger *slog.Logger) *response.Dispatcher {
	d := response.NewDispatcher(profile, e.ledger, e.activity, logger)
	if e.queue != nil {
		d.SetForwarder(e.queue)
	}
	return d
}

func (e *Engine) monitorConfig() detector.Config {
	cfg := e.detectorConfig("monitor")
	cfg.Mode = detector.ModeIncremental
	cfg.Escalate = e.cfg.Detection.Escalate
	cfg.SkipExisting = e.cfg.Feed.SkipExisting
	return cfg
}

func (e *Engine) watcherConfig(name string) detector.Config {
	cfg := e.detectorConfig(name)
	cfg.Mode = detector.ModeSnapshot
	cfg.Retrigger = e.cfg.Detection.Retrigger
	cfg.Cooldown = e.cfg.Detection.Cooldown
	return cfg
}

func (e *Engine) detectorConfig(name string) detector.Config {
	cfg := detector.DefaultConfig()
	cfg.Name = name
	cfg.Escalate = false
	cfg.JitterMin = e.cfg.Detection.JitterMin
	cfg.JitterMax = e.cfg.Detection.JitterMax
	cfg.Poll = feed.PollerConfig{
		Interval:     e.cfg.Feed.PollInterval,
		ErrorBackoff: e.cfg.Feed.ErrorBackoff,
	}
	return cfg
}

// Detectors returns the configured detectors in launch order.
func (e *Engine) Detectors() []*detector.Detector {
	return e.detectors
}

// Ledger returns the engine's ledger.
func (e *Engine) Ledger() ledger.Ledger {
	return e.ledger
}

// Run provisions decoys, launches one goroutine per detector and blocks
// until ctx is cancelled. It then waits for the detectors, drains the
// archive pipeline and closes the ledger and the activity log.
func (e *Engine) Run(ctx context.Context) error {
	archiveCtx, cancelArchive := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelArchive()
	if e.consumer != nil {
		e.consumer.Start(archiveCtx)
	}

	if e.monitor != nil {
		e.note("Blue Team Monitor starting")
		if e.cfg.Decoys.Enabled {
			paths := make([]string, len(e.cfg.Decoys.Honeypots))
			for i, name := range e.cfg.Decoys.Honeypots {
				paths[i] = filepath.Join(e.cfg.Decoys.Dir, name)
			}
			decoy.NewProvisioner(e.monitor, e.activity, e.logger).Provision(ctx, decoy.Honeypots(paths))
		}
	}

	if e.targeted != nil {
		ev := schema.NewDetectionEvent(schema.CategoryTargetedDefense, "", "")
		ev.Detector = "targeted"
		if _, err := e.targeted.Dispatch(ctx, ev); err != nil {
			e.logger.Error("failed to record targeted defense activation", "error", err)
		}
	}

	var wg sync.WaitGroup
	for _, n := range e.notifiers {
		wg.Add(1)
		go func(n *feed.Notifier) {
			defer wg.Done()
			n.Run(ctx)
		}(n)
	}
	for _, d := range e.detectors {
		wg.Add(1)
		go func(d *detector.Detector) {
			defer wg.Done()
			d.Run(ctx)
		}(d)
	}

	e.logger.Info("engine running",
		"profiles", e.cfg.Detection.Profiles,
		"detectors", len(e.detectors),
		"feed", e.cfg.Feed.Path,
		"archive_sinks", len(e.sinks),
	)

	<-ctx.Done()
	e.logger.Info("shutting down, waiting for detectors")
	wg.Wait()

	if e.monitor != nil {
		e.note("Blue Team Monitor shutting down")
	}
	if e.targeted != nil {
		e.note("Blue Team Targeted Defense shutting down")
	}

	e.logMetrics()
	return e.close()
}

func (e *Engine) note(msg string) {
	if err := e.activity.Log(msg); err != nil {
		e.logger.Warn("activity log write failed", "error", err)
	}
}

func (e *Engine) logMetrics() {
	for _, d := range e.detectors {
		m := d.Metrics()
		e.logger.Info("detector metrics",
			"detector", d.Name(),
			"lines_read", m.LinesRead,
			"events", m.Events,
			"suppressed", m.Suppressed,
			"errors", m.Errors,
		)
	}
	for _, d := range []*response.Dispatcher{e.monitor, e.targeted} {
		if d == nil {
			continue
		}
		m := d.Metrics()
		e.logger.Info("dispatcher metrics",
			"profile", d.Profile(),
			"dispatched", m.Dispatched,
			"failed", m.Failed,
			"forwarded", m.Forwarded,
			"dropped", m.Dropped,
		)
	}
	if e.queue != nil {
		m := e.queue.Metrics()
		e.logger.Info("archive queue metrics",
			"pushed", m.Pushed,
			"popped", m.Popped,
			"dropped", m.Dropped,
		)
	}
}

// close releases resources in reverse dependency order. It is safe to call
// on a partially opened engine.
func (e *Engine) close() error {
	var errs []error

	if e.consumer != nil {
		e.consumer.Stop()
		m := e.consumer.Metrics()
		e.logger.Info("archive consumer metrics", "consumed", m.Consumed, "errors", m.Errors)
	} else {
		for _, s := range e.sinks {
			errs = append(errs, s.Close())
		}
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i].Close())
	}
	if e.ledger != nil {
		errs = append(errs, e.ledger.Close())
	}
	if e.activity != nil {
		errs = append(errs, e.activity.Close())
	}
	return errors.Join(errs...)
}
