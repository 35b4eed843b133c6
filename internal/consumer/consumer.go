// Package consumer drains forwarded response records from the queue into the
// archive sinks.
package consumer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lancejames221b/CyberSentinelAI/internal/queue"
	"github.com/lancejames221b/CyberSentinelAI/internal/schema"
)

// Sink is an archive destination for response records.
type Sink interface {
	Name() string
	Write(ctx context.Context, rec *schema.ResponseRecord) error
	Flush(ctx context.Context) error
	Close() error
}

// Config holds the consumer configuration.
type Config struct {
	Workers      int           `yaml:"workers" validate:"min=1"`
	PollInterval time.Duration `yaml:"poll_interval"`
	ShutdownWait time.Duration `yaml:"shutdown_wait"`
}

// DefaultConfig returns the default consumer configuration.
func DefaultConfig() Config {
	return Config{
		Workers:      2,
		PollInterval: 100 * time.Millisecond,
		ShutdownWait: 10 * time.Second,
	}
}

// Consumer pops records from the queue and writes each one to every sink.
// A failing sink does not stop delivery to the others.
type Consumer struct {
	queue  *queue.RingBuffer
	sinks  []Sink
	config Config
	logger *slog.Logger

	wg sync.WaitGroup

	// Metrics
	consumed uint64
	errors   uint64
}

// New creates a consumer.
func New(q *queue.RingBuffer, sinks []Sink, cfg Config, logger *slog.Logger) *Consumer {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		queue:  q,
		sinks:  sinks,
		config: cfg,
		logger: logger.With("component", "consumer"),
	}
}

// Start starts the workers. They run until ctx is cancelled or the queue is
// closed and drained.
func (c *Consumer) Start(ctx context.Context) {
	for i := 0; i < c.config.Workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i)
	}

	names := make([]string, len(c.sinks))
	for i, s := range c.sinks {
		names[i] = s.Name()
	}
	c.logger.Info("archive consumer started", "workers", c.config.Workers, "sinks", names)
}

func (c *Consumer) worker(ctx context.Context, id int) {
	defer c.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		rec, err := c.queue.PopWithTimeout(c.config.PollInterval)
		switch {
		case errors.Is(err, queue.ErrQueueEmpty):
			continue
		case errors.Is(err, queue.ErrQueueClosed):
			c.logger.Debug("consumer worker drained", "worker_id", id)
			return
		case err != nil:
			c.logger.Warn("unexpected queue error", "worker_id", id, "error", err)
			atomic.AddUint64(&c.errors, 1)
			continue
		}

		c.deliver(ctx, id, rec)
	}
}

func (c *Consumer) deliver(ctx context.Context, id int, rec *schema.ResponseRecord) {
	failed := false
	for _, s := range c.sinks {
		if err := s.Write(ctx, rec); err != nil {
			c.logger.Error("failed to archive record",
				"worker_id", id,
				"sink", s.Name(),
				"sequence", rec.Sequence,
				"error", err,
			)
			failed = true
		}
	}
	if failed {
		atomic.AddUint64(&c.errors, 1)
		return
	}
	atomic.AddUint64(&c.consumed, 1)
}

// Stop closes the queue, waits for the workers to drain it and then flushes
// and closes every sink.
func (c *Consumer) Stop() {
	c.queue.Close()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("archive consumer stopped gracefully")
	case <-time.After(c.config.ShutdownWait):
		c.logger.Warn("archive consumer shutdown timed out", "pending", c.queue.Len())
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.config.ShutdownWait)
	defer cancel()
	for _, s := range c.sinks {
		if err := s.Flush(ctx); err != nil {
			c.logger.Error("final flush failed", "sink", s.Name(), "error", err)
		}
		if err := s.Close(); err != nil {
			c.logger.Error("sink close failed", "sink", s.Name(), "error", err)
		}
	}
}

// Metrics returns consumer statistics.
func (c *Consumer) Metrics() Metrics {
	return Metrics{
		Consumed: atomic.LoadUint64(&c.consumed),
		Errors:   atomic.LoadUint64(&c.errors),
	}
}

// Metrics holds consumer statistics.
type Metrics struct {
	Consumed uint64 `json:"consumed"`
	Errors   uint64 `json:"errors"`
}
