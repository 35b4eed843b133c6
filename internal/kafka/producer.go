package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/lancejames221b/CyberSentinelAI/internal/schema"
)

// ErrProducerClosed is returned by writes after Close.
var ErrProducerClosed = errors.New("kafka: producer is closed")

// messageWriter is the subset of kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes response records as JSON messages keyed by category.
// It is a consumer sink.
type Producer struct {
	writer messageWriter
	config Config
	logger *slog.Logger
	closed atomic.Bool

	produced atomic.Uint64
	errors   atomic.Uint64
	retries  atomic.Uint64
}

// NewProducer creates a producer for cfg.
func NewProducer(cfg Config, logger *slog.Logger) (*Producer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	transport, err := cfg.transport()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  cfg.compression(),
		Transport:    transport,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...), "component", "kafka-writer")
		}),
	}

	logger.Info("kafka producer initialized", "brokers", cfg.Brokers, "topic", cfg.Topic)
	return newProducer(w, cfg, logger), nil
}

func newProducer(w messageWriter, cfg Config, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{writer: w, config: cfg, logger: logger.With("component", "kafka")}
}

// Name identifies the sink.
func (p *Producer) Name() string { return "kafka" }

// Write publishes rec, retrying with exponential backoff.
func (p *Producer) Write(ctx context.Context, rec *schema.ResponseRecord) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}

	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("kafka: failed to marshal record: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(rec.Category),
		Value: value,
		Time:  rec.Timestamp.Time,
		Headers: []kafka.Header{
			{Key: "sequence", Value: []byte(strconv.FormatUint(rec.Sequence, 10))},
		},
	}
	return p.produce(ctx, msg)
}

func (p *Producer) produce(ctx context.Context, msg kafka.Message) error {
	var lastErr error
	backoff := p.config.RetryBackoff

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			p.retries.Add(1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		err := p.writer.WriteMessages(ctx, msg)
		if err == nil {
			p.produced.Add(1)
			return nil
		}

		lastErr = err
		p.errors.Add(1)
		p.logger.Warn("kafka produce failed", "error", err, "attempt", attempt+1)
		if isNonRetryableError(err) {
			return fmt.Errorf("kafka: non-retryable error: %w", err)
		}
	}
	return fmt.Errorf("kafka: failed after %d attempts: %w", p.config.MaxRetries+1, lastErr)
}

// Flush is a no-op; the writer delivers each message synchronously.
func (p *Producer) Flush(context.Context) error { return nil }

// Close closes the underlying writer.
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.logger.Info("closing kafka producer", "produced", p.produced.Load())
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("kafka: failed to close producer: %w", err)
	}
	return nil
}

// Metrics returns producer statistics.
func (p *Producer) Metrics() Metrics {
	return Metrics{
		Produced: p.produced.Load(),
		Errors:   p.errors.Load(),
		Retries:  p.retries.Load(),
	}
}

// Metrics holds producer statistics.
type Metrics struct {
	Produced uint64 `json:"produced"`
	Errors   uint64 `json:"errors"`
	Retries  uint64 `json:"retries"`
}

func isNonRetryableError(err error) bool {
	return errors.Is(err, kafka.MessageSizeTooLarge) ||
		errors.Is(err, kafka.InvalidTopic) ||
		errors.Is(err, kafka.TopicAuthorizationFailed) ||
		errors.Is(err, kafka.ClusterAuthorizationFailed)
}
