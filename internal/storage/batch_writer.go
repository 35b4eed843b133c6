package storage

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/lancejames221b/CyberSentinelAI/internal/schema"
)

// RecordsTable is the ClickHouse table holding archived response records.
const RecordsTable = "response_records"

const insertRecords = `
	INSERT INTO response_records (
		sequence, record_id, timestamp, category, source,
		detection, response, confidence
	)
`

// BatchWriterConfig holds configuration for the batch writer.
type BatchWriterConfig struct {
	BatchSize     int           `yaml:"batch_size" validate:"min=1"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	MaxRetries    int           `yaml:"max_retries" validate:"min=0"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// DefaultBatchWriterConfig returns the default batch writer configuration.
func DefaultBatchWriterConfig() BatchWriterConfig {
	return BatchWriterConfig{
		BatchSize:     500,
		FlushInterval: 5 * time.Second,
		MaxRetries:    3,
		RetryDelay:    time.Second,
	}
}

// batcher is the subset of driver.Conn the writer needs.
type batcher interface {
	PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error)
}

// BatchWriter buffers response records and inserts them into ClickHouse in
// batches. It is a consumer sink.
type BatchWriter struct {
	conn   batcher
	config BatchWriterConfig
	logger *slog.Logger

	mu         sync.Mutex
	buffer     []*schema.ResponseRecord
	flushTimer *time.Timer
	closed     bool

	// Metrics
	totalWritten uint64
	totalFailed  uint64
	batchCount   uint64
}

// NewBatchWriter creates a writer over client.
func NewBatchWriter(client *ClickHouseClient, cfg BatchWriterConfig, logger *slog.Logger) *BatchWriter {
	return newBatchWriter(client.Conn(), cfg, logger)
}

func newBatchWriter(conn batcher, cfg BatchWriterConfig, logger *slog.Logger) *BatchWriter {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchWriterConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultBatchWriterConfig().FlushInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	bw := &BatchWriter{
		conn:   conn,
		config: cfg,
		logger: logger.With("component", "clickhouse"),
		buffer: make([]*schema.ResponseRecord, 0, cfg.BatchSize),
	}
	bw.flushTimer = time.AfterFunc(cfg.FlushInterval, bw.timerFlush)
	return bw
}

// Name identifies the sink.
func (bw *BatchWriter) Name() string { return "clickhouse" }

// Write adds a record to the batch, inserting when the batch is full.
func (bw *BatchWriter) Write(ctx context.Context, rec *schema.ResponseRecord) error {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if bw.closed {
		return ErrWriterClosed
	}

	bw.buffer = append(bw.buffer, rec)
	if len(bw.buffer) >= bw.config.BatchSize {
		return bw.flushLocked(ctx)
	}
	return nil
}

func (bw *BatchWriter) timerFlush() {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if bw.closed {
		return
	}
	if err := bw.flushLocked(context.Background()); err != nil {
		bw.logger.Error("timer flush failed", "error", err)
	}
	bw.flushTimer.Reset(bw.config.FlushInterval)
}

// flushLocked inserts the buffer. Caller must hold the lock.
func (bw *BatchWriter) flushLocked(ctx context.Context) error {
	if len(bw.buffer) == 0 {
		return nil
	}

	records := bw.buffer
	bw.buffer = make([]*schema.ResponseRecord, 0, bw.config.BatchSize)

	var lastErr error
	for attempt := 0; attempt <= bw.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(bw.config.RetryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				attempt = bw.config.MaxRetries
				lastErr = ctx.Err()
				continue
			}
		}

		if err := bw.insertBatch(ctx, records); err != nil {
			lastErr = err
			bw.logger.Warn("batch insert failed",
				"attempt", attempt+1,
				"max_retries", bw.config.MaxRetries,
				"error", err,
			)
			continue
		}

		atomic.AddUint64(&bw.totalWritten, uint64(len(records)))
		atomic.AddUint64(&bw.batchCount, 1)
		return nil
	}

	atomic.AddUint64(&bw.totalFailed, uint64(len(records)))
	return wrapInsertError(RecordsTable, bw.config.MaxRetries, lastErr)
}

func (bw *BatchWriter) insertBatch(ctx context.Context, records []*schema.ResponseRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	batch, err := bw.conn.PrepareBatch(ctx, insertRecords)
	if err != nil {
		return err
	}

	for _, rec := range records {
		source := rec.Source
		if source == "" {
			source = schema.UnknownSource
		}
		if err := batch.Append(
			rec.Sequence,
			rec.ID,
			rec.Timestamp.Time,
			string(rec.Category),
			source,
			rec.Detection,
			rec.Response,
			rec.Confidence,
		); err != nil {
			batch.Abort()
			return err
		}
	}

	if err := batch.Send(); err != nil {
		return err
	}
	bw.logger.Debug("batch inserted", "count", len(records))
	return nil
}

// Flush inserts any buffered records.
func (bw *BatchWriter) Flush(ctx context.Context) error {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return bw.flushLocked(ctx)
}

// Close stops the flush timer. Buffered records are inserted first.
func (bw *BatchWriter) Close() error {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if bw.closed {
		return nil
	}
	bw.flushTimer.Stop()
	err := bw.flushLocked(context.Background())
	bw.closed = true
	return err
}

// Metrics returns batch writer statistics.
func (bw *BatchWriter) Metrics() BatchWriterMetrics {
	bw.mu.Lock()
	pending := len(bw.buffer)
	bw.mu.Unlock()

	return BatchWriterMetrics{
		Written: atomic.LoadUint64(&bw.totalWritten),
		Failed:  atomic.LoadUint64(&bw.totalFailed),
		Batches: atomic.LoadUint64(&bw.batchCount),
		Pending: pending,
	}
}

// BatchWriterMetrics holds batch writer statistics.
type BatchWriterMetrics struct {
	Written uint64 `json:"written"`
	Failed  uint64 `json:"failed"`
	Batches uint64 `json:"batches"`
	Pending int    `json:"pending"`
}
