package ledger

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/lancejames221b/CyberSentinelAI/internal/schema"
)

// RedisConfig configures a RedisLedger.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Key          string        `yaml:"key"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`
	MaxRetries   int           `yaml:"max_retries"`
	TLSEnabled   bool          `yaml:"tls_enabled"`
}

// DefaultRedisConfig returns the default Redis ledger configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Key:          "cybersentinel:ledger",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MaxRetries:   3,
	}
}

// RedisLedger appends records to a Redis list. RPUSH is atomic, so the list
// position after the push is the record's sequence number.
type RedisLedger struct {
	client    *redis.Client
	key       string
	logger    *slog.Logger
	validator *schema.Validator
}

// OpenRedis connects to Redis and verifies the connection.
func OpenRedis(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (*RedisLedger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Key == "" {
		cfg.Key = DefaultRedisConfig().Key
	}

	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   cfg.MaxRetries,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ledger: failed to connect to Redis: %w", err)
	}

	return &RedisLedger{
		client:    client,
		key:       cfg.Key,
		logger:    logger.With("component", "ledger", "key", cfg.Key),
		validator: schema.NewValidator(),
	}, nil
}

// EnsureStartup appends the startup record when the list is empty.
func (r *RedisLedger) EnsureStartup(ctx context.Context) error {
	n, err := r.client.LLen(ctx, r.key).Result()
	if err != nil {
		return fmt.Errorf("ledger: llen: %w", err)
	}
	if n > 0 {
		return nil
	}
	_, err = r.Append(ctx, StartupRecord())
	return err
}

// Append pushes rec onto the list.
func (r *RedisLedger) Append(ctx context.Context, rec schema.ResponseRecord) (schema.ResponseRecord, error) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = schema.Now()
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	// The stored form carries no sequence; it is the list position.
	rec.Sequence = 0

	if err := r.validator.Validate(&rec); err != nil {
		return rec, fmt.Errorf("ledger: %w", err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return rec, fmt.Errorf("ledger: encode record: %w", err)
	}

	n, err := r.client.RPush(ctx, r.key, data).Result()
	if err != nil {
		return rec, fmt.Errorf("ledger: rpush: %w", err)
	}
	rec.Sequence = uint64(n)
	return rec, nil
}

// Read returns every record in list order. Undecodable entries are skipped
// and logged, and keep their position in the numbering.
func (r *RedisLedger) Read(ctx context.Context) ([]schema.ResponseRecord, error) {
	items, err := r.client.LRange(ctx, r.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("ledger: lrange: %w", err)
	}

	records := make([]schema.ResponseRecord, 0, len(items))
	for i, item := range items {
		var rec schema.ResponseRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			r.logger.Warn("skipping malformed ledger entry", "index", i, "error", err)
			continue
		}
		rec.Sequence = uint64(i + 1)
		records = append(records, rec)
	}
	return records, nil
}

// Close closes the Redis connection.
func (r *RedisLedger) Close() error {
	return r.client.Close()
}
