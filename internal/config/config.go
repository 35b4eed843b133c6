// Package config loads CyberSentinel configuration from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/lancejames221b/CyberSentinelAI/internal/consumer"
	"github.com/lancejames221b/CyberSentinelAI/internal/decoy"
	"github.com/lancejames221b/CyberSentinelAI/internal/kafka"
	"github.com/lancejames221b/CyberSentinelAI/internal/ledger"
	"github.com/lancejames221b/CyberSentinelAI/internal/logging"
	"github.com/lancejames221b/CyberSentinelAI/internal/rules"
	"github.com/lancejames221b/CyberSentinelAI/internal/storage"
	"github.com/lancejames221b/CyberSentinelAI/internal/storage/s3"
)

// DefaultPath is used when SENTINEL_CONFIG_PATH is unset.
const DefaultPath = "configs/config.yaml"

// Ledger backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// Config holds the application configuration.
type Config struct {
	Feed      FeedConfig      `yaml:"feed"`
	Activity  ActivityConfig  `yaml:"activity"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Detection DetectionConfig `yaml:"detection"`
	Decoys    DecoyConfig     `yaml:"decoys"`
	Rules     RulesConfig     `yaml:"rules"`
	Logging   logging.Config  `yaml:"logging"`
	Archive   ArchiveConfig   `yaml:"archive"`
	S3        s3.Config       `yaml:"s3"`
}

// FeedConfig configures the adversary activity feed.
type FeedConfig struct {
	Path         string        `yaml:"path" validate:"required"`
	PollInterval time.Duration `yaml:"poll_interval" validate:"gt=0"`
	ErrorBackoff time.Duration `yaml:"error_backoff" validate:"gte=0"`

	// SkipExisting starts the monitor at the current end of the feed.
	SkipExisting bool `yaml:"skip_existing"`

	// Watch wakes detectors on file writes in addition to polling.
	Watch bool `yaml:"watch"`
}

// ActivityConfig configures the human-readable activity log.
type ActivityConfig struct {
	Path string `yaml:"path" validate:"required"`
	Echo bool   `yaml:"echo"`
}

// LedgerConfig selects and configures the ledger backend.
type LedgerConfig struct {
	Backend string             `yaml:"backend" validate:"oneof=file redis"`
	File    ledger.FileConfig  `yaml:"file"`
	Redis   ledger.RedisConfig `yaml:"redis"`
}

// DetectionConfig configures the detectors.
type DetectionConfig struct {
	Profiles  []string      `yaml:"profiles" validate:"min=1,dive,oneof=monitor targeted"`
	Escalate  bool          `yaml:"escalate"`
	Retrigger bool          `yaml:"retrigger"`
	Cooldown  time.Duration `yaml:"cooldown" validate:"gte=0"`
	JitterMin time.Duration `yaml:"jitter_min" validate:"gte=0"`
	JitterMax time.Duration `yaml:"jitter_max" validate:"gtefield=JitterMin"`
}

// DecoyConfig configures bait artifacts.
type DecoyConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`

	// Honeypots are file names created in Dir. They double as the honeypot
	// rule set's patterns.
	Honeypots []string `yaml:"honeypots"`

	// FlagPaths are the simulated decoy flags of the targeted profile.
	FlagPaths []string `yaml:"flag_paths"`
}

// RulesConfig lists extra YAML rule set files or directories.
type RulesConfig struct {
	Files []string `yaml:"files"`
}

// ArchiveConfig configures forwarding of persisted records to external sinks.
type ArchiveConfig struct {
	QueueSize   int                       `yaml:"queue_size" validate:"gt=0"`
	Consumer    consumer.Config           `yaml:"consumer"`
	ClickHouse  storage.ClickHouseConfig  `yaml:"clickhouse"`
	BatchWriter storage.BatchWriterConfig `yaml:"batch_writer"`
	Kafka       kafka.Config              `yaml:"kafka"`
}

// Enabled reports whether any archive sink is enabled.
func (a ArchiveConfig) Enabled() bool {
	return a.ClickHouse.Enabled || a.Kafka.Enabled
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Feed: FeedConfig{
			Path:         "logs/red_team.log",
			PollInterval: time.Second,
			ErrorBackoff: 5 * time.Second,
		},
		Activity: ActivityConfig{
			Path: "logs/blue_team.log",
			Echo: true,
		},
		Ledger: LedgerConfig{
			Backend: BackendFile,
			File:    ledger.DefaultFileConfig(),
			Redis:   ledger.DefaultRedisConfig(),
		},
		Detection: DetectionConfig{
			Profiles:  []string{"monitor"},
			Escalate:  true,
			Cooldown:  5 * time.Second,
			JitterMin: 200 * time.Millisecond,
			JitterMax: time.Second,
		},
		Decoys: DecoyConfig{
			Enabled:   true,
			Dir:       ".",
			Honeypots: append([]string(nil), rules.DefaultHoneypotPaths...),
			FlagPaths: append([]string(nil), decoy.DefaultFlagPaths...),
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
		},
		Archive: ArchiveConfig{
			QueueSize:   1024,
			Consumer:    consumer.DefaultConfig(),
			ClickHouse:  storage.DefaultClickHouseConfig(),
			BatchWriter: storage.DefaultBatchWriterConfig(),
			Kafka:       kafka.DefaultConfig(),
		},
		S3: s3.DefaultConfig(),
	}
}

// Load reads the file named by SENTINEL_CONFIG_PATH (or DefaultPath). A
// missing file yields the defaults. Environment overrides apply either way.
func Load() (*Config, error) {
	path := os.Getenv("SENTINEL_CONFIG_PATH")
	if path == "" {
		path = DefaultPath
	}
	return LoadFile(path)
}

// LoadFile reads the configuration at path and applies env overrides.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if level := os.Getenv("SENTINEL_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if path := os.Getenv("SENTINEL_FEED_PATH"); path != "" {
		c.Feed.Path = path
	}
	if path := os.Getenv("SENTINEL_ACTIVITY_LOG"); path != "" {
		c.Activity.Path = path
	}
	if path := os.Getenv("SENTINEL_LEDGER_PATH"); path != "" {
		c.Ledger.File.Path = path
	}
	if backend := os.Getenv("SENTINEL_LEDGER_BACKEND"); backend != "" {
		c.Ledger.Backend = backend
	}
	if profiles := os.Getenv("SENTINEL_PROFILES"); profiles != "" {
		c.Detection.Profiles = splitAndTrim(profiles, ",")
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Ledger.Redis.Addr = addr
	}
	if pass := os.Getenv("REDIS_PASSWORD"); pass != "" {
		c.Ledger.Redis.Password = pass
	}

	if host := os.Getenv("CLICKHOUSE_HOST"); host != "" {
		c.Archive.ClickHouse.Hosts = []string{host}
		c.Archive.ClickHouse.Enabled = true
	}
	if user := os.Getenv("CLICKHOUSE_USER"); user != "" {
		c.Archive.ClickHouse.Username = user
	}
	if pass := os.Getenv("CLICKHOUSE_PASSWORD"); pass != "" {
		c.Archive.ClickHouse.Password = pass
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Archive.Kafka.Brokers = splitAndTrim(brokers, ",")
		c.Archive.Kafka.Enabled = true
	}

	if bucket := os.Getenv("SENTINEL_S3_BUCKET"); bucket != "" {
		c.S3.Bucket = bucket
	}
	if endpoint := os.Getenv("SENTINEL_S3_ENDPOINT"); endpoint != "" {
		c.S3.Endpoint = endpoint
		c.S3.UsePathStyle = true
	}
}

func splitAndTrim(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks struct tags and cross-field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Ledger.Backend == BackendRedis && c.Ledger.Redis.Addr == "" {
		return errors.New("invalid config: ledger.redis.addr is required for the redis backend")
	}
	if c.Ledger.Backend == BackendFile && c.Ledger.File.Path == "" {
		return errors.New("invalid config: ledger.file.path is required for the file backend")
	}
	if c.Archive.Kafka.Enabled {
		if err := c.Archive.Kafka.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}
	return nil
}

// HasProfile reports whether profile is enabled.
func (c *Config) HasProfile(profile string) bool {
	for _, p := range c.Detection.Profiles {
		if p == profile {
			return true
		}
	}
	return false
}
