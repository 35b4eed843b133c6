package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Feed.Path != "logs/red_team.log" {
		t.Errorf("Feed.Path = %q, want logs/red_team.log", cfg.Feed.Path)
	}
	if cfg.Activity.Path != "logs/blue_team.log" {
		t.Errorf("Activity.Path = %q, want logs/blue_team.log", cfg.Activity.Path)
	}
	if cfg.Ledger.Backend != BackendFile {
		t.Errorf("Ledger.Backend = %q, want file", cfg.Ledger.Backend)
	}
	if cfg.Ledger.File.Path != "logs/blue_agent_output.json" {
		t.Errorf("Ledger.File.Path = %q", cfg.Ledger.File.Path)
	}
	if len(cfg.Detection.Profiles) != 1 || cfg.Detection.Profiles[0] != "monitor" {
		t.Errorf("Profiles = %v, want [monitor]", cfg.Detection.Profiles)
	}
	if cfg.Detection.JitterMin != 200*time.Millisecond || cfg.Detection.JitterMax != time.Second {
		t.Errorf("jitter = %v..%v", cfg.Detection.JitterMin, cfg.Detection.JitterMax)
	}
	if len(cfg.Decoys.Honeypots) != 3 || len(cfg.Decoys.FlagPaths) != 3 {
		t.Errorf("decoys = %+v", cfg.Decoys)
	}
	if cfg.Archive.Enabled() {
		t.Error("archive enabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
feed:
  path: /var/ctf/red.log
  poll_interval: 250ms
  skip_existing: true
ledger:
  backend: redis
  redis:
    addr: redis:6379
detection:
  profiles: [monitor, targeted]
  retrigger: true
  cooldown: 30s
decoys:
  honeypots: []
archive:
  kafka:
    enabled: true
    brokers: [kafka:9092]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Feed.Path != "/var/ctf/red.log" || cfg.Feed.PollInterval != 250*time.Millisecond || !cfg.Feed.SkipExisting {
		t.Errorf("Feed = %+v", cfg.Feed)
	}
	if cfg.Ledger.Backend != BackendRedis || cfg.Ledger.Redis.Addr != "redis:6379" {
		t.Errorf("Ledger = %+v", cfg.Ledger)
	}
	if cfg.Ledger.Redis.Key != "cybersentinel:ledger" {
		t.Errorf("unset redis key lost its default: %q", cfg.Ledger.Redis.Key)
	}
	if !cfg.HasProfile("targeted") || !cfg.Detection.Retrigger || cfg.Detection.Cooldown != 30*time.Second {
		t.Errorf("Detection = %+v", cfg.Detection)
	}
	if cfg.Decoys.Honeypots == nil || len(cfg.Decoys.Honeypots) != 0 {
		t.Errorf("Honeypots = %#v, want empty non-nil", cfg.Decoys.Honeypots)
	}
	if !cfg.Archive.Enabled() || cfg.Archive.Kafka.Topic != "cybersentinel-responses" {
		t.Errorf("Archive.Kafka = %+v", cfg.Archive.Kafka)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Feed.Path != DefaultConfig().Feed.Path {
		t.Errorf("missing file did not yield defaults")
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("feed: [unclosed"), 0o644)
	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile() error = nil for malformed YAML")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SENTINEL_CONFIG_PATH", filepath.Join(t.TempDir(), "none.yaml"))
	t.Setenv("SENTINEL_LOG_LEVEL", "debug")
	t.Setenv("SENTINEL_FEED_PATH", "/tmp/red.log")
	t.Setenv("SENTINEL_PROFILES", "monitor, targeted")
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("CLICKHOUSE_HOST", "ch:9000")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SENTINEL_S3_ENDPOINT", "http://minio:9000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
	if cfg.Feed.Path != "/tmp/red.log" {
		t.Errorf("Feed.Path = %q", cfg.Feed.Path)
	}
	if len(cfg.Detection.Profiles) != 2 || cfg.Detection.Profiles[1] != "targeted" {
		t.Errorf("Profiles = %v", cfg.Detection.Profiles)
	}
	if cfg.Ledger.Redis.Addr != "cache:6379" {
		t.Errorf("Redis.Addr = %q", cfg.Ledger.Redis.Addr)
	}
	if !cfg.Archive.ClickHouse.Enabled || cfg.Archive.ClickHouse.Hosts[0] != "ch:9000" {
		t.Errorf("ClickHouse = %+v", cfg.Archive.ClickHouse)
	}
	if len(cfg.Archive.Kafka.Brokers) != 2 || !cfg.Archive.Kafka.Enabled {
		t.Errorf("Kafka = %+v", cfg.Archive.Kafka)
	}
	if !cfg.S3.UsePathStyle {
		t.Error("custom S3 endpoint should force path-style addressing")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"empty feed path", func(c *Config) { c.Feed.Path = "" }, true},
		{"zero poll interval", func(c *Config) { c.Feed.PollInterval = 0 }, true},
		{"unknown backend", func(c *Config) { c.Ledger.Backend = "sqlite" }, true},
		{"redis without addr", func(c *Config) { c.Ledger.Backend = BackendRedis; c.Ledger.Redis.Addr = "" }, true},
		{"no profiles", func(c *Config) { c.Detection.Profiles = nil }, true},
		{"unknown profile", func(c *Config) { c.Detection.Profiles = []string{"paranoid"} }, true},
		{"jitter inverted", func(c *Config) { c.Detection.JitterMin = 2 * time.Second }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, true},
		{"clickhouse without hosts", func(c *Config) { c.Archive.ClickHouse.Enabled = true; c.Archive.ClickHouse.Hosts = nil }, true},
		{"kafka without topic", func(c *Config) { c.Archive.Kafka.Enabled = true; c.Archive.Kafka.Topic = "" }, true},
		{"zero consumer workers", func(c *Config) { c.Archive.Consumer.Workers = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
