package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/lancejames221b/CyberSentinelAI/internal/schema"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if len(cfg.Brokers) == 0 {
		t.Error("expected default brokers")
	}
	if cfg.Topic != "cybersentinel-responses" {
		t.Errorf("Topic = %q", cfg.Topic)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"empty brokers", func(c *Config) { c.Brokers = nil }, true},
		{"empty topic", func(c *Config) { c.Topic = "" }, true},
		{"invalid security protocol", func(c *Config) { c.SecurityProtocol = "INVALID" }, true},
		{
			name: "sasl without credentials",
			modify: func(c *Config) {
				c.SecurityProtocol = "SASL_SSL"
				c.SASLMechanism = "PLAIN"
			},
			wantErr: true,
		},
		{
			name: "sasl with bad mechanism",
			modify: func(c *Config) {
				c.SecurityProtocol = "SASL_PLAINTEXT"
				c.SASLMechanism = "GSSAPI"
				c.SASLUsername, c.SASLPassword = "u", "p"
			},
			wantErr: true,
		},
		{
			name: "valid scram",
			modify: func(c *Config) {
				c.SecurityProtocol = "SASL_PLAINTEXT"
				c.SASLMechanism = "SCRAM-SHA-512"
				c.SASLUsername, c.SASLPassword = "u", "p"
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCompression(t *testing.T) {
	tests := map[string]kafka.Compression{
		"gzip": kafka.Gzip,
		"lz4":  kafka.Lz4,
		"zstd": kafka.Zstd,
		"none": 0,
	}
	for name, want := range tests {
		cfg := Config{CompressionType: name}
		if got := cfg.compression(); got != want {
			t.Errorf("compression(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestTransport_SASL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SecurityProtocol = "SASL_SSL"
	cfg.SASLMechanism = "PLAIN"
	cfg.SASLUsername, cfg.SASLPassword = "blue", "team"

	tr, err := cfg.transport()
	if err != nil {
		t.Fatalf("transport() error = %v", err)
	}
	if tr.SASL == nil || tr.TLS == nil {
		t.Errorf("transport() = %+v, want SASL and TLS", tr)
	}
}

type fakeWriter struct {
	failures int
	err      error
	messages []kafka.Message
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.failures > 0 {
		f.failures--
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func testProducerConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryBackoff = time.Millisecond
	return cfg
}

func TestProducer_Write(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, testProducerConfig(), nil)

	rec := &schema.ResponseRecord{
		Timestamp:  schema.Now(),
		Detection:  "port scanning",
		Response:   "rate-limit",
		Confidence: 0.88,
		Sequence:   9,
		Category:   schema.CategoryReconnaissance,
	}
	if err := p.Write(context.Background(), rec); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if len(w.messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.messages))
	}
	msg := w.messages[0]
	if string(msg.Key) != "reconnaissance" {
		t.Errorf("key = %q, want reconnaissance", msg.Key)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != "9" {
		t.Errorf("headers = %+v", msg.Headers)
	}

	var decoded map[string]any
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("value is not JSON: %v", err)
	}
	if decoded["detection"] != "port scanning" {
		t.Errorf("detection = %v", decoded["detection"])
	}
}

func TestProducer_Retries(t *testing.T) {
	w := &fakeWriter{failures: 2, err: errors.New("leader not available")}
	p := newProducer(w, testProducerConfig(), nil)

	if err := p.Write(context.Background(), &schema.ResponseRecord{Sequence: 1}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	m := p.Metrics()
	if m.Produced != 1 || m.Errors != 2 || m.Retries != 2 {
		t.Errorf("Metrics() = %+v", m)
	}
}

func TestProducer_NonRetryable(t *testing.T) {
	w := &fakeWriter{failures: 5, err: kafka.MessageSizeTooLarge}
	p := newProducer(w, testProducerConfig(), nil)

	if err := p.Write(context.Background(), &schema.ResponseRecord{}); err == nil {
		t.Fatal("Write() error = nil, want non-retryable error")
	}
	if m := p.Metrics(); m.Retries != 0 {
		t.Errorf("Retries = %d, want 0", m.Retries)
	}
}

func TestProducer_Close(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, testProducerConfig(), nil)

	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !w.closed {
		t.Error("writer not closed")
	}
	if err := p.Write(context.Background(), &schema.ResponseRecord{}); !errors.Is(err, ErrProducerClosed) {
		t.Errorf("Write() after Close error = %v, want ErrProducerClosed", err)
	}
}
