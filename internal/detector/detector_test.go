package detector

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lancejames221b/CyberSentinelAI/internal/feed"
	"github.com/lancejames221b/CyberSentinelAI/internal/ledger"
	"github.com/lancejames221b/CyberSentinelAI/internal/response"
	"github.com/lancejames221b/CyberSentinelAI/internal/rules"
	"github.com/lancejames221b/CyberSentinelAI/internal/schema"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	table  response.Table
	events []schema.DetectionEvent
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{table: response.MonitorTable()}
}

func (r *recordingDispatcher) Confidence(c schema.Category) (float64, bool) {
	a, ok := r.table[c]
	return a.Confidence, ok
}

func (r *recordingDispatcher) Dispatch(_ context.Context, ev schema.DetectionEvent) (schema.ResponseRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return schema.ResponseRecord{}, nil
}

func (r *recordingDispatcher) snapshot() []schema.DetectionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]schema.DetectionEvent(nil), r.events...)
}

func testConfig(name string) Config {
	cfg := DefaultConfig()
	cfg.Name = name
	cfg.JitterMin = 0
	cfg.JitterMax = 0
	cfg.Poll = feed.PollerConfig{Interval: 5 * time.Millisecond, ErrorBackoff: 10 * time.Millisecond}
	return cfg
}

func monitorClassifier() *rules.Classifier {
	return rules.NewClassifier(rules.MonitorRuleSets(nil)...)
}

func newTestDetector(t *testing.T, cfg Config, d Dispatcher) *Detector {
	t.Helper()
	det, err := New(cfg, filepath.Join(t.TempDir(), "red_team.log"), monitorClassifier(), d, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return det
}

func TestProcessLine_BruteForceEscalation(t *testing.T) {
	d := newRecordingDispatcher()
	det := newTestDetector(t, testConfig("monitor"), d)

	det.processLine(context.Background(), "Failed password for invalid user root from 10.0.0.5")

	events := d.snapshot()
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}

	want := []struct {
		category   schema.Category
		confidence float64
	}{
		{schema.CategoryCredentialAttack, 0.90},
		{schema.CategoryBruteForce, 0.92},
	}
	for i, w := range want {
		if events[i].Category != w.category {
			t.Errorf("events[%d].Category = %s, want %s", i, events[i].Category, w.category)
		}
		if events[i].Confidence != w.confidence {
			t.Errorf("events[%d].Confidence = %v, want %v", i, events[i].Confidence, w.confidence)
		}
		if events[i].Source != "10.0.0.5" {
			t.Errorf("events[%d].Source = %q, want 10.0.0.5", i, events[i].Source)
		}
		if events[i].Detector != "monitor" {
			t.Errorf("events[%d].Detector = %q, want monitor", i, events[i].Detector)
		}
	}
}

func TestProcessLine_Classification(t *testing.T) {
	tests := []struct {
		name       string
		line       string
		want       []schema.Category
		wantSource string
	}{
		{"credential without failure", "ssh ctf@10.0.0.8", []schema.Category{schema.CategoryCredentialAttack}, "10.0.0.8"},
		{"reconnaissance", "nmap -sS target", []schema.Category{schema.CategoryReconnaissance}, schema.UnknownSource},
		{"exploitation beats generic", "sudo su root", []schema.Category{schema.CategoryExploitation}, schema.UnknownSource},
		{"honeypot", "curl http://10.0.0.2/robots.txt", []schema.Category{schema.CategoryHoneypotTrigger}, "10.0.0.2"},
		{"no match", "echo hello", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newRecordingDispatcher()
			det := newTestDetector(t, testConfig("monitor"), d)

			det.processLine(context.Background(), tt.line)

			events := d.snapshot()
			if len(events) != len(tt.want) {
				t.Fatalf("events = %d, want %d", len(events), len(tt.want))
			}
			for i, c := range tt.want {
				if events[i].Category != c {
					t.Errorf("events[%d].Category = %s, want %s", i, events[i].Category, c)
				}
				if events[i].Source != tt.wantSource {
					t.Errorf("events[%d].Source = %q, want %q", i, events[i].Source, tt.wantSource)
				}
			}
		})
	}
}

func TestProcessLine_EscalationDisabled(t *testing.T) {
	d := newRecordingDispatcher()
	cfg := testConfig("ssh_login")
	cfg.Escalate = false
	det := newTestDetector(t, cfg, d)

	det.processLine(context.Background(), "Failed password for root")
	if n := len(d.snapshot()); n != 1 {
		t.Errorf("events = %d, want 1", n)
	}
}

func TestSnapshotMode_DeduplicatesLines(t *testing.T) {
	d := newRecordingDispatcher()
	cfg := testConfig("port_scan")
	cfg.Mode = ModeSnapshot
	det := newTestDetector(t, cfg, d)

	lines := []string{"nmap -sS target", "echo hi"}
	for i := 0; i < 3; i++ {
		det.handleLines(context.Background(), lines)
	}

	if n := len(d.snapshot()); n != 1 {
		t.Errorf("events = %d, want 1", n)
	}
	if m := det.Metrics(); m.Suppressed != 4 {
		t.Errorf("Suppressed = %d, want 4", m.Suppressed)
	}
}

func TestSnapshotMode_RetriggerAfterCooldown(t *testing.T) {
	d := newRecordingDispatcher()
	cfg := testConfig("port_scan")
	cfg.Mode = ModeSnapshot
	cfg.Retrigger = true
	cfg.Cooldown = 20 * time.Millisecond
	det := newTestDetector(t, cfg, d)

	lines := []string{"nmap -sS target"}
	det.handleLines(context.Background(), lines)
	det.handleLines(context.Background(), lines)
	if n := len(d.snapshot()); n != 1 {
		t.Fatalf("events within cooldown = %d, want 1", n)
	}

	time.Sleep(30 * time.Millisecond)
	det.handleLines(context.Background(), lines)
	if n := len(d.snapshot()); n != 2 {
		t.Errorf("events after cooldown = %d, want 2", n)
	}
}

func TestSnapshotMode_RepeatedLinesAtNewPositions(t *testing.T) {
	d := newRecordingDispatcher()
	cfg := testConfig("port_scan")
	cfg.Mode = ModeSnapshot
	det := newTestDetector(t, cfg, d)

	line := "nmap -sS 10.0.0.5"
	det.handleLines(context.Background(), []string{line})
	det.handleLines(context.Background(), []string{line, line, line})

	if n := len(d.snapshot()); n != 3 {
		t.Errorf("events = %d, want 3 (one per occurrence)", n)
	}
	if m := det.Metrics(); m.Suppressed != 1 {
		t.Errorf("Suppressed = %d, want 1", m.Suppressed)
	}
}

func TestSnapshotMode_ShrunkFeedIsReevaluated(t *testing.T) {
	d := newRecordingDispatcher()
	cfg := testConfig("port_scan")
	cfg.Mode = ModeSnapshot
	det := newTestDetector(t, cfg, d)

	det.handleLines(context.Background(), []string{"echo hi", "nmap -sS 10.0.0.5"})
	det.handleLines(context.Background(), []string{"nmap -sS 10.0.0.7"})

	events := d.snapshot()
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[1].Source != "10.0.0.7" {
		t.Errorf("events[1].Source = %q, want 10.0.0.7", events[1].Source)
	}
}

func TestSnapshotMode_PartialLineAlertsOnce(t *testing.T) {
	d := newRecordingDispatcher()
	cfg := testConfig("port_scan")
	cfg.Mode = ModeSnapshot
	feedPath := filepath.Join(t.TempDir(), "red_team.log")
	det, err := New(cfg, feedPath, monitorClassifier(), d, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := os.WriteFile(feedPath, []byte("nmap -s"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		det.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	time.Sleep(40 * time.Millisecond)
	if n := len(d.snapshot()); n != 0 {
		t.Fatalf("events before the line completed = %d, want 0", n)
	}

	f, err := os.OpenFile(feedPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("S 10.0.0.9\n")
	f.Close()

	deadline := time.Now().Add(2 * time.Second)
	for len(d.snapshot()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(40 * time.Millisecond)

	events := d.snapshot()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].Source != "10.0.0.9" {
		t.Errorf("Source = %q, want 10.0.0.9", events[0].Source)
	}
}

func TestHooksRunAfterDispatch(t *testing.T) {
	d := newRecordingDispatcher()
	det := newTestDetector(t, testConfig("monitor"), d)

	var got []schema.Category
	det.AddHook(func(_ context.Context, ev schema.DetectionEvent) {
		got = append(got, ev.Category)
	})

	det.processLine(context.Background(), "Invalid user admin from 10.0.0.3")
	if len(got) != 2 {
		t.Errorf("hook calls = %d, want 2", len(got))
	}
}

func TestJitterBounds(t *testing.T) {
	det := newTestDetector(t, Config{Name: "j", JitterMin: 10 * time.Millisecond, JitterMax: 20 * time.Millisecond}, newRecordingDispatcher())
	for i := 0; i < 100; i++ {
		j := det.jitter()
		if j < 10*time.Millisecond || j > 20*time.Millisecond {
			t.Fatalf("jitter() = %v, want within [10ms, 20ms]", j)
		}
	}

	det = newTestDetector(t, Config{Name: "zero"}, newRecordingDispatcher())
	if j := det.jitter(); j != 0 {
		t.Errorf("jitter() = %v, want 0", j)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing name", Config{}},
		{"inverted jitter", Config{Name: "x", JitterMin: time.Second, JitterMax: time.Millisecond}},
		{"unknown mode", Config{Name: "x", Mode: "tail"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg, "feed.log", monitorClassifier(), newRecordingDispatcher(), nil); err == nil {
				t.Error("New() should fail")
			}
		})
	}
}

// runUntil runs detectors until the ledger holds want records.
func runUntil(t *testing.T, l ledger.Ledger, want int, dets ...*Detector) []schema.ResponseRecord {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, det := range dets {
		wg.Add(1)
		go func(det *Detector) {
			defer wg.Done()
			det.Run(ctx)
		}(det)
	}
	defer func() {
		cancel()
		wg.Wait()
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		records, err := l.Read(context.Background())
		if err == nil && len(records) >= want {
			return records
		}
		if time.Now().After(deadline) {
			t.Fatalf("ledger holds %d records, want %d", len(records), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func openLedger(t *testing.T) *ledger.FileLedger {
	t.Helper()
	l, err := ledger.OpenFile(ledger.FileConfig{Path: filepath.Join(t.TempDir(), "blue_agent_output.json")}, nil)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestScenario_FailedPasswordAppendsTwoRecords(t *testing.T) {
	l := openLedger(t)
	d := response.NewDispatcher(response.ProfileMonitor, l, nil, nil)

	feedPath := filepath.Join(t.TempDir(), "red_team.log")
	det, err := New(testConfig("monitor"), feedPath, monitorClassifier(), d, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := os.WriteFile(feedPath, []byte("Failed password for invalid user root from 10.0.0.5\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	records := runUntil(t, l, 2, det)
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0].Detection != "SSH activity detected" || records[0].Confidence != 0.90 {
		t.Errorf("records[0] = %+v", records[0])
	}
	if records[1].Response != "blocked 10.0.0.5 via iptables" || records[1].Confidence != 0.92 {
		t.Errorf("records[1] = %+v", records[1])
	}
}

func TestScenario_NmapWithoutSource(t *testing.T) {
	l := openLedger(t)
	d := response.NewDispatcher(response.ProfileMonitor, l, nil, nil)

	feedPath := filepath.Join(t.TempDir(), "red_team.log")
	det, err := New(testConfig("monitor"), feedPath, monitorClassifier(), d, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := os.WriteFile(feedPath, []byte("nmap -sS target\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	records := runUntil(t, l, 1, det)
	if records[0].Category != schema.CategoryReconnaissance {
		t.Errorf("Category = %s, want reconnaissance", records[0].Category)
	}
	if records[0].Confidence != 0.88 {
		t.Errorf("Confidence = %v, want 0.88", records[0].Confidence)
	}
	if records[0].Source != schema.UnknownSource {
		t.Errorf("Source = %q, want unknown", records[0].Source)
	}
}

func TestConcurrentDetectors_NoLostRecords(t *testing.T) {
	const (
		detectors = 4
		lines     = 15
	)

	l := openLedger(t)
	d := response.NewDispatcher(response.ProfileMonitor, l, nil, nil)

	feedPath := filepath.Join(t.TempDir(), "red_team.log")
	var content []byte
	for i := 0; i < lines; i++ {
		content = append(content, "nmap -p- 10.0.0.1\n"...)
	}
	if err := os.WriteFile(feedPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	var dets []*Detector
	for i := 0; i < detectors; i++ {
		cfg := testConfig("monitor-" + string(rune('a'+i)))
		det, err := New(cfg, feedPath, monitorClassifier(), d, nil)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		dets = append(dets, det)
	}

	records := runUntil(t, l, detectors*lines, dets...)
	if len(records) != detectors*lines {
		t.Errorf("records = %d, want %d", len(records), detectors*lines)
	}
	if err := ledger.Verify(records); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
}
