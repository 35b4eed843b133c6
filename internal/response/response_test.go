package response

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lancejames221b/CyberSentinelAI/internal/schema"
)

// memLedger is an in-memory ledger.Ledger.
type memLedger struct {
	mu      sync.Mutex
	records []schema.ResponseRecord
	err     error
}

func (m *memLedger) Append(_ context.Context, rec schema.ResponseRecord) (schema.ResponseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return rec, m.err
	}
	rec.Sequence = uint64(len(m.records) + 1)
	m.records = append(m.records, rec)
	return rec, nil
}

func (m *memLedger) Read(_ context.Context) ([]schema.ResponseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]schema.ResponseRecord(nil), m.records...), nil
}

func (m *memLedger) Close() error { return nil }

type memRecorder struct {
	lines []string
	err   error
}

func (m *memRecorder) Log(msg string) error {
	m.lines = append(m.lines, msg)
	return m.err
}

type memForwarder struct {
	pushed []schema.ResponseRecord
	err    error
}

func (m *memForwarder) Push(rec *schema.ResponseRecord) error {
	if m.err != nil {
		return m.err
	}
	m.pushed = append(m.pushed, *rec)
	return nil
}

func TestDispatcher_Dispatch(t *testing.T) {
	tests := []struct {
		name           string
		event          schema.DetectionEvent
		wantDetection  string
		wantResponse   string
		wantLog        string
		wantConfidence float64
	}{
		{
			name:           "credential attack",
			event:          schema.NewDetectionEvent(schema.CategoryCredentialAttack, "10.0.0.5", "Failed password for invalid user root from 10.0.0.5"),
			wantDetection:  "SSH activity detected",
			wantResponse:   "monitoring session from 10.0.0.5",
			wantLog:        "Detected SSH activity from 10.0.0.5: Failed password for invalid user root from 10.0.0.5",
			wantConfidence: 0.90,
		},
		{
			name:           "brute force",
			event:          schema.NewDetectionEvent(schema.CategoryBruteForce, "10.0.0.5", "Failed password"),
			wantDetection:  "brute force attempt on SSH",
			wantResponse:   "blocked 10.0.0.5 via iptables",
			wantLog:        "Possible SSH brute force attempt from 10.0.0.5",
			wantConfidence: 0.92,
		},
		{
			name:           "reconnaissance without source",
			event:          schema.NewDetectionEvent(schema.CategoryReconnaissance, "", "nmap -sS target"),
			wantDetection:  "port scanning detected",
			wantResponse:   "increased logging and monitoring for unknown",
			wantLog:        "Detected scanning activity from unknown: nmap -sS target",
			wantConfidence: 0.88,
		},
		{
			name: "honeypot",
			event: func() schema.DetectionEvent {
				ev := schema.NewDetectionEvent(schema.CategoryHoneypotTrigger, "10.0.0.7", "GET /.env")
				ev.Target = ".env"
				return ev
			}(),
			wantDetection:  "honeypot triggered",
			wantResponse:   "tracked access to .env from 10.0.0.7",
			wantLog:        "Honeypot triggered: .env accessed by 10.0.0.7",
			wantConfidence: 0.97,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &memLedger{}
			rec := &memRecorder{}
			d := NewDispatcher(ProfileMonitor, l, rec, nil)

			got, err := d.Dispatch(context.Background(), tt.event)
			if err != nil {
				t.Fatalf("Dispatch() error = %v", err)
			}
			if got.Detection != tt.wantDetection {
				t.Errorf("Detection = %q, want %q", got.Detection, tt.wantDetection)
			}
			if got.Response != tt.wantResponse {
				t.Errorf("Response = %q, want %q", got.Response, tt.wantResponse)
			}
			if got.Confidence != tt.wantConfidence {
				t.Errorf("Confidence = %v, want %v", got.Confidence, tt.wantConfidence)
			}
			if got.Sequence != 1 {
				t.Errorf("Sequence = %d, want 1", got.Sequence)
			}
			if len(l.records) != 1 {
				t.Errorf("ledger records = %d, want 1", len(l.records))
			}
			if len(rec.lines) != 1 || rec.lines[0] != tt.wantLog {
				t.Errorf("activity = %q, want [%q]", rec.lines, tt.wantLog)
			}
		})
	}
}

func TestDispatcher_BothWritesAttempted(t *testing.T) {
	l := &memLedger{err: errors.New("disk full")}
	rec := &memRecorder{}
	d := NewDispatcher(ProfileMonitor, l, rec, nil)

	_, err := d.Dispatch(context.Background(), schema.NewDetectionEvent(schema.CategorySuspicious, "", "unusual"))
	if err == nil {
		t.Fatal("Dispatch() should return the ledger error")
	}
	if len(rec.lines) != 1 {
		t.Errorf("activity line should still be written, got %d", len(rec.lines))
	}

	l.err = nil
	rec.err = errors.New("log rotated away")
	if _, err := d.Dispatch(context.Background(), schema.NewDetectionEvent(schema.CategorySuspicious, "", "unusual")); err == nil {
		t.Error("Dispatch() should return the activity log error")
	}
	if len(l.records) != 1 {
		t.Errorf("ledger record should still be written, got %d", len(l.records))
	}

	if m := d.Metrics(); m.Failed != 2 || m.Dispatched != 0 {
		t.Errorf("Metrics() = %+v, want 2 failed", m)
	}
}

func TestDispatcher_UnknownCategory(t *testing.T) {
	d := NewDispatcherWithTable(ProfileMonitor, Table{}, &memLedger{}, nil, nil)

	_, err := d.Dispatch(context.Background(), schema.NewDetectionEvent(schema.CategoryExploitation, "", "x"))
	if !errors.Is(err, ErrUnknownCategory) {
		t.Errorf("Dispatch() error = %v, want ErrUnknownCategory", err)
	}
}

func TestDispatcher_Forwarding(t *testing.T) {
	fwd := &memForwarder{}
	d := NewDispatcher(ProfileMonitor, &memLedger{}, nil, nil)
	d.SetForwarder(fwd)

	ev := schema.NewDetectionEvent(schema.CategoryExfiltration, "10.0.0.9", "cat /var/ctf/flag.txt")
	if _, err := d.Dispatch(context.Background(), ev); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if len(fwd.pushed) != 1 || fwd.pushed[0].Sequence != 1 {
		t.Errorf("forwarded = %+v, want one record with sequence 1", fwd.pushed)
	}

	fwd.err = errors.New("queue is full")
	if _, err := d.Dispatch(context.Background(), ev); err != nil {
		t.Errorf("Dispatch() error = %v, forwarding failures must not fail the dispatch", err)
	}
	if m := d.Metrics(); m.Forwarded != 1 || m.Dropped != 1 {
		t.Errorf("Metrics() = %+v", m)
	}
}

func TestTables_ExfiltrationDetectionText(t *testing.T) {
	tests := []struct {
		profile string
		want    string
	}{
		{ProfileMonitor, "flag access attempt"},
		{ProfileTargeted, "flag exfiltration attempt"},
	}
	for _, tt := range tests {
		t.Run(tt.profile, func(t *testing.T) {
			d := NewDispatcher(tt.profile, &memLedger{}, nil, nil)
			ev := schema.NewDetectionEvent(schema.CategoryExfiltration, "10.0.0.9", "cat /var/ctf/flag.txt")
			rec, err := d.Dispatch(context.Background(), ev)
			if err != nil {
				t.Fatalf("Dispatch() error = %v", err)
			}
			if rec.Detection != tt.want {
				t.Errorf("Detection = %q, want %q", rec.Detection, tt.want)
			}
		})
	}
}

func TestTables_Confidences(t *testing.T) {
	monitor := NewDispatcher(ProfileMonitor, &memLedger{}, nil, nil)
	targeted := NewDispatcher(ProfileTargeted, &memLedger{}, nil, nil)

	tests := []struct {
		d        *Dispatcher
		category schema.Category
		want     float64
	}{
		{monitor, schema.CategoryCredentialAttack, 0.90},
		{monitor, schema.CategoryBruteForce, 0.92},
		{monitor, schema.CategoryReconnaissance, 0.88},
		{monitor, schema.CategoryExploitation, 0.85},
		{monitor, schema.CategoryExfiltration, 0.99},
		{monitor, schema.CategoryHoneypotTrigger, 0.97},
		{monitor, schema.CategorySuspicious, 0.75},
		{monitor, schema.CategoryDecoyDeployment, 0.80},
		{monitor, schema.CategoryTargetedDefense, 0.98},
		{targeted, schema.CategoryReconnaissance, 0.95},
		{targeted, schema.CategoryCredentialAttack, 0.90},
		{targeted, schema.CategoryFileExploration, 0.85},
		{targeted, schema.CategoryExploitation, 0.95},
		{targeted, schema.CategoryExfiltration, 0.99},
	}

	for _, tt := range tests {
		got, ok := tt.d.Confidence(tt.category)
		if !ok || got != tt.want {
			t.Errorf("%s Confidence(%s) = %v, %v, want %v", tt.d.Profile(), tt.category, got, ok, tt.want)
		}
	}

	if _, ok := monitor.Confidence(schema.CategoryFileExploration); ok {
		t.Error("monitor profile should have no file exploration action")
	}
}

func TestActivityLog_Format(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "blue_team.log")
	var mirror bytes.Buffer

	a, err := OpenActivityLog(path, &mirror)
	if err != nil {
		t.Fatalf("OpenActivityLog() error = %v", err)
	}
	a.now = func() time.Time { return time.Date(2025, 5, 1, 12, 30, 45, 500, time.UTC) }

	if err := a.Log("Blue Team Monitor starting"); err != nil {
		t.Fatalf("Log() error = %v", err)
	}
	if err := a.Logf("Created honeypot at %s", ".env"); err != nil {
		t.Fatalf("Logf() error = %v", err)
	}
	a.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	want := "[2025-05-01T12:30:45Z] Blue Team Monitor starting\n[2025-05-01T12:30:45Z] Created honeypot at .env\n"
	if string(data) != want {
		t.Errorf("log = %q, want %q", data, want)
	}
	if mirror.String() != want {
		t.Errorf("mirror = %q, want %q", mirror.String(), want)
	}

	if err := a.Log("after close"); err == nil {
		t.Error("Log() after Close should fail")
	}
}

func TestActivityLog_ConcurrentLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blue_team.log")
	a, err := OpenActivityLog(path, nil)
	if err != nil {
		t.Fatalf("OpenActivityLog() error = %v", err)
	}
	defer a.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				a.Log("Detected scanning activity from unknown: nmap -sS target")
			}
		}()
	}
	wg.Wait()

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if len(lines) != 200 {
		t.Fatalf("lines = %d, want 200", len(lines))
	}
	lineRe := regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z\] Detected scanning activity from unknown: nmap -sS target$`)
	for i, line := range lines {
		if !lineRe.MatchString(line) {
			t.Fatalf("line %d malformed: %q", i, line)
		}
	}
}
