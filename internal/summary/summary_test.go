package summary

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/lancejames221b/CyberSentinelAI/internal/ledger"
	"github.com/lancejames221b/CyberSentinelAI/internal/schema"
)

func rec(seq uint64, cat schema.Category, detection, source string, conf float64) schema.ResponseRecord {
	return schema.ResponseRecord{
		Timestamp:  schema.Now(),
		Detection:  detection,
		Response:   "r",
		Confidence: conf,
		Sequence:   seq,
		Category:   cat,
		Source:     source,
	}
}

func TestBuild(t *testing.T) {
	records := []schema.ResponseRecord{
		rec(1, schema.CategorySystemStartup, "system startup", "", 1.0),
		rec(2, schema.CategoryReconnaissance, "port scanning", "10.0.0.5", 0.88),
		rec(3, schema.CategoryReconnaissance, "port scanning", "10.0.0.5", 0.88),
		rec(4, schema.CategoryBruteForce, "brute force attack", "10.0.0.9", 0.95),
		rec(5, "", "legacy", schema.UnknownSource, 0.5),
	}

	s := Build(records)
	if s.Total != 5 || s.LastSequence != 5 || !s.Verified {
		t.Errorf("Build() = %+v", s)
	}
	if s.Categories[0] != (Count{Label: "reconnaissance", Count: 2}) {
		t.Errorf("top category = %+v", s.Categories[0])
	}
	if len(s.Sources) != 2 || s.Sources[0].Label != "10.0.0.5" {
		t.Errorf("sources = %+v", s.Sources)
	}

	found := false
	for _, c := range s.Categories {
		if c.Label == "uncategorized" {
			found = true
		}
	}
	if !found {
		t.Error("records without category not counted as uncategorized")
	}

	wantMean := (1.0 + 0.88 + 0.88 + 0.95 + 0.5) / 5
	if diff := s.MeanConfidence - wantMean; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("MeanConfidence = %v, want %v", s.MeanConfidence, wantMean)
	}
}

func TestBuild_Gap(t *testing.T) {
	s := Build([]schema.ResponseRecord{
		rec(1, schema.CategorySystemStartup, "system startup", "", 1),
		rec(3, schema.CategoryExploitation, "exploitation attempt", "", 0.9),
	})
	if s.Verified || s.VerifyError == "" {
		t.Errorf("Build() verified a ledger with a gap: %+v", s)
	}
}

func TestBuild_Empty(t *testing.T) {
	if s := Build(nil); s.Total != 0 || !s.Verified {
		t.Errorf("Build(nil) = %+v", s)
	}
}

func TestLoad(t *testing.T) {
	cfg := ledger.DefaultFileConfig()
	cfg.Path = filepath.Join(t.TempDir(), "ledger.json")
	l, err := ledger.OpenFile(cfg, nil)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	defer l.Close()

	s, records, err := Load(context.Background(), l)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Total != 1 || len(records) != 1 || records[0].Detection != "system startup" {
		t.Errorf("Load() = %+v, %+v", s, records)
	}
}

func TestTop(t *testing.T) {
	counts := []Count{{"a", 3}, {"b", 2}, {"c", 1}}
	if got := Top(counts, 2); len(got) != 2 {
		t.Errorf("Top(2) len = %d", len(got))
	}
	if got := Top(counts, 10); len(got) != 3 {
		t.Errorf("Top(10) len = %d", len(got))
	}
}
