package s3

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/lancejames221b/CyberSentinelAI/internal/schema"
)

// ErrEmptySnapshot is returned when there are no records to export.
var ErrEmptySnapshot = errors.New("s3: empty ledger snapshot")

// Snapshot describes an exported ledger object.
type Snapshot struct {
	Key          string    `json:"key"`
	Location     string    `json:"location"`
	Records      int       `json:"records"`
	LastSequence uint64    `json:"last_sequence"`
	Size         int       `json:"size"`
	ExportedAt   time.Time `json:"exported_at"`
}

// Exporter writes gzip-compressed JSON snapshots of the ledger.
type Exporter struct {
	client *Client
	logger *slog.Logger
	now    func() time.Time
}

// NewExporter creates an exporter using client.
func NewExporter(client *Client, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{client: client, logger: logger.With("component", "ledger_export"), now: time.Now}
}

// Export uploads records as one snapshot object keyed by export date and
// the last sequence it contains.
func (e *Exporter) Export(ctx context.Context, records []schema.ResponseRecord) (*Snapshot, error) {
	if len(records) == 0 {
		return nil, ErrEmptySnapshot
	}

	raw, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("s3: failed to encode snapshot: %w", err)
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("s3: failed to compress snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("s3: failed to compress snapshot: %w", err)
	}

	now := e.now().UTC()
	last := records[len(records)-1].Sequence
	key := fmt.Sprintf("%s/ledger-%s-seq%06d.json.gz", now.Format("2006/01/02"), now.Format("20060102T150405Z"), last)

	fullKey, err := e.client.Upload(ctx, key, buf.Bytes(), "application/gzip", map[string]string{
		"record-count":  strconv.Itoa(len(records)),
		"last-sequence": strconv.FormatUint(last, 10),
		"original-size": strconv.Itoa(len(raw)),
	})
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Key:          fullKey,
		Location:     fmt.Sprintf("s3://%s/%s", e.client.Bucket(), fullKey),
		Records:      len(records),
		LastSequence: last,
		Size:         buf.Len(),
		ExportedAt:   now,
	}
	e.logger.Info("ledger snapshot exported", "location", snap.Location, "records", snap.Records)
	return snap, nil
}

// Fetch downloads and decodes a snapshot by its full key.
func (e *Exporter) Fetch(ctx context.Context, fullKey string) ([]schema.ResponseRecord, error) {
	data, err := e.client.Download(ctx, fullKey)
	if err != nil {
		return nil, err
	}

	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("s3: snapshot is not gzip: %w", err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("s3: failed to decompress snapshot: %w", err)
	}

	var records []schema.ResponseRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("s3: failed to decode snapshot: %w", err)
	}
	return records, nil
}
