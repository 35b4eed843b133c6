// Package main provides a CLI for inspecting, verifying and exporting the
// CyberSentinel event ledger.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lancejames221b/CyberSentinelAI/internal/config"
	"github.com/lancejames221b/CyberSentinelAI/internal/ledger"
	"github.com/lancejames221b/CyberSentinelAI/internal/logging"
	"github.com/lancejames221b/CyberSentinelAI/internal/schema"
	"github.com/lancejames221b/CyberSentinelAI/internal/storage/s3"
	"github.com/lancejames221b/CyberSentinelAI/internal/summary"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var code int
	switch os.Args[1] {
	case "summary":
		code = runSummary(ctx, os.Args[2:])
	case "verify":
		code = runVerify(ctx, os.Args[2:])
	case "export":
		code = runExport(ctx, os.Args[2:])
	case "fetch":
		code = runFetch(ctx, os.Args[2:])
	case "-version", "--version", "-v":
		fmt.Printf("sentinel-ledger %s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown subcommand: %s\n", os.Args[1])
		printUsage()
		code = 1
	}
	stop()
	os.Exit(code)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: sentinel-ledger <command> [flags]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  summary  Print a JSON summary of the ledger\n")
	fmt.Fprintf(os.Stderr, "  verify   Check that sequence numbers are contiguous\n")
	fmt.Fprintf(os.Stderr, "  export   Upload a gzip snapshot of the ledger to S3\n")
	fmt.Fprintf(os.Stderr, "  fetch    Download a snapshot from S3 and print it\n\n")
	fmt.Fprintf(os.Stderr, "Common flags:\n")
	fmt.Fprintf(os.Stderr, "  -config  Config file (default $SENTINEL_CONFIG_PATH or %s)\n", config.DefaultPath)
	fmt.Fprintf(os.Stderr, "  -ledger  Ledger document path, overrides the configured backend\n")
}

type commonFlags struct {
	configPath string
	ledgerPath string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "Config file")
	fs.StringVar(&c.ledgerPath, "ledger", "", "Ledger document path")
}

func (c *commonFlags) load() (*config.Config, *slog.Logger, error) {
	var (
		cfg *config.Config
		err error
	)
	if c.configPath != "" {
		cfg, err = config.LoadFile(c.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, nil, err
	}
	if c.ledgerPath != "" {
		cfg.Ledger.Backend = config.BackendFile
		cfg.Ledger.File.Path = c.ledgerPath
	}
	// Operational logs go to stderr so stdout stays machine readable.
	return cfg, logging.Setup(cfg.Logging, os.Stderr), nil
}

// readLedger reads the configured backend without writing to it.
func readLedger(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]schema.ResponseRecord, error) {
	if cfg.Ledger.Backend != config.BackendRedis {
		return ledger.ReadFile(cfg.Ledger.File.Path)
	}
	r, err := ledger.OpenRedis(ctx, cfg.Ledger.Redis, logger)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.Read(ctx)
}

func runSummary(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	top := fs.Int("top", 10, "Maximum entries per breakdown (-1 for all)")
	withRecords := fs.Bool("records", false, "Include the records in the output")
	fs.Parse(args)

	cfg, logger, err := common.load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	records, err := readLedger(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	s := summary.Build(records)
	s.Categories = summary.Top(s.Categories, *top)
	s.Detections = summary.Top(s.Detections, *top)
	s.Sources = summary.Top(s.Sources, *top)

	out := struct {
		summary.Summary
		Records []schema.ResponseRecord `json:"records,omitempty"`
	}{Summary: s}
	if *withRecords {
		out.Records = records
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func runVerify(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	fs.Parse(args)

	cfg, logger, err := common.load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	records, err := readLedger(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FAIL  %v\n", err)
		return 1
	}

	validator := schema.NewValidator()
	invalid := 0
	for i := range records {
		if err := validator.Validate(&records[i]); err != nil {
			fmt.Printf("  record %d: %v\n", i+1, err)
			invalid++
		}
	}

	if err := ledger.Verify(records); err != nil {
		fmt.Printf("FAIL  %d records: %v\n", len(records), err)
		return 1
	}
	if invalid > 0 {
		fmt.Printf("FAIL  %d records, %d invalid\n", len(records), invalid)
		return 1
	}
	fmt.Printf("OK    %d records, sequence contiguous\n", len(records))
	return 0
}

func runExport(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	bucket := fs.String("bucket", "", "Override the configured bucket")
	fs.Parse(args)

	cfg, logger, err := common.load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if *bucket != "" {
		cfg.S3.Bucket = *bucket
	}

	records, err := readLedger(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := ledger.Verify(records); err != nil {
		logger.Warn("exporting a ledger with a sequence gap", "error", err)
	}

	client, err := s3.NewClient(ctx, cfg.S3, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	snap, err := s3.NewExporter(client, logger).Export(ctx, records)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(snap)
	return 0
}

func runFetch(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	key := fs.String("key", "", "Full object key of the snapshot")
	fs.Parse(args)

	if *key == "" {
		fmt.Fprintf(os.Stderr, "Error: -key is required\n")
		return 1
	}

	cfg, logger, err := common.load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	client, err := s3.NewClient(ctx, cfg.S3, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	records, err := s3.NewExporter(client, logger).Fetch(ctx, *key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Println(string(data))
	return 0
}
