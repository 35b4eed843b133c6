// Package main provides the TUI entry point for the CyberSentinel ledger.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/lancejames221b/CyberSentinelAI/internal/config"
	"github.com/lancejames221b/CyberSentinelAI/internal/ledger"
	"github.com/lancejames221b/CyberSentinelAI/internal/logging"
	"github.com/lancejames221b/CyberSentinelAI/internal/tui"
	"github.com/lancejames221b/CyberSentinelAI/internal/tui/source"
)

var version = "dev"

func main() {
	var (
		showVersion  bool
		configPath   string
		ledgerPath   string
		activityPath string
	)

	flag.BoolVar(&showVersion, "version", false, "Show version and exit")
	flag.BoolVar(&showVersion, "v", false, "Show version and exit (shorthand)")
	flag.StringVar(&configPath, "config", "", "Config file")
	flag.StringVar(&ledgerPath, "ledger", "", "Ledger document path, overrides the configured backend")
	flag.StringVar(&activityPath, "activity", "", "Activity log path")
	flag.Parse()

	if showVersion {
		fmt.Printf("sentinel-tui %s\n", version)
		os.Exit(0)
	}

	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if ledgerPath != "" {
		cfg.Ledger.Backend = config.BackendFile
		cfg.Ledger.File.Path = ledgerPath
	}
	if activityPath != "" {
		cfg.Activity.Path = activityPath
	}

	// The alternate screen owns the terminal.
	logger := logging.New(cfg.Logging, io.Discard)

	var reader source.Reader = source.FileReader(cfg.Ledger.File.Path)
	if cfg.Ledger.Backend == config.BackendRedis {
		r, err := ledger.OpenRedis(context.Background(), cfg.Ledger.Redis, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer r.Close()
		reader = r
	}

	fmt.Println("Starting CyberSentinel TUI...")
	if err := tui.Run(source.New(reader, cfg.Activity.Path)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
