// Package main is the entry point for the CyberSentinel detection engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lancejames221b/CyberSentinelAI/internal/config"
	"github.com/lancejames221b/CyberSentinelAI/internal/engine"
	"github.com/lancejames221b/CyberSentinelAI/internal/logging"
	"github.com/lancejames221b/CyberSentinelAI/internal/startup"
)

var version = "dev"

func main() {
	var (
		showVersion bool
		configPath  string
		checkOnly   bool
		quiet       bool
	)

	flag.BoolVar(&showVersion, "version", false, "Show version and exit")
	flag.BoolVar(&showVersion, "v", false, "Show version and exit (shorthand)")
	flag.StringVar(&configPath, "config", "", "Config file (default $SENTINEL_CONFIG_PATH or "+config.DefaultPath+")")
	flag.BoolVar(&checkOnly, "check", false, "Run startup diagnostics and exit")
	flag.BoolVar(&quiet, "quiet", false, "Skip the startup banner")
	flag.Parse()

	if showVersion {
		fmt.Printf("cybersentinel %s\n", version)
		os.Exit(0)
	}

	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		os.Setenv("SENTINEL_CONFIG_PATH", configPath)
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging, os.Stdout)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	if !quiet && !checkOnly {
		startup.PrintBanner(version)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	diag := startup.NewDiagnostics(cfg, logger)
	diag.RunAll(ctx)
	if checkOnly {
		if diag.HasErrors() {
			os.Exit(1)
		}
		return
	}

	logger.Info("configuration loaded",
		"feed", cfg.Feed.Path,
		"ledger_backend", cfg.Ledger.Backend,
		"profiles", cfg.Detection.Profiles,
		"archive_enabled", cfg.Archive.Enabled(),
	)

	e, err := engine.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	if err := e.Run(ctx); err != nil {
		logger.Error("shutdown completed with errors", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
