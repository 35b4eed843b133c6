// Package startup provides verbose startup diagnostics for the engine.
package startup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/lancejames221b/CyberSentinelAI/internal/config"
	"github.com/lancejames221b/CyberSentinelAI/internal/ledger"
	"github.com/lancejames221b/CyberSentinelAI/internal/rules"
)

// DiagnosticResult represents the result of a diagnostic check
type DiagnosticResult struct {
	Name    string
	Status  Status
	Message string
	Details map[string]string
}

// Status represents the status of a diagnostic check
type Status int

const (
	StatusOK Status = iota
	StatusWarning
	StatusError
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWarning:
		return "WARNING"
	case StatusError:
		return "ERROR"
	case StatusSkipped:
		return "SKIPPED"
	default:
		return "UNKNOWN"
	}
}

// DialTimeout bounds each reachability probe.
const DialTimeout = 3 * time.Second

// Diagnostics runs all startup diagnostics
type Diagnostics struct {
	cfg     *config.Config
	results []DiagnosticResult
	logger  *slog.Logger

	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewDiagnostics creates a new diagnostics runner
func NewDiagnostics(cfg *config.Config, logger *slog.Logger) *Diagnostics {
	if logger == nil {
		logger = slog.Default()
	}
	d := &net.Dialer{Timeout: DialTimeout}
	return &Diagnostics{
		cfg:    cfg,
		logger: logger,
		dial:   d.DialContext,
	}
}

// RunAll runs all diagnostic checks
func (d *Diagnostics) RunAll(ctx context.Context) []DiagnosticResult {
	d.logger.Info("=== CyberSentinel Startup Diagnostics ===")

	d.checkSystem()
	d.checkDirectories()
	d.checkConfiguration()
	d.checkFeed()
	d.checkLedger()
	d.checkRules()
	d.checkModules()
	d.checkArchive(ctx)

	d.printSummary()

	return d.results
}

func (d *Diagnostics) addResult(result DiagnosticResult) {
	d.results = append(d.results, result)

	attrs := []any{
		"check", result.Name,
		"status", result.Status.String(),
	}
	if result.Message != "" {
		attrs = append(attrs, "message", result.Message)
	}
	for k, v := range result.Details {
		attrs = append(attrs, k, v)
	}

	switch result.Status {
	case StatusOK:
		d.logger.Info("diagnostic check passed", attrs...)
	case StatusWarning:
		d.logger.Warn("diagnostic check warning", attrs...)
	case StatusError:
		d.logger.Error("diagnostic check failed", attrs...)
	case StatusSkipped:
		d.logger.Debug("diagnostic check skipped", attrs...)
	}
}

func (d *Diagnostics) checkSystem() {
	d.addResult(DiagnosticResult{
		Name:    "runtime",
		Status:  StatusOK,
		Message: "Go runtime detected",
		Details: map[string]string{
			"go_version": runtime.Version(),
			"os":         runtime.GOOS,
			"arch":       runtime.GOARCH,
			"cpus":       fmt.Sprintf("%d", runtime.NumCPU()),
		},
	})
}

// directories lists the directories the engine writes to or reads from.
// Writable ones are created when missing.
func (d *Diagnostics) directories() []struct {
	path   string
	create bool
} {
	dirs := []struct {
		path   string
		create bool
	}{
		{filepath.Dir(d.cfg.Activity.Path), true},
		{filepath.Dir(d.cfg.Feed.Path), false},
	}
	if d.cfg.Ledger.Backend == config.BackendFile {
		dirs = append(dirs, struct {
			path   string
			create bool
		}{filepath.Dir(d.cfg.Ledger.File.Path), true})
	}
	if d.cfg.Decoys.Enabled && d.cfg.HasProfile("monitor") {
		dirs = append(dirs, struct {
			path   string
			create bool
		}{d.cfg.Decoys.Dir, true})
	}
	return dirs
}

func (d *Diagnostics) checkDirectories() {
	seen := make(map[string]bool)
	for _, dir := range d.directories() {
		if seen[dir.path] {
			continue
		}
		seen[dir.path] = true
		name := fmt.Sprintf("directory_%s", dir.path)

		info, err := os.Stat(dir.path)
		switch {
		case os.IsNotExist(err) && dir.create:
			if err := os.MkdirAll(dir.path, 0o755); err != nil {
				d.addResult(DiagnosticResult{
					Name:    name,
					Status:  StatusError,
					Message: fmt.Sprintf("Failed to create directory: %s", err),
				})
				continue
			}
			d.addResult(DiagnosticResult{
				Name:    name,
				Status:  StatusOK,
				Message: "Directory created",
				Details: map[string]string{"path": dir.path},
			})
		case os.IsNotExist(err):
			d.addResult(DiagnosticResult{
				Name:    name,
				Status:  StatusWarning,
				Message: "Directory missing, detectors will wait for it",
				Details: map[string]string{"path": dir.path},
			})
		case err != nil:
			d.addResult(DiagnosticResult{
				Name:    name,
				Status:  StatusError,
				Message: fmt.Sprintf("Error checking directory: %s", err),
			})
		case !info.IsDir():
			d.addResult(DiagnosticResult{
				Name:    name,
				Status:  StatusError,
				Message: "Path exists but is not a directory",
				Details: map[string]string{"path": dir.path},
			})
		default:
			d.addResult(DiagnosticResult{
				Name:    name,
				Status:  StatusOK,
				Message: "Directory exists",
				Details: map[string]string{"path": dir.path},
			})
		}
	}
}

func (d *Diagnostics) checkConfiguration() {
	configPath := os.Getenv("SENTINEL_CONFIG_PATH")
	if configPath == "" {
		configPath = config.DefaultPath
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		d.addResult(DiagnosticResult{
			Name:    "config_file",
			Status:  StatusWarning,
			Message: "Config file not found, using defaults",
			Details: map[string]string{"path": configPath},
		})
	} else {
		d.addResult(DiagnosticResult{
			Name:    "config_file",
			Status:  StatusOK,
			Message: "Config file found",
			Details: map[string]string{"path": configPath},
		})
	}

	if err := d.cfg.Validate(); err != nil {
		d.addResult(DiagnosticResult{
			Name:    "config_validation",
			Status:  StatusError,
			Message: fmt.Sprintf("Configuration validation failed: %s", err),
		})
	} else {
		d.addResult(DiagnosticResult{
			Name:    "config_validation",
			Status:  StatusOK,
			Message: "Configuration is valid",
		})
	}
}

func (d *Diagnostics) checkFeed() {
	info, err := os.Stat(d.cfg.Feed.Path)
	switch {
	case os.IsNotExist(err):
		d.addResult(DiagnosticResult{
			Name:    "feed",
			Status:  StatusWarning,
			Message: "Activity feed does not exist yet",
			Details: map[string]string{"path": d.cfg.Feed.Path},
		})
	case err != nil:
		d.addResult(DiagnosticResult{
			Name:    "feed",
			Status:  StatusError,
			Message: fmt.Sprintf("Cannot stat activity feed: %s", err),
		})
	default:
		d.addResult(DiagnosticResult{
			Name:    "feed",
			Status:  StatusOK,
			Message: "Activity feed found",
			Details: map[string]string{
				"path":  d.cfg.Feed.Path,
				"bytes": fmt.Sprintf("%d", info.Size()),
			},
		})
	}
}

func (d *Diagnostics) checkLedger() {
	if d.cfg.Ledger.Backend != config.BackendFile {
		d.addResult(DiagnosticResult{
			Name:    "ledger_integrity",
			Status:  StatusSkipped,
			Message: "Checked by the backend at runtime",
			Details: map[string]string{"backend": d.cfg.Ledger.Backend},
		})
		return
	}

	path := d.cfg.Ledger.File.Path
	records, err := ledger.ReadFile(path)
	switch {
	case errors.Is(err, ledger.ErrMalformedDocument):
		d.addResult(DiagnosticResult{
			Name:    "ledger_integrity",
			Status:  StatusWarning,
			Message: "Ledger document is malformed and will be treated as empty",
			Details: map[string]string{"path": path},
		})
		return
	case err != nil:
		d.addResult(DiagnosticResult{
			Name:    "ledger_integrity",
			Status:  StatusError,
			Message: fmt.Sprintf("Cannot read ledger: %s", err),
		})
		return
	}

	if err := ledger.Verify(records); err != nil {
		d.addResult(DiagnosticResult{
			Name:    "ledger_integrity",
			Status:  StatusWarning,
			Message: err.Error(),
			Details: map[string]string{"path": path, "records": fmt.Sprintf("%d", len(records))},
		})
		return
	}
	d.addResult(DiagnosticResult{
		Name:    "ledger_integrity",
		Status:  StatusOK,
		Message: "Ledger sequence is contiguous",
		Details: map[string]string{"path": path, "records": fmt.Sprintf("%d", len(records))},
	})
}

func (d *Diagnostics) checkRules() {
	if len(d.cfg.Rules.Files) == 0 {
		d.addResult(DiagnosticResult{
			Name:    "rules",
			Status:  StatusSkipped,
			Message: "Built-in rule sets only",
		})
		return
	}

	sets, err := rules.LoadPaths(d.cfg.Rules.Files)
	if err != nil {
		d.addResult(DiagnosticResult{
			Name:    "rules",
			Status:  StatusError,
			Message: fmt.Sprintf("Rule files failed to load: %s", err),
		})
		return
	}
	d.addResult(DiagnosticResult{
		Name:    "rules",
		Status:  StatusOK,
		Message: "Rule files loaded",
		Details: map[string]string{
			"paths":     strings.Join(d.cfg.Rules.Files, ","),
			"rule_sets": fmt.Sprintf("%d", len(sets)),
		},
	})
}

func (d *Diagnostics) checkModules() {
	modules := []struct {
		name    string
		enabled bool
	}{
		{"Monitor Profile", d.cfg.HasProfile("monitor")},
		{"Targeted Profile", d.cfg.HasProfile("targeted")},
		{"Decoys", d.cfg.Decoys.Enabled},
		{"Feed Watch", d.cfg.Feed.Watch},
		{"Redis Ledger", d.cfg.Ledger.Backend == config.BackendRedis},
		{"ClickHouse Archive", d.cfg.Archive.ClickHouse.Enabled},
		{"Kafka Archive", d.cfg.Archive.Kafka.Enabled},
	}

	enabledCount := 0
	for _, m := range modules {
		status := StatusSkipped
		message := "Disabled"
		if m.enabled {
			status = StatusOK
			message = "Enabled"
			enabledCount++
		}
		d.addResult(DiagnosticResult{
			Name:    fmt.Sprintf("module_%s", m.name),
			Status:  status,
			Message: message,
		})
	}

	d.logger.Info("modules summary", "enabled", enabledCount, "total", len(modules))
}

func (d *Diagnostics) checkArchive(ctx context.Context) {
	if d.cfg.Ledger.Backend == config.BackendRedis {
		d.probe(ctx, "redis_connectivity", "Redis", d.cfg.Ledger.Redis.Addr)
	}
	if d.cfg.Archive.ClickHouse.Enabled && len(d.cfg.Archive.ClickHouse.Hosts) > 0 {
		d.probe(ctx, "clickhouse_connectivity", "ClickHouse", d.cfg.Archive.ClickHouse.Hosts[0])
	}
	if d.cfg.Archive.Kafka.Enabled {
		for _, broker := range d.cfg.Archive.Kafka.Brokers {
			d.probe(ctx, "kafka_connectivity_"+broker, "Kafka broker", broker)
		}
	}
}

func (d *Diagnostics) probe(ctx context.Context, name, service, addr string) {
	dialCtx, cancel := context.WithTimeout(ctx, DialTimeout)
	defer cancel()

	conn, err := d.dial(dialCtx, "tcp", addr)
	if err != nil {
		d.addResult(DiagnosticResult{
			Name:    name,
			Status:  StatusError,
			Message: fmt.Sprintf("Cannot connect to %s: %s", service, err),
			Details: map[string]string{"host": addr},
		})
		return
	}
	conn.Close()
	d.addResult(DiagnosticResult{
		Name:    name,
		Status:  StatusOK,
		Message: service + " is reachable",
		Details: map[string]string{"host": addr},
	})
}

func (d *Diagnostics) printSummary() {
	var ok, warnings, errs, skipped int
	for _, r := range d.results {
		switch r.Status {
		case StatusOK:
			ok++
		case StatusWarning:
			warnings++
		case StatusError:
			errs++
		case StatusSkipped:
			skipped++
		}
	}

	d.logger.Info("=== Diagnostics Summary ===",
		"passed", ok,
		"warnings", warnings,
		"errors", errs,
		"skipped", skipped,
	)

	if errs > 0 {
		d.logger.Error("startup diagnostics found critical errors - engine may not function correctly")
	} else if warnings > 0 {
		d.logger.Warn("startup diagnostics found warnings")
	} else {
		d.logger.Info("all startup diagnostics passed")
	}
}

// HasErrors returns true if any diagnostic check failed
func (d *Diagnostics) HasErrors() bool {
	for _, r := range d.results {
		if r.Status == StatusError {
			return true
		}
	}
	return false
}

// HasWarnings returns true if any diagnostic check has warnings
func (d *Diagnostics) HasWarnings() bool {
	for _, r := range d.results {
		if r.Status == StatusWarning {
			return true
		}
	}
	return false
}

// PrintBanner prints the startup banner
func PrintBanner(version string) {
	banner := `
╔══════════════════════════════════════════════════════╗
║                                                      ║
║    C Y B E R S E N T I N E L                         ║
║                                                      ║
║    Blue Team Detection and Response                  ║
║                                                      ║
╚══════════════════════════════════════════════════════╝
`
	fmt.Println(banner)
	fmt.Printf("  Version: %s\n\n", version)
}
