// Package decoy deploys bait artifacts and records each deployment through
// the response dispatcher.
package decoy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/lancejames221b/CyberSentinelAI/internal/schema"
)

// HoneypotContent is the bait written to honeypot files.
const HoneypotContent = "# Honeypot file - Access will be logged\n" +
	"DB_PASSWORD=S3cr3tP@ssw0rd!\n" +
	"API_KEY=honeypot_trigger_8675309\n"

// DefaultFlagPaths are the simulated decoy flag locations.
var DefaultFlagPaths = []string{"/tmp/flag.txt", "/home/ctf/flag.txt", "/var/log/flag.txt"}

// Artifact is a bait file. Its identity is its path.
type Artifact struct {
	Path    string
	Content []byte
}

// Honeypots builds artifacts with the standard bait content for paths.
func Honeypots(paths []string) []Artifact {
	artifacts := make([]Artifact, len(paths))
	for i, p := range paths {
		artifacts[i] = Artifact{Path: p, Content: []byte(HoneypotContent)}
	}
	return artifacts
}

// Dispatcher records deployments.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev schema.DetectionEvent) (schema.ResponseRecord, error)
}

// Notifier receives free-text progress lines for the activity log.
type Notifier interface {
	Log(message string) error
}

// Provisioner writes bait artifacts.
type Provisioner struct {
	dispatcher Dispatcher
	notifier   Notifier
	logger     *slog.Logger
}

// NewProvisioner creates a provisioner. notifier may be nil.
func NewProvisioner(d Dispatcher, notifier Notifier, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{
		dispatcher: d,
		notifier:   notifier,
		logger:     logger.With("component", "decoy"),
	}
}

// Provision writes each artifact and dispatches one decoy deployment per
// written file. A failed artifact is logged and skipped. It returns the
// number of artifacts deployed.
func (p *Provisioner) Provision(ctx context.Context, artifacts []Artifact) int {
	p.note("Creating honeypot files to detect reconnaissance")

	deployed := 0
	for _, a := range artifacts {
		if ctx.Err() != nil {
			break
		}
		if err := os.WriteFile(a.Path, a.Content, 0o644); err != nil {
			p.logger.Warn("failed to create decoy", "path", a.Path, "error", err)
			p.note(fmt.Sprintf("Error creating honeypot %s: %v", a.Path, err))
			continue
		}

		if _, err := p.dispatcher.Dispatch(ctx, deploymentEvent(a.Path)); err != nil {
			p.logger.Warn("decoy created but not recorded", "path", a.Path, "error", err)
			continue
		}
		deployed++
	}

	p.logger.Info("decoys provisioned", "deployed", deployed, "configured", len(artifacts))
	return deployed
}

func (p *Provisioner) note(msg string) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Log(msg); err != nil {
		p.logger.Warn("activity log write failed", "error", err)
	}
}

func deploymentEvent(path string) schema.DetectionEvent {
	ev := schema.NewDetectionEvent(schema.CategoryDecoyDeployment, "", "")
	ev.Detector = "decoy"
	ev.Target = path
	return ev
}

// FlagDeployer records simulated decoy flags. The flags are never written to
// disk. Each path is recorded at most once.
type FlagDeployer struct {
	dispatcher Dispatcher
	notifier   Notifier
	paths      []string
	logger     *slog.Logger

	mu       sync.Mutex
	deployed map[string]bool
}

// NewFlagDeployer creates a deployer for paths; nil uses DefaultFlagPaths.
func NewFlagDeployer(d Dispatcher, notifier Notifier, paths []string, logger *slog.Logger) *FlagDeployer {
	if paths == nil {
		paths = DefaultFlagPaths
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FlagDeployer{
		dispatcher: d,
		notifier:   notifier,
		paths:      paths,
		logger:     logger.With("component", "decoy_flags"),
		deployed:   make(map[string]bool),
	}
}

// Deploy records every path not yet deployed and returns how many were
// recorded by this call.
func (f *FlagDeployer) Deploy(ctx context.Context) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	var pending []string
	for _, p := range f.paths {
		if !f.deployed[p] {
			pending = append(pending, p)
		}
	}
	if len(pending) == 0 {
		return 0
	}

	f.note("Creating decoy flag files")

	n := 0
	for _, p := range pending {
		if _, err := f.dispatcher.Dispatch(ctx, deploymentEvent(p)); err != nil {
			f.logger.Warn("failed to record decoy flag", "path", p, "error", err)
			continue
		}
		f.deployed[p] = true
		n++
	}
	return n
}

func (f *FlagDeployer) note(msg string) {
	if f.notifier == nil {
		return
	}
	if err := f.notifier.Log(msg); err != nil {
		f.logger.Warn("activity log write failed", "error", err)
	}
}

// OnFileExploration deploys decoy flags in reaction to a file exploration
// event. It has the signature of a detector hook.
func (f *FlagDeployer) OnFileExploration(ctx context.Context, ev schema.DetectionEvent) {
	if ev.Category != schema.CategoryFileExploration {
		return
	}
	f.Deploy(ctx)
}
