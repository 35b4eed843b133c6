// Package scenes provides the dashboard's views.
package scenes

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/lancejames221b/CyberSentinelAI/internal/summary"
	"github.com/lancejames221b/CyberSentinelAI/internal/tui/source"
	"github.com/lancejames221b/CyberSentinelAI/internal/tui/styles"
)

// TickMsg is sent on each refresh tick of a scene.
type TickMsg struct {
	Scene string
	Time  time.Time
}

// SnapshotMsg carries a freshly loaded ledger snapshot.
type SnapshotMsg struct {
	Snapshot source.Snapshot
	Err      error
}

// LoadSnapshot returns a command that loads a snapshot from src.
func LoadSnapshot(src *source.Source) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		snap, err := src.Snapshot(ctx)
		return SnapshotMsg{Snapshot: snap, Err: err}
	}
}

// DashboardScene shows ledger totals and breakdowns.
type DashboardScene struct {
	src     *source.Source
	snap    source.Snapshot
	err     error
	width   int
	loading bool
}

// NewDashboardScene creates the dashboard.
func NewDashboardScene(src *source.Source) *DashboardScene {
	return &DashboardScene{src: src, loading: true}
}

// Init loads the first snapshot.
func (d *DashboardScene) Init() tea.Cmd {
	return LoadSnapshot(d.src)
}

// TickCmd schedules the next refresh.
func (d *DashboardScene) TickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return TickMsg{Scene: "dashboard", Time: t}
	})
}

// Update handles messages for the dashboard.
func (d *DashboardScene) Update(msg tea.Msg) (*DashboardScene, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		d.width = msg.Width
	case SnapshotMsg:
		d.loading = false
		d.err = msg.Err
		if msg.Err == nil {
			d.snap = msg.Snapshot
		}
	case TickMsg:
		if msg.Scene == "dashboard" {
			return d, LoadSnapshot(d.src)
		}
	}
	return d, nil
}

// View renders the dashboard.
func (d *DashboardScene) View() string {
	var b strings.Builder
	b.WriteString(styles.Title.Render("  CyberSentinel Ledger"))
	b.WriteString("\n\n")

	if d.loading {
		b.WriteString(styles.Muted.Render("Loading..."))
		return b.String()
	}
	if d.err != nil {
		b.WriteString(styles.StatusError.Render(fmt.Sprintf("  Error: %v", d.err)))
		b.WriteString("\n\n")
	}

	s := d.snap.Summary
	integrity := styles.StatusOK.Render("● INTACT")
	if !s.Verified {
		integrity = styles.StatusError.Render("● GAP: " + s.VerifyError)
	}
	b.WriteString(fmt.Sprintf("  Ledger: %s\n\n", integrity))

	last := "-"
	if !s.Last.IsZero() {
		last = humanize.Time(s.Last)
	}
	cards := []string{
		metricCard("Records", humanize.Comma(int64(s.Total))),
		metricCard("Last Sequence", fmt.Sprintf("%d", s.LastSequence)),
		metricCard("Mean Confidence", fmt.Sprintf("%.2f", s.MeanConfidence)),
		metricCard("Last Record", last),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cards...))
	b.WriteString("\n\n")

	columns := []string{
		countTable("Categories", summary.Top(s.Categories, 8)),
		countTable("Top Sources", summary.Top(s.Sources, 8)),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, columns...))

	if !d.snap.LoadedAt.IsZero() {
		b.WriteString("\n")
		b.WriteString(styles.Muted.Render(fmt.Sprintf("  Last updated: %s", d.snap.LoadedAt.Format("15:04:05"))))
	}
	return b.String()
}

func metricCard(label, value string) string {
	return styles.MetricCard.Render(fmt.Sprintf("%s\n%s",
		styles.MetricValue.Render(value),
		styles.MetricLabel.Render(label),
	))
}

func countTable(title string, counts []summary.Count) string {
	var b strings.Builder
	b.WriteString(styles.Subtitle.Render("  " + title))
	b.WriteString("\n")
	if len(counts) == 0 {
		b.WriteString(styles.Muted.Render("  none"))
	}
	for _, c := range counts {
		b.WriteString(fmt.Sprintf("  %-22s %6d\n", truncate(c.Label, 22), c.Count))
	}
	return lipgloss.NewStyle().Width(36).Render(b.String())
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
