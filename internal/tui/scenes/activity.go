package scenes

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lancejames221b/CyberSentinelAI/internal/tui/source"
	"github.com/lancejames221b/CyberSentinelAI/internal/tui/styles"
)

// ActivityMsg carries the tail of the activity log.
type ActivityMsg struct {
	Lines []string
	Err   error
}

// ActivityScene tails the human-readable activity log.
type ActivityScene struct {
	src    *source.Source
	lines  []string
	err    error
	height int
}

// NewActivityScene creates the activity view.
func NewActivityScene(src *source.Source) *ActivityScene {
	return &ActivityScene{src: src, height: 24}
}

// Init loads the log tail.
func (a *ActivityScene) Init() tea.Cmd {
	return a.load()
}

func (a *ActivityScene) load() tea.Cmd {
	n := max(5, a.height-8)
	return func() tea.Msg {
		lines, err := a.src.Activity(n)
		return ActivityMsg{Lines: lines, Err: err}
	}
}

// TickCmd schedules the next refresh.
func (a *ActivityScene) TickCmd() tea.Cmd {
	return tickCmd("activity")
}

// Update handles messages for the activity view.
func (a *ActivityScene) Update(msg tea.Msg) (*ActivityScene, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.height = msg.Height
	case ActivityMsg:
		a.lines, a.err = msg.Lines, msg.Err
	case TickMsg:
		if msg.Scene == "activity" {
			return a, a.load()
		}
	}
	return a, nil
}

// View renders the log tail with alerts highlighted.
func (a *ActivityScene) View() string {
	var b strings.Builder
	b.WriteString(styles.Title.Render("  Activity Log"))
	b.WriteString("\n\n")

	if a.err != nil {
		b.WriteString(styles.StatusError.Render(fmt.Sprintf("  Error: %v", a.err)))
		return b.String()
	}
	if len(a.lines) == 0 {
		b.WriteString(styles.Muted.Render("  No activity yet."))
		return b.String()
	}

	for _, line := range a.lines {
		switch {
		case strings.Contains(line, "CRITICAL"):
			line = styles.StatusError.Render(line)
		case strings.Contains(line, "ALERT"):
			line = styles.StatusWarning.Render(line)
		}
		b.WriteString("  " + line + "\n")
	}
	return b.String()
}

func tickCmd(scene string) tea.Cmd {
	return tea.Tick(3*time.Second, func(t time.Time) tea.Msg {
		return TickMsg{Scene: scene, Time: t}
	})
}
