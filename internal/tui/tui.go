// Package tui provides a terminal dashboard over the event ledger.
package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lancejames221b/CyberSentinelAI/internal/tui/scenes"
	"github.com/lancejames221b/CyberSentinelAI/internal/tui/source"
	"github.com/lancejames221b/CyberSentinelAI/internal/tui/styles"
)

// Scene represents the current view.
type Scene int

const (
	SceneDashboard Scene = iota
	SceneRecords
	SceneActivity
	sceneCount
)

// Model is the top-level bubbletea model.
type Model struct {
	scene Scene

	// Only the active scene receives ticks.
	dashboard *scenes.DashboardScene
	records   *scenes.RecordsScene
	activity  *scenes.ActivityScene

	width    int
	quitting bool
}

// New creates a model reading from src.
func New(src *source.Source) *Model {
	return &Model{
		scene:     SceneDashboard,
		dashboard: scenes.NewDashboardScene(src),
		records:   scenes.NewRecordsScene(src),
		activity:  scenes.NewActivityScene(src),
	}
}

// Init loads the dashboard and starts its ticker.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.dashboard.Init(), m.dashboard.TickCmd())
}

func (m *Model) activate(s Scene) tea.Cmd {
	if s == m.scene {
		return nil
	}
	m.scene = s
	switch s {
	case SceneRecords:
		return tea.Batch(m.records.Init(), m.records.TickCmd())
	case SceneActivity:
		return tea.Batch(m.activity.Init(), m.activity.TickCmd())
	default:
		return tea.Batch(m.dashboard.Init(), m.dashboard.TickCmd())
	}
}

// Update handles all messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "1":
			return m, m.activate(SceneDashboard)
		case "2":
			return m, m.activate(SceneRecords)
		case "3":
			return m, m.activate(SceneActivity)
		case "tab":
			return m, m.activate((m.scene + 1) % sceneCount)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.dashboard, _ = m.dashboard.Update(msg)
		m.records, _ = m.records.Update(msg)
		m.activity, _ = m.activity.Update(msg)
		return m, nil

	case scenes.TickMsg:
		var cmd, next tea.Cmd
		switch m.scene {
		case SceneDashboard:
			if msg.Scene != "dashboard" {
				return m, nil
			}
			m.dashboard, cmd = m.dashboard.Update(msg)
			next = m.dashboard.TickCmd()
		case SceneRecords:
			if msg.Scene != "records" {
				return m, nil
			}
			m.records, cmd = m.records.Update(msg)
			next = m.records.TickCmd()
		case SceneActivity:
			if msg.Scene != "activity" {
				return m, nil
			}
			m.activity, cmd = m.activity.Update(msg)
			next = m.activity.TickCmd()
		}
		return m, tea.Batch(cmd, next)
	}

	var cmd tea.Cmd
	switch m.scene {
	case SceneDashboard:
		m.dashboard, cmd = m.dashboard.Update(msg)
	case SceneRecords:
		m.records, cmd = m.records.Update(msg)
	case SceneActivity:
		m.activity, cmd = m.activity.Update(msg)
	}
	return m, cmd
}

// View renders the current scene.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	switch m.scene {
	case SceneDashboard:
		b.WriteString(m.dashboard.View())
	case SceneRecords:
		b.WriteString(m.records.View())
	case SceneActivity:
		b.WriteString(m.activity.View())
	}
	b.WriteString("\n")
	b.WriteString(styles.Help.Render(" [1-3] Switch tabs  [Tab] Next tab  [↑↓/jk] Navigate  [q] Quit "))
	return b.String()
}

func (m *Model) renderHeader() string {
	tabs := []struct {
		name  string
		scene Scene
	}{
		{"Dashboard", SceneDashboard},
		{"Records", SceneRecords},
		{"Activity", SceneActivity},
	}

	views := make([]string, len(tabs))
	for i, tab := range tabs {
		label := fmt.Sprintf(" %d %s ", i+1, tab.name)
		if tab.scene == m.scene {
			views[i] = styles.TabActive.Render(label)
		} else {
			views[i] = styles.TabInactive.Render(label)
		}
	}

	return lipgloss.NewStyle().
		BorderBottom(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.MutedColor).
		Width(m.width).
		Render(lipgloss.JoinHorizontal(lipgloss.Top, views...))
}

// Run starts the dashboard program.
func Run(src *source.Source) error {
	_, err := tea.NewProgram(New(src), tea.WithAltScreen()).Run()
	return err
}
