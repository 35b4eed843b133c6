package scenes

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lancejames221b/CyberSentinelAI/internal/schema"
	"github.com/lancejames221b/CyberSentinelAI/internal/tui/source"
	"github.com/lancejames221b/CyberSentinelAI/internal/tui/styles"
)

// RecordsScene lists ledger records, newest first.
type RecordsScene struct {
	src     *source.Source
	records []schema.ResponseRecord
	err     error
	cursor  int
	offset  int
	maxRows int
	loading bool
}

// NewRecordsScene creates the record list.
func NewRecordsScene(src *source.Source) *RecordsScene {
	return &RecordsScene{src: src, loading: true, maxRows: 10}
}

// Init loads the records.
func (r *RecordsScene) Init() tea.Cmd {
	return LoadSnapshot(r.src)
}

// TickCmd schedules the next refresh.
func (r *RecordsScene) TickCmd() tea.Cmd {
	return tickCmd("records")
}

// Update handles messages for the record list.
func (r *RecordsScene) Update(msg tea.Msg) (*RecordsScene, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		r.maxRows = max(5, msg.Height-12)

	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if r.cursor > 0 {
				r.cursor--
				if r.cursor < r.offset {
					r.offset = r.cursor
				}
			}
		case "down", "j":
			if r.cursor < len(r.records)-1 {
				r.cursor++
				if r.cursor >= r.offset+r.maxRows {
					r.offset = r.cursor - r.maxRows + 1
				}
			}
		case "r":
			r.loading = true
			return r, LoadSnapshot(r.src)
		}

	case SnapshotMsg:
		r.loading = false
		r.err = msg.Err
		if msg.Err == nil {
			r.records = newestFirst(msg.Snapshot.Records)
		}
		if r.cursor >= len(r.records) {
			r.cursor = max(0, len(r.records)-1)
		}
		if r.offset > r.cursor {
			r.offset = r.cursor
		}

	case TickMsg:
		if msg.Scene == "records" {
			return r, LoadSnapshot(r.src)
		}
	}
	return r, nil
}

// View renders the record table.
func (r *RecordsScene) View() string {
	var b strings.Builder
	b.WriteString(styles.Title.Render("  Response Records"))
	b.WriteString("\n\n")

	if r.loading && len(r.records) == 0 {
		b.WriteString(styles.Muted.Render("  Loading records..."))
		return b.String()
	}
	if r.err != nil {
		b.WriteString(styles.StatusError.Render(fmt.Sprintf("  Error: %v", r.err)))
		b.WriteString("\n")
		b.WriteString(styles.Muted.Render("  Press [r] to retry."))
		return b.String()
	}
	if len(r.records) == 0 {
		b.WriteString(styles.Muted.Render("  The ledger is empty."))
		return b.String()
	}

	header := fmt.Sprintf("  %-6s %-20s %-5s %-28s %s", "Seq", "Timestamp", "Conf", "Detection", "Response")
	b.WriteString(styles.TableHeader.Render(header))
	b.WriteString("\n")

	end := min(r.offset+r.maxRows, len(r.records))
	for i := r.offset; i < end; i++ {
		b.WriteString(renderRecord(r.records[i], i == r.cursor))
		b.WriteString("\n")
	}

	b.WriteString(styles.Muted.Render(fmt.Sprintf("\n  %d-%d of %d  [↑↓/jk] scroll  [r] refresh", r.offset+1, end, len(r.records))))
	return b.String()
}

func renderRecord(rec schema.ResponseRecord, selected bool) string {
	conf := fmt.Sprintf("%.2f", rec.Confidence)
	row := fmt.Sprintf("  %-6d %-20s %-5s %-28s %s",
		rec.Sequence,
		rec.Timestamp.String(),
		conf,
		truncate(rec.Detection, 28),
		truncate(rec.Response, 40),
	)
	if selected {
		return styles.TableRowSelected.Render(row)
	}
	return strings.Replace(row, conf, styles.Confidence(rec.Confidence).Render(conf), 1)
}

func newestFirst(records []schema.ResponseRecord) []schema.ResponseRecord {
	out := make([]schema.ResponseRecord, len(records))
	for i, rec := range records {
		out[len(records)-1-i] = rec
	}
	return out
}
