package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Phase statuses.
const (
	StatusPending = "pending"
	StatusActive  = "running"
	StatusDone    = "done"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

const (
	tickInterval = 150 * time.Millisecond
	marqueeGap   = "   "
)

// tickMsg drives the marquee of long detail values.
type tickMsg time.Time

// Column defines a single column in the progress table.
type Column struct {
	Header string
	Width  int
}

// Row holds the field values for a single table row.
type Row struct {
	Key    string
	Fields []string
}

var phaseColumns = []Column{
	{Header: "PHASE", Width: 10},
	{Header: "STATUS", Width: 8},
	{Header: "DETAIL", Width: 52},
}

const (
	colPhase = iota
	colStatus
	colDetail
)

// ProgressModel renders the phases of one install as a table with a spinner
// footer while work is in flight.
type ProgressModel struct {
	title       string
	rows        []Row
	rowIndex    map[string]int
	spinner     spinner.Model
	tick        int
	done        bool
	interrupted bool
	err         error
}

// NewProgressModel creates a model with one pending row per phase.
func NewProgressModel(title string, phases []string) ProgressModel {
	m := ProgressModel{
		title:    title,
		rowIndex: make(map[string]int, len(phases)),
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
	for _, phase := range phases {
		m.rowIndex[phase] = len(m.rows)
		m.rows = append(m.rows, Row{Key: phase, Fields: []string{phase, StatusPending, ""}})
	}
	return m
}

func scheduleTick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init satisfies the tea.Model interface.
func (m ProgressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, scheduleTick())
}

// Update satisfies the tea.Model interface.
func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.tick++
		if m.done {
			return m, nil
		}
		return m, scheduleTick()

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case PhaseMsg:
		m.applyPhase(msg)
		return m, nil

	case WorkDoneMsg:
		m.done = true
		return m, tea.Quit

	case ErrorMsg:
		m.err = msg.Err
		m.done = true
		return m, tea.Quit

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.interrupted = true
			m.done = true
			return m, tea.Quit
		}
	}
	return m, nil
}

// applyPhase updates a row, appending it when the phase was not declared.
func (m *ProgressModel) applyPhase(msg PhaseMsg) {
	idx, ok := m.rowIndex[msg.Name]
	if !ok {
		idx = len(m.rows)
		m.rowIndex[msg.Name] = idx
		m.rows = append(m.rows, Row{Key: msg.Name, Fields: []string{msg.Name, StatusPending, ""}})
	}
	row := &m.rows[idx]
	if msg.Status != "" {
		row.Fields[colStatus] = msg.Status
	}
	if msg.Detail != "" {
		row.Fields[colDetail] = msg.Detail
	}
}

// View satisfies the tea.Model interface.
func (m ProgressModel) View() string {
	var b strings.Builder
	if m.title != "" {
		b.WriteString(TitleStyle.Render(m.title))
		b.WriteByte('\n')
	}

	headers := make([]string, len(phaseColumns))
	for i, col := range phaseColumns {
		headers[i] = HeaderStyle.Render(pad(col.Header, col.Width))
	}
	b.WriteString(strings.Join(headers, "  "))
	b.WriteByte('\n')

	for _, row := range m.rows {
		parts := make([]string, len(phaseColumns))
		for i, col := range phaseColumns {
			val := row.Fields[i]
			switch {
			case i == colStatus:
				parts[i] = StatusStyle(val).Render(pad(val, col.Width))
				continue
			case !m.done && len(strings.TrimSpace(val)) > col.Width:
				val = marqueeText(val, col.Width, m.tick)
			default:
				val = TruncateWithEllipsis(val, col.Width)
			}
			parts[i] = pad(val, col.Width)
		}
		b.WriteString(strings.TrimRight(strings.Join(parts, "  "), " "))
		b.WriteByte('\n')
	}

	switch {
	case m.err != nil:
		fmt.Fprintf(&b, "\nError: %v\n", m.err)
	case m.interrupted:
		b.WriteString("\nInterrupted, cleaning up...\n")
	case !m.done:
		finished, total := m.progressCounts()
		fmt.Fprintf(&b, "\n%s Installing %d/%d...\n", m.spinner.View(), finished, total)
	}
	return b.String()
}

// progressCounts returns (finished, total) phases.
func (m ProgressModel) progressCounts() (int, int) {
	finished := 0
	for _, row := range m.rows {
		switch row.Fields[colStatus] {
		case StatusDone, StatusSkipped, StatusFailed:
			finished++
		}
	}
	return finished, len(m.rows)
}

// Done returns whether the model has finished (work done or error).
func (m ProgressModel) Done() bool {
	return m.done
}

// Interrupted reports whether the user pressed ctrl+c.
func (m ProgressModel) Interrupted() bool {
	return m.interrupted
}

// Err returns any fatal error that occurred.
func (m ProgressModel) Err() error {
	return m.err
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// marqueeText renders a scrolling window over text that exceeds the given width.
func marqueeText(text string, width, tick int) string {
	text = strings.TrimSpace(text)
	if width <= 0 {
		return ""
	}
	if len(text) <= width {
		return text
	}
	cycle := text + marqueeGap
	offset := tick % len(cycle)
	var result strings.Builder
	result.Grow(width)
	for i := 0; i < width; i++ {
		result.WriteByte(cycle[(offset+i)%len(cycle)])
	}
	return result.String()
}

// NonEmptyOrDash returns "-" for empty/whitespace strings.
func NonEmptyOrDash(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	return value
}

// TruncateWithEllipsis truncates a string and adds "..." if it exceeds max length.
func TruncateWithEllipsis(value string, max int) string {
	if max <= 0 {
		return ""
	}
	value = strings.TrimSpace(value)
	if len(value) <= max {
		return value
	}
	if max <= 3 {
		return value[:max]
	}
	return value[:max-3] + "..."
}
