// Package statusui is a read-only terminal UI listing the server's live
// sessions and attachments, polling the session manager on a fixed
// interval rather than subscribing to its events.
package statusui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const pollInterval = 500 * time.Millisecond

// SessionSummary is one session's state as shown by the status UI,
// independent of whether it came from an in-process session.Manager or
// a remote management-API fetch.
type SessionSummary struct {
	ID            string
	Application   string
	State         string
	Width, Height int
	Attached      bool
}

// Fetcher retrieves the current session list. The in-process server
// binds this directly to its session.Manager; mmserverd-top binds it to
// an HTTP client polling the management API.
type Fetcher func() ([]SessionSummary, error)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62")).Padding(0, 1)
	rowStyle    = lipgloss.NewStyle().Padding(0, 1)
	idleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	liveStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Padding(1, 1, 0, 1)
)

// Model is the statusui's bubbletea model: a point-in-time snapshot of
// the session list, refreshed on each tick.
type Model struct {
	fetch Fetcher
	rows  []row
	width int
	err   error
}

type row struct {
	id, application, state string
	width, height          int
	attached               bool
}

type tickMsg time.Time

// New creates a Model that polls fetch on a fixed interval.
func New(fetch Fetcher) Model {
	return Model{fetch: fetch}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(scheduleTick(), refresh(m.fetch))
}

func scheduleTick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

type snapshotMsg struct {
	rows []row
	err  error
}

func refresh(fetch Fetcher) tea.Cmd {
	return func() tea.Msg {
		summaries, err := fetch()
		if err != nil {
			return snapshotMsg{err: err}
		}
		rows := make([]row, 0, len(summaries))
		for _, s := range summaries {
			rows = append(rows, row{
				id:          s.ID,
				application: s.Application,
				state:       s.State,
				width:       s.Width,
				height:      s.Height,
				attached:    s.Attached,
			})
		}
		return snapshotMsg{rows: rows}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tickMsg:
		return m, tea.Batch(scheduleTick(), refresh(m.fetch))
	case snapshotMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.rows = msg.rows
		}
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	if m.err != nil {
		b.WriteString(idleStyle.Render(fmt.Sprintf("fetch error: %v", m.err)))
		b.WriteByte('\n')
	}
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-36s %-16s %-12s %-11s %s", "SESSION", "APPLICATION", "STATE", "RESOLUTION", "ATTACHED")))
	b.WriteByte('\n')

	for _, r := range m.rows {
		line := fmt.Sprintf("%-36s %-16s %-12s %4dx%-6d %s", r.id, r.application, r.state, r.width, r.height, attachedLabel(r.attached))
		style := idleStyle
		if r.attached {
			style = liveStyle
		}
		b.WriteString(rowStyle.Render(style.Render(line)))
		b.WriteByte('\n')
	}

	if len(m.rows) == 0 {
		b.WriteString(rowStyle.Render(idleStyle.Render("no active sessions")))
		b.WriteByte('\n')
	}

	b.WriteString(footerStyle.Render(fmt.Sprintf("%d sessions · q to quit", len(m.rows))))
	return b.String()
}

func attachedLabel(attached bool) string {
	if attached {
		return "yes"
	}
	return "no"
}
