// Package tracetui is an interactive browser for recorded runs: a
// table of sessions on top, the selected session's stub trace below.
package tracetui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/zboralski/loris/internal/history"
)

var (
	baseStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240"))
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))
	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205"))
)

// Model drives the session browser.
type Model struct {
	sessions []*history.Session
	table    table.Model
	detail   viewport.Model
	width    int
	height   int
	ready    bool
}

// New builds a browser over sessions, newest first.
func New(sessions []*history.Session) Model {
	columns := []table.Column{
		{Title: "STARTED", Width: 16},
		{Title: "MODULE", Width: 28},
		{Title: "OUTCOME", Width: 8},
		{Title: "CALLS", Width: 7},
		{Title: "EVENTS", Width: 7},
		{Title: "ID", Width: 8},
	}
	rows := make([]table.Row, 0, len(sessions))
	for _, sess := range sessions {
		rows = append(rows, table.Row{
			humanize.Time(sess.Started),
			sess.Module,
			sess.Outcome,
			fmt.Sprintf("%d", sess.Calls),
			fmt.Sprintf("%d", len(sess.Events)),
			shortID(sess.ID),
		})
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	m := Model{sessions: sessions, table: t}
	m.refreshDetail()
	return m
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		tableHeight := m.height / 3
		if tableHeight < 5 {
			tableHeight = 5
		}
		m.table.SetHeight(tableHeight)
		detailHeight := m.height - tableHeight - 6
		if detailHeight < 3 {
			detailHeight = 3
		}
		if !m.ready {
			m.detail = viewport.New(m.width-4, detailHeight)
			m.ready = true
			m.refreshDetail()
		} else {
			m.detail.Width = m.width - 4
			m.detail.Height = detailHeight
		}
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "pgup", "pgdown", "home", "end":
			m.detail, cmd = m.detail.Update(msg)
			return m, cmd
		}
	}

	before := m.table.Cursor()
	m.table, cmd = m.table.Update(msg)
	if m.table.Cursor() != before {
		m.refreshDetail()
	}
	return m, cmd
}

func (m Model) View() string {
	if len(m.sessions) == 0 {
		return statusStyle.Render("no recorded sessions") + "\n"
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("loris sessions"))
	b.WriteString("\n")
	b.WriteString(baseStyle.Render(m.table.View()))
	b.WriteString("\n")
	if m.ready {
		b.WriteString(baseStyle.Render(m.detail.View()))
		b.WriteString("\n")
	}
	b.WriteString(statusStyle.Render("↑/↓ select  pgup/pgdn scroll trace  q quit"))
	return b.String()
}

// refreshDetail renders the selected session's trace into the lower pane.
func (m *Model) refreshDetail() {
	sess := m.selected()
	if sess == nil {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s  entry=%s  stubs=%d  calls=%d", sess.Module, sess.Entry, sess.Stubs, sess.Calls)
	if sess.Outcome != "ok" {
		b.WriteString("  ")
		b.WriteString(errStyle.Render(fmt.Sprintf("%s(%d)", sess.Outcome, sess.ExitCode)))
	}
	b.WriteString("\n\n")
	for _, ev := range sess.Events {
		fmt.Fprintf(&b, "%6d  %-24s %s", ev.Seq, ev.Name, strings.Join(ev.Tags.Strings(), " "))
		if ev.Detail != "" {
			fmt.Fprintf(&b, "  ; %s", ev.Detail)
		}
		b.WriteString("\n")
	}
	if len(sess.Events) == 0 {
		b.WriteString(statusStyle.Render("trace not recorded for this session"))
		b.WriteString("\n")
	}
	m.detail.SetContent(b.String())
	m.detail.GotoTop()
}

func (m *Model) selected() *history.Session {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.sessions) {
		return nil
	}
	return m.sessions[i]
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Run opens the browser and blocks until the user quits.
func Run(sessions []*history.Session) error {
	_, err := tea.NewProgram(New(sessions), tea.WithAltScreen()).Run()
	return err
}
