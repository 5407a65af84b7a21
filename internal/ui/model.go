// internal/ui/model.go

// Package ui is the terminal status dashboard: pooled connections with their
// health state and the agent sessions running on them.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"agentManager/internal/models"
)

const DefaultRefreshInterval = time.Second

// KeyMap defines the dashboard shortcuts.
type KeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Refresh key.Binding
	Theme   key.Binding
	Quit    key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Theme: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "theme"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

func (k KeyMap) help() string {
	var parts []string
	for _, b := range []key.Binding{k.Up, k.Down, k.Refresh, k.Theme, k.Quit} {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, " • ")
}

type tickMsg time.Time

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Model is the dashboard tea.Model.
type Model struct {
	src      Sources
	keys     KeyMap
	interval time.Duration
	clockFn  func() time.Time

	conns       []ConnRow
	agents      []models.AgentRecord
	agentTable  table.Model
	lastRefresh time.Time

	width    int
	height   int
	quitting bool
}

// New builds a dashboard and takes the first snapshot. interval <= 0 means
// DefaultRefreshInterval.
func New(src Sources, interval time.Duration) Model {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	m := Model{
		src:        src,
		keys:       DefaultKeyMap(),
		interval:   interval,
		clockFn:    time.Now,
		agentTable: CreateBubbleTable(agentColumns(nil), nil, 10),
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return tick(m.interval)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Refresh):
			m.refresh()
			return m, nil
		case key.Matches(msg, m.keys.Theme):
			SwitchTheme()
			m.agentTable.SetStyles(tableStyles())
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case tickMsg:
		m.refresh()
		return m, tick(m.interval)
	}

	var cmd tea.Cmd
	m.agentTable, cmd = m.agentTable.Update(msg)
	return m, cmd
}

func (m *Model) refresh() {
	var (
		pool     = m.src.poolStatus()
		statuses = m.src.healthStatuses()
	)
	m.conns = connectionRows(pool, statuses)
	m.agents = m.src.agentRecords()
	m.lastRefresh = m.clockFn()

	now := m.lastRefresh
	rows := make([]table.Row, 0, len(m.agents))
	for _, a := range m.agents {
		rows = append(rows, agentCells(a, now))
	}
	m.agentTable.SetColumns(agentColumns(m.agents))
	m.agentTable.SetRows(rows)
	if c := m.agentTable.Cursor(); c >= len(rows) {
		m.agentTable.SetCursor(max(len(rows)-1, 0))
	}
	m.resize()
}

func (m *Model) resize() {
	if m.height == 0 {
		return
	}
	l := NewBaseLayout(m.width, m.height)
	m.agentTable.SetHeight(l.AgentTableHeight(len(m.conns)))
}

// Selected returns the agent under the cursor.
func (m Model) Selected() (models.AgentRecord, bool) {
	c := m.agentTable.Cursor()
	if c < 0 || c >= len(m.agents) {
		return models.AgentRecord{}, false
	}
	return m.agents[c], true
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	l := NewBaseLayout(m.width, m.height)

	running := 0
	for _, a := range m.agents {
		if a.Running {
			running++
		}
	}
	header := TitleStyle.Render("agentmgr") + DescriptionStyle.Render(
		fmt.Sprintf("  %d connections • %d/%d agents running", len(m.conns), running, len(m.agents)))

	connCells := make([][]string, 0, len(m.conns))
	for _, c := range m.conns {
		connCells = append(connCells, c.cells(m.lastRefresh))
	}
	connTable := CreateLipglossTable(connHeaders, connCells, func(row, col int) (lipgloss.Style, bool) {
		if col != connStateCol || row < 0 || row >= len(m.conns) {
			return lipgloss.Style{}, false
		}
		return StateStyle(m.conns[row].State), true
	})

	agentsView := m.agentTable.View()
	if len(m.agents) == 0 {
		agentsView = DescriptionStyle.Render("no agents")
	}

	status := m.keys.help() + "  │  updated " + m.lastRefresh.Format("15:04:05") + "  │  " + CurrentTheme().Name
	if a, ok := m.Selected(); ok {
		status = a.ChannelID + " on " + a.ConnectionID + "  │  " + status
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		"",
		PanelTitleStyle.Render("Connections"),
		connTable,
		PanelTitleStyle.Render("Agents"),
		PanelStyle.Render(agentsView),
		l.Footer().Render(status),
	)
}

// Run shows the dashboard until the user quits or ctx is cancelled.
func Run(ctx context.Context, src Sources, interval time.Duration) error {
	p := tea.NewProgram(New(src, interval), tea.WithAltScreen())
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			p.Quit()
		case <-done:
		}
	}()
	_, err := p.Run()
	return err
}
