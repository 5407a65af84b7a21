// internal/ui/layout.go

package ui

import (
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"
)

// BaseLayout holds the dashboard dimensions.
type BaseLayout struct {
	Width         int
	Height        int
	HeaderHeight  int
	FooterHeight  int
	ContentHeight int
}

func NewBaseLayout(width, height int) BaseLayout {
	const (
		headerHeight = 2
		footerHeight = 2
	)
	content := height - headerHeight - footerHeight
	if content < 0 {
		content = 0
	}
	return BaseLayout{
		Width:         width,
		Height:        height,
		HeaderHeight:  headerHeight,
		FooterHeight:  footerHeight,
		ContentHeight: content,
	}
}

// AgentTableHeight is the number of agent rows that fit under the
// connections panel, which takes connRows plus its borders and title.
func (l BaseLayout) AgentTableHeight(connRows int) int {
	h := l.ContentHeight - (connRows + 5) - 4
	if h < 3 {
		return 3
	}
	return h
}

// Footer is the status bar style stretched to the layout width.
func (l BaseLayout) Footer() lipgloss.Style {
	if l.Width <= 0 {
		return StatusBarStyle
	}
	return StatusBarStyle.Width(l.Width)
}

// CreateBubbleTable builds a focusable table with the current theme.
func CreateBubbleTable(columns []table.Column, rows []table.Row, height int) table.Model {
	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithHeight(height),
		table.WithFocused(true),
	)
	t.SetStyles(tableStyles())
	return t
}

func tableStyles() table.Styles {
	return table.Styles{
		Header:   HeaderStyle,
		Selected: SelectedStyle,
		Cell:     CellStyle,
	}
}

// CreateLipglossTable renders a static table. rowStyle may restyle a body
// cell; it receives the row and column index.
func CreateLipglossTable(headers []string, rows [][]string, rowStyle func(row, col int) (lipgloss.Style, bool)) string {
	styleFunc := func(row, col int) lipgloss.Style {
		if row == ltable.HeaderRow {
			return HeaderStyle
		}
		if rowStyle != nil {
			if s, ok := rowStyle(row, col); ok {
				return s.Padding(0, 1)
			}
		}
		return CellStyle
	}

	return ltable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Border)).
		StyleFunc(styleFunc).
		Headers(headers...).
		Rows(rows...).
		Render()
}
