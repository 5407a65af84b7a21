// internal/ui/styles.go

package ui

import (
	"github.com/charmbracelet/lipgloss"

	"agentManager/internal/health"
)

var (
	Subtle    lipgloss.Color
	Highlight lipgloss.Color
	Special   lipgloss.Color
	Error     lipgloss.Color
	StatusBar lipgloss.Color
	Border    lipgloss.Color

	TitleStyle       lipgloss.Style
	PanelTitleStyle  lipgloss.Style
	LabelStyle       lipgloss.Style
	DescriptionStyle lipgloss.Style
	SuccessStyle     lipgloss.Style
	ErrorStyle       lipgloss.Style
	PanelStyle       lipgloss.Style
	HeaderStyle      lipgloss.Style
	CellStyle        lipgloss.Style
	SelectedStyle    lipgloss.Style
	StatusBarStyle   lipgloss.Style

	StateConnectedStyle    lipgloss.Style
	StateReconnectingStyle lipgloss.Style
	StateDownStyle         lipgloss.Style
)

func init() {
	updateStyles(themes[currentThemeIndex])
}

// StateStyle picks the style for a health state. Connections the monitor
// does not know about render subtle.
func StateStyle(s health.State) lipgloss.Style {
	switch s {
	case health.StateConnected:
		return StateConnectedStyle
	case health.StateReconnecting, health.StateError:
		return StateReconnectingStyle
	case health.StateDisconnected:
		return StateDownStyle
	default:
		return DescriptionStyle
	}
}

// GetMaxWidth returns the widest rendered width in items.
func GetMaxWidth(items []string) int {
	maxWidth := 0
	for _, item := range items {
		if w := lipgloss.Width(item); w > maxWidth {
			maxWidth = w
		}
	}
	return maxWidth
}
