// internal/ui/themes.go

package ui

import "github.com/charmbracelet/lipgloss"

type Theme struct {
	Name string

	Subtle    lipgloss.Color
	Highlight lipgloss.Color
	Special   lipgloss.Color
	Error     lipgloss.Color
	StatusBar lipgloss.Color
	Border    lipgloss.Color

	LabelColor lipgloss.Color
	TextColor  lipgloss.Color

	// Connection and agent states
	ConnectedColor    lipgloss.Color
	ReconnectingColor lipgloss.Color
	DownColor         lipgloss.Color
}

var (
	currentThemeIndex = 0

	themes = []Theme{
		{
			Name:      "default",
			Subtle:    lipgloss.Color("#6C7086"),
			Highlight: lipgloss.Color("#7DC4E4"),
			Special:   lipgloss.Color("#FF9E64"),
			Error:     lipgloss.Color("#F38BA8"),
			StatusBar: lipgloss.Color("#313244"),
			Border:    lipgloss.Color("#33B2FF"),

			LabelColor: lipgloss.Color("#A6ADC8"),
			TextColor:  lipgloss.Color("#FFFFFF"),

			ConnectedColor:    lipgloss.Color("#32CD32"),
			ReconnectingColor: lipgloss.Color("#FFD700"),
			DownColor:         lipgloss.Color("#F38BA8"),
		},
		{
			// Dracula palette
			Name:      "dracula",
			Subtle:    lipgloss.Color("#6272A4"),
			Highlight: lipgloss.Color("#8BE9FD"),
			Special:   lipgloss.Color("#FF79C6"),
			Error:     lipgloss.Color("#FF5555"),
			StatusBar: lipgloss.Color("#44475A"),
			Border:    lipgloss.Color("#BD93F9"),

			LabelColor: lipgloss.Color("#F8F8F2"),
			TextColor:  lipgloss.Color("#F8F8F2"),

			ConnectedColor:    lipgloss.Color("#50FA7B"),
			ReconnectingColor: lipgloss.Color("#F1FA8C"),
			DownColor:         lipgloss.Color("#FF5555"),
		},
		{
			// VS Code Dark+
			Name:      "vscode-dark",
			Subtle:    lipgloss.Color("#808080"),
			Highlight: lipgloss.Color("#569CD6"),
			Special:   lipgloss.Color("#CE9178"),
			Error:     lipgloss.Color("#F44747"),
			StatusBar: lipgloss.Color("#007ACC"),
			Border:    lipgloss.Color("#3C3C3C"),

			LabelColor: lipgloss.Color("#9CDCFE"),
			TextColor:  lipgloss.Color("#D4D4D4"),

			ConnectedColor:    lipgloss.Color("#6A9955"),
			ReconnectingColor: lipgloss.Color("#DCDCAA"),
			DownColor:         lipgloss.Color("#F44747"),
		},
		{
			Name:      "molokai",
			Subtle:    lipgloss.Color("#75715E"),
			Highlight: lipgloss.Color("#66D9EF"),
			Special:   lipgloss.Color("#FD971F"),
			Error:     lipgloss.Color("#F92672"),
			StatusBar: lipgloss.Color("#3E3D32"),
			Border:    lipgloss.Color("#AE81FF"),

			LabelColor: lipgloss.Color("#F8F8F2"),
			TextColor:  lipgloss.Color("#F8F8F2"),

			ConnectedColor:    lipgloss.Color("#A6E22E"),
			ReconnectingColor: lipgloss.Color("#E6DB74"),
			DownColor:         lipgloss.Color("#F92672"),
		},
	}
)

// CurrentTheme returns the active theme.
func CurrentTheme() Theme {
	return themes[currentThemeIndex]
}

// SwitchTheme moves to the next theme and rebuilds every style.
func SwitchTheme() {
	currentThemeIndex = (currentThemeIndex + 1) % len(themes)
	updateStyles(themes[currentThemeIndex])
}

func updateStyles(theme Theme) {
	Subtle = theme.Subtle
	Highlight = theme.Highlight
	Special = theme.Special
	Error = theme.Error
	StatusBar = theme.StatusBar
	Border = theme.Border

	TitleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Highlight).
		MarginLeft(1)

	PanelTitleStyle = lipgloss.NewStyle().
		Foreground(Highlight).
		Bold(true).
		Padding(0, 1)

	LabelStyle = lipgloss.NewStyle().
		Foreground(theme.LabelColor)

	DescriptionStyle = lipgloss.NewStyle().
		Foreground(Subtle)

	SuccessStyle = lipgloss.NewStyle().
		Foreground(Special).
		Bold(true)

	ErrorStyle = lipgloss.NewStyle().
		Foreground(Error).
		Bold(true)

	PanelStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Border).
		Padding(0, 1)

	HeaderStyle = lipgloss.NewStyle().
		Foreground(Highlight).
		Bold(true).
		Padding(0, 1)

	CellStyle = lipgloss.NewStyle().
		Foreground(theme.TextColor).
		Padding(0, 1)

	SelectedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(Highlight).
		Bold(true).
		Padding(0, 1)

	StatusBarStyle = lipgloss.NewStyle().
		Foreground(theme.TextColor).
		Background(StatusBar).
		Padding(0, 1)

	StateConnectedStyle = lipgloss.NewStyle().
		Foreground(theme.ConnectedColor).
		Bold(true)

	StateReconnectingStyle = lipgloss.NewStyle().
		Foreground(theme.ReconnectingColor).
		Bold(true)

	StateDownStyle = lipgloss.NewStyle().
		Foreground(theme.DownColor).
		Bold(true)
}
