package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorCyan    = lipgloss.Color("#00FFFF")
	colorGreen   = lipgloss.Color("#00FF00")
	colorRed     = lipgloss.Color("#FF5555")
	colorYellow  = lipgloss.Color("#FFFF00")
	colorMagenta = lipgloss.Color("#FF00FF")
	colorGray    = lipgloss.Color("#666666")
	colorWhite   = lipgloss.Color("#FFFFFF")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	stepStyle = lipgloss.NewStyle().
			Foreground(colorWhite).
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorCyan)

	cueStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(colorMagenta)

	listeningDotStyle = lipgloss.NewStyle().
				Foreground(colorRed).
				Bold(true)

	idleDotStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	statusStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	progressFullStyle = lipgloss.NewStyle().
				Foreground(colorCyan)

	progressEmptyStyle = lipgloss.NewStyle().
				Foreground(colorGray)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	successStyle    = lipgloss.NewStyle().Foreground(colorGreen)
	errorStyle      = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	timeoutStyle    = lipgloss.NewStyle().Foreground(colorYellow)
	suggestionStyle = lipgloss.NewStyle().Foreground(colorCyan).Italic(true)
)
