package tui

import "github.com/charmbracelet/lipgloss"

// Colors
var (
	// Log priority colors
	verboseColor = lipgloss.Color("8")  // Gray
	debugColor   = lipgloss.Color("12") // Blue
	infoColor    = lipgloss.Color("10") // Green
	warnColor    = lipgloss.Color("11") // Yellow
	errorColor   = lipgloss.Color("9")  // Red
	fatalColor   = lipgloss.Color("13") // Magenta

	// UI colors
	headerBg = lipgloss.Color("235")
	statusBg = lipgloss.Color("236")
	helpBg   = lipgloss.Color("234")
	dimColor = lipgloss.Color("8")
	hitBg    = lipgloss.Color("58")
	curBg    = lipgloss.Color("214")
)

// Styles
var (
	// Column styles for structured lines
	timeStyle = lipgloss.NewStyle().Foreground(dimColor)
	pidStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	tagStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	pkgStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("159"))

	rawStyle = lipgloss.NewStyle()

	// Find highlights
	findHitStyle = lipgloss.NewStyle().
			Background(hitBg)

	findCurrentStyle = lipgloss.NewStyle().
				Background(curBg).
				Foreground(lipgloss.Color("0")).
				Bold(true)

	// Header style
	headerStyle = lipgloss.NewStyle().
			Background(headerBg).
			Padding(0, 1)

	// Status bar style
	statusStyle = lipgloss.NewStyle().
			Background(statusBg).
			Padding(0, 1)

	// Help overlay style
	helpStyle = lipgloss.NewStyle().
			Background(helpBg).
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240"))

	// Notice shown while output is withheld
	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(warnColor).
			Bold(true)

	// Error indicator style
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")).
			Background(errorColor).
			Bold(true)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("14"))

	dimStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	// Priority styles, keyed by logcat priority letter
	levelStyles map[string]lipgloss.Style
)

func init() {
	levelStyles = map[string]lipgloss.Style{
		"V": lipgloss.NewStyle().Foreground(verboseColor),
		"D": lipgloss.NewStyle().Foreground(debugColor),
		"I": lipgloss.NewStyle().Foreground(infoColor),
		"W": lipgloss.NewStyle().Foreground(warnColor),
		"E": lipgloss.NewStyle().Foreground(errorColor),
		"F": lipgloss.NewStyle().Foreground(fatalColor).Bold(true),
		"A": lipgloss.NewStyle().Foreground(fatalColor).Bold(true),
	}
}

// levelStyle returns the style for a priority letter
func levelStyle(priority string) lipgloss.Style {
	if s, ok := levelStyles[priority]; ok {
		return s
	}
	return rawStyle
}
