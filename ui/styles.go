package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorPrimary = lipgloss.Color("62")  // Purple/blue
	colorSuccess = lipgloss.Color("42")  // Green
	colorError   = lipgloss.Color("196") // Red
	colorWarning = lipgloss.Color("214") // Orange/Yellow
	colorMuted   = lipgloss.Color("240") // Dark gray
	colorBorder  = lipgloss.Color("238") // Border gray
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	successStyle = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(colorWarning)

	logBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	dividerStyle = lipgloss.NewStyle().
			Foreground(colorBorder)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Italic(true)
)

func renderTitle(title string) string {
	return titleStyle.Render(title) + "\n"
}

func renderDivider(length int) string {
	return dividerStyle.Render(strings.Repeat("─", length))
}

// styleLogLine colours a log line by what it reports.
func styleLogLine(line string) string {
	switch {
	case strings.HasPrefix(line, "An error occurred"), strings.HasPrefix(line, "Error: "):
		return errorStyle.Render(line)
	case strings.HasPrefix(line, "Please "), strings.HasPrefix(line, "Scraping is"), strings.HasPrefix(line, "Scraping cancelled"):
		return warningStyle.Render(line)
	case strings.HasPrefix(line, "Scraping completed"), strings.HasPrefix(line, "Selected Elements"):
		return successStyle.Render(line)
	default:
		return line
	}
}
