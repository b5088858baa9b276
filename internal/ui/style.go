package ui

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary = lipgloss.Color("#7D56F4")
	colorAccent  = lipgloss.Color("#04B575")
	colorMuted   = lipgloss.Color("#6C6C6C")
	colorError   = lipgloss.Color("#FF5F5F")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	statusStyle = lipgloss.NewStyle().Foreground(colorAccent)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	errorStyle  = lipgloss.NewStyle().Foreground(colorError)
	boxStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPrimary).
			Padding(0, 1)
)

// ErrorText renders s in the error colour.
func ErrorText(s string) string { return errorStyle.Render(s) }

// StatusText renders s in the accent colour.
func StatusText(s string) string { return statusStyle.Render(s) }

// MutedText renders s dimmed.
func MutedText(s string) string { return mutedStyle.Render(s) }
