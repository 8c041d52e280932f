package ui

import "github.com/charmbracelet/lipgloss"

var (
	accentColor = lipgloss.Color("62")
	mutedColor  = lipgloss.Color("240")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	hintStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	accentStyle = lipgloss.NewStyle().Foreground(accentColor)

	buttonStyle         = lipgloss.NewStyle().Padding(0, 2).Border(lipgloss.RoundedBorder()).BorderForeground(accentColor)
	disabledButtonStyle = buttonStyle.BorderForeground(mutedColor).Foreground(mutedColor)
)
