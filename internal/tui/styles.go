package tui

import "github.com/charmbracelet/lipgloss"

var (
	// HeaderStyle styles the column header row.
	HeaderStyle = lipgloss.NewStyle().Bold(true)

	// TitleStyle styles the line above a progress table.
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("5"))

	// DefaultStyle marks the default toolchain in listings.
	DefaultStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))

	statusStyles = map[string]lipgloss.Style{
		StatusDone:    lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		"ok":          lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		StatusActive:  lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		StatusSkipped: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		"missing":     lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		StatusFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		"broken":      lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		StatusPending: lipgloss.NewStyle().Faint(true),
	}
)

// StatusStyle returns the lipgloss style for the given status string.
func StatusStyle(status string) lipgloss.Style {
	if s, ok := statusStyles[status]; ok {
		return s
	}
	return lipgloss.NewStyle()
}
