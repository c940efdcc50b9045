// Package tui provides the Bubble Tea chain-inspection view for
// flowstatectl: a small, consistent color palette and style vocabulary,
// opt-in via --tui and read-only.
package tui

import "github.com/charmbracelet/lipgloss"

// Color palette.
var (
	primaryColor   = lipgloss.Color("#7C3AED") // Purple
	successColor   = lipgloss.Color("#10B981") // Green
	warningColor   = lipgloss.Color("#F59E0B") // Amber
	mutedColor     = lipgloss.Color("#6B7280") // Gray
	highlightColor = lipgloss.Color("#3B82F6") // Blue
)

// Styles for TUI components.
var (
	// TitleStyle for headers and titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	// LabelStyle for field labels.
	LabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(16)

	// ValueStyle for field values.
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	// SuccessStyle marks a committed tail value.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(successColor)

	// WarningStyle marks an uncommitted (reserved, not yet written) tail.
	WarningStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	// RowStyle highlights the currently selected row.
	RowStyle = lipgloss.NewStyle().
			Foreground(highlightColor)

	// BoxStyle for bordered containers.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(1, 2)

	// HelpStyle for help text.
	HelpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)
)

// CommitStyle returns SuccessStyle when committed, WarningStyle otherwise.
func CommitStyle(committed bool) lipgloss.Style {
	if committed {
		return SuccessStyle
	}
	return WarningStyle
}
