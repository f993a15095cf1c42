// Package cli provides terminal UI styling for the interactive client.
package cli

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme defines the color scheme for terminal output.
type Theme struct {
	Primary lipgloss.Color // Main accent color
	Dim     lipgloss.Color // Dimmed/help text color
	Warn    lipgloss.Color // Extracted-signal highlight
	Info    lipgloss.Color // Action-hint highlight
	Error   lipgloss.Color // Failure text
}

// DefaultTheme is the default bright green theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
	Warn:    lipgloss.Color("#d29922"),
	Info:    lipgloss.Color("#58a6ff"),
	Error:   lipgloss.Color("#f85149"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Prompt     lipgloss.Style
	Label      lipgloss.Style
	Reflection lipgloss.Style
	Signal     lipgloss.Style
	Hint       lipgloss.Style
	Error      lipgloss.Style
	Help       lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Prompt:     lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Label:      lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Reflection: lipgloss.NewStyle().Italic(true).Foreground(t.Dim),
		Signal:     lipgloss.NewStyle().Foreground(t.Warn),
		Hint:       lipgloss.NewStyle().Foreground(t.Info),
		Error:      lipgloss.NewStyle().Foreground(t.Error),
		Help:       lipgloss.NewStyle().Foreground(t.Dim),
	}
}
