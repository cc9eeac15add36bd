package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Color palette using ANSI color codes for terminal compatibility.

// Semantic colors for status indication
const (
	ColorSuccess lipgloss.Color = "2" // Green
	ColorError   lipgloss.Color = "1" // Red
	ColorWarning lipgloss.Color = "3" // Yellow
	ColorInfo    lipgloss.Color = "6" // Cyan
)

// Text colors for content hierarchy
const (
	ColorPrimary   lipgloss.Color = "7" // White/default
	ColorSecondary lipgloss.Color = "4" // Blue
	ColorMuted     lipgloss.Color = "8" // Gray (bright black)
)

// DisableColors switches all rendering to plain ASCII. Used for --no-color,
// NO_COLOR and output that isn't a terminal.
func DisableColors() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// ColorsEnabled reports whether styles currently emit ANSI sequences.
func ColorsEnabled() bool {
	return lipgloss.ColorProfile() != termenv.Ascii
}

func fg(c lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(c)
}

// SuccessStyle renders reachable hosts and zero exit codes.
func SuccessStyle() lipgloss.Style { return fg(ColorSuccess) }

// ErrorStyle renders failures.
func ErrorStyle() lipgloss.Style { return fg(ColorError) }

// WarningStyle renders state changes and commands without an exit status.
func WarningStyle() lipgloss.Style { return fg(ColorWarning) }

// MutedStyle renders timing and secondary details.
func MutedStyle() lipgloss.Style { return fg(ColorMuted) }
