package output

import (
	"github.com/fatih/color"
)

// ColorScheme defines the colors used for different elements in the output
type ColorScheme struct {
	Title        *color.Color
	Border       *color.Color
	Label        *color.Color
	StreamName   *color.Color
	StateEnded   *color.Color
	StateAborted *color.Color
	StateOther   *color.Color
	Bytes        *color.Color
	Rate         *color.Color
	Success      *color.Color
	Error        *color.Color
	Highlight    *color.Color
}

// DefaultColorScheme returns the default color scheme
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Title:        color.New(color.FgWhite, color.Bold),
		Border:       color.New(color.FgCyan),
		Label:        color.New(color.FgYellow),
		StreamName:   color.New(color.FgCyan),
		StateEnded:   color.New(color.FgGreen, color.Bold),
		StateAborted: color.New(color.FgRed, color.Bold),
		StateOther:   color.New(color.FgYellow, color.Bold),
		Bytes:        color.New(color.FgCyan),
		Rate:         color.New(color.FgGreen),
		Success:      color.New(color.FgGreen),
		Error:        color.New(color.FgRed),
		Highlight:    color.New(color.FgMagenta, color.Bold),
	}
}

// NoColorScheme returns a color scheme with all colors disabled
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()

	// Disable all colors
	scheme.Title.DisableColor()
	scheme.Border.DisableColor()
	scheme.Label.DisableColor()
	scheme.StreamName.DisableColor()
	scheme.StateEnded.DisableColor()
	scheme.StateAborted.DisableColor()
	scheme.StateOther.DisableColor()
	scheme.Bytes.DisableColor()
	scheme.Rate.DisableColor()
	scheme.Success.DisableColor()
	scheme.Error.DisableColor()
	scheme.Highlight.DisableColor()

	return scheme
}

// SuccessIcon returns a checkmark symbol with appropriate color
func SuccessIcon(noColor bool) string {
	if noColor {
		return "✓"
	}
	return color.New(color.FgGreen).Sprint("✓")
}

// ErrorIcon returns an X symbol with appropriate color
func ErrorIcon(noColor bool) string {
	if noColor {
		return "✗"
	}
	return color.New(color.FgRed).Sprint("✗")
}

// InfoIcon returns an info symbol with appropriate color
func InfoIcon(noColor bool) string {
	if noColor {
		return "ℹ"
	}
	return color.New(color.FgBlue).Sprint("ℹ")
}

// WarningIcon returns a warning symbol with appropriate color
func WarningIcon(noColor bool) string {
	if noColor {
		return "⚠"
	}
	return color.New(color.FgYellow).Sprint("⚠")
}
