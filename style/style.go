// Package style provides lipgloss styles for terminal UI rendering
package style

import "github.com/charmbracelet/lipgloss"

var (
	// Section is a style for section headers
	Section = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#5F9EA0")).
		Bold(true)

	// File is a style for file names
	File = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#98FB98"))

	// Dir is a style for directory names
	Dir = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#DDA0DD")).
		Bold(true)

	// Info is a style for secondary details such as file sizes
	Info = lipgloss.NewStyle().
		Italic(true).
		Foreground(lipgloss.Color("#FFD700"))

	// Method is a style for HTTP method names
	Method = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#00ADD8"))

	// URI is a style for URI paths
	URI = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#98FB98"))

	// StatusSuccess is a style for 2xx and 3xx status codes
	StatusSuccess = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#2ECC71"))

	// StatusWarn is a style for 4xx status codes
	StatusWarn = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFA500"))

	// StatusError is a style for 5xx status codes
	StatusError = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF0000"))

	// Duration is a style for duration values
	Duration = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.Color("#FFA500"))
)

// Status picks the style for an HTTP status code.
func Status(code int) lipgloss.Style {
	switch {
	case code >= 500:
		return StatusError
	case code >= 400:
		return StatusWarn
	default:
		return StatusSuccess
	}
}
