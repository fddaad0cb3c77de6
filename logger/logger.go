// Package logger provides structured logging with styled output
package logger

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
)

var useUI bool

// SetUIMode enables UI mode (logs go to TUI instead of stdout)
func SetUIMode(enabled bool) {
	useUI = enabled
}

var (
	// Box drawing characters for clean borders
	horizontalLine = "─"
	verticalLine   = "│"
	topLeft        = "┌"
	topRight       = "┐"
	bottomLeft     = "└"
	bottomRight    = "┘"
	leftT          = "├"
	rightT         = "┤"

	// Charm color palette - professional and cohesive
	charmPink   = lipgloss.Color("#FF69B4") // Charm's signature pink
	charmCyan   = lipgloss.Color("#42D9C8") // Bright cyan
	charmGreen  = lipgloss.Color("#73F59F") // Success green
	charmYellow = lipgloss.Color("#FFE66D") // Warning yellow
	charmRed    = lipgloss.Color("#FF6B9D") // Error pink-red
	charmPurple = lipgloss.Color("#B794F6") // Accent purple
	charmGray   = lipgloss.Color("#626262") // Muted gray
	charmWhite  = lipgloss.Color("#ECEFF4") // Clean white

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(charmPink).
			MarginTop(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(charmCyan)

	infoStyle = lipgloss.NewStyle().
			Foreground(charmWhite)

	warnStyle = lipgloss.NewStyle().
			Foreground(charmYellow)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(charmRed)

	successStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(charmGreen)

	mutedStyle = lipgloss.NewStyle().
			Foreground(charmGray)

	keyStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(charmPurple)

	valueStyle = lipgloss.NewStyle().
			Foreground(charmCyan)

	borderStyle = lipgloss.NewStyle().
			Foreground(charmPink)

	// Structured logger for HTTP requests
	httpLogger *log.Logger

	// Structured logger for data-quality events
	dataLogger *log.Logger
)

func init() {
	// Initialize HTTP logger with Charm's log
	httpLogger = log.NewWithOptions(os.Stdout, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
		Prefix:          "🌐 ",
	})
	httpLogger.SetLevel(log.InfoLevel)
	// Use a more subtle style for HTTP logs
	styles := log.DefaultStyles()
	styles.Levels[log.InfoLevel] = lipgloss.NewStyle().
		Foreground(charmGray)
	styles.Keys["method"] = lipgloss.NewStyle().
		Foreground(charmCyan).
		Bold(true)
	styles.Values["method"] = lipgloss.NewStyle().
		Foreground(charmCyan)
	httpLogger.SetStyles(styles)

	dataLogger = log.NewWithOptions(uiWriter{}, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
		Prefix:          "💧 ",
	})
	dataLogger.SetLevel(log.InfoLevel)
}

// uiWriter routes structured log lines through logOrPrint so they land in the
// HUD when it is running
type uiWriter struct{}

func (uiWriter) Write(p []byte) (int, error) {
	logOrPrint(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// PrintBanner displays the startup banner
func PrintBanner(version, buildTime string) {
	width := 62

	// Create gradient effect with box drawing
	topBorder := borderStyle.Render(
		topLeft + strings.Repeat(horizontalLine, width-2) + topRight,
	)
	fmt.Println(topBorder)

	// Title with better centering
	title := "💧  Red de Aforos Consorcio San Ramón"
	titleRendered := titleStyle.Render(title)
	titleWidth := lipgloss.Width(title)
	leftPad := (width - titleWidth - 2) / 2
	rightPad := width - titleWidth - leftPad - 2

	fmt.Print(borderStyle.Render(verticalLine))
	fmt.Print(strings.Repeat(" ", leftPad))
	fmt.Print(titleRendered)
	fmt.Print(strings.Repeat(" ", rightPad))
	fmt.Println(borderStyle.Render(verticalLine))

	// Separator
	fmt.Println(borderStyle.Render(leftT + strings.Repeat(horizontalLine, width-2) + rightT))

	// Info lines with better formatting
	printInfoLine("Version", version, width)
	if buildTime != "" {
		printInfoLine("Built", buildTime, width)
	}
	printInfoLine("Sistemas", "San Ramón - Las Pircas, Santos Lugares, Las Ceibas, El Mollar, El Pedregal", width)

	// Bottom border
	fmt.Println(borderStyle.Render(bottomLeft + strings.Repeat(horizontalLine, width-2) + bottomRight))
	fmt.Println()
}

func printInfoLine(key, value string, width int) {
	keyRendered := keyStyle.Render(key + ":")
	valueRendered := valueStyle.Render(value)
	// Account for ANSI codes in width calculation
	lineWidth := 2 + lipgloss.Width(key+":") + 1 + lipgloss.Width(value)
	padding := width - lineWidth - 2
	if padding < 0 {
		padding = 0
	}
	fmt.Print(borderStyle.Render(verticalLine))
	fmt.Print("  ")
	fmt.Print(keyRendered)
	fmt.Print(" ")
	fmt.Print(valueRendered)
	fmt.Print(strings.Repeat(" ", padding))
	fmt.Println(borderStyle.Render(verticalLine))
}

// Section prints a section header with a decorative divider
func Section(title string) {
	fmt.Println()
	divider := mutedStyle.Render("━━━━")
	header := headerStyle.Render("▸ " + title)
	fmt.Printf("%s %s\n", divider, header)
}

// Log is the interface for sending logs (will be set by main if using UI)
var Log func(string)

func logOrPrint(msg string) {
	if Log != nil && useUI {
		Log(msg)
	} else {
		fmt.Println(msg)
	}
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logOrPrint(infoStyle.Render("  " + msg))
}

// Success prints a success message
func Success(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logOrPrint(successStyle.Render("  ✓ " + msg))
}

// Warn prints a warning message
func Warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logOrPrint(warnStyle.Render("  ⚠ " + msg))
}

// Error logs an error message. If the first argument is an error, it will be sent to Sentry.
// Usage:
//   logger.Error("something went wrong")
//   logger.Error(err)  // logs error and sends to Sentry
//   logger.Error(err, "failed to load: %v", err)  // logs formatted message and sends to Sentry
func Error(args ...interface{}) {
	msg, err := splitArgs(args)

	logOrPrint(errorStyle.Render("  ✗ " + msg))

	if err != nil && captureException != nil {
		captureException(err)
	}
}

// Fatal logs an error message and exits the program. If an error is provided, it will be sent to Sentry.
// Usage:
//   logger.Fatal("critical error occurred")
//   logger.Fatal(err, "failed to start: %v", err)
func Fatal(args ...interface{}) {
	msg, err := splitArgs(args)

	logOrPrint(errorStyle.Render("  ✗ " + msg))

	if err != nil && captureException != nil {
		captureException(err)
	}

	if flushSentry != nil {
		flushSentry()
	}
	exit(1)
}

// exit is swapped in tests
var exit = os.Exit

// splitArgs pulls an optional leading error off args and formats the rest
func splitArgs(args []interface{}) (string, error) {
	if len(args) == 0 {
		return "", nil
	}

	if err, ok := args[0].(error); ok {
		if len(args) > 1 {
			if format, ok := args[1].(string); ok {
				return fmt.Sprintf(format, args[2:]...), err
			}
		}
		return err.Error(), err
	}

	if format, ok := args[0].(string); ok {
		if len(args) > 1 {
			return fmt.Sprintf(format, args[1:]...), nil
		}
		return format, nil
	}
	return fmt.Sprintf("%v", args[0]), nil
}

// captureException is a function pointer that can be set to capture exceptions
// This allows us to avoid importing sentry-go in the logger package
// The function signature matches sentry.CaptureException which returns *sentry.EventID
var captureException func(error) interface{}

// SetSentryCaptureException sets the function to use for capturing exceptions to Sentry
func SetSentryCaptureException(fn func(error) interface{}) {
	captureException = fn
}

var flushSentry func()

// SetSentryFlush sets the function Fatal calls before exiting so queued
// events are delivered
func SetSentryFlush(fn func()) {
	flushSentry = fn
}

// Muted prints a muted/debug message
func Muted(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logOrPrint(mutedStyle.Render("  " + msg))
}

// FetchSummary describes one fetch cycle against the form server
type FetchSummary struct {
	Duration time.Duration
	Stations int
	Readings int
	Dropped  int
	Err      error
}

// Print displays a formatted summary of the fetch cycle
func (f FetchSummary) Print() {
	duration := mutedStyle.Render(fmt.Sprintf("(%v)", f.Duration.Round(time.Millisecond)))

	if f.Err != nil {
		logOrPrint(fmt.Sprintf("  %s Fetch failed %s • %s",
			errorStyle.Render("✗"), duration, errorStyle.Render(f.Err.Error())))
		return
	}

	icon := successStyle.Render("✓")
	if f.Dropped > 0 || f.Stations == 0 {
		icon = warnStyle.Render("⚠")
	}

	summary := fmt.Sprintf("  %s Fetch complete %s • %s stations • %s readings",
		icon, duration,
		successStyle.Render(humanize.Comma(int64(f.Stations))),
		valueStyle.Render(humanize.Comma(int64(f.Readings))))

	if f.Dropped > 0 {
		summary += fmt.Sprintf(" • %s dropped", warnStyle.Render(humanize.Comma(int64(f.Dropped))))
	}

	logOrPrint(summary)
}

// ServerInfo prints server startup information
type ServerInfo struct {
	Port            string
	CacheTTL        time.Duration
	ReadingsAsset   string
	StationsAsset   string
	TokenConfigured bool
	Layers          []string
}

// Print displays formatted server configuration information
func (s ServerInfo) Print() {
	Section("Configuration")

	token := successStyle.Render("configured")
	if !s.TokenConfigured {
		token = warnStyle.Render("missing")
	}

	layers := "none"
	if len(s.Layers) > 0 {
		layers = strings.Join(s.Layers, ", ")
	}

	rows := []struct{ icon, key, value string }{
		{"🔌", "Port:", valueStyle.Render(s.Port)},
		{"⏱", "Cache:", valueStyle.Render(s.CacheTTL.String())},
		{"💧", "Aforos:", valueStyle.Render(s.ReadingsAsset)},
		{"📍", "Mapa:", valueStyle.Render(s.StationsAsset)},
		{"🔑", "Token:", token},
		{"🗺", "Layers:", valueStyle.Render(layers)},
	}
	for _, r := range rows {
		fmt.Printf("  %s %s %s\n", mutedStyle.Render(r.icon), keyStyle.Render(r.key), r.value)
	}
}

// Shutdown prints shutdown message
func Shutdown() {
	fmt.Println()
	shutdownMsg := lipgloss.NewStyle().
		Foreground(charmYellow).
		Bold(true).
		Render("  ⏸  Shutting down gracefully...")
	fmt.Println(shutdownMsg)
}

// HTTPLogger returns the configured HTTP logger for middleware
func HTTPLogger() *log.Logger {
	return httpLogger
}

// Data returns the structured logger for fetch and normalization events
func Data() *log.Logger {
	return dataLogger
}
