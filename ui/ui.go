// Package ui draws the terminal HUD: the current snapshot, the last fetch and
// request traffic above a scrolling log.
package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

var (
	river = lipgloss.Color("#3B82F6")
	teal  = lipgloss.Color("#2DD4BF")
	fresh = lipgloss.Color("#2ECC71")
	amber = lipgloss.Color("#E67E22")
	alarm = lipgloss.Color("#FF5733")
	slate = lipgloss.Color("#64748B")
)

var (
	frameStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(river).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(river)
	valueStyle = lipgloss.NewStyle().Foreground(teal)
	goodStyle  = lipgloss.NewStyle().Foreground(fresh)
	warnStyle  = lipgloss.NewStyle().Foreground(amber)
	badStyle   = lipgloss.NewStyle().Foreground(alarm)
	dimStyle   = lipgloss.NewStyle().Foreground(slate)
	keysStyle  = dimStyle.Italic(true).PaddingLeft(1)
)

// Stats is what the HUD shows about the current snapshot and the process.
type Stats struct {
	Stations       int
	Readings       int
	Dropped        int
	LastFetchTime  time.Time
	FetchDuration  time.Duration
	FetchError     string
	TotalFetches   int
	RequestsTotal  int
	RequestsPerSec float64
	ErrorRate      float64 // percent of requests answered with >= 500
	MemoryBytes    uint64
	GoroutineCount int
}

const (
	logCapacity = 1000
	hudLines    = 12 // frame, rule and key help around the log viewport
)

// logRing keeps the newest logCapacity lines.
type logRing struct {
	lines []string
}

func (r *logRing) push(line string) {
	if len(r.lines) == logCapacity {
		copy(r.lines, r.lines[1:])
		r.lines = r.lines[:logCapacity-1]
	}
	r.lines = append(r.lines, line)
}

func (r *logRing) String() string {
	return strings.Join(r.lines, "\n")
}

type hud struct {
	log      logRing
	logView  viewport.Model
	spin     spinner.Model
	stats    Stats
	version  string
	port     string
	cacheTTL time.Duration
	started  time.Time
	sized    bool
	width    int
}

type (
	logMsg   string
	statsMsg Stats
	readyMsg struct{}
	tickMsg  struct{}
)

var (
	program  *tea.Program
	enabled  bool
	stopTick context.CancelFunc
	stopOnce sync.Once
)

// IsTTY reports whether stdout is a terminal
func IsTTY() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Initialize starts the HUD when stdout is a terminal and reports whether it did.
func Initialize(version, buildTime, port string, cacheTTL time.Duration) bool {
	if !IsTTY() {
		return false
	}

	h := &hud{
		spin:     spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(titleStyle)),
		version:  version,
		port:     port,
		cacheTTL: cacheTTL,
		started:  time.Now(),
	}
	program = tea.NewProgram(h, tea.WithAltScreen())
	enabled = true

	go func() { _, _ = program.Run() }()

	var ctx context.Context
	ctx, stopTick = context.WithCancel(context.Background())
	go tick(ctx)

	return true
}

// tick redraws once a second so uptime and "last fetch" ages stay current.
func tick(ctx context.Context) {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			send(tickMsg{})
		}
	}
}

func send(msg tea.Msg) {
	if enabled && program != nil {
		program.Send(msg)
	}
}

// AddLog appends a line to the scrolling log, or prints it without a HUD
func AddLog(msg string) {
	if !enabled {
		fmt.Println(msg)
		return
	}
	send(logMsg(msg))
}

// UpdateStats replaces the numbers shown in the HUD
func UpdateStats(stats Stats) {
	send(statsMsg(stats))
}

// SetReady redraws once the server is listening
func SetReady() {
	send(readyMsg{})
}

// Shutdown stops the HUD and restores the terminal
func Shutdown() {
	if !enabled {
		return
	}
	stopOnce.Do(func() {
		if stopTick != nil {
			stopTick()
		}
		if program != nil {
			program.Quit()
			program.Wait()
		}
		program = nil
	})
}

func (h *hud) Init() tea.Cmd {
	return h.spin.Tick
}

func (h *hud) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return h, tea.Quit
		}

	case tea.WindowSizeMsg:
		h.width = msg.Width
		if !h.sized {
			h.logView = viewport.New(msg.Width, msg.Height-hudLines)
			h.sized = true
		} else {
			h.logView.Width, h.logView.Height = msg.Width, msg.Height-hudLines
		}
		h.refreshLog()

	case logMsg:
		h.log.push(string(msg))
		h.refreshLog()

	case statsMsg:
		h.stats = Stats(msg)

	case spinner.TickMsg:
		if h.sized {
			return h, nil
		}
		var cmd tea.Cmd
		h.spin, cmd = h.spin.Update(msg)
		return h, cmd
	}

	var cmd tea.Cmd
	h.logView, cmd = h.logView.Update(msg)
	return h, cmd
}

func (h *hud) refreshLog() {
	if !h.sized {
		return
	}
	h.logView.SetContent(h.log.String())
	h.logView.GotoBottom()
}

func (h *hud) View() string {
	if !h.sized {
		return lipgloss.NewStyle().Padding(2).Render(h.spin.View() + titleStyle.Render(" Iniciando Red de Aforos..."))
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		frameStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
			h.headerLine(),
			h.snapshotLine(),
			h.fetchLine(),
			h.trafficLine(),
		)),
		dimStyle.Render(strings.Repeat("─", h.width)),
		h.logView.View(),
		h.keysLine(),
	)
}

func (h *hud) headerLine() string {
	return fmt.Sprintf("%s %s  %s  %s",
		titleStyle.Render("💧 Red de Aforos"),
		dimStyle.Render("v"+h.version),
		dimStyle.Render("up "+uptime(time.Since(h.started))),
		valueStyle.Render("http://localhost:"+h.port))
}

func (h *hud) snapshotLine() string {
	return fmt.Sprintf("%s %s estaciones  %s %s aforos  %s  %s",
		dimStyle.Render("📍"), goodStyle.Render(humanize.Comma(int64(h.stats.Stations))),
		dimStyle.Render("💧"), goodStyle.Render(humanize.Comma(int64(h.stats.Readings))),
		dimStyle.Render(fmt.Sprintf("%d fetches", h.stats.TotalFetches)),
		dimStyle.Render("ttl "+h.cacheTTL.String()))
}

func (h *hud) fetchLine() string {
	if h.stats.LastFetchTime.IsZero() {
		return dimStyle.Render("⏳ no fetch yet")
	}

	head := fmt.Sprintf("%s %s in %s",
		dimStyle.Render("🔄"),
		dimStyle.Render(humanize.Time(h.stats.LastFetchTime)),
		dimStyle.Render(h.stats.FetchDuration.Round(time.Millisecond).String()))

	switch {
	case h.stats.FetchError != "":
		return head + "  " + badStyle.Render("✗ "+h.stats.FetchError)
	case h.stats.Dropped > 0:
		return head + "  " + warnStyle.Render(fmt.Sprintf("%d stations dropped", h.stats.Dropped))
	default:
		return head + "  " + goodStyle.Render("✓ 0 dropped")
	}
}

func (h *hud) trafficLine() string {
	s := h.stats
	if s.RequestsTotal == 0 {
		return dimStyle.Render("📊 no requests yet")
	}

	line := fmt.Sprintf("%s %s req  %s  %s %s  %s %s",
		dimStyle.Render("📊"), valueStyle.Render(humanize.Comma(int64(s.RequestsTotal))),
		threshold(s.RequestsPerSec, 50, 100).Render(fmt.Sprintf("%.1f/s", s.RequestsPerSec)),
		dimStyle.Render("mem"), threshold(float64(s.MemoryBytes), 500<<20, 2<<30).Render(humanize.IBytes(s.MemoryBytes)),
		dimStyle.Render("goroutines"), threshold(float64(s.GoroutineCount), 500, 1000).Render(fmt.Sprint(s.GoroutineCount)))
	if s.ErrorRate > 0 {
		line += "  " + badStyle.Render(fmt.Sprintf("%.1f%% 5xx", s.ErrorRate))
	}
	return line
}

func (h *hud) keysLine() string {
	hint := "↑↓ scroll • q quit"
	if h.logView.TotalLineCount() > h.logView.Height {
		hint = fmt.Sprintf("↑↓ scroll (%.0f%%) • q quit", h.logView.ScrollPercent()*100)
	}
	return keysStyle.Render(hint)
}

// threshold picks a style for v: good below warn, warning below crit, bad above.
func threshold(v, warn, crit float64) lipgloss.Style {
	switch {
	case v > crit:
		return badStyle
	case v > warn:
		return warnStyle
	default:
		return goodStyle
	}
}

func uptime(d time.Duration) string {
	return d.Round(time.Second).String()
}
