// Package main is the entry point for the Red de Aforos dashboard server
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	assetfs "github.com/consorcio-sanramon/aforo-live/fs"
	"github.com/consorcio-sanramon/aforo-live/geo"
	"github.com/consorcio-sanramon/aforo-live/kobo"
	"github.com/consorcio-sanramon/aforo-live/logger"
	"github.com/consorcio-sanramon/aforo-live/metrics"
	"github.com/consorcio-sanramon/aforo-live/server"
	"github.com/consorcio-sanramon/aforo-live/store"
	"github.com/consorcio-sanramon/aforo-live/ui"
)

const (
	defaultReadingsURL = "https://kf.kobotoolbox.org/api/v2/assets/adRKxesyy7hBQNQbNVCtdt/data.json"
	defaultStationsURL = "https://kf.kobotoolbox.org/api/v2/assets/and5RtS5yp74muGFDddySr/data.json"
	defaultSecretsFile = ".streamlit/secrets.toml"
	defaultCanalsPath  = "canales.geojson"
	defaultParcelsPath = "catastro.geojson"
	defaultFetchTimout = 15 * time.Second
)

type Config struct {
	Port         string
	Token        string
	TokenSource  string
	ReadingsURL  string
	StationsURL  string
	CanalsPath   string
	ParcelsPath  string
	CacheTTL     time.Duration
	ErrorTTL     time.Duration
	FetchTimeout time.Duration
	DevMode      bool
	ErrorLogDir  string
}

func loadConfig() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}

	token, source := resolveToken(envOr("AFORO_SECRETS_FILE", defaultSecretsFile))

	return Config{
		Port:         port,
		Token:        token,
		TokenSource:  source,
		ReadingsURL:  envOr("AFORO_READINGS_URL", defaultReadingsURL),
		StationsURL:  envOr("AFORO_STATIONS_URL", defaultStationsURL),
		CanalsPath:   envOr("AFORO_CANALES_PATH", defaultCanalsPath),
		ParcelsPath:  envOr("AFORO_CATASTRO_PATH", defaultParcelsPath),
		CacheTTL:     durationEnv("CACHE_TTL", store.DefaultTTL),
		ErrorTTL:     durationEnv("CACHE_ERROR_TTL", store.DefaultErrorTTL),
		FetchTimeout: durationEnv("FETCH_TIMEOUT", defaultFetchTimout),
		DevMode:      isDevMode(),
		ErrorLogDir:  os.Getenv("ERROR_LOG_DIR"),
	}
}

func isDevMode() bool {
	return os.Getenv("DEV_MODE") == "1" || os.Getenv("DEV_MODE") == "true"
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// durationEnv accepts Go durations ("5m") or whole seconds ("300"). Invalid
// or negative values fall back to the default.
func durationEnv(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		return d
	}
	logger.Warn("Ignoring invalid %s=%q, using %v", key, v, fallback)
	return fallback
}

// resolveToken prefers AFORO_TOKEN and falls back to the TOML secrets file.
func resolveToken(secretsFile string) (token, source string) {
	if t := strings.TrimSpace(os.Getenv("AFORO_TOKEN")); t != "" {
		return t, "env"
	}

	t, err := readSecretsToken(secretsFile)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "", ""
	case err != nil:
		logger.Warn("Could not read %s: %v", secretsFile, err)
		return "", ""
	default:
		if t == "" {
			return "", ""
		}
		return t, secretsFile
	}
}

type secrets struct {
	AforoToken string `toml:"AFORO_TOKEN"`
}

func readSecretsToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var s secrets
	if err := toml.Unmarshal(data, &s); err != nil {
		return "", fmt.Errorf("parse %s: %w", path, err)
	}
	return strings.TrimSpace(s.AforoToken), nil
}

// getBaseDir returns the directory containing the binary or working directory in dev mode
func getBaseDir() (string, error) {
	if isDevMode() {
		return os.Getwd()
	}

	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	exeDir := filepath.Dir(exe)

	// Container deployment ships templates next to the binary
	if _, err := os.Stat(filepath.Join(exeDir, "templates")); err == nil {
		return exeDir, nil
	}

	return os.Getwd()
}

// loadFilesystem loads files from disk relative to the base directory
func loadFilesystem(baseDir, subdir string) fs.FS {
	return os.DirFS(filepath.Join(baseDir, subdir))
}

// geometryFS roots the geometry files in one fs.FS. Relative paths resolve
// against baseDir.
func geometryFS(baseDir, canals, parcels string) (fs.FS, string, string) {
	if !filepath.IsAbs(canals) && !filepath.IsAbs(parcels) {
		return os.DirFS(baseDir), filepath.ToSlash(filepath.Clean(canals)), filepath.ToSlash(filepath.Clean(parcels))
	}

	abs := func(p string) string {
		if !filepath.IsAbs(p) {
			p = filepath.Join(baseDir, p)
		}
		return strings.TrimPrefix(filepath.ToSlash(filepath.Clean(p)), "/")
	}
	return os.DirFS("/"), abs(canals), abs(parcels)
}

// initSentry initializes Sentry if DSN is provided and not in dev mode
// Returns true if Sentry was initialized
func initSentry(devMode bool) bool {
	dsn := os.Getenv("SENTRY_DSN")
	if dsn == "" || devMode {
		return false
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      "production",
		Release:          server.Version,
		EnableTracing:    true,
		TracesSampleRate: 1.0,
		AttachStacktrace: true,
	})
	if err != nil {
		logger.Fatal(err, "sentry.Init: %v", err)
	}

	logger.SetSentryCaptureException(func(err error) interface{} {
		return sentry.CaptureException(err)
	})
	logger.SetSentryFlush(func() {
		sentry.Flush(2 * time.Second)
	})

	return true
}

func printHelp() {
	fmt.Println("Red de Aforos Consorcio San Ramón - Las Pircas")
	fmt.Println("")
	fmt.Println("Usage:")
	fmt.Println("  aforo-live         Start the web server (default)")
	fmt.Println("  aforo-live serve   Start the web server")
	fmt.Println("  aforo-live check   Fetch once, print a summary and exit")
	fmt.Println("  aforo-live help    Show this help message")
}

// runCheck fetches and normalizes once. It returns the process exit code:
// non-zero when there is nothing to map.
func runCheck(ctx context.Context, config Config, baseDir string) int {
	client := kobo.NewClient(config.Token, kobo.WithTimeout(config.FetchTimeout))
	if !client.IsConfigured() {
		logger.Warn("AFORO_TOKEN is not set")
	}

	logger.Section("Fetch")
	start := time.Now()
	readings, stations, err := client.FetchBoth(ctx, config.ReadingsURL, config.StationsURL)
	if err != nil {
		logger.FetchSummary{Duration: time.Since(start), Err: err}.Print()
		return 1
	}

	snap, report := store.Normalize(readings, stations, time.Now())
	logger.FetchSummary{
		Duration: time.Since(start),
		Stations: report.Stations,
		Readings: report.Readings,
		Dropped:  report.BadLocation,
	}.Print()
	if report.BadTimestamp > 0 || report.BadFlow > 0 {
		logger.Warn("%d readings without a valid timestamp, %d flows zeroed", report.BadTimestamp, report.BadFlow)
	}

	logger.Section("Geometry")
	geoFS, canals, parcels := geometryFS(baseDir, config.CanalsPath, config.ParcelsPath)
	set := geo.NewSource(geoFS, canals, parcels).Reload()
	for _, l := range []*geo.Layer{set.Canals, set.Parcels} {
		if l != nil {
			logger.Success("%s: %d features", l.Name, l.Len())
		}
	}

	if snap.Empty() {
		logger.Error("No stations with valid coordinates; the dashboard would show the error state")
		return 1
	}
	logger.Success("Dashboard would render %d markers", len(snap.Stations))
	return 0
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("Could not load .env: %v", err)
	}

	devMode := isDevMode()
	sentryEnabled := initSentry(devMode)

	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	config := loadConfig()
	baseDir, err := getBaseDir()
	if err != nil {
		logger.Fatal(err, "failed to get base directory: %v", err)
	}

	switch command {
	case "serve":
	case "check":
		ctx, cancel := context.WithTimeout(context.Background(), 2*config.FetchTimeout)
		code := runCheck(ctx, config, baseDir)
		cancel()
		sentry.Flush(2 * time.Second)
		os.Exit(code)
	case "help", "--help", "-h":
		printHelp()
		return
	default:
		printHelp()
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	staticFS := loadFilesystem(baseDir, "static")
	tmplFS := loadFilesystem(baseDir, "templates")

	hasUI := ui.Initialize(server.Version, server.BuildTime, config.Port, config.CacheTTL)
	if hasUI {
		logger.SetUIMode(true)
		logger.Log = ui.AddLog
	} else {
		logger.PrintBanner(server.Version, server.BuildTime)
	}

	if config.DevMode {
		logger.Info("🔥 DEV MODE: caching disabled, templates and geometry reload on change")
		if !hasUI {
			assetfs.Print("templates", tmplFS)
			assetfs.Print("static", staticFS)
		}
	}

	if err := server.InitErrorLogger(config.ErrorLogDir); err != nil {
		logger.Warn("Incident log disabled: %v", err)
	} else {
		logger.Muted("Incident log: %s", server.GetErrorLogPath())
	}

	client := kobo.NewClient(config.Token, kobo.WithTimeout(config.FetchTimeout))
	if !client.IsConfigured() {
		logger.Warn("AFORO_TOKEN is not set (env or %s); the dashboard will show the error state", defaultSecretsFile)
	} else {
		logger.Muted("Token loaded from %s", config.TokenSource)
	}
	snapshots := store.NewFromClient(client, config.ReadingsURL, config.StationsURL, config.CacheTTL, config.ErrorTTL)

	geoFS, canalsPath, parcelsPath := geometryFS(baseDir, config.CanalsPath, config.ParcelsPath)
	geometry := geo.NewSource(geoFS, canalsPath, parcelsPath)
	layers := geometry.Reload()

	if !hasUI {
		logger.ServerInfo{
			Port:            config.Port,
			CacheTTL:        config.CacheTTL,
			ReadingsAsset:   kobo.AssetID(config.ReadingsURL),
			StationsAsset:   kobo.AssetID(config.StationsURL),
			TokenConfigured: client.IsConfigured(),
			Layers:          layers.Names(),
		}.Print()
	}

	var requestCount int64
	var errorCount int64
	hud := newHUDStats(&requestCount, &errorCount)

	snapshots.SetRefreshCallback(func(result store.FetchResult) {
		summary := logger.FetchSummary{
			Duration: result.Duration,
			Stations: result.Report.Stations,
			Readings: result.Report.Readings,
			Dropped:  result.Report.BadLocation,
			Err:      result.Err,
		}
		summary.Print()
		if result.Err != nil {
			server.LogFetchFailure(result.Duration, result.Err)
		}
		if hasUI {
			ui.UpdateStats(hud.update(result))
		}
	})

	if config.DevMode {
		watchDirs := []string{filepath.Join(baseDir, "templates"), filepath.Join(baseDir, "static")}
		for _, p := range []string{config.CanalsPath, config.ParcelsPath} {
			if !filepath.IsAbs(p) {
				p = filepath.Join(baseDir, p)
			}
			watchDirs = appendUnique(watchDirs, filepath.Dir(p))
		}
		watcher := &assetfs.Watcher{
			Dirs:   watchDirs,
			Ignore: assetfs.DefaultIgnore,
			OnChange: func(paths []string) {
				logger.Info("Changed: %s", strings.Join(paths, ", "))
				geometry.Reload()
			},
		}
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Warn("File watching disabled: %v", err)
			}
		}()
	}

	if hasUI {
		server.LogWriter = ui.AddLog
	}
	server.RequestCounter = &requestCount
	server.ErrorCounter = &errorCount
	app, err := server.Start(server.ServerConfig{
		Store:         snapshots,
		Geometry:      geometry,
		StaticFS:      staticFS,
		TemplateFS:    tmplFS,
		DevMode:       config.DevMode,
		SentryEnabled: sentryEnabled,
	})
	if err != nil {
		logger.Fatal(err)
	}

	logger.Success("Server listening on http://localhost:%s", config.Port)
	if hasUI {
		logger.Info("Press Ctrl+C or 'q' to stop")
		ui.SetReady()
	} else {
		logger.Info("Press Ctrl+C to stop")
	}

	// Warm the cache so the first visitor does not wait on Kobo
	go snapshots.Snapshot(ctx)

	go func() {
		if err := app.Start(":" + config.Port); err != nil && err != http.ErrServerClosed {
			logger.Error(err, "Server error: %v", err)
			sigChan <- syscall.SIGTERM
		}
	}()

	<-sigChan
	cancel()

	logger.Shutdown()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "error during shutdown: %v", err)
	}
	ui.Shutdown()
	_ = server.CloseErrorLogger()

	sentry.Flush(2 * time.Second)

	logger.Success("Goodbye!")
	fmt.Println()
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}

// hudStats turns fetch results and the request counter into HUD stats.
type hudStats struct {
	mu               sync.Mutex
	requests         *int64
	failures         *int64
	fetches          int
	lastRequestCount int64
	lastCheckTime    time.Time
}

func newHUDStats(requests, failures *int64) *hudStats {
	return &hudStats{requests: requests, failures: failures, lastCheckTime: time.Now()}
}

func (h *hudStats) update(result store.FetchResult) ui.Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.fetches++

	current := atomic.LoadInt64(h.requests)
	failed := atomic.LoadInt64(h.failures)
	elapsed := time.Since(h.lastCheckTime).Seconds()
	reqPerSec := 0.0
	if elapsed > 0 {
		reqPerSec = float64(current-h.lastRequestCount) / elapsed
	}
	h.lastRequestCount = current
	h.lastCheckTime = time.Now()

	stats := ui.Stats{
		Stations:       len(result.Snapshot.Stations),
		Readings:       len(result.Snapshot.Readings),
		Dropped:        result.Report.BadLocation,
		LastFetchTime:  result.Snapshot.FetchedAt,
		FetchDuration:  result.Duration,
		TotalFetches:   h.fetches,
		RequestsTotal:  int(current),
		RequestsPerSec: reqPerSec,
		ErrorRate:      metrics.CalculateErrorRate(float64(current), float64(failed), 0, elapsed).ErrorRate,
		MemoryBytes:    metrics.RecordMemoryUsage(),
		GoroutineCount: runtime.NumGoroutine(),
	}
	if result.Err != nil {
		stats.FetchError = result.Err.Error()
	}
	return stats
}
