package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/consorcio-sanramon/aforo-live/geo"
	"github.com/consorcio-sanramon/aforo-live/logger"
	"github.com/consorcio-sanramon/aforo-live/store"
	"github.com/consorcio-sanramon/aforo-live/style"
)

var (
	// LogWriter receives request log lines. nil means the charm HTTP logger.
	LogWriter func(string)
	// RequestCounter and ErrorCounter feed the HUD when set.
	RequestCounter *int64
	ErrorCounter   *int64
)

// ServerConfig is everything Start needs.
type ServerConfig struct {
	Store         *store.Store
	Geometry      *geo.Source
	StaticFS      fs.FS
	TemplateFS    fs.FS
	DevMode       bool
	SentryEnabled bool
}

// TemplateRenderer renders html/template views for echo. In dev mode the
// templates are re-parsed on every render.
type TemplateRenderer struct {
	fsys    fs.FS
	devMode bool

	mu        sync.RWMutex
	templates *template.Template
}

var templateFuncs = template.FuncMap{
	"json": func(v interface{}) (template.JS, error) {
		data, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return template.JS(data), nil
	},
	"since": func(t time.Time) string {
		return time.Since(t).Round(time.Second).String()
	},
}

// NewTemplateRenderer parses every *.tmpl file in fsys.
func NewTemplateRenderer(fsys fs.FS, devMode bool) (*TemplateRenderer, error) {
	r := &TemplateRenderer{fsys: fsys, devMode: devMode}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-parses the templates. The previous set stays live on error.
func (t *TemplateRenderer) Reload() error {
	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(t.fsys, "*.tmpl")
	if err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}
	t.mu.Lock()
	t.templates = tmpl
	t.mu.Unlock()
	return nil
}

func (t *TemplateRenderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	if t.devMode {
		if err := t.Reload(); err != nil {
			logger.Error(err, "template reload failed: %v", err)
		}
	}
	t.mu.RLock()
	tmpl := t.templates
	t.mu.RUnlock()
	return tmpl.ExecuteTemplate(w, name, data)
}

func Start(config ServerConfig) (*echo.Echo, error) {
	if config.Store == nil {
		return nil, errors.New("server: Store is required")
	}
	if config.Geometry == nil {
		return nil, errors.New("server: Geometry is required")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	renderer, err := NewTemplateRenderer(config.TemplateFS, config.DevMode)
	if err != nil {
		return nil, err
	}
	e.Renderer = renderer

	e.Use(middleware.Recover())
	if config.SentryEnabled {
		e.Use(sentryecho.New(sentryecho.Options{Repanic: true}))
	}
	e.Use(versionHeader)
	e.Use(MetricsMiddleware())
	e.Use(requestLogger())

	e.HTTPErrorHandler = errorHandler

	dashboard := DashboardRoute(config.Store, config.Geometry, config.DevMode)
	e.GET("/", dashboard)
	e.HEAD("/", dashboard)
	e.GET("/map.json", dashboard)
	e.HEAD("/map.json", dashboard)

	e.GET("/healthcheck", HealthCheckRoute(config.Store))

	internal := e.Group("/_", noStore)
	internal.GET("/version", VersionRoute(config.Store, config.Geometry))
	internal.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.StaticFS("/s", config.StaticFS)

	return e, nil
}

func versionHeader(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set("X-Version", GetVersionString())
		return next(c)
	}
}

func noStore(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		h := c.Response().Header()
		h.Set("Cache-Control", "no-store, no-cache, must-revalidate, private, max-age=0")
		h.Set("Pragma", "no-cache")
		h.Set("Expires", "0")
		return next(c)
	}
}

// requestLogger logs every request through the charm HTTP logger, or the HUD
// when LogWriter is set, and appends unexpected server errors to the
// incident log.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if RequestCounter != nil {
				atomic.AddInt64(RequestCounter, 1)
			}
			if v.Status >= http.StatusInternalServerError {
				if ErrorCounter != nil {
					atomic.AddInt64(ErrorCounter, 1)
				}
				if expected, _ := c.Get(expectedUnavailable).(bool); !expected {
					LogError(v.Status, v.Method, c.Path(), v.URI, v.RemoteIP, v.UserAgent, v.Latency, v.Error)
				}
			}

			if LogWriter != nil {
				LogWriter(fmt.Sprintf("  %s %s %s %s",
					style.Method.Render(v.Method),
					style.URI.Render(v.URI),
					style.Status(v.Status).Render(strconv.Itoa(v.Status)),
					style.Duration.Render(v.Latency.Round(time.Microsecond).String())))
				return nil
			}
			logger.HTTPLogger().Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency.Round(time.Microsecond),
			)
			return nil
		},
	})
}

func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		message = fmt.Sprint(he.Message)
	}
	if code >= http.StatusInternalServerError {
		logger.Error(err, "request %s failed: %v", c.Request().URL.Path, err)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	if strings.HasSuffix(c.Request().URL.Path, ".json") || strings.HasPrefix(c.Request().URL.Path, "/_/") {
		_ = c.JSON(code, map[string]string{"error": message})
		return
	}
	if rerr := c.Render(code, "error.html.tmpl", ErrorPageData{Title: Title, Message: message, Status: code}); rerr != nil {
		_ = c.String(code, message)
	}
}
