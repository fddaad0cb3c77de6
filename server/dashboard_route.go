package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/consorcio-sanramon/aforo-live/geo"
	"github.com/consorcio-sanramon/aforo-live/mapview"
	"github.com/consorcio-sanramon/aforo-live/metrics"
	"github.com/consorcio-sanramon/aforo-live/store"
)

const (
	// Title is the page banner.
	Title = "Red de Aforos Consorcio San Ramón - Las Pircas"
	// UnavailableMessage is shown in place of the map when there are no stations.
	UnavailableMessage = "No se pudieron cargar los datos."
)

// DashboardPageData feeds dashboard.html.tmpl.
type DashboardPageData struct {
	Title     string
	Map       *mapview.Map
	Stations  int
	Readings  int
	FetchedAt time.Time
	Layers    []string
}

// ErrorPageData feeds error.html.tmpl.
type ErrorPageData struct {
	Title   string
	Message string
	Status  int
}

// DashboardRoute serves the map page at "/" and its view model at "/map.json".
// With no stations it serves the error state with 503.
func DashboardRoute(s *store.Store, geometry *geo.Source, devMode bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		result := s.Snapshot(c.Request().Context())
		layers := geometry.Reload()
		isJSON := strings.HasSuffix(c.Request().URL.Path, ".json")

		m, err := mapview.Build(result.Snapshot, layers.Canals, layers.Parcels)
		if err != nil {
			if !errors.Is(err, mapview.ErrNoStations) {
				return err
			}
			metrics.PageViewsTotal.WithLabelValues("unavailable").Inc()
			return unavailable(c, isJSON)
		}
		metrics.PageViewsTotal.WithLabelValues("map").Inc()

		if isJSON {
			c.Response().Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSONCharsetUTF8)
		} else {
			c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
		}

		_, notModified, err := SetCacheHeaders(c, CacheConfig{
			SnapshotETag: result.Snapshot.ETag,
			LayersETag:   layers.ETag(),
			DevMode:      devMode,
		})
		if err != nil {
			return err
		}
		if notModified {
			metrics.CacheHits.WithLabelValues(c.Path()).Inc()
			return c.NoContent(http.StatusNotModified)
		}

		if c.Request().Method == http.MethodHead {
			return c.NoContent(http.StatusOK)
		}

		if isJSON {
			return c.JSON(http.StatusOK, m)
		}

		return c.Render(http.StatusOK, "dashboard.html.tmpl", DashboardPageData{
			Title:     Title,
			Map:       m,
			Stations:  len(result.Snapshot.Stations),
			Readings:  len(result.Snapshot.Readings),
			FetchedAt: result.Snapshot.FetchedAt,
			Layers:    layers.Names(),
		})
	}
}

// expectedUnavailable marks a 503 that is the error state itself. The fetch
// failure behind it is already in the incident log.
const expectedUnavailable = "aforo.expected-unavailable"

func unavailable(c echo.Context, isJSON bool) error {
	c.Set(expectedUnavailable, true)
	h := c.Response().Header()
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate, private, max-age=0")
	h.Set("Retry-After", "30")

	if c.Request().Method == http.MethodHead {
		return c.NoContent(http.StatusServiceUnavailable)
	}
	if isJSON {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": UnavailableMessage})
	}
	return c.Render(http.StatusServiceUnavailable, "error.html.tmpl", ErrorPageData{
		Title:   Title,
		Message: UnavailableMessage,
		Status:  http.StatusServiceUnavailable,
	})
}
