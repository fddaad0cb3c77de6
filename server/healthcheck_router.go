package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/consorcio-sanramon/aforo-live/store"
)

// HealthCheckRoute is healthy when the dashboard renders a map. It goes
// through the snapshot cache, so it only reaches Kobo once per TTL.
func HealthCheckRoute(s *store.Store) func(c echo.Context) error {
	return func(c echo.Context) error {
		result := s.Snapshot(c.Request().Context())
		if result.Err != nil {
			return c.String(http.StatusServiceUnavailable,
				fmt.Sprintf("Healthcheck failed - fetch error: %v", result.Err))
		}
		if result.Snapshot.Empty() {
			return c.String(http.StatusServiceUnavailable, "No stations available")
		}

		// Smoke test: the dashboard must render the map page
		if err := testRoute(c.Echo(), "/", Title); err != nil {
			return c.String(http.StatusServiceUnavailable,
				fmt.Sprintf("Healthcheck failed - dashboard error: %v", err))
		}

		return c.String(http.StatusOK, "OK")
	}
}

// testRoute performs an internal HTTP request to verify a route can render successfully
func testRoute(e *echo.Echo, path string, expectedContent string) error {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		return fmt.Errorf("returned status %d instead of 200", rec.Code)
	}

	body := rec.Body.String()

	if !strings.Contains(body, "<!DOCTYPE") {
		return fmt.Errorf("response is not valid HTML (missing DOCTYPE)")
	}

	if !strings.Contains(body, expectedContent) {
		return fmt.Errorf("response missing expected content '%s'", expectedContent)
	}

	return nil
}
