package server

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/consorcio-sanramon/aforo-live/metrics"
)

// MetricsMiddleware records HTTP request metrics for Prometheus
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// Track in-flight requests
			metrics.HTTPRequestsInFlight.Inc()
			defer metrics.HTTPRequestsInFlight.Dec()

			// Record start time
			start := time.Now()

			// Process request
			err := next(c)

			// Record duration and counts
			duration := time.Since(start).Seconds()
			status := c.Response().Status
			method := c.Request().Method
			path := c.Path()

			// Unmatched requests share one label to keep cardinality bounded
			if path == "" {
				path = "unmatched"
			}

			statusStr := strconv.Itoa(status)

			// Record metrics
			metrics.HTTPRequestDuration.WithLabelValues(method, path, statusStr).Observe(duration)
			metrics.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
			if size := c.Response().Size; size > 0 {
				metrics.ResponseSizeBytes.WithLabelValues(path).Observe(float64(size))
			}

			return err
		}
	}
}

