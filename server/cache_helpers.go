package server

import (
	"errors"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/labstack/echo/v4"
)

// CacheConfig names what a cacheable response was rendered from
type CacheConfig struct {
	// SnapshotETag is store.Snapshot.ETag
	SnapshotETag string
	// LayersETag is geo.Set.ETag()
	LayersETag string

	// DevMode disables caching when true
	DevMode bool
}

// SetCacheHeaders sets cache headers and the ETag for a dashboard response.
// It returns the ETag and whether the request should get 304 Not Modified.
// Content-Type must already be set.
func SetCacheHeaders(c echo.Context, config CacheConfig) (string, bool, error) {
	h := c.Response().Header()
	contentType := h.Get(echo.HeaderContentType)
	if contentType == "" {
		return "", false, errors.New("Content-Type must be set before calling SetCacheHeaders")
	}

	etag := compositeETag(GetVersionString(), config.SnapshotETag, config.LayersETag, contentType)

	if config.DevMode {
		h.Set("Cache-Control", "no-cache, no-store, must-revalidate, private")
		h.Set("Pragma", "no-cache")
		h.Set("Expires", "0")
		return etag, false, nil
	}

	h.Set("Cache-Control", "public, max-age=30, stale-while-revalidate=60, must-revalidate")
	h.Set("ETag", etag)
	h.Set("Vary", "Accept")

	return etag, etagMatches(c.Request().Header.Get("If-None-Match"), etag), nil
}

// compositeETag folds the build, data and representation into one strong
// validator. HTML and JSON of the same data never share an ETag.
func compositeETag(version, snapshot, layers, contentType string) string {
	d := xxhash.New()
	for _, part := range []string{version, strings.Trim(snapshot, `"`), layers, mediaType(contentType)} {
		_, _ = d.WriteString(part)
		_, _ = d.Write([]byte{0})
	}
	return `"` + strconv.FormatUint(d.Sum64(), 36) + `"`
}

func mediaType(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.TrimSpace(mt)
}

// etagMatches implements the weak comparison If-None-Match calls for, over
// a comma separated list or "*".
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
