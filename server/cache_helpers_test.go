package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEtagMatches(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{"", false},
		{`"abc"`, true},
		{`W/"abc"`, true},
		{`"x", "abc"`, true},
		{`"x",W/"abc"`, true},
		{"*", true},
		{`"abcd"`, false},
		{`abc`, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, etagMatches(tt.header, `"abc"`), "header %q", tt.header)
	}
}

func TestCompositeETag(t *testing.T) {
	base := compositeETag("v1", `"snap"`, "canals.-", "text/html; charset=UTF-8")

	assert.Equal(t, base, compositeETag("v1", "snap", "canals.-", "text/html"), "quotes and params ignored")
	assert.NotEqual(t, base, compositeETag("v2", "snap", "canals.-", "text/html"))
	assert.NotEqual(t, base, compositeETag("v1", "snap2", "canals.-", "text/html"))
	assert.NotEqual(t, base, compositeETag("v1", "snap", "-.-", "text/html"))
	assert.NotEqual(t, base, compositeETag("v1", "snap", "canals.-", "application/json"))
	// part boundaries are not ambiguous
	assert.NotEqual(t, compositeETag("v1", "ab", "c", "x"), compositeETag("v1", "a", "bc", "x"))

	assert.Regexp(t, `^"[0-9a-z]+"$`, base)
}

func TestSetCacheHeaders_RequiresContentType(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	_, _, err := SetCacheHeaders(c, CacheConfig{SnapshotETag: `"s"`})
	require.Error(t, err)
}

func TestSetCacheHeaders_NotModified(t *testing.T) {
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	etag, notModified, err := SetCacheHeaders(c, CacheConfig{SnapshotETag: `"s"`, LayersETag: "l"})
	require.NoError(t, err)
	assert.False(t, notModified)
	assert.Equal(t, etag, rec.Header().Get("ETag"))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "max-age=30")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("If-None-Match", "W/"+etag)
	c = e.NewContext(req, httptest.NewRecorder())
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	_, notModified, err = SetCacheHeaders(c, CacheConfig{SnapshotETag: `"s"`, LayersETag: "l"})
	require.NoError(t, err)
	assert.True(t, notModified)
}
