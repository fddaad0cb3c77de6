package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// FuzzDashboardPaths checks that arbitrary paths never panic or leak a 5xx
func FuzzDashboardPaths(f *testing.F) {
	f.Add("/")
	f.Add("/map.json")
	f.Add("/s/../../etc/passwd")
	f.Add("/s/%2e%2e%2f")
	f.Add("/<script>alert('xss')</script>")
	f.Add("/_/version")
	f.Add("/" + string([]byte{0x00, 0x01, 0x02}))

	srv, _ := newTestServer(f, testServerOptions{})

	f.Fuzz(func(t *testing.T, path string) {
		req, err := http.NewRequest(http.MethodGet, "http://example.com"+path, nil)
		if err != nil {
			t.Skip()
		}
		rec := httptest.NewRecorder()

		srv.Handler.ServeHTTP(rec, req)

		if rec.Code >= 500 {
			t.Errorf("path %q returned %d", path, rec.Code)
		}
	})
}

// FuzzIfNoneMatch checks that arbitrary validators never break the dashboard
func FuzzIfNoneMatch(f *testing.F) {
	f.Add(`"abc"`)
	f.Add("")
	f.Add("*")
	f.Add(`W/"weak"`)
	f.Add(string(make([]byte, 4096)))

	srv, _ := newTestServer(f, testServerOptions{})

	f.Fuzz(func(t *testing.T, etag string) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("If-None-Match", etag)
		rec := httptest.NewRecorder()

		srv.Handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK && rec.Code != http.StatusNotModified {
			t.Errorf("If-None-Match %q returned %d", etag, rec.Code)
		}
	})
}
