// Package kobo talks to the KoboToolbox forms API that collects the flow surveys.
package kobo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/consorcio-sanramon/aforo-live/metrics"
)

const (
	userAgent      = "aforo-live/1.0 (+https://github.com/consorcio-sanramon/aforo-live)"
	defaultTimeout = 15 * time.Second
)

var (
	// ErrUnauthorized is returned when no token is configured or the API rejects it.
	ErrUnauthorized = errors.New("kobo: unauthorized")
	// ErrUpstreamFailure is returned for any other non-2xx response.
	ErrUpstreamFailure = errors.New("kobo: upstream failure")
	// ErrDecode is returned when the response body is not the expected JSON document.
	ErrDecode = errors.New("kobo: invalid response body")
)

// Client provides access to the data endpoints of KoboToolbox assets
type Client struct {
	token  string
	client *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// NewClient creates a new KoboToolbox API client
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		token:  strings.TrimSpace(token),
		client: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsConfigured returns true if the client has an API token
func (c *Client) IsConfigured() bool {
	return c.token != ""
}

// FetchRecords fetches the first page of submissions of an asset's data endpoint.
// Pagination is not followed.
func (c *Client) FetchRecords(ctx context.Context, url string) ([]Record, error) {
	if !c.IsConfigured() {
		return nil, fmt.Errorf("%w: AFORO_TOKEN not set", ErrUnauthorized)
	}
	return fetchResults[Record](ctx, c, url)
}

// FetchBoth fetches the readings and the stations endpoints, one after the other.
// The first error aborts the pair.
func (c *Client) FetchBoth(ctx context.Context, readingsURL, stationsURL string) (readings, stations []Record, err error) {
	readings, err = c.FetchRecords(ctx, readingsURL)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch readings: %w", err)
	}
	stations, err = c.FetchRecords(ctx, stationsURL)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch stations: %w", err)
	}
	return readings, stations, nil
}

// envelope is the paginated list document returned by /api/v2/assets/<uid>/data.json
type envelope[T any] struct {
	Count   int     `json:"count"`
	Next    *string `json:"next"`
	Results []T     `json:"results"`
}

// fetchResults is a generic helper to fetch a data endpoint and decode its results array
func fetchResults[T any](ctx context.Context, client *Client, url string) ([]T, error) {
	endpoint := AssetID(url)
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+client.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.client.Do(req)
	if err != nil {
		observe(endpoint, "error", start)
		return nil, fmt.Errorf("failed to fetch %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	observe(endpoint, strconv.Itoa(resp.StatusCode), start)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s returned status %d", ErrUnauthorized, endpoint, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: %s returned status %d", ErrUpstreamFailure, endpoint, resp.StatusCode)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()

	var doc envelope[T]
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, endpoint, err)
	}
	if doc.Results == nil {
		return []T{}, nil
	}
	return doc.Results, nil
}

func observe(endpoint, status string, start time.Time) {
	metrics.KoboFetchTotal.WithLabelValues(endpoint, status).Inc()
	metrics.KoboFetchDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// AssetID extracts the asset uid from a data endpoint URL, falling back to the host.
func AssetID(url string) string {
	parts := strings.Split(url, "/")
	for i, p := range parts {
		if p == "assets" && i+1 < len(parts) && parts[i+1] != "" {
			return parts[i+1]
		}
	}
	return metrics.ExtractOrigin(url)
}
