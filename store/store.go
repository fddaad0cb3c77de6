package store

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/consorcio-sanramon/aforo-live/kobo"
	"github.com/consorcio-sanramon/aforo-live/logger"
	"github.com/consorcio-sanramon/aforo-live/metrics"
)

const (
	// DefaultTTL is how long a fetched snapshot is served before refetching.
	DefaultTTL = 300 * time.Second
	// DefaultErrorTTL is how long a failed fetch is served before retrying.
	DefaultErrorTTL = 30 * time.Second

	flightKey = "snapshot"
)

// FetchFunc returns the raw readings and stations submissions.
type FetchFunc func(ctx context.Context) (readings, stations []kobo.Record, err error)

// FetchResult is the outcome of a fetch cycle. On failure Snapshot holds two
// empty tables and Err says why.
type FetchResult struct {
	Snapshot Snapshot
	Report   Report
	Err      error
	Duration time.Duration
}

// OK reports whether the fetch succeeded.
func (r FetchResult) OK() bool {
	return r.Err == nil
}

type cacheEntry struct {
	result    FetchResult
	expiresAt time.Time
}

// Store serves the current snapshot, refetching synchronously once it is
// stale.
//
// Concurrency model:
//   - the cached entry is replaced wholesale under mu, never mutated
//   - a miss goes through a singleflight group, so concurrent first
//     accesses share one upstream fetch
//   - the fetch runs detached from the caller's cancellation so one
//     disconnecting client cannot fail the result for everybody waiting
type Store struct {
	fetch    FetchFunc
	ttl      time.Duration
	errorTTL time.Duration
	now      func() time.Time

	group singleflight.Group

	mu        sync.RWMutex
	current   *cacheEntry
	onRefresh func(FetchResult)
}

// New creates a Store around fetch. A ttl <= 0 disables caching.
func New(fetch FetchFunc, ttl, errorTTL time.Duration) *Store {
	if errorTTL > ttl {
		errorTTL = ttl
	}
	return &Store{
		fetch:    fetch,
		ttl:      ttl,
		errorTTL: errorTTL,
		now:      time.Now,
	}
}

// NewFromClient wires a Store to the two Kobo data endpoints.
func NewFromClient(client *kobo.Client, readingsURL, stationsURL string, ttl, errorTTL time.Duration) *Store {
	return New(func(ctx context.Context) ([]kobo.Record, []kobo.Record, error) {
		return client.FetchBoth(ctx, readingsURL, stationsURL)
	}, ttl, errorTTL)
}

// SetClock replaces the time source. Tests only.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetRefreshCallback registers fn to run after every completed fetch cycle.
func (s *Store) SetRefreshCallback(fn func(FetchResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRefresh = fn
}

// Snapshot returns the cached result while fresh, otherwise fetches a new one.
func (s *Store) Snapshot(ctx context.Context) FetchResult {
	if result, ok := s.cached(); ok {
		metrics.SnapshotRequestsTotal.WithLabelValues("hit").Inc()
		return result
	}

	v, _, shared := s.group.Do(flightKey, func() (interface{}, error) {
		// a flight that finished between our check and Do already filled it
		if result, ok := s.cached(); ok {
			return result, nil
		}
		return s.refresh(context.WithoutCancel(ctx)), nil
	})

	if shared {
		metrics.SnapshotRequestsTotal.WithLabelValues("shared").Inc()
	} else {
		metrics.SnapshotRequestsTotal.WithLabelValues("miss").Inc()
	}
	return v.(FetchResult)
}

// LastResult returns the most recent fetch result without triggering a fetch.
func (s *Store) LastResult() (FetchResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return FetchResult{}, false
	}
	return s.current.result, true
}

// Invalidate drops the cached result so the next Snapshot refetches.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
}

func (s *Store) cached() (FetchResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil || !s.now().Before(s.current.expiresAt) {
		return FetchResult{}, false
	}
	return s.current.result, true
}

func (s *Store) refresh(ctx context.Context) FetchResult {
	s.mu.RLock()
	now := s.now
	s.mu.RUnlock()

	start := now()
	readings, stations, err := s.fetch(ctx)
	fetchedAt := now()

	var result FetchResult
	if err != nil {
		logger.Error(err, "Kobo fetch failed, serving empty tables: %v", err)
		metrics.SnapshotRefreshTotal.WithLabelValues("failure").Inc()
		result = FetchResult{Snapshot: emptySnapshot(fetchedAt), Err: err}
	} else {
		snap, report := Normalize(readings, stations, fetchedAt)
		logReport(report, len(stations), len(readings))
		metrics.SnapshotRefreshTotal.WithLabelValues("success").Inc()
		result = FetchResult{Snapshot: snap, Report: report}
	}
	result.Duration = fetchedAt.Sub(start)

	metrics.SnapshotRefreshDuration.Observe(result.Duration.Seconds())
	metrics.StationsTotal.Set(float64(len(result.Snapshot.Stations)))
	metrics.ReadingsTotal.Set(float64(len(result.Snapshot.Readings)))

	ttl := s.ttl
	if err != nil {
		ttl = s.errorTTL
	}

	s.mu.Lock()
	if ttl > 0 {
		s.current = &cacheEntry{result: result, expiresAt: fetchedAt.Add(ttl)}
	} else {
		s.current = &cacheEntry{result: result, expiresAt: fetchedAt}
	}
	callback := s.onRefresh
	s.mu.Unlock()

	if callback != nil {
		callback(result)
	}
	return result
}

func logReport(report Report, rawStations, rawReadings int) {
	metrics.RecordsDegradedTotal.WithLabelValues("bad_location").Add(float64(report.BadLocation))
	metrics.RecordsDegradedTotal.WithLabelValues("bad_timestamp").Add(float64(report.BadTimestamp))
	metrics.RecordsDegradedTotal.WithLabelValues("bad_flow").Add(float64(report.BadFlow))

	if report.Stations == 0 {
		logger.Warn("No usable stations in %d station records; both tables left empty", rawStations)
		return
	}

	if report.Degraded() {
		logger.Data().Warn("normalized with degraded records",
			"stations", report.Stations,
			"readings", report.Readings,
			"dropped_stations", report.BadLocation,
			"null_timestamps", report.BadTimestamp,
			"zeroed_flows", report.BadFlow,
		)
		return
	}
	logger.Muted("Normalized %d stations and %d readings (%d raw readings)", report.Stations, report.Readings, rawReadings)
}
