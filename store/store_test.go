package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consorcio-sanramon/aforo-live/kobo"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T, ttl, errorTTL time.Duration, fetch FetchFunc) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 5, 3, 12, 0, 0, 0, time.UTC)}
	s := New(fetch, ttl, errorTTL)
	s.SetClock(clock.Now)
	return s, clock
}

func sampleFetch(calls *atomic.Int32) FetchFunc {
	return func(ctx context.Context) ([]kobo.Record, []kobo.Record, error) {
		calls.Add(1)
		return []kobo.Record{
				readingRecord("A1", "2024-05-03", "08:00", "10"),
				readingRecord("A1", "2024-05-03", "09:00", "20"),
			}, []kobo.Record{
				stationRecord("A1", "Aforador 1", "-27.5 -65.3"),
			}, nil
	}
}

func TestStore_CachesWithinTTL(t *testing.T) {
	var calls atomic.Int32
	s, clock := newTestStore(t, DefaultTTL, DefaultErrorTTL, sampleFetch(&calls))

	first := s.Snapshot(context.Background())
	require.True(t, first.OK())
	assert.Len(t, first.Snapshot.Stations, 1)
	assert.Len(t, first.Snapshot.Readings, 2)

	clock.Advance(299 * time.Second)
	second := s.Snapshot(context.Background())

	assert.Equal(t, int32(1), calls.Load(), "second render inside the window must not refetch")
	assert.Equal(t, first.Snapshot, second.Snapshot)
}

func TestStore_RefetchesAfterTTL(t *testing.T) {
	var calls atomic.Int32
	s, clock := newTestStore(t, DefaultTTL, DefaultErrorTTL, sampleFetch(&calls))

	s.Snapshot(context.Background())
	clock.Advance(DefaultTTL)
	s.Snapshot(context.Background())

	assert.Equal(t, int32(2), calls.Load())
}

func TestStore_FailureYieldsEmptyTables(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("connection refused")
	s, clock := newTestStore(t, DefaultTTL, DefaultErrorTTL, func(ctx context.Context) ([]kobo.Record, []kobo.Record, error) {
		calls.Add(1)
		return nil, nil, boom
	})

	result := s.Snapshot(context.Background())
	assert.False(t, result.OK())
	assert.ErrorIs(t, result.Err, boom)
	assert.True(t, result.Snapshot.Empty())
	assert.NotNil(t, result.Snapshot.Stations)
	assert.NotNil(t, result.Snapshot.Readings)
	assert.Empty(t, result.Snapshot.Readings)

	// failures are held for the shorter error window
	clock.Advance(DefaultErrorTTL - time.Second)
	s.Snapshot(context.Background())
	assert.Equal(t, int32(1), calls.Load())

	clock.Advance(time.Second)
	s.Snapshot(context.Background())
	assert.Equal(t, int32(2), calls.Load())
}

func TestStore_ConcurrentFirstAccessFetchesOnce(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	s, _ := newTestStore(t, DefaultTTL, DefaultErrorTTL, func(ctx context.Context) ([]kobo.Record, []kobo.Record, error) {
		calls.Add(1)
		<-release
		return sampleFetch(&atomic.Int32{})(ctx)
	})

	const callers = 20
	var wg sync.WaitGroup
	results := make([]FetchResult, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.Snapshot(context.Background())
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, results[0].Snapshot.ETag, r.Snapshot.ETag)
		assert.Len(t, r.Snapshot.Stations, 1)
	}
}

func TestStore_CanceledCallerDoesNotPoisonFetch(t *testing.T) {
	var seenErr error
	s, _ := newTestStore(t, DefaultTTL, DefaultErrorTTL, func(ctx context.Context) ([]kobo.Record, []kobo.Record, error) {
		seenErr = ctx.Err()
		return sampleFetch(&atomic.Int32{})(ctx)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := s.Snapshot(ctx)
	assert.NoError(t, seenErr)
	assert.True(t, result.OK())
}

func TestStore_ZeroTTLAlwaysFetches(t *testing.T) {
	var calls atomic.Int32
	s, _ := newTestStore(t, 0, 0, sampleFetch(&calls))

	s.Snapshot(context.Background())
	s.Snapshot(context.Background())
	assert.Equal(t, int32(2), calls.Load())
}

func TestStore_InvalidateAndLastResult(t *testing.T) {
	var calls atomic.Int32
	s, _ := newTestStore(t, DefaultTTL, DefaultErrorTTL, sampleFetch(&calls))

	_, ok := s.LastResult()
	assert.False(t, ok)

	s.Snapshot(context.Background())
	last, ok := s.LastResult()
	require.True(t, ok)
	assert.Len(t, last.Snapshot.Stations, 1)

	s.Invalidate()
	s.Snapshot(context.Background())
	assert.Equal(t, int32(2), calls.Load())
}

func TestStore_RefreshCallback(t *testing.T) {
	var calls atomic.Int32
	s, _ := newTestStore(t, DefaultTTL, DefaultErrorTTL, sampleFetch(&calls))

	var got []FetchResult
	s.SetRefreshCallback(func(r FetchResult) {
		got = append(got, r)
	})

	s.Snapshot(context.Background())
	s.Snapshot(context.Background())

	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Report.Stations)
}

func TestNewFromClient_DegradesOnUnconfiguredToken(t *testing.T) {
	s := NewFromClient(kobo.NewClient(""), "http://127.0.0.1:1/a", "http://127.0.0.1:1/b", DefaultTTL, DefaultErrorTTL)
	result := s.Snapshot(context.Background())
	assert.ErrorIs(t, result.Err, kobo.ErrUnauthorized)
	assert.True(t, result.Snapshot.Empty())
}
