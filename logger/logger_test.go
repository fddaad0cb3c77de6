package logger

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureUI routes logOrPrint into a slice for the duration of the test
func captureUI(t *testing.T) func() []string {
	t.Helper()
	var (
		mu    sync.Mutex
		lines []string
	)
	prevLog, prevUI := Log, useUI
	Log = func(msg string) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, msg)
	}
	SetUIMode(true)
	t.Cleanup(func() {
		Log = prevLog
		SetUIMode(prevUI)
	})
	return func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), lines...)
	}
}

func TestSplitArgs(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name    string
		args    []interface{}
		wantMsg string
		wantErr error
	}{
		{"empty", nil, "", nil},
		{"plain string", []interface{}{"hello"}, "hello", nil},
		{"format", []interface{}{"%d stations", 3}, "3 stations", nil},
		{"error only", []interface{}{boom}, "boom", boom},
		{"error with format", []interface{}{boom, "fetch failed: %v", boom}, "fetch failed: boom", boom},
		{"error with non-string", []interface{}{boom, 42}, "boom", boom},
		{"other value", []interface{}{42}, "42", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := splitArgs(tt.args)
			assert.Equal(t, tt.wantMsg, msg)
			assert.Equal(t, tt.wantErr, err)
		})
	}
}

func TestError_CapturesToSentry(t *testing.T) {
	lines := captureUI(t)

	var captured []error
	SetSentryCaptureException(func(err error) interface{} {
		captured = append(captured, err)
		return nil
	})
	t.Cleanup(func() { SetSentryCaptureException(nil) })

	boom := errors.New("upstream 500")
	Error(boom, "Kobo fetch failed: %v", boom)
	Error("no error value here")

	require.Len(t, captured, 1)
	assert.Equal(t, boom, captured[0])

	got := lines()
	require.Len(t, got, 2)
	assert.Contains(t, got[0], "Kobo fetch failed: upstream 500")
}

func TestFatal_FlushesAndExits(t *testing.T) {
	captureUI(t)

	var code int
	var flushed bool
	prevExit := exit
	exit = func(c int) { code = c }
	SetSentryFlush(func() { flushed = true })
	t.Cleanup(func() {
		exit = prevExit
		SetSentryFlush(nil)
	})

	Fatal(errors.New("bind: address in use"))

	assert.Equal(t, 1, code)
	assert.True(t, flushed)
}

func TestFetchSummary_Print(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		lines := captureUI(t)
		FetchSummary{Duration: 1200 * time.Millisecond, Stations: 12, Readings: 1500}.Print()

		got := lines()
		require.Len(t, got, 1)
		assert.Contains(t, got[0], "Fetch complete")
		assert.Contains(t, got[0], "1,500")
		assert.NotContains(t, got[0], "dropped")
	})

	t.Run("dropped records", func(t *testing.T) {
		lines := captureUI(t)
		FetchSummary{Stations: 10, Readings: 20, Dropped: 2}.Print()
		assert.Contains(t, lines()[0], "dropped")
	})

	t.Run("failure", func(t *testing.T) {
		lines := captureUI(t)
		FetchSummary{Err: errors.New("401 unauthorized")}.Print()

		got := lines()
		require.Len(t, got, 1)
		assert.Contains(t, got[0], "Fetch failed")
		assert.Contains(t, got[0], "401 unauthorized")
	})
}

func TestData_RoutesThroughUI(t *testing.T) {
	lines := captureUI(t)

	Data().Warn("normalized with degraded records", "dropped_stations", 2)

	got := lines()
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "normalized with degraded records")
	assert.Contains(t, got[0], "dropped_stations")
	assert.False(t, strings.HasSuffix(got[0], "\n"))
}
