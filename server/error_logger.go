package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/consorcio-sanramon/aforo-live/kobo"
)

const errorLogName = "aforo-live-errors.jsonl"

// ErrorLogEntry is one line of the incident log. Kind is "http" for server
// errors and "fetch" for failed upstream fetches.
type ErrorLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Status    int       `json:"status,omitempty"`
	Method    string    `json:"method,omitempty"`
	Path      string    `json:"path,omitempty"`
	URL       string    `json:"url,omitempty"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Duration  string    `json:"duration"`
	Reason    string    `json:"reason,omitempty"`
	Error     string    `json:"error,omitempty"`
}

var (
	errorLogFile   *os.File
	errorLogMutex  sync.Mutex
	errorLogPath   string
	errorLogWriter *json.Encoder
)

// InitErrorLogger opens the incident log in logDir, or the temp dir when empty.
func InitErrorLogger(logDir string) error {
	errorLogMutex.Lock()
	defer errorLogMutex.Unlock()

	if logDir == "" {
		logDir = os.TempDir()
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	errorLogPath = filepath.Join(logDir, errorLogName)

	file, err := os.OpenFile(errorLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open error log file: %w", err)
	}

	errorLogFile = file
	errorLogWriter = json.NewEncoder(file)

	return nil
}

// LogError logs an HTTP error to the error log file
func LogError(status int, method, path, url, ip, userAgent string, duration time.Duration, err error) {
	entry := ErrorLogEntry{
		Timestamp: time.Now(),
		Kind:      "http",
		Status:    status,
		Method:    method,
		Path:      path,
		URL:       url,
		IP:        ip,
		UserAgent: userAgent,
		Duration:  duration.String(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	writeEntry(entry)
}

// LogFetchFailure records a fetch cycle that fell back to empty tables.
func LogFetchFailure(duration time.Duration, err error) {
	if err == nil {
		return
	}
	writeEntry(ErrorLogEntry{
		Timestamp: time.Now(),
		Kind:      "fetch",
		Duration:  duration.String(),
		Reason:    FetchFailureReason(err),
		Error:     err.Error(),
	})
}

// FetchFailureReason classifies a fetch error for logs and metrics.
func FetchFailureReason(err error) string {
	switch {
	case errors.Is(err, kobo.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, kobo.ErrUpstreamFailure):
		return "upstream"
	case errors.Is(err, kobo.ErrDecode):
		return "decode"
	default:
		return "network"
	}
}

func writeEntry(entry ErrorLogEntry) {
	errorLogMutex.Lock()
	defer errorLogMutex.Unlock()

	if errorLogWriter == nil {
		return
	}

	_ = errorLogWriter.Encode(entry)
	_ = errorLogFile.Sync()
}

// GetErrorLogPath returns the path to the error log file
func GetErrorLogPath() string {
	errorLogMutex.Lock()
	defer errorLogMutex.Unlock()
	return errorLogPath
}

// CloseErrorLogger closes the error log file
func CloseErrorLogger() error {
	errorLogMutex.Lock()
	defer errorLogMutex.Unlock()

	if errorLogFile != nil {
		err := errorLogFile.Close()
		errorLogFile = nil
		errorLogWriter = nil
		return err
	}
	return nil
}
