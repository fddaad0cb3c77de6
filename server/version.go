package server

import (
	"fmt"
	"runtime"
	"time"
)

// Build information set at compile time via ldflags
var (
	// Version is the git commit hash
	Version = "dev"
	// BuildTime is when the binary was built
	BuildTime = "unknown"
	// GoVersion is the version of Go used to build
	GoVersion = runtime.Version()
)

// VersionInfo describes the running build and, once a fetch has happened,
// the data it is serving.
type VersionInfo struct {
	Version   string    `json:"version"`
	BuildTime string    `json:"build_time"`
	GoVersion string    `json:"go_version"`
	Uptime    string    `json:"uptime"`
	Data      *DataInfo `json:"data,omitempty"`
}

// DataInfo is the provenance of the snapshot currently cached
type DataInfo struct {
	FetchedAt  time.Time `json:"fetched_at"`
	Stations   int       `json:"stations"`
	Readings   int       `json:"readings"`
	ETag       string    `json:"etag"`
	FetchError string    `json:"fetch_error,omitempty"`
	Layers     []string  `json:"layers"`
}

var startTime = time.Now()

// GetVersionInfo returns the current build information
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		Uptime:    time.Since(startTime).Round(time.Second).String(),
	}
}

// GetVersionString returns a short version string for headers and ETags.
// Dev builds change on every restart.
func GetVersionString() string {
	if Version == "dev" {
		return fmt.Sprintf("dev-%d-%s", startTime.Unix(), GoVersion)
	}
	return Version
}
