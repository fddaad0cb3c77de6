// Package metrics provides Prometheus collectors and small helpers around them
package metrics

import (
	"net/url"
	"runtime"
)

// ExtractOrigin extracts the host from a URL for endpoint labels
func ExtractOrigin(urlStr string) string {
	parsed, err := url.Parse(urlStr)
	if err != nil || parsed.Host == "" {
		return "unknown"
	}
	return parsed.Host
}

// RecordMemoryUsage updates the memory gauge and returns the allocated bytes
func RecordMemoryUsage() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	MemoryUsageBytes.Set(float64(m.Alloc))
	return m.Alloc
}

// ErrorRateStats holds error rate statistics
type ErrorRateStats struct {
	TotalRequests float64
	ErrorRequests float64
	ErrorRate     float64 // Percentage
	ErrorsPerSec  float64
}

// CalculateErrorRate calculates error rate from request and error counts
func CalculateErrorRate(totalRequests, errorRequests, lastErrors float64, elapsedSeconds float64) ErrorRateStats {
	errorRate := 0.0
	if totalRequests > 0 {
		errorRate = (errorRequests / totalRequests) * 100.0
	}

	errorsPerSec := 0.0
	if elapsedSeconds > 0 {
		errorsPerSec = (errorRequests - lastErrors) / elapsedSeconds
	}

	return ErrorRateStats{
		TotalRequests: totalRequests,
		ErrorRequests: errorRequests,
		ErrorRate:     errorRate,
		ErrorsPerSec:  errorsPerSec,
	}
}
