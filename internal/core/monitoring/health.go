// Package monitoring provides pure functions for telemetry health logic.
// This package contains NO I/O.
package monitoring

import "time"

// =============================================================================
// Health Status
// =============================================================================

// HealthStatus represents how current the stored telemetry is.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusUnknown   HealthStatus = "unknown"
)

// StaleAfterIntervals is how many missed poll intervals make telemetry degraded.
// Twice that many make it unhealthy.
const StaleAfterIntervals = 3

// =============================================================================
// Freshness (Pure Functions)
// =============================================================================

// TelemetryFreshness rates the newest reading against the poll interval.
// A nil latest means nothing has been recorded yet.
func TelemetryFreshness(latest *time.Time, now time.Time, interval time.Duration) HealthStatus {
	if latest == nil || interval <= 0 {
		return HealthStatusUnknown
	}

	age := now.Sub(*latest)
	switch {
	case age > 2*StaleAfterIntervals*interval:
		return HealthStatusUnhealthy
	case age > StaleAfterIntervals*interval:
		return HealthStatusDegraded
	default:
		// Readings from a slightly skewed clock count as fresh
		return HealthStatusHealthy
	}
}

// FreshnessMessage generates a human-readable message for a freshness status.
func FreshnessMessage(status HealthStatus, latest *time.Time, now time.Time) string {
	switch status {
	case HealthStatusUnknown:
		return "no telemetry recorded yet"
	case HealthStatusHealthy:
		return "telemetry is current"
	default:
		return "last telemetry " + now.Sub(*latest).Truncate(time.Second).String() + " ago"
	}
}
