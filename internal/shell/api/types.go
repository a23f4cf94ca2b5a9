package api

import (
	"time"

	"github.com/artpar/agrotel/internal/core/domain"
)

// =============================================================================
// Response Types
// =============================================================================

// TelemetryResponse is the flat telemetry object, keyed like the IoT payload.
type TelemetryResponse map[string]any

// SnapshotResponse is the response for snapshot operations.
type SnapshotResponse struct {
	ID          string            `json:"id"`
	Location    string            `json:"location"`
	Telemetry   TelemetryResponse `json:"telemetry"`
	FetchedAt   time.Time         `json:"fetched_at"`
	PublishedAt *time.Time        `json:"published_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// ListSnapshotsResponse is the response for listing snapshots.
// Total counts every stored snapshot, not just this page.
type ListSnapshotsResponse struct {
	Snapshots []SnapshotResponse `json:"snapshots"`
	Total     int                `json:"total"`
	Limit     int                `json:"limit"`
	Offset    int                `json:"offset"`
}

// HealthResponse is the response for health check.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the response for readiness check.
type ReadyResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Message string            `json:"message,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func snapshotToResponse(s *domain.Snapshot) SnapshotResponse {
	return SnapshotResponse{
		ID:          s.ID,
		Location:    s.Location,
		Telemetry:   TelemetryResponse(s.Telemetry.Flatten()),
		FetchedAt:   s.FetchedAt,
		PublishedAt: s.PublishedAt,
		CreatedAt:   s.CreatedAt,
	}
}
