package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Snapshot
// =============================================================================

// ErrEmptyLocation is returned when a snapshot is created without a location.
var ErrEmptyLocation = errors.New("snapshot location is required")

// Snapshot is a stored telemetry reading.
// Snapshots are kept locally and pushed to the IoT platform in batches.
type Snapshot struct {
	// ID is the unique identifier (snap_xxxxxxxx).
	ID string `json:"id"`

	// Location copies Telemetry.Location for indexing.
	Location string `json:"location"`

	// Telemetry is the reading itself.
	Telemetry Telemetry `json:"telemetry"`

	// FetchedAt is when the reading was taken from the provider.
	FetchedAt time.Time `json:"fetched_at"`

	// PublishedAt is when the reading was pushed (nil if not yet pushed).
	PublishedAt *time.Time `json:"published_at,omitempty"`

	// CreatedAt is when the snapshot record was created.
	CreatedAt time.Time `json:"created_at"`
}

// NewSnapshot wraps telemetry into a new, unpublished snapshot.
func NewSnapshot(t Telemetry, fetchedAt time.Time) (*Snapshot, error) {
	if t.Location == "" {
		return nil, ErrEmptyLocation
	}
	return &Snapshot{
		ID:        NewSnapshotID(),
		Location:  t.Location,
		Telemetry: t,
		FetchedAt: fetchedAt.UTC(),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// NewSnapshotID returns a fresh snapshot identifier.
func NewSnapshotID() string {
	return "snap_" + uuid.New().String()[:8]
}

// IsPublished reports whether the snapshot has been pushed.
func (s *Snapshot) IsPublished() bool {
	return s.PublishedAt != nil
}
