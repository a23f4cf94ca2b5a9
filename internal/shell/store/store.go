package store

import (
	"context"
	"time"

	"github.com/artpar/agrotel/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for telemetry snapshots.
type Store interface {
	// Snapshot operations
	CreateSnapshot(ctx context.Context, snapshot *domain.Snapshot) error
	GetSnapshot(ctx context.Context, id string) (*domain.Snapshot, error)
	GetLatestSnapshot(ctx context.Context) (*domain.Snapshot, error)
	ListSnapshots(ctx context.Context, opts ListOptions) ([]domain.Snapshot, error)
	CountSnapshots(ctx context.Context) (int, error)

	// Publishing operations
	GetUnpublishedSnapshots(ctx context.Context, limit int) ([]domain.Snapshot, error)
	MarkSnapshotsPublished(ctx context.Context, ids []string, publishedAt time.Time) error

	// Retention
	DeleteSnapshotsBefore(ctx context.Context, before time.Time) (int64, error)
	// DeletePublishedSnapshotsBefore keeps unpublished snapshots regardless of age.
	DeletePublishedSnapshotsBefore(ctx context.Context, before time.Time) (int64, error)

	// Transaction support
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination options.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  100,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
