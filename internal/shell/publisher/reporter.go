package publisher

import (
	"context"
	"log/slog"
	"time"

	"github.com/artpar/agrotel/internal/shell/store"
)

// =============================================================================
// Background Reporter
// =============================================================================

// Reporter pushes unpublished snapshots in the background.
type Reporter struct {
	store     store.Store
	client    Client
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	now       func() time.Time
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// ReporterConfig holds configuration for the background reporter.
type ReporterConfig struct {
	Store     store.Store
	Client    Client
	Interval  time.Duration
	BatchSize int
	Logger    *slog.Logger
}

// NewReporter creates a new background reporter.
func NewReporter(cfg ReporterConfig) *Reporter {
	if cfg.Interval == 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 50
	}
	if cfg.Client == nil {
		cfg.Client = NewNoOpClient()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Reporter{
		store:     cfg.Store,
		client:    cfg.Client,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		logger:    cfg.Logger.With("component", "publisher"),
		now:       time.Now,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the background publishing loop.
// It runs until Stop() is called or the context is cancelled.
func (r *Reporter) Start(ctx context.Context) {
	r.logger.Info("starting telemetry publisher",
		"interval", r.interval,
		"batch_size", r.batchSize,
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	defer close(r.doneCh)

	// Push anything left over from a previous run
	r.publishBatch(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("telemetry publisher stopped due to context cancellation")
			return
		case <-r.stopCh:
			r.logger.Info("telemetry publisher stopped")
			return
		case <-ticker.C:
			r.publishBatch(ctx)
		}
	}
}

// Stop signals the reporter to stop and waits for it to finish.
func (r *Reporter) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

// PublishNow triggers an immediate publish cycle and returns how many
// snapshots were pushed.
func (r *Reporter) PublishNow(ctx context.Context) int {
	return r.publishBatch(ctx)
}

// publishBatch pushes pending snapshots oldest first. It stops at the first
// failure so the platform never receives readings out of order.
func (r *Reporter) publishBatch(ctx context.Context) int {
	pending, err := r.store.GetUnpublishedSnapshots(ctx, r.batchSize)
	if err != nil {
		r.logger.Error("failed to get unpublished snapshots", "error", err)
		return 0
	}

	if len(pending) == 0 {
		return 0
	}

	r.logger.Debug("publishing snapshots", "count", len(pending))

	ids := make([]string, 0, len(pending))
	for _, snap := range pending {
		if err := r.client.Publish(ctx, snap); err != nil {
			r.logger.Error("failed to publish snapshot",
				"error", err,
				"snapshot_id", snap.ID,
				"remaining", len(pending)-len(ids),
			)
			break
		}
		ids = append(ids, snap.ID)
	}

	if len(ids) == 0 {
		return 0
	}

	if err := r.store.MarkSnapshotsPublished(ctx, ids, r.now()); err != nil {
		r.logger.Error("failed to mark snapshots as published",
			"error", err,
			"count", len(ids),
		)
		return 0
	}

	r.logger.Info("published snapshots", "count", len(ids))
	return len(ids)
}
