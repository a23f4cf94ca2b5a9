// Package workers contains background workers for agrotel.
package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/artpar/agrotel/internal/core/domain"
	"github.com/artpar/agrotel/internal/shell/store"
)

// TelemetrySource produces a fresh telemetry reading.
type TelemetrySource interface {
	FetchTelemetry(ctx context.Context) (*domain.Telemetry, error)
}

// PollerConfig configures the poller worker.
type PollerConfig struct {
	// Interval is the time between poll cycles.
	// Default: 10 minutes.
	Interval time.Duration

	// Retention is how long snapshots are kept. Zero disables pruning.
	Retention time.Duration

	// KeepUnpublished exempts snapshots that were never pushed from pruning.
	// Set it when a publisher drains the backlog.
	KeepUnpublished bool
}

// DefaultPollerConfig returns the default configuration.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:  10 * time.Minute,
		Retention: 7 * 24 * time.Hour,
	}
}

// Poller periodically fetches telemetry and stores it as snapshots.
type Poller struct {
	store  store.Store
	source TelemetrySource
	config PollerConfig
	logger *slog.Logger
	now    func() time.Time

	// cycle is a one-slot semaphore serializing the ticker and RefreshNow.
	cycle chan struct{}

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPoller creates a new poller worker.
func NewPoller(s store.Store, source TelemetrySource, config PollerConfig, logger *slog.Logger) *Poller {
	if config.Interval == 0 {
		config.Interval = 10 * time.Minute
	}
	if config.Retention < 0 {
		config.Retention = 0
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Poller{
		store:  s,
		source: source,
		config: config,
		logger: logger.With("component", "poller"),
		now:    time.Now,
		cycle:  make(chan struct{}, 1),
	}
}

// Start begins the poller background goroutine.
// The first cycle runs immediately.
func (p *Poller) Start() {
	p.ctx, p.cancel = context.WithCancel(context.Background())

	p.wg.Add(1)
	go p.run()

	p.logger.Info("poller started",
		"interval", p.config.Interval,
		"retention", p.config.Retention,
	)
}

// Stop gracefully stops the poller.
// It waits for an in-progress cycle to complete.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("poller stopped")
}

func (p *Poller) run() {
	defer p.wg.Done()

	p.runCycle(p.ctx)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.runCycle(p.ctx)
		}
	}
}

func (p *Poller) runCycle(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, p.config.Interval)
	defer cancel()

	if _, err := p.poll(ctx); err != nil && !errors.Is(err, context.Canceled) {
		p.logger.Error("poll cycle failed", "error", err)
	}
}

// RefreshNow runs one poll cycle synchronously and returns the stored snapshot.
// It waits for a cycle that is already running, until ctx is done.
func (p *Poller) RefreshNow(ctx context.Context) (*domain.Snapshot, error) {
	return p.poll(ctx)
}

// poll fetches, stores, and prunes. A failed fetch stores nothing.
func (p *Poller) poll(ctx context.Context) (*domain.Snapshot, error) {
	select {
	case p.cycle <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-p.cycle }()

	t, err := p.source.FetchTelemetry(ctx)
	if err != nil {
		return nil, err
	}

	// One timestamp for the "time" key, FetchedAt and the published ts.
	fetchedAt, err := t.FetchedAt()
	if err != nil {
		fetchedAt = p.now()
		t.Time = fetchedAt.UTC().Format(domain.TelemetryTimeLayout)
	}

	snap, err := domain.NewSnapshot(*t, fetchedAt)
	if err != nil {
		return nil, fmt.Errorf("new snapshot: %w", err)
	}

	if err := p.store.CreateSnapshot(ctx, snap); err != nil {
		return nil, err
	}

	p.logger.Info("snapshot stored",
		"snapshot_id", snap.ID,
		"location", snap.Location,
	)

	p.prune(ctx)
	return snap, nil
}

func (p *Poller) prune(ctx context.Context) {
	if p.config.Retention == 0 {
		return
	}

	cutoff := p.now().Add(-p.config.Retention)
	deleteBefore := p.store.DeleteSnapshotsBefore
	if p.config.KeepUnpublished {
		deleteBefore = p.store.DeletePublishedSnapshotsBefore
	}
	n, err := deleteBefore(ctx, cutoff)
	if err != nil {
		p.logger.Error("failed to prune snapshots", "error", err)
		return
	}
	if n > 0 {
		p.logger.Info("pruned old snapshots", "count", n, "before", cutoff)
	}
}
