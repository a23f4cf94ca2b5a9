package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/artpar/agrotel/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

var baseTime = time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)

func newTestSnapshot(t *testing.T, fetchedAt time.Time) *domain.Snapshot {
	t.Helper()
	tel := domain.Telemetry{
		Time:        fetchedAt.UTC().Format(domain.TelemetryTimeLayout),
		Location:    "Hanoi",
		Temperature: domain.Float(28.4),
		Humidity:    domain.Float(80),
		WeatherDesc: "Nắng",
		Crop:        "Rau muống",
	}
	tel.Hours[0] = domain.HourSlot{Present: true, Temperature: domain.Float(28.4), WeatherDesc: "Nắng"}
	snap, err := domain.NewSnapshot(tel, fetchedAt)
	require.NoError(t, err)
	return snap
}

func createTestSnapshot(t *testing.T, s Store, fetchedAt time.Time) *domain.Snapshot {
	t.Helper()
	snap := newTestSnapshot(t, fetchedAt)
	require.NoError(t, s.CreateSnapshot(context.Background(), snap))
	return snap
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestNewSQLiteStore_FileDSNWithParams(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agrotel.db")
	s, err := NewSQLiteStore("file:" + path + "?_journal_mode=WAL")
	require.NoError(t, err)
	defer s.Close()

	snap := createTestSnapshot(t, s, baseTime)
	got, err := s.GetSnapshot(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, got.ID)

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestNewSQLiteStore_PingErrorCarriesCause(t *testing.T) {
	// The parent is a regular file, so the database cannot be created.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	_, err := NewSQLiteStore(filepath.Join(blocker, "agrotel.db"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionFailed)
	assert.Contains(t, err.Error(), "failed to ping database: ")
	assert.Greater(t, len(err.Error()), len("NewSQLiteStore: failed to ping database: "))
}

func TestWithBusyTimeout(t *testing.T) {
	tests := []struct {
		dsn      string
		expected string
	}{
		{":memory:", ":memory:?_busy_timeout=5000"},
		{"/app/data/agrotel.db", "/app/data/agrotel.db?_busy_timeout=5000"},
		{"file:/app/data/x.db?_journal_mode=WAL", "file:/app/data/x.db?_journal_mode=WAL&_busy_timeout=5000"},
		{"file:/app/data/x.db?_busy_timeout=100", "file:/app/data/x.db?_busy_timeout=100"},
	}

	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			assert.Equal(t, tt.expected, withBusyTimeout(tt.dsn))
		})
	}
}

// =============================================================================
// Snapshot CRUD Tests
// =============================================================================

func TestCreateSnapshot_Success(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	snap := createTestSnapshot(t, s, baseTime)

	retrieved, err := s.GetSnapshot(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, retrieved.ID)
	assert.Equal(t, "Hanoi", retrieved.Location)
	assert.Equal(t, snap.Telemetry, retrieved.Telemetry)
	assert.True(t, snap.FetchedAt.Equal(retrieved.FetchedAt))
	assert.Nil(t, retrieved.PublishedAt)
}

func TestCreateSnapshot_DuplicateID(t *testing.T) {
	s := setupTestStore(t)
	snap := createTestSnapshot(t, s, baseTime)

	err := s.CreateSnapshot(context.Background(), snap)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateID))
}

func TestGetSnapshot_NotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetSnapshot(context.Background(), "snap_missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var storeErr *StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "GetSnapshot", storeErr.Op)
	assert.Equal(t, "snap_missing", storeErr.ID)
}

func TestGetLatestSnapshot_Empty(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetLatestSnapshot(context.Background())
	assert.True(t, IsNotFound(err))
}

func TestGetLatestSnapshot_ReturnsNewestFetch(t *testing.T) {
	s := setupTestStore(t)

	createTestSnapshot(t, s, baseTime)
	newest := createTestSnapshot(t, s, baseTime.Add(2*time.Hour))
	createTestSnapshot(t, s, baseTime.Add(time.Hour))

	latest, err := s.GetLatestSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, newest.ID, latest.ID)
}

func TestListSnapshots_NewestFirstWithPagination(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		snap := createTestSnapshot(t, s, baseTime.Add(time.Duration(i)*time.Minute))
		ids = append(ids, snap.ID)
	}

	page, err := s.ListSnapshots(ctx, ListOptions{Limit: 2, Offset: 0})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[4], page[0].ID)
	assert.Equal(t, ids[3], page[1].ID)

	page, err = s.ListSnapshots(ctx, ListOptions{Limit: 2, Offset: 4})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[0], page[0].ID)
}

func TestListSnapshots_SubMillisecondOrdering(t *testing.T) {
	s := setupTestStore(t)

	first := createTestSnapshot(t, s, baseTime.Add(100*time.Millisecond))
	second := createTestSnapshot(t, s, baseTime.Add(120*time.Millisecond))

	page, err := s.ListSnapshots(context.Background(), DefaultListOptions())
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, second.ID, page[0].ID)
	assert.Equal(t, first.ID, page[1].ID)
}

// =============================================================================
// Publishing Tests
// =============================================================================

func TestGetUnpublishedSnapshots_OldestFirst(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	later := createTestSnapshot(t, s, baseTime.Add(time.Hour))
	earlier := createTestSnapshot(t, s, baseTime)

	pending, err := s.GetUnpublishedSnapshots(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, earlier.ID, pending[0].ID)
	assert.Equal(t, later.ID, pending[1].ID)
}

func TestMarkSnapshotsPublished(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	a := createTestSnapshot(t, s, baseTime)
	b := createTestSnapshot(t, s, baseTime.Add(time.Minute))
	c := createTestSnapshot(t, s, baseTime.Add(2*time.Minute))

	publishedAt := baseTime.Add(time.Hour)
	require.NoError(t, s.MarkSnapshotsPublished(ctx, []string{a.ID, b.ID}, publishedAt))

	pending, err := s.GetUnpublishedSnapshots(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, c.ID, pending[0].ID)

	got, err := s.GetSnapshot(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PublishedAt)
	assert.True(t, publishedAt.Equal(*got.PublishedAt))
	assert.True(t, got.IsPublished())
}

func TestMarkSnapshotsPublished_EmptyIDs(t *testing.T) {
	s := setupTestStore(t)
	assert.NoError(t, s.MarkSnapshotsPublished(context.Background(), nil, baseTime))
}

// =============================================================================
// Retention Tests
// =============================================================================

func TestDeleteSnapshotsBefore(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	createTestSnapshot(t, s, baseTime)
	createTestSnapshot(t, s, baseTime.Add(time.Hour))
	kept := createTestSnapshot(t, s, baseTime.Add(3*time.Hour))

	n, err := s.DeleteSnapshotsBefore(ctx, baseTime.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	remaining, err := s.ListSnapshots(ctx, DefaultListOptions())
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, kept.ID, remaining[0].ID)
}

func TestDeletePublishedSnapshotsBefore_KeepsBacklog(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	published := createTestSnapshot(t, s, baseTime)
	backlog := createTestSnapshot(t, s, baseTime.Add(time.Hour))
	recent := createTestSnapshot(t, s, baseTime.Add(3*time.Hour))
	require.NoError(t, s.MarkSnapshotsPublished(ctx, []string{published.ID, recent.ID}, baseTime.Add(4*time.Hour)))

	n, err := s.DeletePublishedSnapshotsBefore(ctx, baseTime.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.GetSnapshot(ctx, published.ID)
	assert.True(t, IsNotFound(err))
	_, err = s.GetSnapshot(ctx, backlog.ID)
	assert.NoError(t, err)
	_, err = s.GetSnapshot(ctx, recent.ID)
	assert.NoError(t, err)
}

func TestCountSnapshots(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	n, err := s.CountSnapshots(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	for i := 0; i < 3; i++ {
		createTestSnapshot(t, s, baseTime.Add(time.Duration(i)*time.Minute))
	}

	n, err = s.CountSnapshots(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

// =============================================================================
// Transaction Tests
// =============================================================================

func TestWithTx_Commit(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	snap := newTestSnapshot(t, baseTime)

	err := s.WithTx(ctx, func(tx Store) error {
		return tx.CreateSnapshot(ctx, snap)
	})
	require.NoError(t, err)

	_, err = s.GetSnapshot(ctx, snap.ID)
	assert.NoError(t, err)
}

func TestWithTx_Rollback(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	snap := newTestSnapshot(t, baseTime)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx Store) error {
		require.NoError(t, tx.CreateSnapshot(ctx, snap))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetSnapshot(ctx, snap.ID)
	assert.True(t, IsNotFound(err))
}

func TestPing(t *testing.T) {
	s := setupTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}

// =============================================================================
// ListOptions Tests
// =============================================================================

func TestListOptions_Normalize(t *testing.T) {
	assert.Equal(t, ListOptions{Limit: 100, Offset: 0}, ListOptions{Limit: 0, Offset: -3}.Normalize())
	assert.Equal(t, ListOptions{Limit: 1000, Offset: 5}, ListOptions{Limit: 5000, Offset: 5}.Normalize())
	assert.Equal(t, ListOptions{Limit: 20, Offset: 40}, ListOptions{Limit: 20, Offset: 40}.Normalize())
}
