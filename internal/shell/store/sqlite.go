package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/artpar/agrotel/internal/core/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeLayout is fixed-width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", withBusyTimeout(dsn))
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database: "+err.Error(), ErrConnectionFailed)
	}

	// In-memory databases are per-connection.
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database: "+err.Error(), ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// withBusyTimeout adds a 5s busy timeout unless the DSN already sets one.
func withBusyTimeout(dsn string) string {
	// go-sqlite3 accepts both _busy_timeout and _timeout.
	if strings.Contains(dsn, "_timeout=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&_busy_timeout=5000"
	}
	return dsn + "?_busy_timeout=5000"
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return NewStoreError("Ping", "", "", err.Error(), ErrConnectionFailed)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSnapshot(ctx context.Context, snapshot *domain.Snapshot) error {
	return createSnapshot(ctx, s.db, snapshot)
}

func (s *SQLiteStore) GetSnapshot(ctx context.Context, id string) (*domain.Snapshot, error) {
	return getSnapshot(ctx, s.db, id)
}

func (s *SQLiteStore) GetLatestSnapshot(ctx context.Context) (*domain.Snapshot, error) {
	return getLatestSnapshot(ctx, s.db)
}

func (s *SQLiteStore) ListSnapshots(ctx context.Context, opts ListOptions) ([]domain.Snapshot, error) {
	return listSnapshots(ctx, s.db, opts)
}

func (s *SQLiteStore) CountSnapshots(ctx context.Context) (int, error) {
	return countSnapshots(ctx, s.db)
}

func (s *SQLiteStore) GetUnpublishedSnapshots(ctx context.Context, limit int) ([]domain.Snapshot, error) {
	return getUnpublishedSnapshots(ctx, s.db, limit)
}

func (s *SQLiteStore) MarkSnapshotsPublished(ctx context.Context, ids []string, publishedAt time.Time) error {
	return markSnapshotsPublished(ctx, s.db, ids, publishedAt)
}

func (s *SQLiteStore) DeleteSnapshotsBefore(ctx context.Context, before time.Time) (int64, error) {
	return deleteSnapshotsBefore(ctx, s.db, before, false)
}

func (s *SQLiteStore) DeletePublishedSnapshotsBefore(ctx context.Context, before time.Time) (int64, error) {
	return deleteSnapshotsBefore(ctx, s.db, before, true)
}

// =============================================================================
// Transaction Support
// =============================================================================

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "", "failed to begin transaction", ErrTxFailed)
	}

	txS := &txSQLiteStore{tx: tx}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "", "failed to commit transaction", ErrTxFailed)
	}

	return nil
}

// =============================================================================
// Transaction Store
// =============================================================================

// txSQLiteStore implements Store within a transaction.
type txSQLiteStore struct {
	tx *sqlx.Tx
}

func (s *txSQLiteStore) CreateSnapshot(ctx context.Context, snapshot *domain.Snapshot) error {
	return createSnapshot(ctx, s.tx, snapshot)
}

func (s *txSQLiteStore) GetSnapshot(ctx context.Context, id string) (*domain.Snapshot, error) {
	return getSnapshot(ctx, s.tx, id)
}

func (s *txSQLiteStore) GetLatestSnapshot(ctx context.Context) (*domain.Snapshot, error) {
	return getLatestSnapshot(ctx, s.tx)
}

func (s *txSQLiteStore) ListSnapshots(ctx context.Context, opts ListOptions) ([]domain.Snapshot, error) {
	return listSnapshots(ctx, s.tx, opts)
}

func (s *txSQLiteStore) CountSnapshots(ctx context.Context) (int, error) {
	return countSnapshots(ctx, s.tx)
}

func (s *txSQLiteStore) GetUnpublishedSnapshots(ctx context.Context, limit int) ([]domain.Snapshot, error) {
	return getUnpublishedSnapshots(ctx, s.tx, limit)
}

func (s *txSQLiteStore) MarkSnapshotsPublished(ctx context.Context, ids []string, publishedAt time.Time) error {
	return markSnapshotsPublished(ctx, s.tx, ids, publishedAt)
}

func (s *txSQLiteStore) DeleteSnapshotsBefore(ctx context.Context, before time.Time) (int64, error) {
	return deleteSnapshotsBefore(ctx, s.tx, before, false)
}

func (s *txSQLiteStore) DeletePublishedSnapshotsBefore(ctx context.Context, before time.Time) (int64, error) {
	return deleteSnapshotsBefore(ctx, s.tx, before, true)
}

func (s *txSQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	// Already in a transaction
	return fn(s)
}

func (s *txSQLiteStore) Ping(ctx context.Context) error {
	return nil
}

func (s *txSQLiteStore) Close() error {
	return nil
}

// =============================================================================
// Snapshot Operations
// =============================================================================

// snapshotRow represents a snapshot row in the database.
type snapshotRow struct {
	ID          string  `db:"id"`
	Location    string  `db:"location"`
	Telemetry   string  `db:"telemetry"`
	FetchedAt   string  `db:"fetched_at"`
	PublishedAt *string `db:"published_at"`
	CreatedAt   string  `db:"created_at"`
}

func createSnapshot(ctx context.Context, exec executor, snapshot *domain.Snapshot) error {
	telemetryJSON, err := json.Marshal(snapshot.Telemetry)
	if err != nil {
		return NewStoreError("CreateSnapshot", "snapshot", snapshot.ID, "failed to serialize telemetry", ErrInvalidData)
	}

	var publishedAt *string
	if snapshot.PublishedAt != nil {
		s := formatTime(*snapshot.PublishedAt)
		publishedAt = &s
	}

	query := `
		INSERT INTO snapshots (id, location, telemetry, fetched_at, published_at, created_at)
		VALUES (:id, :location, :telemetry, :fetched_at, :published_at, :created_at)
	`

	row := snapshotRow{
		ID:          snapshot.ID,
		Location:    snapshot.Location,
		Telemetry:   string(telemetryJSON),
		FetchedAt:   formatTime(snapshot.FetchedAt),
		PublishedAt: publishedAt,
		CreatedAt:   formatTime(snapshot.CreatedAt),
	}

	if _, err := exec.NamedExecContext(ctx, query, row); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: snapshots.id") {
			return NewStoreError("CreateSnapshot", "snapshot", snapshot.ID, "snapshot with this ID already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateSnapshot", "snapshot", snapshot.ID, err.Error(), err)
	}

	return nil
}

func getSnapshot(ctx context.Context, exec executor, id string) (*domain.Snapshot, error) {
	var row snapshotRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM snapshots WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetSnapshot", "snapshot", id, "snapshot not found", ErrNotFound)
		}
		return nil, NewStoreError("GetSnapshot", "snapshot", id, err.Error(), err)
	}
	return rowToSnapshot(&row)
}

func getLatestSnapshot(ctx context.Context, exec executor) (*domain.Snapshot, error) {
	var row snapshotRow
	err := exec.GetContext(ctx, &row, `SELECT * FROM snapshots ORDER BY fetched_at DESC, created_at DESC LIMIT 1`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetLatestSnapshot", "snapshot", "", "no snapshots recorded", ErrNotFound)
		}
		return nil, NewStoreError("GetLatestSnapshot", "snapshot", "", err.Error(), err)
	}
	return rowToSnapshot(&row)
}

func listSnapshots(ctx context.Context, exec executor, opts ListOptions) ([]domain.Snapshot, error) {
	opts = opts.Normalize()
	query := `SELECT * FROM snapshots ORDER BY fetched_at DESC, created_at DESC LIMIT ? OFFSET ?`

	var rows []snapshotRow
	if err := exec.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset); err != nil {
		return nil, NewStoreError("ListSnapshots", "snapshot", "", err.Error(), err)
	}
	return rowsToSnapshots(rows)
}

func countSnapshots(ctx context.Context, exec executor) (int, error) {
	var n int
	if err := exec.GetContext(ctx, &n, `SELECT COUNT(*) FROM snapshots`); err != nil {
		return 0, NewStoreError("CountSnapshots", "snapshot", "", err.Error(), err)
	}
	return n, nil
}

func getUnpublishedSnapshots(ctx context.Context, exec executor, limit int) ([]domain.Snapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT * FROM snapshots WHERE published_at IS NULL ORDER BY fetched_at ASC, created_at ASC LIMIT ?`

	var rows []snapshotRow
	if err := exec.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, NewStoreError("GetUnpublishedSnapshots", "snapshot", "", err.Error(), err)
	}
	return rowsToSnapshots(rows)
}

func markSnapshotsPublished(ctx context.Context, exec executor, ids []string, publishedAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In(`UPDATE snapshots SET published_at = ? WHERE id IN (?)`, formatTime(publishedAt), ids)
	if err != nil {
		return NewStoreError("MarkSnapshotsPublished", "snapshot", "", err.Error(), err)
	}

	if _, err := exec.ExecContext(ctx, query, args...); err != nil {
		return NewStoreError("MarkSnapshotsPublished", "snapshot", "", err.Error(), err)
	}
	return nil
}

func deleteSnapshotsBefore(ctx context.Context, exec executor, before time.Time, publishedOnly bool) (int64, error) {
	op := "DeleteSnapshotsBefore"
	query := `DELETE FROM snapshots WHERE fetched_at < ?`
	if publishedOnly {
		op = "DeletePublishedSnapshotsBefore"
		query += ` AND published_at IS NOT NULL`
	}

	result, err := exec.ExecContext(ctx, query, formatTime(before))
	if err != nil {
		return 0, NewStoreError(op, "snapshot", "", err.Error(), err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// =============================================================================
// Row Conversion
// =============================================================================

func rowsToSnapshots(rows []snapshotRow) ([]domain.Snapshot, error) {
	snapshots := make([]domain.Snapshot, 0, len(rows))
	for i := range rows {
		snap, err := rowToSnapshot(&rows[i])
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, *snap)
	}
	return snapshots, nil
}

func rowToSnapshot(row *snapshotRow) (*domain.Snapshot, error) {
	snap := &domain.Snapshot{
		ID:       row.ID,
		Location: row.Location,
	}

	if err := json.Unmarshal([]byte(row.Telemetry), &snap.Telemetry); err != nil {
		return nil, NewStoreError("rowToSnapshot", "snapshot", row.ID, "failed to deserialize telemetry", ErrInvalidData)
	}

	var err error
	if snap.FetchedAt, err = parseTime(row.FetchedAt); err != nil {
		return nil, NewStoreError("rowToSnapshot", "snapshot", row.ID, "invalid fetched_at", ErrInvalidData)
	}
	if snap.CreatedAt, err = parseTime(row.CreatedAt); err != nil {
		return nil, NewStoreError("rowToSnapshot", "snapshot", row.ID, "invalid created_at", ErrInvalidData)
	}
	if row.PublishedAt != nil {
		t, err := parseTime(*row.PublishedAt)
		if err != nil {
			return nil, NewStoreError("rowToSnapshot", "snapshot", row.ID, "invalid published_at", ErrInvalidData)
		}
		snap.PublishedAt = &t
	}

	return snap, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
