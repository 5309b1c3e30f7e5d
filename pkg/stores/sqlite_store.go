package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		path: cfg.Path,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Foreign keys are a connection-level setting.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// BeginTx starts a new transaction.
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
}

// CommitTx commits a transaction.
func (s *SQLiteStore) CommitTx(tx *sql.Tx) error {
	return tx.Commit()
}

// RollbackTx rolls back a transaction.
func (s *SQLiteStore) RollbackTx(tx *sql.Tx) error {
	return tx.Rollback()
}

// UpsertArtifact inserts or updates an artifact record keyed by location.
func (s *SQLiteStore) UpsertArtifact(ctx context.Context, record *ArtifactRecord) error {
	query := `
		INSERT INTO artifacts (location, container, version, state, error, size_bytes, fetched_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(location) DO UPDATE SET
			container = excluded.container,
			version = excluded.version,
			state = excluded.state,
			error = excluded.error,
			size_bytes = excluded.size_bytes,
			fetched_at = excluded.fetched_at,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		record.Location,
		record.Container,
		record.Version,
		record.State,
		record.Error,
		record.SizeBytes,
		record.FetchedAt,
		record.CreatedAt,
		record.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert artifact: %w", err)
	}

	return nil
}

// GetArtifact retrieves an artifact record by location.
func (s *SQLiteStore) GetArtifact(ctx context.Context, location string) (*ArtifactRecord, error) {
	query := `
		SELECT location, container, version, state, error, size_bytes, fetched_at, created_at, updated_at
		FROM artifacts
		WHERE location = ?
	`

	record := &ArtifactRecord{}
	err := s.db.QueryRowContext(ctx, query, location).Scan(
		&record.Location,
		&record.Container,
		&record.Version,
		&record.State,
		&record.Error,
		&record.SizeBytes,
		&record.FetchedAt,
		&record.CreatedAt,
		&record.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("artifact not found: %s", location)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}

	return record, nil
}

// ListArtifacts lists artifact records with pagination.
func (s *SQLiteStore) ListArtifacts(ctx context.Context, limit, offset int) ([]*ArtifactRecord, error) {
	query := `
		SELECT location, container, version, state, error, size_bytes, fetched_at, created_at, updated_at
		FROM artifacts
		ORDER BY fetched_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	records := []*ArtifactRecord{}
	for rows.Next() {
		record := &ArtifactRecord{}
		err := rows.Scan(
			&record.Location,
			&record.Container,
			&record.Version,
			&record.State,
			&record.Error,
			&record.SizeBytes,
			&record.FetchedAt,
			&record.CreatedAt,
			&record.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating artifacts: %w", err)
	}

	return records, nil
}

// DeleteArtifact deletes an artifact record by location.
func (s *SQLiteStore) DeleteArtifact(ctx context.Context, location string) error {
	query := `DELETE FROM artifacts WHERE location = ?`

	result, err := s.db.ExecContext(ctx, query, location)
	if err != nil {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("artifact not found: %s", location)
	}

	return nil
}

// CreateResolution records the start of a resolution request.
func (s *SQLiteStore) CreateResolution(ctx context.Context, record *ResolutionRecord) error {
	query := `
		INSERT INTO resolutions (id, remote, export, location, state, error, started_at, finished_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.Remote,
		record.Export,
		record.Location,
		record.State,
		record.Error,
		record.StartedAt,
		record.FinishedAt,
		record.DurationMS,
	)

	if err != nil {
		return fmt.Errorf("failed to create resolution: %w", err)
	}

	return nil
}

// FinishResolution marks a resolution request terminal. Duration is
// computed from the stored start time.
func (s *SQLiteStore) FinishResolution(ctx context.Context, id string, state ResolutionState, errMsg *string) error {
	var startedAt time.Time
	err := s.db.QueryRowContext(ctx, `SELECT started_at FROM resolutions WHERE id = ?`, id).Scan(&startedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("resolution not found: %s", id)
	}
	if err != nil {
		return fmt.Errorf("failed to finish resolution: %w", err)
	}

	now := time.Now().UTC()
	durationMS := now.Sub(startedAt).Milliseconds()

	query := `
		UPDATE resolutions
		SET state = ?, error = ?, finished_at = ?, duration_ms = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, state, errMsg, now, durationMS, id)
	if err != nil {
		return fmt.Errorf("failed to finish resolution: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("resolution not found: %s", id)
	}

	return nil
}

// GetResolution retrieves a resolution record by ID.
func (s *SQLiteStore) GetResolution(ctx context.Context, id string) (*ResolutionRecord, error) {
	query := `
		SELECT id, remote, export, location, state, error, started_at, finished_at, duration_ms
		FROM resolutions
		WHERE id = ?
	`

	record := &ResolutionRecord{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&record.ID,
		&record.Remote,
		&record.Export,
		&record.Location,
		&record.State,
		&record.Error,
		&record.StartedAt,
		&record.FinishedAt,
		&record.DurationMS,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("resolution not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resolution: %w", err)
	}

	return record, nil
}

// ListResolutions lists resolution records, optionally filtered by remote.
func (s *SQLiteStore) ListResolutions(ctx context.Context, remote *string, limit, offset int) ([]*ResolutionRecord, error) {
	query := `
		SELECT id, remote, export, location, state, error, started_at, finished_at, duration_ms
		FROM resolutions
		WHERE (? IS NULL OR remote = ?)
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, remote, remote, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list resolutions: %w", err)
	}
	defer rows.Close()

	records := []*ResolutionRecord{}
	for rows.Next() {
		record := &ResolutionRecord{}
		err := rows.Scan(
			&record.ID,
			&record.Remote,
			&record.Export,
			&record.Location,
			&record.State,
			&record.Error,
			&record.StartedAt,
			&record.FinishedAt,
			&record.DurationMS,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resolution: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resolutions: %w", err)
	}

	return records, nil
}

// PruneResolutions deletes resolution records started before the cutoff.
func (s *SQLiteStore) PruneResolutions(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM resolutions WHERE started_at < ?`

	result, err := s.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune resolutions: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// UpsertShared inserts or updates a shared dependency provenance record.
func (s *SQLiteStore) UpsertShared(ctx context.Context, record *SharedRecord) error {
	query := `
		INSERT INTO shared_deps (name, version, origin, consumers, provided_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			version = excluded.version,
			origin = excluded.origin,
			consumers = excluded.consumers,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		record.Name,
		record.Version,
		record.Origin,
		record.Consumers,
		record.ProvidedAt,
		record.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert shared dependency: %w", err)
	}

	return nil
}

// GetShared retrieves a shared dependency provenance record by name.
func (s *SQLiteStore) GetShared(ctx context.Context, name string) (*SharedRecord, error) {
	query := `
		SELECT name, version, origin, consumers, provided_at, updated_at
		FROM shared_deps
		WHERE name = ?
	`

	record := &SharedRecord{}
	err := s.db.QueryRowContext(ctx, query, name).Scan(
		&record.Name,
		&record.Version,
		&record.Origin,
		&record.Consumers,
		&record.ProvidedAt,
		&record.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("shared dependency not found: %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shared dependency: %w", err)
	}

	return record, nil
}

// ListShared lists shared dependency provenance records with pagination.
func (s *SQLiteStore) ListShared(ctx context.Context, limit, offset int) ([]*SharedRecord, error) {
	query := `
		SELECT name, version, origin, consumers, provided_at, updated_at
		FROM shared_deps
		ORDER BY provided_at ASC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list shared dependencies: %w", err)
	}
	defer rows.Close()

	records := []*SharedRecord{}
	for rows.Next() {
		record := &SharedRecord{}
		err := rows.Scan(
			&record.Name,
			&record.Version,
			&record.Origin,
			&record.Consumers,
			&record.ProvidedAt,
			&record.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan shared dependency: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating shared dependencies: %w", err)
	}

	return records, nil
}

// AppendEvent appends an event record to the log.
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *EventRecord) error {
	query := `
		INSERT INTO events (event_id, type, source, remote, export, location, shared, level, message, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		event.EventID,
		event.Type,
		event.Source,
		event.Remote,
		event.Export,
		event.Location,
		event.Shared,
		event.Level,
		event.Message,
		event.Details,
		event.Timestamp,
	)

	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get event ID: %w", err)
	}

	event.ID = id
	return nil
}

// GetEvents retrieves events with optional filters and pagination.
func (s *SQLiteStore) GetEvents(ctx context.Context, remote *string, level *EventLevel, limit, offset int) ([]*EventRecord, error) {
	query := `
		SELECT id, event_id, type, source, remote, export, location, shared, level, message, details, timestamp
		FROM events
		WHERE (? IS NULL OR remote = ?)
		  AND (? IS NULL OR level = ?)
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, remote, remote, level, level, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	events := []*EventRecord{}
	for rows.Next() {
		event := &EventRecord{}
		err := rows.Scan(
			&event.ID,
			&event.EventID,
			&event.Type,
			&event.Source,
			&event.Remote,
			&event.Export,
			&event.Location,
			&event.Shared,
			&event.Level,
			&event.Message,
			&event.Details,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// HealthCheck verifies the database connection is healthy.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
