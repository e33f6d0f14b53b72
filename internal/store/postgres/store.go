// Package postgres provides a pgx-backed run store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaycore/report-relay/internal/store"
)

// DB is the subset of pgxpool.Pool the store uses; pgxmock satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists run records in PostgreSQL.
type Store struct {
	db DB
}

// New wraps an existing connection pool.
func New(db DB) *Store {
	return &Store{db: db}
}

// Connect opens a pool against dsn and ensures the schema exists. The
// returned closer shuts the pool down.
func Connect(ctx context.Context, dsn string) (*Store, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := New(pool)
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

// EnsureSchema creates the runs table when absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS relay_runs (
	id             TEXT PRIMARY KEY,
	message_id     TEXT NOT NULL,
	conversation_id TEXT NOT NULL DEFAULT '',
	state          TEXT NOT NULL,
	error          TEXT NOT NULL DEFAULT '',
	file_name      TEXT NOT NULL DEFAULT '',
	target_label   TEXT NOT NULL DEFAULT '',
	upload_status  INT  NOT NULL DEFAULT 0,
	started_at     TIMESTAMPTZ NOT NULL,
	finished_at    TIMESTAMPTZ
)`
	if _, err := s.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const upsertSQL = `
INSERT INTO relay_runs
	(id, message_id, conversation_id, state, error, file_name, target_label, upload_status, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
	state = EXCLUDED.state,
	error = EXCLUDED.error,
	file_name = EXCLUDED.file_name,
	target_label = EXCLUDED.target_label,
	upload_status = EXCLUDED.upload_status,
	finished_at = EXCLUDED.finished_at`

// CreateRun inserts the run record.
func (s *Store) CreateRun(ctx context.Context, run store.Run) error {
	return s.upsert(ctx, run)
}

// UpdateRun upserts the run record at a state transition.
func (s *Store) UpdateRun(ctx context.Context, run store.Run) error {
	return s.upsert(ctx, run)
}

func (s *Store) upsert(ctx context.Context, run store.Run) error {
	if run.ID == "" {
		return fmt.Errorf("upsert run: empty id")
	}
	var finished *time.Time
	if !run.FinishedAt.IsZero() {
		finished = &run.FinishedAt
	}
	_, err := s.db.Exec(ctx, upsertSQL,
		run.ID,
		run.MessageID,
		run.ConversationID,
		run.State,
		run.Error,
		run.FileName,
		run.TargetLabel,
		run.UploadStatus,
		run.StartedAt,
		finished,
	)
	if err != nil {
		return fmt.Errorf("upsert run %s: %w", run.ID, err)
	}
	return nil
}

const selectColumns = `
SELECT id, message_id, conversation_id, state, error, file_name, target_label, upload_status, started_at, finished_at
FROM relay_runs`

// GetRun returns one run by id.
func (s *Store) GetRun(ctx context.Context, id string) (store.Run, error) {
	row := s.db.QueryRow(ctx, selectColumns+` WHERE id = $1`, id)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, fmt.Errorf("%w: %s", store.ErrNotFound, id)
		}
		return store.Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]store.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, selectColumns+` ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []store.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

func scanRun(row pgx.Row) (store.Run, error) {
	var run store.Run
	var finished *time.Time
	err := row.Scan(
		&run.ID,
		&run.MessageID,
		&run.ConversationID,
		&run.State,
		&run.Error,
		&run.FileName,
		&run.TargetLabel,
		&run.UploadStatus,
		&run.StartedAt,
		&finished,
	)
	if err != nil {
		return store.Run{}, err
	}
	if finished != nil {
		run.FinishedAt = *finished
	}
	return run, nil
}
