package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/riftlens/internal/store"
)

const defaultRunsTable = "runs"

// RunStore implements store.RunRepository on the report store's pool.
type RunStore struct {
	pool  pool
	table string
}

// NewRunStoreWithPool constructs a RunStore from an existing pool.
func NewRunStoreWithPool(p pool, table string) (*RunStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultRunsTable
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &RunStore{pool: p, table: name}, nil
}

// Runs returns a RunStore sharing this store's pool. Closing the ReportStore
// closes it too.
func (s *ReportStore) Runs() *RunStore {
	return &RunStore{pool: s.pool, table: defaultRunsTable}
}

// EnsureSchema creates the runs table when it does not exist.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id uuid PRIMARY KEY,
	kind text NOT NULL,
	started_at timestamptz NOT NULL,
	finished_at timestamptz,
	status text NOT NULL,
	processed bigint NOT NULL DEFAULT 0,
	updated bigint NOT NULL DEFAULT 0,
	skipped bigint NOT NULL DEFAULT 0,
	failed bigint NOT NULL DEFAULT 0,
	error_message text
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// StartRun inserts a running row; a row that already exists is left alone.
func (s *RunStore) StartRun(ctx context.Context, id uuid.UUID, kind string, startedAt time.Time) error {
	query := fmt.Sprintf(`
INSERT INTO %s (id, kind, started_at, status)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO NOTHING`, s.table)
	if _, err := s.pool.Exec(ctx, query, id, kind, startedAt, store.RunRunning); err != nil {
		return fmt.Errorf("failed to insert run start: %w", err)
	}
	return nil
}

// CompleteRun marks a run finished.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	id uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	counts store.RunCounts,
	errMsg *string,
) error {
	query := fmt.Sprintf(`
UPDATE %s
SET finished_at = $1, status = $2, processed = $3, updated = $4, skipped = $5, failed = $6, error_message = $7
WHERE id = $8`, s.table)
	tag, err := s.pool.Exec(ctx, query,
		finishedAt, status, counts.Processed, counts.Updated, counts.Skipped, counts.Failed, errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("complete run %s: %w", id, store.ErrRunNotFound)
	}
	return nil
}

const runColumns = `id, kind, started_at, finished_at, status, processed, updated, skipped, failed, error_message`

// GetRun retrieves a single run by its ID.
func (s *RunStore) GetRun(ctx context.Context, id uuid.UUID) (store.RunRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, runColumns, s.table)
	run, err := scanRun(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.RunRecord{}, store.ErrRunNotFound
	}
	if err != nil {
		return store.RunRecord{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs newest first, with optional status filtering.
func (s *RunStore) ListRuns(ctx context.Context, status *store.RunStatus, limit, offset int) ([]store.RunRecord, error) {
	query := fmt.Sprintf(`
SELECT %s FROM %s
WHERE ($1::text IS NULL OR status = $1)
ORDER BY started_at DESC
LIMIT $2 OFFSET $3`, runColumns, s.table)
	rows, err := s.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]store.RunRecord, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (store.RunRecord, error) {
	var run store.RunRecord
	err := row.Scan(
		&run.ID,
		&run.Kind,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.Counts.Processed,
		&run.Counts.Updated,
		&run.Counts.Skipped,
		&run.Counts.Failed,
		&run.ErrorMessage,
	)
	return run, err
}
