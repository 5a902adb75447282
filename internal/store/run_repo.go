package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/riftlens/internal/riftlens"
)

// ErrRunNotFound signals that the requested run does not exist.
var ErrRunNotFound = fmt.Errorf("run record: %w", riftlens.ErrNotFound)

// RunStatus mirrors the runs.status column.
type RunStatus string

// Run statuses persisted in runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// RunCounts are the final totals of a run.
type RunCounts struct {
	Processed int64 `json:"processed"`
	Updated   int64 `json:"updated"`
	Skipped   int64 `json:"skipped"`
	Failed    int64 `json:"failed"`
}

// RunRecord models one row of the runs table.
type RunRecord struct {
	ID        uuid.UUID `json:"run_id"`
	Kind      string    `json:"kind"`
	StartedAt time.Time `json:"started_at"`
	// FinishedAt is nil while the run is still running.
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Status       RunStatus  `json:"status"`
	Counts       RunCounts  `json:"counts"`
	ErrorMessage *string    `json:"error,omitempty"`
}

// RunRepository persists run lifecycles.
type RunRepository interface {
	// StartRun records a running run. Repeated starts are no-ops.
	StartRun(ctx context.Context, id uuid.UUID, kind string, startedAt time.Time) error
	// CompleteRun marks the run finished with the provided status, totals and error.
	CompleteRun(ctx context.Context, id uuid.UUID, finishedAt time.Time, status RunStatus, counts RunCounts, errMsg *string) error
	// GetRun loads a single run or returns ErrRunNotFound.
	GetRun(ctx context.Context, id uuid.UUID) (RunRecord, error)
	// ListRuns returns runs, newest first, filtered by optional status.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]RunRecord, error)
}
