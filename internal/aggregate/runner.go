package aggregate

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/riftlens/internal/merge"
	"github.com/JakeFAU/riftlens/internal/progress"
	"github.com/JakeFAU/riftlens/internal/riftlens"
)

// Runner recomputes the derived structures of every stored report.
type Runner struct {
	backend   riftlens.ReportStore
	merger    *merge.Store
	threshold float64
	pageSize  int
	logger    *zap.Logger
}

// RunnerConfig holds Runner configuration.
type RunnerConfig struct {
	Threshold float64
	PageSize  int
}

// NewRunner builds a Runner that scans backend and writes through merger.
func NewRunner(backend riftlens.ReportStore, merger *merge.Store, cfg RunnerConfig, logger *zap.Logger) *Runner {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultWorstKDAThreshold
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = riftlens.DefaultScanPageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{backend: backend, merger: merger, threshold: cfg.Threshold, pageSize: cfg.PageSize, logger: logger}
}

// Run walks the whole store. Entities with an empty history are skipped;
// store failures abort the run.
func (r *Runner) Run(ctx context.Context, run *progress.Run) (progress.Counts, error) {
	err := riftlens.ScanAll(ctx, r.backend, r.pageSize, func(rep riftlens.EntityReport) error {
		start := time.Now()
		if len(rep.MatchHistory) == 0 {
			run.Entity(rep.ID, progress.ResultSkipped, 0, time.Since(start), "empty history")
			return nil
		}
		changed, err := r.Refresh(ctx, rep.ID)
		if err != nil {
			return err
		}
		result := progress.ResultSkipped
		if changed {
			result = progress.ResultUpdated
		}
		run.Entity(rep.ID, result, len(rep.MatchHistory), time.Since(start), "")
		return nil
	})
	if err != nil {
		return run.Fail(err), fmt.Errorf("aggregate: %w", err)
	}
	return run.Done(), nil
}

// Refresh recomputes one entity's report under its merge lock.
func (r *Runner) Refresh(ctx context.Context, id riftlens.EntityID) (bool, error) {
	var changed bool
	_, err := r.merger.Update(ctx, id, func(rep *riftlens.EntityReport) (bool, error) {
		changed = Refresh(rep, r.threshold)
		return changed, nil
	})
	if err != nil {
		return false, fmt.Errorf("refresh %s: %w", id, err)
	}
	if changed {
		r.logger.Debug("aggregates refreshed", zap.String("puuid", id))
	}
	return changed, nil
}
