// Package backfill holds the whole-store passes that run outside ingest:
// widening stored records with full match detail, importing legacy report
// files and exporting reports to the artifact store.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/riftlens/internal/aggregate"
	"github.com/JakeFAU/riftlens/internal/merge"
	"github.com/JakeFAU/riftlens/internal/normalize"
	"github.com/JakeFAU/riftlens/internal/progress"
	"github.com/JakeFAU/riftlens/internal/riftlens"
)

// MatchSource returns raw match detail. worker.DetailCache satisfies it.
type MatchSource interface {
	Get(ctx context.Context, matchID string) (riftlens.RawMatch, error)
}

// Widener enriches stored records that lack the participant set or the
// player's own statistics.
type Widener struct {
	backend   riftlens.ReportStore
	merger    *merge.Store
	source    MatchSource
	threshold float64
	pageSize  int
	logger    *zap.Logger
}

// NewWidener builds a Widener.
func NewWidener(backend riftlens.ReportStore, merger *merge.Store, source MatchSource, threshold float64, logger *zap.Logger) *Widener {
	if threshold <= 0 {
		threshold = aggregate.DefaultWorstKDAThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Widener{
		backend:   backend,
		merger:    merger,
		source:    source,
		threshold: threshold,
		pageSize:  riftlens.DefaultScanPageSize,
		logger:    logger,
	}
}

// NeedsWidening reports whether rec is missing detail a fetch could supply.
func NeedsWidening(rec riftlens.MatchRecord) bool {
	return rec.Player == nil || len(rec.Participants) == 0 || rec.GameDuration == 0
}

// Run widens every stored report. Telemetry failures skip the record; store
// failures abort.
func (w *Widener) Run(ctx context.Context, run *progress.Run) (progress.Counts, error) {
	err := riftlens.ScanAll(ctx, w.backend, w.pageSize, func(rep riftlens.EntityReport) error {
		start := time.Now()
		filled, failed, err := w.widenReport(ctx, rep)
		if err != nil {
			run.Entity(rep.ID, progress.ResultFailed, filled, time.Since(start), err.Error())
			return err
		}
		result := progress.ResultSkipped
		if filled > 0 {
			result = progress.ResultUpdated
		}
		run.Entity(rep.ID, result, filled, time.Since(start), fmt.Sprintf("widened=%d failed=%d", filled, failed))
		return nil
	})
	if err != nil {
		return run.Fail(err), fmt.Errorf("widen: %w", err)
	}
	return run.Done(), nil
}

func (w *Widener) widenReport(ctx context.Context, rep riftlens.EntityReport) (filled, failed int, err error) {
	logger := w.logger.With(zap.String("puuid", rep.ID))
	for _, rec := range rep.MatchHistory {
		if !NeedsWidening(rec) {
			continue
		}
		raw, err := w.source.Get(ctx, rec.MatchID)
		if err != nil {
			if ctx.Err() != nil {
				return filled, failed, fmt.Errorf("widen %s: %w", rep.ID, ctx.Err())
			}
			failed++
			logger.Warn("match detail unavailable, record kept", zap.String("match_id", rec.MatchID), zap.Error(err))
			continue
		}
		if raw.Metadata.MatchID == "" {
			raw.Metadata.MatchID = rec.MatchID
		}
		partial, warnings, err := normalize.Match(raw, rep.ID)
		if err != nil {
			failed++
			logger.Warn("record not widened", zap.String("match_id", rec.MatchID), zap.Error(err))
			continue
		}
		if len(warnings) > 0 {
			logger.Warn("malformed values coerced", zap.String("match_id", rec.MatchID), zap.Int("warnings", len(warnings)))
		}
		res, err := w.merger.Widen(ctx, rep.ID, partial)
		switch {
		case errors.Is(err, merge.ErrMatchNotInHistory):
			continue
		case err != nil:
			return filled, failed, err
		}
		if len(res.Filled) > 0 {
			filled++
		}
	}
	if filled > 0 {
		if _, err := w.merger.Update(ctx, rep.ID, func(r *riftlens.EntityReport) (bool, error) {
			return aggregate.Refresh(r, w.threshold), nil
		}); err != nil {
			return filled, failed, fmt.Errorf("refresh aggregates: %w", err)
		}
	}
	return filled, failed, nil
}
