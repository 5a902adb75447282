// Package worker implements the ingest loop: for every queued manifest entry
// it lists recent matches, fetches and normalizes the new ones, merges them
// into the entity's report and refreshes its aggregates.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/riftlens/internal/aggregate"
	"github.com/JakeFAU/riftlens/internal/merge"
	"github.com/JakeFAU/riftlens/internal/metrics"
	"github.com/JakeFAU/riftlens/internal/normalize"
	"github.com/JakeFAU/riftlens/internal/progress"
	"github.com/JakeFAU/riftlens/internal/publisher"
	"github.com/JakeFAU/riftlens/internal/riftlens"
)

// DefaultMatchesPerEntity is how many recent matches are listed per entity.
const DefaultMatchesPerEntity = 20

// Config controls Worker behavior.
type Config struct {
	MatchesPerEntity int
	// AllParticipants also merges each match into the reports of the other
	// nine participants.
	AllParticipants   bool
	WorstKDAThreshold float64
	// Topic enables report.updated notifications when set.
	Topic string
}

// Worker consumes queue items and ingests one entity per item.
type Worker struct {
	queue     riftlens.Queue
	client    riftlens.TelemetryClient
	details   *DetailCache
	merger    *merge.Store
	publisher riftlens.Publisher
	clock     riftlens.Clock
	run       *progress.Run
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. details may be shared between workers of one run;
// nil gets a private cache.
func New(
	queue riftlens.Queue,
	client riftlens.TelemetryClient,
	details *DetailCache,
	merger *merge.Store,
	publisher riftlens.Publisher,
	clock riftlens.Clock,
	run *progress.Run,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.MatchesPerEntity <= 0 {
		cfg.MatchesPerEntity = DefaultMatchesPerEntity
	}
	if cfg.WorstKDAThreshold <= 0 {
		cfg.WorstKDAThreshold = aggregate.DefaultWorstKDAThreshold
	}
	if details == nil {
		details = NewDetailCache(client)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:     queue,
		client:    client,
		details:   details,
		merger:    merger,
		publisher: publisher,
		clock:     clock,
		run:       run,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run consumes queue items until the queue is closed and drained (nil), the
// context ends (its error) or the store becomes unavailable (fatal error).
func (w *Worker) Run(ctx context.Context) error {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, riftlens.ErrQueueClosed) {
				return nil
			}
			if ctx.Err() != nil {
				return fmt.Errorf("worker stopped: %w", ctx.Err())
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued entity", zap.String("puuid", item.Entity.ID))
		if err := w.Process(ctx, item.Entity); err != nil {
			return err
		}
	}
}

// Process ingests one entity. Telemetry failures skip the entity or the
// match and are reported through progress; only store failures and
// cancellation are returned.
func (w *Worker) Process(ctx context.Context, entity riftlens.ManifestEntry) error {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	start := time.Now()
	id := entity.ID
	logger := w.logger.With(zap.String("puuid", id), zap.String("player", entity.DisplayName))

	current, _, err := w.merger.Get(ctx, id)
	if err != nil {
		w.run.Entity(id, progress.ResultFailed, 0, time.Since(start), "store unavailable")
		return err
	}

	matchIDs, err := w.client.ListRecentMatches(ctx, id, w.cfg.MatchesPerEntity)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ingest %s: %w", id, ctx.Err())
		}
		logger.Warn("list matches failed, entity skipped", zap.Error(err))
		w.run.Entity(id, progress.ResultFailed, 0, time.Since(start), reason(err))
		return nil
	}

	var appended, skipped, failed int
	for _, matchID := range matchIDs {
		if current.HasMatch(matchID) {
			skipped++
			continue
		}
		outcome, err := w.ingestMatch(ctx, entity, matchID, logger)
		switch {
		case err == nil && outcome == merge.OutcomeSkipped:
			skipped++
		case err == nil:
			appended++
		case isFatal(ctx, err):
			w.run.Entity(id, progress.ResultFailed, appended, time.Since(start), reason(err))
			return err
		default:
			failed++
			logger.Warn("match skipped", zap.String("match_id", matchID), zap.Error(err))
		}
	}

	report, err := w.refresh(ctx, id)
	if err != nil {
		w.run.Entity(id, progress.ResultFailed, appended, time.Since(start), reason(err))
		return err
	}
	if appended > 0 {
		w.publish(ctx, report, appended, logger)
	}

	result := progress.ResultSkipped
	if appended > 0 {
		result = progress.ResultUpdated
	}
	note := fmt.Sprintf("listed=%d appended=%d known=%d failed=%d", len(matchIDs), appended, skipped, failed)
	w.run.Entity(id, result, appended, time.Since(start), note)
	logger.Info("entity ingested",
		zap.Int("listed", len(matchIDs)),
		zap.Int("appended", appended),
		zap.Int("known", skipped),
		zap.Int("failed", failed),
		zap.Int("history", len(report.MatchHistory)),
	)
	return nil
}

func (w *Worker) ingestMatch(
	ctx context.Context,
	entity riftlens.ManifestEntry,
	matchID string,
	logger *zap.Logger,
) (merge.Outcome, error) {
	raw, err := w.details.Get(ctx, matchID)
	if err != nil {
		return "", fmt.Errorf("fetch match: %w", err)
	}
	if raw.Metadata.MatchID == "" {
		raw.Metadata.MatchID = matchID
	}
	rec, warnings, err := normalize.Match(raw, entity.ID)
	if err != nil {
		return "", fmt.Errorf("normalize match: %w", err)
	}
	if len(warnings) > 0 {
		logger.Warn("malformed values coerced",
			zap.String("match_id", matchID),
			zap.Strings("warnings", warningStrings(warnings)),
		)
	}

	outcome, err := w.merger.Upsert(ctx, entity.ID, entity.DisplayName, rec)
	if err != nil {
		return "", err
	}
	if w.cfg.AllParticipants {
		if err := w.fanOutParticipants(ctx, entity.ID, rec, logger); err != nil {
			return "", err
		}
	}
	return outcome, nil
}

// fanOutParticipants merges rec into every other participant's report.
func (w *Worker) fanOutParticipants(ctx context.Context, owner riftlens.EntityID, rec riftlens.MatchRecord, logger *zap.Logger) error {
	for _, p := range rec.Participants {
		if p.PUUID == "" || p.PUUID == owner {
			continue
		}
		other, ok := rec.ForPlayer(p.PUUID)
		if !ok {
			continue
		}
		outcome, err := w.merger.Upsert(ctx, p.PUUID, "", other)
		if err != nil {
			return err
		}
		if outcome == merge.OutcomeSkipped {
			continue
		}
		if _, err := w.refresh(ctx, p.PUUID); err != nil {
			return err
		}
		logger.Debug("participant report updated", zap.String("participant", p.PUUID), zap.String("outcome", string(outcome)))
	}
	return nil
}

// refresh recomputes the entity's aggregates and returns the stored report.
func (w *Worker) refresh(ctx context.Context, id riftlens.EntityID) (riftlens.EntityReport, error) {
	report, err := w.merger.Update(ctx, id, func(r *riftlens.EntityReport) (bool, error) {
		return aggregate.Refresh(r, w.cfg.WorstKDAThreshold), nil
	})
	if err != nil {
		return riftlens.EntityReport{}, fmt.Errorf("refresh aggregates: %w", err)
	}
	return report, nil
}

func (w *Worker) publish(ctx context.Context, report riftlens.EntityReport, appended int, logger *zap.Logger) {
	if w.cfg.Topic == "" || w.publisher == nil {
		return
	}
	msg := publisher.NewReportUpdated(report, appended, w.now())
	id, err := w.publisher.Publish(ctx, w.cfg.Topic, msg)
	if err != nil {
		// Notifications are best effort; the report itself is already durable.
		logger.Warn("publish report update failed", zap.Error(err))
		return
	}
	logger.Debug("report update published", zap.String("message_id", id))
}

func (w *Worker) now() time.Time {
	if w.clock == nil {
		return time.Now()
	}
	return w.clock.Now()
}

// isFatal reports whether err must abort the run.
func isFatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, riftlens.ErrStoreUnavailable)
}

func reason(err error) string {
	switch {
	case errors.Is(err, riftlens.ErrNotFound):
		return "not found"
	case errors.Is(err, riftlens.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, riftlens.ErrStoreUnavailable):
		return "store unavailable"
	default:
		return err.Error()
	}
}

func warningStrings(ws []normalize.Warning) []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, strings.TrimSpace(w.String()))
	}
	return out
}
