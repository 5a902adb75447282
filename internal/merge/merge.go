// Package merge applies idempotent read-modify-write updates to entity reports.
package merge

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/riftlens/internal/clock/system"
	"github.com/JakeFAU/riftlens/internal/metrics"
	"github.com/JakeFAU/riftlens/internal/riftlens"
	"go.uber.org/zap"
)

// Outcome is the result of an Upsert.
type Outcome string

// Upsert outcomes.
const (
	OutcomeCreated  Outcome = "created"
	OutcomeAppended Outcome = "appended"
	OutcomeSkipped  Outcome = "skipped"
)

// DefaultMaxConflictRetries bounds re-runs of a read-modify-write after a version conflict.
const DefaultMaxConflictRetries = 3

// ErrMatchNotInHistory is returned by Widen when the report has no record for the match.
var ErrMatchNotInHistory = errors.New("match not in history")

// Store serializes writes per entity and retries on version conflicts.
type Store struct {
	backend    riftlens.ReportStore
	locks      *keyLock
	clock      riftlens.Clock
	maxRetries int
	logger     *zap.Logger
}

// Option customizes a Store.
type Option func(*Store)

// WithClock sets the clock used for UpdatedAt.
func WithClock(c riftlens.Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithMaxConflictRetries overrides DefaultMaxConflictRetries.
func WithMaxConflictRetries(n int) Option {
	return func(s *Store) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New wraps backend.
func New(backend riftlens.ReportStore, opts ...Option) *Store {
	s := &Store{
		backend:    backend,
		locks:      newKeyLock(),
		clock:      system.New(),
		maxRetries: DefaultMaxConflictRetries,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get reads a report from the backend.
func (s *Store) Get(ctx context.Context, id riftlens.EntityID) (riftlens.EntityReport, bool, error) {
	r, ok, err := s.backend.Get(ctx, id)
	if err != nil {
		return riftlens.EntityReport{}, false, storeErr("get", id, err)
	}
	return r, ok, nil
}

// Upsert appends rec to id's history unless its match id is already there.
func (s *Store) Upsert(ctx context.Context, id riftlens.EntityID, displayName string, rec riftlens.MatchRecord) (Outcome, error) {
	if rec.MatchID == "" {
		return "", fmt.Errorf("upsert %s: %w: match id is required", id, riftlens.ErrInvalidReport)
	}
	var outcome Outcome
	_, err := s.mutate(ctx, id, func(r *riftlens.EntityReport, exists bool) (bool, error) {
		if r.HasMatch(rec.MatchID) {
			outcome = OutcomeSkipped
			return false, nil
		}
		outcome = OutcomeAppended
		if !exists {
			outcome = OutcomeCreated
		}
		if r.DisplayName == "" {
			r.DisplayName = displayName
		}
		r.MatchHistory = append(r.MatchHistory, rec)
		return true, nil
	})
	if err != nil {
		return "", err
	}
	metrics.ObserveMergeOutcome(string(outcome))
	s.logger.Debug("upsert",
		zap.String("puuid", id),
		zap.String("match_id", rec.MatchID),
		zap.String("outcome", string(outcome)),
	)
	return outcome, nil
}

// Update runs fn against the current report under the entity's lock. fn
// returns false to skip the write. A missing report is passed as an empty one.
func (s *Store) Update(ctx context.Context, id riftlens.EntityID, fn func(r *riftlens.EntityReport) (bool, error)) (riftlens.EntityReport, error) {
	return s.mutate(ctx, id, func(r *riftlens.EntityReport, _ bool) (bool, error) {
		return fn(r)
	})
}

// Widen fills empty fields of the stored record that shares partial's match id.
// It never adds a history entry. Conflicting populated fields keep their old value.
func (s *Store) Widen(ctx context.Context, id riftlens.EntityID, partial riftlens.MatchRecord) (WidenResult, error) {
	var res WidenResult
	_, err := s.mutate(ctx, id, func(r *riftlens.EntityReport, exists bool) (bool, error) {
		idx := r.IndexOf(partial.MatchID)
		if !exists || idx < 0 {
			return false, fmt.Errorf("widen %s/%s: %w", id, partial.MatchID, ErrMatchNotInHistory)
		}
		res = widenRecord(&r.MatchHistory[idx], partial)
		return len(res.Filled) > 0, nil
	})
	if err != nil {
		return WidenResult{}, err
	}
	if len(res.Conflicts) > 0 {
		s.logger.Warn("widen conflicts kept stored values",
			zap.String("puuid", id),
			zap.String("match_id", partial.MatchID),
			zap.Strings("fields", res.Conflicts),
		)
	}
	return res, nil
}

// mutate loads, applies fn to a private copy, validates and conditionally writes.
func (s *Store) mutate(ctx context.Context, id riftlens.EntityID, fn func(r *riftlens.EntityReport, exists bool) (bool, error)) (riftlens.EntityReport, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return riftlens.EntityReport{}, fmt.Errorf("merge %s: %w", id, err)
		}
		current, exists, err := s.backend.Get(ctx, id)
		if err != nil {
			return riftlens.EntityReport{}, storeErr("get", id, err)
		}
		var next riftlens.EntityReport
		if exists {
			next = current.Clone()
		} else if next, err = riftlens.NewReport(id, ""); err != nil {
			return riftlens.EntityReport{}, fmt.Errorf("merge %s: %w", id, err)
		}

		write, err := fn(&next, exists)
		if err != nil || !write {
			return current, err
		}
		if err := next.Validate(); err != nil {
			return riftlens.EntityReport{}, fmt.Errorf("merge %s: %w", id, err)
		}
		expected := int64(0)
		if exists {
			expected = current.Version
		}
		next.ID = id
		next.Version = expected + 1
		next.UpdatedAt = s.clock.Now()

		err = s.backend.Put(ctx, next, expected)
		switch {
		case err == nil:
			return next, nil
		case errors.Is(err, riftlens.ErrVersionConflict) && attempt < s.maxRetries:
			s.logger.Debug("version conflict, retrying", zap.String("puuid", id), zap.Int("attempt", attempt+1))
			continue
		case errors.Is(err, riftlens.ErrVersionConflict):
			return riftlens.EntityReport{}, fmt.Errorf("merge %s: %w", id, err)
		default:
			return riftlens.EntityReport{}, storeErr("put", id, err)
		}
	}
}

func storeErr(op string, id riftlens.EntityID, err error) error {
	if errors.Is(err, riftlens.ErrStoreUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	return fmt.Errorf("%s %s: %w: %w", op, id, riftlens.ErrStoreUnavailable, err)
}
