// Package frontier expands a seed list into the manifest of every player
// reachable through the seeds' recent matches.
//
// Expansion runs four phases, each fully drained before the next starts:
//
//  1. resolve seeds to ids (the crawl worklist);
//  2. list the recent matches of every worklist id;
//  3. fetch every match and collect participants not yet known;
//  4. resolve display names for those participants.
//
// Within a phase, items fan out to at most Config.Concurrency goroutines that
// share the caller's Throttle through the TelemetryClient. Results are merged
// in input order, so the manifest is identical for any concurrency.
package frontier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/JakeFAU/riftlens/internal/metrics"
	"github.com/JakeFAU/riftlens/internal/progress"
	"github.com/JakeFAU/riftlens/internal/riftlens"
)

// DefaultMatchesPerSeed is K, the number of recent matches listed per worklist entity.
const DefaultMatchesPerSeed = 5

// Phase names used in stats, logs and progress events.
const (
	PhaseResolveSeeds = "resolve_seeds"
	PhaseListMatches  = "list_matches"
	PhaseFetchMatches = "fetch_matches"
	PhaseResolveNames = "resolve_names"
)

// Config controls expansion.
type Config struct {
	MatchesPerSeed int
	Concurrency    int
	// ManifestPath is where the manifest is written in the artifact store.
	ManifestPath string
}

// PhaseStats summarizes one phase.
type PhaseStats struct {
	Name     string        `json:"name"`
	Items    int           `json:"items"`
	Failed   int64         `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// Result is the outcome of a crawl.
type Result struct {
	Manifest    []riftlens.ManifestEntry
	ManifestURI string
	Matches     int
	Stats       []PhaseStats
}

// Failures sums the failure counters of all phases.
func (r Result) Failures() int64 {
	var n int64
	for _, s := range r.Stats {
		n += s.Failed
	}
	return n
}

// Expander runs one crawl.
type Expander struct {
	client riftlens.TelemetryClient
	blobs  riftlens.BlobStore
	cfg    Config
	known  []riftlens.ManifestEntry
	run    *progress.Run
	logger *zap.Logger
}

// Option customizes an Expander.
type Option func(*Expander)

// WithKnown pre-populates the known set, typically from a previous manifest, so
// those players are not resolved again.
func WithKnown(entries []riftlens.ManifestEntry) Option {
	return func(e *Expander) {
		e.known = entries
	}
}

// WithRun attaches a progress recorder.
func WithRun(run *progress.Run) Option {
	return func(e *Expander) {
		e.run = run
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Expander) {
		if l != nil {
			e.logger = l
		}
	}
}

// New builds an Expander. blobs may be nil, in which case no manifest is written.
func New(client riftlens.TelemetryClient, blobs riftlens.BlobStore, cfg Config, opts ...Option) *Expander {
	if cfg.MatchesPerSeed <= 0 {
		cfg.MatchesPerSeed = DefaultMatchesPerSeed
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ManifestPath == "" {
		cfg.ManifestPath = DefaultManifestPath
	}
	e := &Expander{client: client, blobs: blobs, cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// entitySet is the insertion-ordered known-entity map.
type entitySet struct {
	mu      sync.Mutex
	order   []riftlens.EntityID
	entries map[riftlens.EntityID]riftlens.ManifestEntry
}

func newEntitySet() *entitySet {
	return &entitySet{entries: make(map[riftlens.EntityID]riftlens.ManifestEntry)}
}

func (s *entitySet) add(e riftlens.ManifestEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e.ID]; ok || e.ID == "" {
		return false
	}
	s.entries[e.ID] = e
	s.order = append(s.order, e.ID)
	return true
}

func (s *entitySet) has(id riftlens.EntityID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

func (s *entitySet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

func (s *entitySet) list() []riftlens.ManifestEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]riftlens.ManifestEntry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entries[id])
	}
	return out
}

// idSet is an insertion-ordered set of ids.
type idSet struct {
	mu    sync.Mutex
	order []string
	seen  map[string]struct{}
}

func newIDSet() *idSet {
	return &idSet{seen: make(map[string]struct{})}
}

func (s *idSet) add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[id]; ok || id == "" {
		return false
	}
	s.seen[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}

func (s *idSet) items() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Run expands seeds into the manifest and writes it to the artifact store.
// Item failures are counted and skipped; only cancellation and manifest write
// failures are returned.
func (e *Expander) Run(ctx context.Context, seeds []riftlens.Seed) (Result, error) {
	known := newEntitySet()
	matches := newIDSet()
	discovered := newIDSet()
	var res Result

	// Phase 1: seeds go first so they lead the manifest.
	worklist := make([]riftlens.EntityID, 0, len(seeds))
	stats, err := e.phase(ctx, PhaseResolveSeeds, func(ctx context.Context, failed *atomic.Int64) (int, error) {
		resolved := make([]*riftlens.ManifestEntry, len(seeds))
		err := fanOut(ctx, e.cfg.Concurrency, seeds, func(ctx context.Context, i int, seed riftlens.Seed) {
			acct, err := e.client.ResolveAccount(ctx, seed.Name, seed.Tag)
			if e.dropped(ctx, err, failed, PhaseResolveSeeds, zap.String("seed", seed.String())) {
				return
			}
			entry := riftlens.NewManifestEntry(acct.PUUID, seed.Name, seed.Tag)
			resolved[i] = &entry
		})
		for _, entry := range resolved {
			if entry != nil && known.add(*entry) {
				worklist = append(worklist, entry.ID)
			}
		}
		for _, entry := range e.known {
			known.add(entry)
		}
		return len(worklist), err
	})
	res.Stats = append(res.Stats, stats)
	if err != nil {
		return res, err
	}

	// Phase 2.
	stats, err = e.phase(ctx, PhaseListMatches, func(ctx context.Context, failed *atomic.Int64) (int, error) {
		lists := make([][]string, len(worklist))
		err := fanOut(ctx, e.cfg.Concurrency, worklist, func(ctx context.Context, i int, id riftlens.EntityID) {
			ids, err := e.client.ListRecentMatches(ctx, id, e.cfg.MatchesPerSeed)
			if e.dropped(ctx, err, failed, PhaseListMatches, zap.String("puuid", id)) {
				return
			}
			lists[i] = ids
		})
		for _, ids := range lists {
			for _, id := range ids {
				matches.add(id)
			}
		}
		return len(matches.items()), err
	})
	res.Stats = append(res.Stats, stats)
	if err != nil {
		return res, err
	}

	// Phase 3.
	matchIDs := matches.items()
	res.Matches = len(matchIDs)
	stats, err = e.phase(ctx, PhaseFetchMatches, func(ctx context.Context, failed *atomic.Int64) (int, error) {
		participants := make([][]string, len(matchIDs))
		err := fanOut(ctx, e.cfg.Concurrency, matchIDs, func(ctx context.Context, i int, matchID string) {
			raw, err := e.client.FetchMatchDetail(ctx, matchID)
			if e.dropped(ctx, err, failed, PhaseFetchMatches, zap.String("match_id", matchID)) {
				return
			}
			participants[i] = raw.ParticipantIDs()
		})
		for _, ids := range participants {
			for _, id := range ids {
				if !known.has(id) {
					discovered.add(id)
				}
			}
		}
		return len(discovered.items()), err
	})
	res.Stats = append(res.Stats, stats)
	if err != nil {
		return res, err
	}

	// Phase 4.
	newIDs := discovered.items()
	stats, err = e.phase(ctx, PhaseResolveNames, func(ctx context.Context, failed *atomic.Int64) (int, error) {
		resolved := make([]*riftlens.ManifestEntry, len(newIDs))
		err := fanOut(ctx, e.cfg.Concurrency, newIDs, func(ctx context.Context, i int, id riftlens.EntityID) {
			acct, err := e.client.LookupAccount(ctx, id)
			if e.dropped(ctx, err, failed, PhaseResolveNames, zap.String("puuid", id)) {
				return
			}
			entry := riftlens.NewManifestEntry(id, acct.GameName, acct.TagLine)
			resolved[i] = &entry
		})
		added := 0
		for _, entry := range resolved {
			if entry != nil && known.add(*entry) {
				added++
			}
		}
		return added, err
	})
	res.Stats = append(res.Stats, stats)
	if err != nil {
		return res, err
	}

	res.Manifest = known.list()
	metrics.SetFrontierItems("known", known.len())
	if e.blobs != nil {
		uri, err := WriteManifest(ctx, e.blobs, e.cfg.ManifestPath, res.Manifest)
		if err != nil {
			return res, err
		}
		res.ManifestURI = uri
	}
	e.logger.Info("crawl complete",
		zap.Int("entities", len(res.Manifest)),
		zap.Int("matches", res.Matches),
		zap.Int64("failures", res.Failures()),
		zap.String("manifest", res.ManifestURI),
	)
	return res, nil
}

// phase times fn, records its stats and publishes the progress event.
func (e *Expander) phase(
	ctx context.Context,
	name string,
	fn func(ctx context.Context, failed *atomic.Int64) (int, error),
) (PhaseStats, error) {
	start := time.Now()
	var failed atomic.Int64
	items, err := fn(ctx, &failed)
	stats := PhaseStats{Name: name, Items: items, Failed: failed.Load(), Duration: time.Since(start)}
	if err != nil {
		return stats, fmt.Errorf("%s: %w", name, err)
	}
	metrics.SetFrontierItems(name, items)
	e.run.Phase(name, items, stats.Duration)
	e.logger.Info("phase done",
		zap.String("phase", name),
		zap.Int("items", items),
		zap.Int64("failed", stats.Failed),
		zap.Duration("duration", stats.Duration),
	)
	return stats, nil
}

// dropped reports whether err removes the item from this run, counting and
// logging it. Cancellation is not counted; fanOut surfaces it.
func (e *Expander) dropped(ctx context.Context, err error, failed *atomic.Int64, phase string, field zap.Field) bool {
	if err == nil {
		return false
	}
	if ctx.Err() != nil {
		return true
	}
	failed.Add(1)
	if errors.Is(err, riftlens.ErrNotFound) {
		e.logger.Info("item not found, skipped", zap.String("phase", phase), field)
	} else {
		e.logger.Warn("item failed, skipped", zap.String("phase", phase), field, zap.Error(err))
	}
	return true
}

// fanOut runs fn for every item with at most n goroutines and returns the
// context error if the phase was cut short.
func fanOut[T any](ctx context.Context, n int, items []T, fn func(ctx context.Context, i int, item T)) error {
	p := pool.New().WithContext(ctx).WithMaxGoroutines(n)
	for i, item := range items {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(ctx, i, item)
			return nil
		})
	}
	_ = p.Wait()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("crawl canceled: %w", err)
	}
	return nil
}
