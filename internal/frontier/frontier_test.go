package frontier

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/riftlens/internal/artifact/memory"
	"github.com/JakeFAU/riftlens/internal/progress"
	"github.com/JakeFAU/riftlens/internal/riftlens"
)

// fakeTelemetry serves a small fixed graph of players and matches.
type fakeTelemetry struct {
	mu       sync.Mutex
	accounts map[string]string
	names    map[string]riftlens.Account
	matches  map[string][]string
	details  map[string][]string
	calls    map[string]int
}

func newFakeTelemetry() *fakeTelemetry {
	return &fakeTelemetry{
		accounts: map[string]string{"Alpha#EUW": "p1", "Beta#EUW": "p2"},
		names: map[string]riftlens.Account{
			"p3": {PUUID: "p3", GameName: "Gamma", TagLine: "EUW"},
			"p4": {PUUID: "p4", GameName: "Delta", TagLine: "NA1"},
			"p5": {PUUID: "p5", GameName: "Echo", TagLine: "EUW"},
		},
		matches: map[string][]string{
			"p1": {"m1", "m2"},
			"p2": {"m2", "m3"},
		},
		details: map[string][]string{
			"m1": {"p1", "p3", "p4"},
			"m2": {"p1", "p2", "p5"},
			"m3": {"p2", "p3", "p6"},
		},
		calls: map[string]int{},
	}
}

func (f *fakeTelemetry) count(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
}

func (f *fakeTelemetry) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeTelemetry) ResolveAccount(_ context.Context, name, tag string) (riftlens.Account, error) {
	f.count("resolve")
	id, ok := f.accounts[name+"#"+tag]
	if !ok {
		return riftlens.Account{}, fmt.Errorf("resolve %s#%s: %w", name, tag, riftlens.ErrNotFound)
	}
	return riftlens.Account{PUUID: id, GameName: name, TagLine: tag}, nil
}

func (f *fakeTelemetry) LookupAccount(_ context.Context, id riftlens.EntityID) (riftlens.Account, error) {
	f.count("lookup")
	acct, ok := f.names[id]
	if !ok {
		return riftlens.Account{}, fmt.Errorf("lookup %s: %w", id, riftlens.ErrUnavailable)
	}
	return acct, nil
}

func (f *fakeTelemetry) ListRecentMatches(_ context.Context, id riftlens.EntityID, count int) ([]string, error) {
	f.count("list")
	ids := f.matches[id]
	if len(ids) > count {
		ids = ids[:count]
	}
	return ids, nil
}

func (f *fakeTelemetry) FetchMatchDetail(_ context.Context, matchID string) (riftlens.RawMatch, error) {
	f.count("detail")
	ids, ok := f.details[matchID]
	if !ok {
		return riftlens.RawMatch{}, riftlens.ErrNotFound
	}
	raw := riftlens.RawMatch{Metadata: riftlens.RawMatchMetadata{MatchID: matchID}}
	for _, id := range ids {
		raw.Info.Participants = append(raw.Info.Participants, riftlens.RawParticipant{"puuid": id})
	}
	return raw, nil
}

var seeds = []riftlens.Seed{
	{Name: "Alpha", Tag: "EUW"},
	{Name: "Ghost", Tag: "EUW"},
	{Name: "Beta", Tag: "EUW"},
}

func manifestIDs(entries []riftlens.ManifestEntry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	return ids
}

func TestExpanderRun(t *testing.T) {
	t.Parallel()

	for _, concurrency := range []int{1, 4} {
		t.Run(fmt.Sprintf("concurrency=%d", concurrency), func(t *testing.T) {
			t.Parallel()

			client := newFakeTelemetry()
			blobs := memory.NewBlobStore()
			res, err := New(client, blobs, Config{Concurrency: concurrency}).Run(context.Background(), seeds)
			require.NoError(t, err)

			assert.Equal(t, []string{"p1", "p2", "p3", "p4", "p5"}, manifestIDs(res.Manifest))
			assert.Equal(t, "Alpha#EUW", res.Manifest[0].DisplayName)
			assert.Equal(t, "Delta#NA1", res.Manifest[3].DisplayName)
			assert.Equal(t, 3, res.Matches)
			assert.EqualValues(t, 2, res.Failures(), "one unknown seed, one failed name lookup")
			assert.Equal(t, "memory://manifest.json", res.ManifestURI)

			// m2 is shared by both seeds and fetched once.
			assert.Equal(t, 3, client.callCount("detail"))
			assert.Equal(t, 2, client.callCount("list"))
			assert.Equal(t, 4, client.callCount("lookup"))

			stored, err := LoadManifest(context.Background(), blobs, DefaultManifestPath)
			require.NoError(t, err)
			assert.Equal(t, res.Manifest, stored)
		})
	}
}

func TestExpanderRunIsIdempotent(t *testing.T) {
	t.Parallel()

	client := newFakeTelemetry()
	first, err := New(client, nil, Config{}).Run(context.Background(), seeds)
	require.NoError(t, err)
	second, err := New(client, nil, Config{}).Run(context.Background(), seeds)
	require.NoError(t, err)

	assert.Len(t, second.Manifest, len(first.Manifest))
	assert.Equal(t, first.Manifest, second.Manifest)
}

func TestExpanderRunWithKnownSkipsResolvedNames(t *testing.T) {
	t.Parallel()

	first, err := New(newFakeTelemetry(), nil, Config{}).Run(context.Background(), seeds)
	require.NoError(t, err)

	client := newFakeTelemetry()
	second, err := New(client, nil, Config{}, WithKnown(first.Manifest)).Run(context.Background(), seeds)
	require.NoError(t, err)

	assert.Equal(t, manifestIDs(first.Manifest), manifestIDs(second.Manifest))
	// Only the player that failed last time is looked up again.
	assert.Equal(t, 1, client.callCount("lookup"))
}

func TestExpanderRunMatchesPerSeed(t *testing.T) {
	t.Parallel()

	client := newFakeTelemetry()
	res, err := New(client, nil, Config{MatchesPerSeed: 1}).Run(context.Background(), seeds)
	require.NoError(t, err)

	// p1 -> m1, p2 -> m2.
	assert.Equal(t, 2, res.Matches)
	assert.Equal(t, []string{"p1", "p2", "p3", "p4", "p5"}, manifestIDs(res.Manifest))
}

func TestExpanderRunEmitsPhases(t *testing.T) {
	t.Parallel()

	em := &captureEmitter{}
	run, err := progress.StartRun(em, progress.KindCrawl, uuid.NewString())
	require.NoError(t, err)

	res, err := New(newFakeTelemetry(), nil, Config{}, WithRun(run)).Run(context.Background(), seeds)
	require.NoError(t, err)
	require.Len(t, res.Stats, 4)

	phases := em.phases()
	assert.Equal(t, []string{PhaseResolveSeeds, PhaseListMatches, PhaseFetchMatches, PhaseResolveNames}, phases)
}

func TestExpanderRunCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(newFakeTelemetry(), nil, Config{}).Run(ctx, seeds)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDecodeManifest(t *testing.T) {
	t.Parallel()

	entries, err := DecodeManifest([]byte(`[
		{"puuid":"p1","name":"Alpha","tag":"EUW"},
		{"puuid":"","name":"Nobody","tag":"EUW"},
		{"puuid":"p1","name":"Alpha","tag":"EUW","displayName":"dup"}
	]`))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Alpha#EUW", entries[0].DisplayName)

	_, err = DecodeManifest([]byte(`{`))
	assert.Error(t, err)
}

func TestLoadOptionalManifest(t *testing.T) {
	t.Parallel()

	entries, err := LoadOptionalManifest(context.Background(), memory.NewBlobStore(), "missing.json")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

type captureEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (c *captureEmitter) Emit(evt progress.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func (c *captureEmitter) phases() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, evt := range c.events {
		if evt.Stage == progress.StagePhaseDone {
			out = append(out, evt.Phase)
		}
	}
	return out
}
