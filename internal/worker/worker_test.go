package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/riftlens/internal/merge"
	pubmemory "github.com/JakeFAU/riftlens/internal/publisher/memory"
	"github.com/JakeFAU/riftlens/internal/progress"
	qmemory "github.com/JakeFAU/riftlens/internal/queue/memory"
	"github.com/JakeFAU/riftlens/internal/riftlens"
	"github.com/JakeFAU/riftlens/internal/store/memory"
)

// fakeTelemetry serves fixed match lists and details and counts calls.
type fakeTelemetry struct {
	mu      sync.Mutex
	lists   map[string][]string
	details map[string]riftlens.RawMatch
	listErr error
	calls   map[string]int
}

func newFakeTelemetry() *fakeTelemetry {
	return &fakeTelemetry{
		lists: map[string][]string{"p1": {"m1", "m2", "m3"}},
		details: map[string]riftlens.RawMatch{
			"m1": rawMatch("m1", "p1", false, 1, 6, 2),
			"m2": rawMatch("m2", "p1", true, 8, 1, 4),
		},
		calls: map[string]int{},
	}
}

func rawMatch(id, player string, win bool, kills, deaths, assists int) riftlens.RawMatch {
	raw := riftlens.RawMatch{
		Metadata: riftlens.RawMatchMetadata{MatchID: id},
		Info:     riftlens.RawMatchInfo{GameDuration: 1500, GameMode: "CLASSIC", QueueID: 420},
	}
	raw.Info.Participants = append(raw.Info.Participants,
		riftlens.RawParticipant{
			"puuid": player, "championName": "Ahri", "teamPosition": "MIDDLE", "teamId": 100, "win": win,
			"kills": kills, "deaths": deaths, "assists": assists, "totalMinionsKilled": 100, "neutralMinionsKilled": 20,
		},
		riftlens.RawParticipant{
			"puuid": "p2", "championName": "Zed", "teamPosition": "MIDDLE", "teamId": 200, "win": !win,
			"kills": "3", "deaths": 2, "assists": 1,
		},
	)
	return raw
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

func (f *fakeTelemetry) ResolveAccount(context.Context, string, string) (riftlens.Account, error) {
	return riftlens.Account{}, riftlens.ErrNotFound
}

func (f *fakeTelemetry) LookupAccount(context.Context, riftlens.EntityID) (riftlens.Account, error) {
	return riftlens.Account{}, riftlens.ErrNotFound
}

func (f *fakeTelemetry) ListRecentMatches(_ context.Context, id riftlens.EntityID, _ int) ([]string, error) {
	f.count("list")
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.lists[id], nil
}

func (f *fakeTelemetry) FetchMatchDetail(_ context.Context, matchID string) (riftlens.RawMatch, error) {
	f.count("detail")
	raw, ok := f.details[matchID]
	if !ok {
		return riftlens.RawMatch{}, fmt.Errorf("match %s: %w", matchID, riftlens.ErrNotFound)
	}
	return raw, nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

type harness struct {
	client  *fakeTelemetry
	backend *memory.ReportStore
	pub     *pubmemory.Publisher
	run     *progress.Run
	worker  *Worker
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		client:  newFakeTelemetry(),
		backend: memory.NewReportStore(),
		pub:     pubmemory.New(),
	}
	run, err := progress.StartRun(nil, progress.KindIngest, uuid.NewString())
	require.NoError(t, err)
	h.run = run
	if cfg.Topic == "" {
		cfg.Topic = "reports"
	}
	h.worker = New(nil, h.client, nil, merge.New(h.backend), h.pub, &fakeClock{now: time.Unix(100, 0)}, run, cfg, zap.NewNop())
	return h
}

var alpha = riftlens.NewManifestEntry("p1", "Alpha", "EUW")

func TestWorker_ProcessIngestsNewMatches(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	require.NoError(t, h.worker.Process(context.Background(), alpha))

	report, ok, err := h.backend.Get(context.Background(), "p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Alpha#EUW", report.DisplayName)
	require.Len(t, report.MatchHistory, 2, "m3 is not found and skipped")
	assert.Equal(t, "m1", report.MatchHistory[0].MatchID)
	assert.InDelta(t, 4.80, report.MatchHistory[0].Stats().CSPerMin, 1e-9)

	require.NotNil(t, report.AnnualStats)
	assert.Equal(t, 2, report.AnnualStats.TotalGames)
	assert.InDelta(t, 0.5, report.AnnualStats.WinRate, 1e-9)
	require.NotNil(t, report.WorstGameStats)
	assert.Equal(t, "m1", report.WorstGameStats.MatchID)

	msgs := h.pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "reports", msgs[0].Topic)
	assert.JSONEq(t,
		`{"player_id":"p1","display_name":"Alpha#EUW","matches":2,"appended":2,"worst_match_id":"m1","timestamp":"1970-01-01T00:01:40Z"}`,
		string(msgs[0].Data))

	assert.Equal(t, progress.Counts{Processed: 1, Updated: 1}, h.run.Counts())

	_, ok, err = h.backend.Get(context.Background(), "p2")
	require.NoError(t, err)
	assert.False(t, ok, "other participants are not stored by default")
}

func TestWorker_ProcessSkipsKnownMatches(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	require.NoError(t, h.worker.Process(context.Background(), alpha))
	detailsBefore := h.client.callCount("detail")

	// A fresh cache proves the skip comes from the stored history.
	h.worker.details = NewDetailCache(h.client)
	h.client.details["m3"] = rawMatch("m3", "p1", false, 0, 9, 0)
	require.NoError(t, h.worker.Process(context.Background(), alpha))

	assert.Equal(t, detailsBefore+1, h.client.callCount("detail"), "only m3 is fetched again")
	report, _, err := h.backend.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Len(t, report.MatchHistory, 3)
	assert.Equal(t, "m3", report.WorstGameStats.MatchID)
	assert.Len(t, h.pub.Messages(), 2)

	// Nothing new: the entity is skipped and nothing is published.
	require.NoError(t, h.worker.Process(context.Background(), alpha))
	assert.Len(t, h.pub.Messages(), 2)
	assert.Equal(t, progress.Counts{Processed: 3, Updated: 2, Skipped: 1}, h.run.Counts())
}

func TestWorker_ProcessAllParticipants(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{AllParticipants: true})
	require.NoError(t, h.worker.Process(context.Background(), alpha))

	other, ok, err := h.backend.Get(context.Background(), "p2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, other.MatchHistory, 2)
	assert.Equal(t, "p2", other.MatchHistory[0].Player.PUUID)
	assert.Equal(t, 3, other.MatchHistory[0].Player.Kills)
	require.NotNil(t, other.AnnualStats)
	assert.Equal(t, 2, other.AnnualStats.TotalGames)
}

func TestWorker_ProcessListFailureSkipsEntity(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.client.listErr = fmt.Errorf("list: %w", riftlens.ErrUnavailable)
	require.NoError(t, h.worker.Process(context.Background(), alpha))

	assert.Equal(t, progress.Counts{Processed: 1, Failed: 1}, h.run.Counts())
	assert.Zero(t, h.backend.Len())
}

type brokenStore struct {
	*memory.ReportStore
}

func (brokenStore) Put(context.Context, riftlens.EntityReport, int64) error {
	return errors.New("connection refused")
}

func TestWorker_ProcessStoreUnavailableIsFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.worker.merger = merge.New(brokenStore{memory.NewReportStore()})

	err := h.worker.Process(context.Background(), alpha)
	require.ErrorIs(t, err, riftlens.ErrStoreUnavailable)
	assert.EqualValues(t, 1, h.run.Counts().Failed)
}

func TestWorker_RunDrainsQueue(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	q := qmemory.NewQueue(4)
	h.worker.queue = q
	require.NoError(t, q.Enqueue(context.Background(), riftlens.QueueItem{RunID: h.run.ID(), Entity: alpha}))
	require.NoError(t, q.Enqueue(context.Background(), riftlens.QueueItem{RunID: h.run.ID(), Entity: riftlens.NewManifestEntry("p9", "Nobody", "EUW")}))
	q.Close()

	require.NoError(t, h.worker.Run(context.Background()))
	assert.Equal(t, progress.Counts{Processed: 2, Updated: 1, Skipped: 1}, h.run.Counts())
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.worker.queue = qmemory.NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, h.worker.Run(ctx), context.Canceled)
}

func TestWorker_PublishFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{})
	h.pub.FailWith(errors.New("pubsub down"))
	require.NoError(t, h.worker.Process(context.Background(), alpha))
	assert.EqualValues(t, 1, h.run.Counts().Updated)
}
