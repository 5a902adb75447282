package aggregate

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/riftlens/internal/merge"
	"github.com/JakeFAU/riftlens/internal/progress"
	"github.com/JakeFAU/riftlens/internal/riftlens"
	"github.com/JakeFAU/riftlens/internal/store/memory"
)

func seedReport(t *testing.T, backend riftlens.ReportStore, id string, history ...riftlens.MatchRecord) {
	t.Helper()
	r, err := riftlens.NewReport(id, id+"#EUW")
	require.NoError(t, err)
	r.MatchHistory = history
	r.Version = 1
	require.NoError(t, backend.Put(context.Background(), r, 0))
}

func TestRunner_Run(t *testing.T) {
	t.Parallel()

	backend := memory.NewReportStore()
	seedReport(t, backend, "p1", game("m1", false, 0.5, 3), game("m2", false, 0.8, 7), game("m3", true, 5, 1))
	seedReport(t, backend, "p2")
	seedReport(t, backend, "p3", game("m4", true, 3, 2))

	runner := NewRunner(backend, merge.New(backend), RunnerConfig{PageSize: 1}, nil)
	run, err := progress.StartRun(nil, progress.KindAggregate, uuid.NewString())
	require.NoError(t, err)

	counts, err := runner.Run(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, progress.Counts{Processed: 3, Updated: 2, Skipped: 1}, counts)

	p1, ok, err := backend.Get(context.Background(), "p1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, p1.WorstGameStats)
	assert.Equal(t, "m2", p1.WorstGameStats.MatchID)
	assert.InDelta(t, 0.33, p1.AnnualStats.WinRate, 1e-9)
	assert.EqualValues(t, 2, p1.Version)

	p2, _, err := backend.Get(context.Background(), "p2")
	require.NoError(t, err)
	assert.Nil(t, p2.AnnualStats)
	assert.EqualValues(t, 1, p2.Version, "empty history is never rewritten")
}

func TestRunner_RunIsIdempotent(t *testing.T) {
	t.Parallel()

	backend := memory.NewReportStore()
	seedReport(t, backend, "p1", game("m1", false, 0.5, 3))
	runner := NewRunner(backend, merge.New(backend), RunnerConfig{}, nil)

	_, err := runner.Run(context.Background(), nil)
	require.NoError(t, err)
	first, _, err := backend.Get(context.Background(), "p1")
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), nil)
	require.NoError(t, err)
	second, _, err := backend.Get(context.Background(), "p1")
	require.NoError(t, err)

	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, first.AnnualStats, second.AnnualStats)
}

func TestRunner_Canceled(t *testing.T) {
	t.Parallel()

	backend := memory.NewReportStore()
	seedReport(t, backend, "p1", game("m1", false, 0.5, 3))
	runner := NewRunner(backend, merge.New(backend), RunnerConfig{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := runner.Run(ctx, nil)
	require.ErrorIs(t, err, context.Canceled)
}
