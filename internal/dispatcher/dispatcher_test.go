package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/riftlens/internal/queue/memory"
	"github.com/JakeFAU/riftlens/internal/riftlens"
)

// countingWorker drains the queue and records the ids it saw.
type countingWorker struct {
	queue riftlens.Queue
	mu    *sync.Mutex
	seen  *[]string
	fail  string
}

func (w countingWorker) Run(ctx context.Context) error {
	for {
		item, err := w.queue.Dequeue(ctx)
		if errors.Is(err, riftlens.ErrQueueClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		if item.Entity.ID == w.fail {
			return fmt.Errorf("ingest %s: %w", item.Entity.ID, riftlens.ErrStoreUnavailable)
		}
		w.mu.Lock()
		*w.seen = append(*w.seen, item.Entity.ID)
		w.mu.Unlock()
	}
}

func entries(ids ...string) []riftlens.ManifestEntry {
	out := make([]riftlens.ManifestEntry, 0, len(ids))
	for _, id := range ids {
		out = append(out, riftlens.NewManifestEntry(id, id, "EUW"))
	}
	return out
}

func TestDispatchDrainsAllEntries(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(2)
	var (
		mu   sync.Mutex
		seen []string
	)
	workers := []Runner{
		countingWorker{queue: q, mu: &mu, seen: &seen},
		countingWorker{queue: q, mu: &mu, seen: &seen},
		countingWorker{queue: q, mu: &mu, seen: &seen},
	}

	err := New(q, workers).Dispatch(context.Background(), "run-1", entries("p1", "p2", "p3", "p4", "p5"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p1", "p2", "p3", "p4", "p5"}, seen)
}

func TestDispatchStopsOnFatalError(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(1)
	var (
		mu   sync.Mutex
		seen []string
	)
	workers := []Runner{countingWorker{queue: q, mu: &mu, seen: &seen, fail: "p2"}}

	done := make(chan error, 1)
	go func() {
		done <- New(q, workers).Dispatch(context.Background(), "run-1", entries("p1", "p2", "p3", "p4"))
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, riftlens.ErrStoreUnavailable)
	case <-time.After(time.Second):
		t.Fatal("dispatch did not stop after a fatal worker error")
	}
	assert.Equal(t, []string{"p1"}, seen)
}

// TestDispatcherRunStopsOnCancel ensures workers stop on cancel.
func TestDispatcherRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(1)
	var (
		mu   sync.Mutex
		seen []string
	)
	d := New(q, []Runner{countingWorker{queue: q, mu: &mu, seen: &seen}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- d.Run(ctx)
	}()
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

// TestDispatcherEnqueueForwardsErrors verifies queue errors are wrapped for callers.
func TestDispatcherEnqueueForwardsErrors(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(1)
	q.Close()
	err := New(q, nil).Enqueue(context.Background(), riftlens.QueueItem{RunID: "run-1"})
	require.ErrorIs(t, err, riftlens.ErrQueueClosed)
	assert.Contains(t, err.Error(), "queue enqueue: ")
}
