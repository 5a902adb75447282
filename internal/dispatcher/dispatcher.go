// Package dispatcher fans manifest entries out to a pool of ingest workers.
package dispatcher

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/pool"

	"github.com/JakeFAU/riftlens/internal/riftlens"
)

// Runner is one queue consumer. It returns nil once the queue is closed and drained.
type Runner interface {
	Run(ctx context.Context) error
}

type closer interface {
	Close()
}

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   riftlens.Queue
	workers []Runner
}

// New creates a Dispatcher.
func New(queue riftlens.Queue, workers []Runner) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// Run starts all workers and blocks until every one has returned. The first
// worker error cancels the others and is returned.
func (d *Dispatcher) Run(ctx context.Context) error {
	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	for _, w := range d.workers {
		p.Go(w.Run)
	}
	if err := p.Wait(); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	return nil
}

// Dispatch queues one item per entry, closes the queue when it supports it and
// runs the workers until the queue drains.
func (d *Dispatcher) Dispatch(ctx context.Context, runID string, entries []riftlens.ManifestEntry) error {
	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	p.Go(func(ctx context.Context) error {
		if c, ok := d.queue.(closer); ok {
			defer c.Close()
		}
		for _, e := range entries {
			if err := d.Enqueue(ctx, riftlens.QueueItem{RunID: runID, Entity: e}); err != nil {
				return err
			}
		}
		return nil
	})
	for _, w := range d.workers {
		p.Go(w.Run)
	}
	if err := p.Wait(); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	return nil
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item riftlens.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
