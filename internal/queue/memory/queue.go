// Package memory provides the bounded in-memory ingest queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/riftlens/internal/riftlens"
)

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan riftlens.QueueItem
	closeMu sync.RWMutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch: make(chan riftlens.QueueItem, capacity),
	}
}

// Enqueue pushes an item into the queue or returns if the context ends.
// Enqueueing after Close returns riftlens.ErrQueueClosed; Close waits for
// in-flight enqueues.
func (q *Queue) Enqueue(ctx context.Context, item riftlens.QueueItem) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return fmt.Errorf("enqueue %s: %w", item.Entity.ID, riftlens.ErrQueueClosed)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next item, respecting context cancellation. Items queued
// before Close are still delivered; after that it returns riftlens.ErrQueueClosed.
func (q *Queue) Dequeue(ctx context.Context) (riftlens.QueueItem, error) {
	select {
	case <-ctx.Done():
		return riftlens.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return riftlens.QueueItem{}, riftlens.ErrQueueClosed
		}
		return item, nil
	}
}

// Len reports the number of buffered items.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel. It is safe to call more than once.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
