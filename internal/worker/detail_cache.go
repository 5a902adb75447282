package worker

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/riftlens/internal/riftlens"
)

// DetailCache fetches match details at most once per run. Concurrent requests
// for the same match share one call, so a match played by several tracked
// players costs one quota slot. Not-found answers are cached too.
type DetailCache struct {
	client riftlens.TelemetryClient
	group  singleflight.Group

	mu       sync.RWMutex
	matches  map[string]riftlens.RawMatch
	notFound map[string]error
}

// NewDetailCache wraps client.
func NewDetailCache(client riftlens.TelemetryClient) *DetailCache {
	return &DetailCache{
		client:   client,
		matches:  make(map[string]riftlens.RawMatch),
		notFound: make(map[string]error),
	}
}

// Get returns the match detail, calling the client on a miss.
func (c *DetailCache) Get(ctx context.Context, matchID string) (riftlens.RawMatch, error) {
	if raw, ok, err := c.lookup(matchID); ok {
		return raw, err
	}
	v, err, _ := c.group.Do(matchID, func() (any, error) {
		if raw, ok, err := c.lookup(matchID); ok {
			return raw, err
		}
		raw, err := c.client.FetchMatchDetail(ctx, matchID)
		c.mu.Lock()
		defer c.mu.Unlock()
		switch {
		case err == nil:
			c.matches[matchID] = raw
		case errors.Is(err, riftlens.ErrNotFound):
			c.notFound[matchID] = err
		}
		return raw, err
	})
	raw, _ := v.(riftlens.RawMatch)
	return raw, err
}

func (c *DetailCache) lookup(matchID string) (riftlens.RawMatch, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if raw, ok := c.matches[matchID]; ok {
		return raw, true, nil
	}
	if err, ok := c.notFound[matchID]; ok {
		return riftlens.RawMatch{}, true, err
	}
	return riftlens.RawMatch{}, false, nil
}

// Len reports how many details are cached.
func (c *DetailCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.matches)
}
