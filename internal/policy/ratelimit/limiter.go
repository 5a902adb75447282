// Package ratelimit implements the optional pacing delay between telemetry calls.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/riftlens/internal/metrics"
	"golang.org/x/time/rate"
)

// Config holds pacer configuration.
type Config struct {
	// Delay is the minimum spacing between calls. Zero disables pacing.
	Delay time.Duration
}

// Pacer spaces calls at least Delay apart using a burst-1 token bucket.
type Pacer struct {
	limiter *rate.Limiter
}

// New creates a Pacer.
func New(cfg Config) *Pacer {
	if cfg.Delay <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(cfg.Delay), 1)}
}

// Enabled reports whether the pacer introduces any delay.
func (p *Pacer) Enabled() bool {
	return p != nil && p.limiter.Limit() != rate.Inf
}

// Wait blocks until the next call may proceed, respecting the context.
func (p *Pacer) Wait(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	start := time.Now()
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pacing wait: %w", err)
	}
	if d := time.Since(start); d > time.Millisecond {
		metrics.ObservePacingWait(d)
	}
	return nil
}
