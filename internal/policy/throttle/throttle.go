// Package throttle implements the fixed-window quota gate shared by every
// outbound telemetry call.
package throttle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/riftlens/internal/clock/system"
	"github.com/JakeFAU/riftlens/internal/metrics"
	"github.com/JakeFAU/riftlens/internal/riftlens"
)

// Defaults match the provider's personal key quota with a one second margin.
const (
	DefaultQuota  = 100
	DefaultWindow = 121 * time.Second
)

// Sleeper blocks for d or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep calls f.
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// Config holds throttle configuration.
type Config struct {
	Quota  int
	Window time.Duration
}

// Stats is a snapshot of the current window.
type Stats struct {
	Count       int
	WindowStart time.Time
}

// Throttle admits at most Quota acquisitions per Window. The mutex is held
// for the whole acquire, including the sleep, so concurrent callers queue.
type Throttle struct {
	mu          sync.Mutex
	quota       int
	window      time.Duration
	count       int
	windowStart time.Time
	clock       riftlens.Clock
	sleeper     Sleeper
}

// New creates a Throttle. A nil clock or sleeper falls back to wall time.
func New(cfg Config, clock riftlens.Clock, sleeper Sleeper) *Throttle {
	if cfg.Quota <= 0 {
		cfg.Quota = DefaultQuota
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if clock == nil {
		clock = system.New()
	}
	if sleeper == nil {
		sleeper = system.New()
	}
	return &Throttle{
		quota:       cfg.Quota,
		window:      cfg.Window,
		clock:       clock,
		sleeper:     sleeper,
		windowStart: clock.Now(),
	}
}

// Acquire blocks until one more call fits in the current window, then counts it.
func (t *Throttle) Acquire(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("throttle acquire: %w", err)
	}
	if t.count >= t.quota {
		remaining := t.window - t.clock.Now().Sub(t.windowStart)
		if remaining > 0 {
			if err := t.sleeper.Sleep(ctx, remaining); err != nil {
				return fmt.Errorf("throttle wait: %w", err)
			}
			metrics.ObserveThrottleWait(remaining)
		}
		t.count = 0
		t.windowStart = t.clock.Now()
	}
	t.count++
	return nil
}

// Stats returns the current window count and start.
func (t *Throttle) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{Count: t.count, WindowStart: t.windowStart}
}

