package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/riftlens/internal/progress"
)

// PrometheusSink exports run and per-entity progress via Prometheus.
type PrometheusSink struct {
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runDuration   *prometheus.HistogramVec

	entities       *prometheus.CounterVec
	entityDuration *prometheus.HistogramVec
	phaseItems     *prometheus.GaugeVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riftlens_runs_started_total",
			Help: "Total runs that have started, by kind.",
		}, []string{"kind"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riftlens_runs_total",
			Help: "Total runs completed, by kind and result.",
		}, []string{"kind", "result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riftlens_runs_running",
			Help: "Current number of running runs.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "riftlens_run_duration_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
		}, []string{"kind", "result"}),
		entities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riftlens_entities_total",
			Help: "Entities processed, by kind and result.",
		}, []string{"kind", "result"}),
		entityDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "riftlens_entity_duration_seconds",
			Help:    "Time spent per entity, by kind.",
			Buckets: []float64{0.01, 0.1, 1, 5, 30, 60, 180},
		}, []string{"kind"}),
		phaseItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "riftlens_phase_items",
			Help: "Items produced by the most recent crawl phase.",
		}, []string{"phase"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runDuration,
		s.entities,
		s.entityDuration,
		s.phaseItems,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	kind := string(evt.Kind)
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.WithLabelValues(kind).Inc()
		if s.tracker.start(evt.RunID) {
			s.runsRunning.Inc()
		}
	case progress.StageRunDone, progress.StageRunError:
		result := "success"
		if evt.Stage == progress.StageRunError {
			result = "error"
		}
		s.runsCompleted.WithLabelValues(kind, result).Inc()
		if evt.Dur > 0 {
			s.runDuration.WithLabelValues(kind, result).Observe(evt.Dur.Seconds())
		}
		if s.tracker.complete(evt.RunID) {
			s.runsRunning.Dec()
		}
	case progress.StageEntityDone:
		s.entities.WithLabelValues(kind, string(evt.Result)).Inc()
		if evt.Dur > 0 {
			s.entityDuration.WithLabelValues(kind).Observe(evt.Dur.Seconds())
		}
	case progress.StagePhaseDone:
		s.phaseItems.WithLabelValues(evt.Phase).Set(float64(evt.Items))
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
