package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/riftlens/internal/progress"
	"github.com/JakeFAU/riftlens/internal/riftlens"
)

// RunSummary is the artifact written when a run ends.
type RunSummary struct {
	RunID      string           `json:"run_id"`
	Kind       progress.Kind    `json:"kind"`
	Result     string           `json:"result"`
	Counts     progress.Counts  `json:"counts"`
	Phases     map[string]int64 `json:"phases,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Duration   float64          `json:"duration_seconds"`
	Error      string           `json:"error,omitempty"`
}

// ArtifactSink collects phase sizes per run and writes a RunSummary to the
// blob store under runs/<run-id>.json when the run ends.
type ArtifactSink struct {
	blobs  riftlens.BlobStore
	logger *zap.Logger

	mu   sync.Mutex
	runs map[[16]byte]*RunSummary
}

// NewArtifactSink constructs an ArtifactSink for the provided blob store.
func NewArtifactSink(blobs riftlens.BlobStore, logger *zap.Logger) *ArtifactSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArtifactSink{blobs: blobs, logger: logger, runs: make(map[[16]byte]*RunSummary)}
}

// Consume folds the batch into per-run summaries and writes finished ones.
func (s *ArtifactSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.blobs == nil {
		return nil
	}
	for _, evt := range batch {
		summary := s.track(evt)
		if summary == nil {
			continue
		}
		if err := s.write(ctx, *summary); err != nil {
			return err
		}
	}
	return nil
}

func (s *ArtifactSink) track(evt progress.Event) *RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, ok := s.runs[evt.RunID]
	if !ok {
		sum = &RunSummary{RunID: evt.RunUUID().String(), Kind: evt.Kind, StartedAt: evt.TS}
		s.runs[evt.RunID] = sum
	}
	switch evt.Stage {
	case progress.StageRunStart:
		sum.StartedAt = evt.TS
	case progress.StagePhaseDone:
		if sum.Phases == nil {
			sum.Phases = make(map[string]int64)
		}
		sum.Phases[evt.Phase] = evt.Items
	case progress.StageRunDone, progress.StageRunError:
		sum.Result = "success"
		if evt.Stage == progress.StageRunError {
			sum.Result = "error"
			sum.Error = evt.Note
		}
		sum.Counts = evt.Counts
		sum.FinishedAt = evt.TS
		sum.Duration = evt.Dur.Seconds()
		delete(s.runs, evt.RunID)
		return sum
	}
	return nil
}

func (s *ArtifactSink) write(ctx context.Context, sum RunSummary) error {
	payload, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}
	uri, err := s.blobs.PutObject(ctx, RunPath(sum.RunID), "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("write run summary: %w", err)
	}
	s.logger.Debug("run summary written", zap.String("uri", uri))
	return nil
}

// RunPath is the blob path of a run's summary.
func RunPath(runID string) string {
	return fmt.Sprintf("runs/%s.json", runID)
}

// Close implements the Sink interface; it performs no action.
func (s *ArtifactSink) Close(context.Context) error {
	return nil
}
