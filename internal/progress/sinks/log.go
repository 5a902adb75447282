package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/riftlens/internal/progress"
)

// LogSink writes the user-visible progress stream: one line per entity and a
// summary line when a run ends.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("kind", string(evt.Kind)),
		}
		switch evt.Stage {
		case progress.StageRunStart:
			s.logger.Info("run started", fields...)
		case progress.StagePhaseDone:
			s.logger.Info("phase done", append(fields,
				zap.String("phase", evt.Phase),
				zap.Int64("items", evt.Items),
				zap.Duration("dur", evt.Dur),
			)...)
		case progress.StageEntityDone:
			fields = append(fields,
				zap.String("puuid", evt.Entity),
				zap.String("result", string(evt.Result)),
				zap.Int64("items", evt.Items),
				zap.Duration("dur", evt.Dur),
			)
			if evt.Note != "" {
				fields = append(fields, zap.String("note", evt.Note))
			}
			if evt.Result == progress.ResultFailed {
				s.logger.Warn("entity done", fields...)
				continue
			}
			s.logger.Info("entity done", fields...)
		case progress.StageRunDone, progress.StageRunError:
			fields = append(fields,
				zap.Int64("processed", evt.Counts.Processed),
				zap.Int64("updated", evt.Counts.Updated),
				zap.Int64("skipped", evt.Counts.Skipped),
				zap.Int64("failed", evt.Counts.Failed),
				zap.Duration("dur", evt.Dur),
			)
			if evt.Stage == progress.StageRunError {
				s.logger.Error("run failed", append(fields, zap.String("error", evt.Note))...)
				continue
			}
			s.logger.Info("run summary", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
