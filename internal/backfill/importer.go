package backfill

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/riftlens/internal/aggregate"
	"github.com/JakeFAU/riftlens/internal/merge"
	"github.com/JakeFAU/riftlens/internal/normalize"
	"github.com/JakeFAU/riftlens/internal/progress"
	"github.com/JakeFAU/riftlens/internal/riftlens"
)

// Importer loads legacy report files, where numbers may be text and derived
// values were precomputed, into the store through the merge pipeline.
type Importer struct {
	merger    *merge.Store
	threshold float64
	logger    *zap.Logger
}

// NewImporter builds an Importer.
func NewImporter(merger *merge.Store, threshold float64, logger *zap.Logger) *Importer {
	if threshold <= 0 {
		threshold = aggregate.DefaultWorstKDAThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{merger: merger, threshold: threshold, logger: logger}
}

// legacyReport is the historical report document. Records stay untyped until
// normalize.LegacyRecord coerces them.
type legacyReport struct {
	PlayerID     string           `json:"PlayerID"`
	PUUID        string           `json:"puuid"`
	PlayerName   string           `json:"playerName"`
	MatchHistory []map[string]any `json:"matchHistory"`
}

func (l legacyReport) id() string {
	if l.PlayerID != "" {
		return l.PlayerID
	}
	return l.PUUID
}

// decodeLegacy accepts a single report object or an array of them.
func decodeLegacy(r io.Reader) ([]legacyReport, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read legacy file: %w", err)
	}
	data = bytes.TrimSpace(data)
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if len(data) > 0 && data[0] == '[' {
		var out []legacyReport
		if err := dec.Decode(&out); err != nil {
			return nil, fmt.Errorf("decode legacy reports: %w", err)
		}
		return out, nil
	}
	var one legacyReport
	if err := dec.Decode(&one); err != nil {
		return nil, fmt.Errorf("decode legacy report: %w", err)
	}
	return []legacyReport{one}, nil
}

// Import merges every record of the legacy documents in r. Records without a
// match id are skipped with a warning; reports are refreshed after import.
func (im *Importer) Import(ctx context.Context, r io.Reader, run *progress.Run) (progress.Counts, error) {
	reports, err := decodeLegacy(r)
	if err != nil {
		return run.Fail(err), err
	}
	for _, rep := range reports {
		if err := im.importOne(ctx, rep, run); err != nil {
			return run.Fail(err), fmt.Errorf("import: %w", err)
		}
	}
	return run.Done(), nil
}

func (im *Importer) importOne(ctx context.Context, rep legacyReport, run *progress.Run) error {
	start := time.Now()
	id := rep.id()
	if id == "" {
		im.logger.Warn("legacy report without player id skipped", zap.String("player", rep.PlayerName))
		run.Entity("", progress.ResultSkipped, 0, time.Since(start), "missing player id")
		return nil
	}
	logger := im.logger.With(zap.String("puuid", id))

	appended, skipped := 0, 0
	for _, raw := range rep.MatchHistory {
		rec, warnings := normalize.LegacyRecord(raw)
		if len(warnings) > 0 {
			logger.Warn("malformed values coerced", zap.String("match_id", rec.MatchID), zap.Int("warnings", len(warnings)))
		}
		if rec.MatchID == "" {
			skipped++
			logger.Warn("legacy record without match id skipped")
			continue
		}
		if rec.Player != nil && rec.Player.PUUID == "" {
			rec.Player.PUUID = id
		}
		outcome, err := im.merger.Upsert(ctx, id, rep.PlayerName, rec)
		if err != nil {
			run.Entity(id, progress.ResultFailed, appended, time.Since(start), err.Error())
			return err
		}
		if outcome == merge.OutcomeSkipped {
			skipped++
			continue
		}
		appended++
	}

	if _, err := im.merger.Update(ctx, id, func(r *riftlens.EntityReport) (bool, error) {
		return aggregate.Refresh(r, im.threshold), nil
	}); err != nil {
		run.Entity(id, progress.ResultFailed, appended, time.Since(start), err.Error())
		return fmt.Errorf("refresh aggregates: %w", err)
	}

	result := progress.ResultSkipped
	if appended > 0 {
		result = progress.ResultUpdated
	}
	run.Entity(id, result, appended, time.Since(start), fmt.Sprintf("appended=%d skipped=%d", appended, skipped))
	return nil
}
