package backfill

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/riftlens/internal/progress"
	"github.com/JakeFAU/riftlens/internal/riftlens"
)

// DefaultExportPrefix is the artifact directory of exported reports.
const DefaultExportPrefix = "reports"

// Exporter writes every stored report to the artifact store as
// <prefix>/<id>.json.
type Exporter struct {
	backend riftlens.ReportStore
	blobs   riftlens.BlobStore
	prefix  string
	logger  *zap.Logger
}

// NewExporter builds an Exporter.
func NewExporter(backend riftlens.ReportStore, blobs riftlens.BlobStore, prefix string, logger *zap.Logger) *Exporter {
	if prefix == "" {
		prefix = DefaultExportPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{backend: backend, blobs: blobs, prefix: prefix, logger: logger}
}

// ReportPath returns the artifact path of id's report.
func (e *Exporter) ReportPath(id riftlens.EntityID) string {
	return path.Join(e.prefix, id+".json")
}

// Run exports all reports. Any write failure aborts.
func (e *Exporter) Run(ctx context.Context, run *progress.Run) (progress.Counts, error) {
	err := riftlens.ScanAll(ctx, e.backend, riftlens.DefaultScanPageSize, func(rep riftlens.EntityReport) error {
		start := time.Now()
		data, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return fmt.Errorf("encode report %s: %w", rep.ID, err)
		}
		uri, err := e.blobs.PutObject(ctx, e.ReportPath(rep.ID), "application/json", bytes.NewReader(data))
		if err != nil {
			run.Entity(rep.ID, progress.ResultFailed, 0, time.Since(start), err.Error())
			return fmt.Errorf("write report %s: %w", rep.ID, err)
		}
		e.logger.Debug("report exported", zap.String("puuid", rep.ID), zap.String("uri", uri))
		run.Entity(rep.ID, progress.ResultUpdated, len(rep.MatchHistory), time.Since(start), "")
		return nil
	})
	if err != nil {
		return run.Fail(err), fmt.Errorf("export: %w", err)
	}
	return run.Done(), nil
}
