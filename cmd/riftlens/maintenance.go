package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/riftlens/internal/aggregate"
	"github.com/JakeFAU/riftlens/internal/backfill"
	"github.com/JakeFAU/riftlens/internal/progress"
	"github.com/JakeFAU/riftlens/internal/worker"
)

func newWidenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "widen",
		Short: "Fill missing fields of stored matches from match details",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			client, err := a.Telemetry()
			if err != nil {
				return err
			}
			run, err := a.StartRun(progress.KindWiden)
			if err != nil {
				return err
			}
			w := backfill.NewWidener(a.Reports(), a.Merger(), worker.NewDetailCache(client),
				a.Config().Aggregate.WorstKDAThreshold, a.Logger().Named("widen"))
			counts, err := w.Run(cmd.Context(), run)
			logCounts(a.Logger(), "widen", run.ID(), counts)
			return err
		},
	}
}

func newAggregateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "aggregate",
		Short: "Recompute annual statistics and the worst game of every report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			run, err := a.StartRun(progress.KindAggregate)
			if err != nil {
				return err
			}
			cfg := a.Config().Aggregate
			r := aggregate.NewRunner(a.Reports(), a.Merger(), aggregate.RunnerConfig{
				Threshold: cfg.WorstKDAThreshold,
				PageSize:  cfg.PageSize,
			}, a.Logger().Named("aggregate"))
			counts, err := r.Run(cmd.Context(), run)
			logCounts(a.Logger(), "aggregate", run.ID(), counts)
			return err
		},
	}
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Import a legacy report file into the report store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open legacy file: %w", err)
			}
			defer func() {
				if cerr := f.Close(); cerr != nil {
					a.Logger().Warn("close legacy file", zap.Error(cerr))
				}
			}()
			run, err := a.StartRun(progress.KindImport)
			if err != nil {
				return err
			}
			im := backfill.NewImporter(a.Merger(), a.Config().Aggregate.WorstKDAThreshold, a.Logger().Named("import"))
			counts, err := im.Import(cmd.Context(), f, run)
			logCounts(a.Logger(), "import", run.ID(), counts)
			return err
		},
	}
}

func newExportCmd() *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every report as a JSON artifact",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			run, err := a.StartRun(progress.KindExport)
			if err != nil {
				return err
			}
			exp := backfill.NewExporter(a.Reports(), a.Blobs(), prefix, a.Logger().Named("export"))
			counts, err := exp.Run(cmd.Context(), run)
			logCounts(a.Logger(), "export", run.ID(), counts)
			return err
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "artifact prefix of exported reports (default reports)")
	return cmd
}

func logCounts(logger *zap.Logger, kind, runID string, c progress.Counts) {
	logger.Info(kind+" finished",
		zap.String("run_id", runID),
		zap.Int64("processed", c.Processed),
		zap.Int64("updated", c.Updated),
		zap.Int64("skipped", c.Skipped),
		zap.Int64("failed", c.Failed),
	)
}
