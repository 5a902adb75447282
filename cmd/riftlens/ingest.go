package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/riftlens/internal/app"
	"github.com/JakeFAU/riftlens/internal/dispatcher"
	"github.com/JakeFAU/riftlens/internal/frontier"
	"github.com/JakeFAU/riftlens/internal/progress"
	qmemory "github.com/JakeFAU/riftlens/internal/queue/memory"
	"github.com/JakeFAU/riftlens/internal/riftlens"
	"github.com/JakeFAU/riftlens/internal/worker"
)

// newIngestCmd creates the 'ingest' subcommand, which merges the recent
// matches of every manifest entry into the report store.
func newIngestCmd() *cobra.Command {
	var (
		manifest    string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest the matches of every player in a manifest",
		Long: `Reads a manifest artifact, queues one item per player and runs a pool of
workers that fetch each player's recent matches, merge them into the report
store and refresh annual statistics and the worst game.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			path := firstNonEmpty(manifest, a.Config().Crawler.ManifestPath)
			entries, err := frontier.LoadManifest(cmd.Context(), a.Blobs(), path)
			if err != nil {
				return fmt.Errorf("load manifest: %w", err)
			}
			_, err = ingestEntries(cmd, a, entries, concurrency)
			return err
		},
	}
	cmd.Flags().StringVar(&manifest, "manifest", "", "artifact path of the manifest to ingest")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of ingest workers (default from config)")
	return cmd
}

// ingestEntries runs one ingest run over entries. concurrency <= 0 uses the
// configured worker count.
func ingestEntries(cmd *cobra.Command, a *app.App, entries []riftlens.ManifestEntry, concurrency int) (progress.Counts, error) {
	ctx := cmd.Context()
	cfg := a.Config()

	client, err := a.Telemetry()
	if err != nil {
		return progress.Counts{}, err
	}
	run, err := a.StartRun(progress.KindIngest)
	if err != nil {
		return progress.Counts{}, err
	}

	n := firstPositive(concurrency, cfg.Ingest.Concurrency, 1)
	q := qmemory.NewQueue(cfg.Ingest.QueueDepth)
	details := worker.NewDetailCache(client)
	wcfg := worker.Config{
		MatchesPerEntity:  cfg.Ingest.MatchesPerEntity,
		AllParticipants:   cfg.Ingest.AllParticipants,
		WorstKDAThreshold: cfg.Aggregate.WorstKDAThreshold,
		Topic:             cfg.PubSub.Topic,
	}
	runners := make([]dispatcher.Runner, 0, n)
	for i := 0; i < n; i++ {
		runners = append(runners, worker.New(
			q, client, details, a.Merger(), a.Publisher(), a.Clock(), run, wcfg,
			a.Logger().Named("worker").With(zap.Int("worker", i)),
		))
	}

	if err := dispatcher.New(q, runners).Dispatch(ctx, run.ID(), entries); err != nil {
		return run.Fail(err), fmt.Errorf("ingest: %w", err)
	}
	counts := run.Done()
	a.Logger().Info("ingest finished",
		zap.String("run_id", run.ID()),
		zap.Int("players", len(entries)),
		zap.Int64("updated", counts.Updated),
		zap.Int64("skipped", counts.Skipped),
		zap.Int64("failed", counts.Failed),
		zap.Int("cached_matches", details.Len()),
	)
	return counts, nil
}
