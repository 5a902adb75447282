package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/riftlens/internal/config"
	"github.com/JakeFAU/riftlens/internal/frontier"
	"github.com/JakeFAU/riftlens/internal/progress"
	"github.com/JakeFAU/riftlens/internal/riftlens"
)

type crawlFlags struct {
	matchesPerSeed int
	concurrency    int
	manifest       string
	known          string
	ingest         bool
}

// newCrawlCmd creates the 'crawl' subcommand, which expands seed riot ids into
// a manifest of players and optionally ingests it right away.
func newCrawlCmd() *cobra.Command {
	var f crawlFlags
	cmd := &cobra.Command{
		Use:   "crawl [Name#Tag ...]",
		Short: "Expand seed players into a manifest",
		Long: `Resolves every seed riot id, collects the recent matches of each seed and
records every participant of those matches in a manifest artifact. Seeds
given as arguments replace the configured crawler.seeds.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, args, f)
		},
	}
	cmd.Flags().IntVar(&f.matchesPerSeed, "matches-per-seed", 0, "recent matches collected per seed (default from config)")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 0, "parallel lookups per phase (default from config)")
	cmd.Flags().StringVar(&f.manifest, "manifest", "", "artifact path of the manifest to write")
	cmd.Flags().StringVar(&f.known, "known", "", "artifact path of a previous manifest whose players are already known")
	cmd.Flags().BoolVar(&f.ingest, "ingest", false, "ingest the manifest after the crawl")
	return cmd
}

func runCrawl(cmd *cobra.Command, args []string, f crawlFlags) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	cfg := a.Config()

	seeds, err := crawlSeeds(args, cfg.Crawler.Seeds)
	if err != nil {
		return err
	}
	client, err := a.Telemetry()
	if err != nil {
		return err
	}

	fcfg := frontier.Config{
		MatchesPerSeed: firstPositive(f.matchesPerSeed, cfg.Crawler.MatchesPerSeed),
		Concurrency:    firstPositive(f.concurrency, cfg.Crawler.Concurrency),
		ManifestPath:   firstNonEmpty(f.manifest, cfg.Crawler.ManifestPath),
	}
	knownPath := firstNonEmpty(f.known, cfg.Crawler.SeedManifest)
	var known []riftlens.ManifestEntry
	if knownPath != "" {
		known, err = frontier.LoadOptionalManifest(ctx, a.Blobs(), knownPath)
		if err != nil {
			return fmt.Errorf("load known manifest: %w", err)
		}
	}

	run, err := a.StartRun(progress.KindCrawl)
	if err != nil {
		return err
	}
	expander := frontier.New(client, a.Blobs(), fcfg,
		frontier.WithKnown(known),
		frontier.WithRun(run),
		frontier.WithLogger(a.Logger().Named("frontier")),
	)
	res, err := expander.Run(ctx, seeds)
	if err != nil {
		run.Fail(err)
		return fmt.Errorf("crawl: %w", err)
	}
	run.Done()

	a.Logger().Info("crawl finished",
		zap.String("run_id", run.ID()),
		zap.Int("players", len(res.Manifest)),
		zap.Int("matches", res.Matches),
		zap.Int64("failures", res.Failures()),
		zap.String("manifest", res.ManifestURI),
	)
	fmt.Fprintln(cmd.OutOrStdout(), res.ManifestURI)

	if !f.ingest {
		return nil
	}
	_, err = ingestEntries(cmd, a, res.Manifest, 0)
	return err
}

func crawlSeeds(args []string, configured []riftlens.Seed) ([]riftlens.Seed, error) {
	if len(args) == 0 {
		if len(configured) == 0 {
			return nil, errors.New("no seeds: pass Name#Tag arguments or set crawler.seeds")
		}
		return configured, nil
	}
	seeds := make([]riftlens.Seed, 0, len(args))
	for _, raw := range args {
		s, err := config.ParseSeed(raw)
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, s)
	}
	return seeds, nil
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
