package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/riftlens/internal/app"
	"github.com/JakeFAU/riftlens/internal/config"
	"github.com/JakeFAU/riftlens/internal/logging"
)

const shutdownTimeout = 10 * time.Second

type appKeyType string

const appKey appKeyType = "app"

// buildApp is the application factory. Tests replace it to isolate metrics
// registration between invocations.
var buildApp = func(ctx context.Context, cfgPath string) (*app.App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return app.Build(ctx, cfg, logger, app.Options{})
}

// execute runs the CLI with args and closes the application services once
// the command returns, whether or not it failed.
func execute(ctx context.Context, args []string, out io.Writer) (err error) {
	var built *app.App
	root := newRootCmd(&built)
	root.SetArgs(args)
	root.SetOut(out)
	defer func() {
		if built == nil {
			return
		}
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		err = errors.Join(err, built.Close(closeCtx))
	}()
	return root.ExecuteContext(ctx)
}

func newRootCmd(built **app.App) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "riftlens",
		Short: "Crawl match telemetry into per-player reports.",
		Long: `riftlens discovers players from seed riot ids, ingests their recent
matches into an idempotent report store, keeps annual statistics and the
worst game of every player up to date, and serves the reports over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			*built = a
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); RIFTLENS_* env vars override it")

	cmd.AddCommand(
		newCrawlCmd(),
		newIngestCmd(),
		newWidenCmd(),
		newAggregateCmd(),
		newImportCmd(),
		newExportCmd(),
		newServeCmd(),
	)
	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey).(*app.App)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}
