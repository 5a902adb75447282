// Package app builds and owns the long-lived services shared by the CLI
// commands: report store, artifact store, publisher, progress hub and the
// throttled telemetry client.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/riftlens/internal/api"
	gcsartifact "github.com/JakeFAU/riftlens/internal/artifact/gcs"
	localartifact "github.com/JakeFAU/riftlens/internal/artifact/local"
	memoryartifact "github.com/JakeFAU/riftlens/internal/artifact/memory"
	"github.com/JakeFAU/riftlens/internal/clock/system"
	"github.com/JakeFAU/riftlens/internal/config"
	"github.com/JakeFAU/riftlens/internal/id/uuid"
	"github.com/JakeFAU/riftlens/internal/merge"
	"github.com/JakeFAU/riftlens/internal/metrics"
	"github.com/JakeFAU/riftlens/internal/policy/ratelimit"
	"github.com/JakeFAU/riftlens/internal/policy/throttle"
	"github.com/JakeFAU/riftlens/internal/progress"
	progresssinks "github.com/JakeFAU/riftlens/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/riftlens/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/riftlens/internal/publisher/pubsub"
	"github.com/JakeFAU/riftlens/internal/retry"
	"github.com/JakeFAU/riftlens/internal/riftlens"
	"github.com/JakeFAU/riftlens/internal/riot"
	"github.com/JakeFAU/riftlens/internal/store"
	memorystore "github.com/JakeFAU/riftlens/internal/store/memory"
	pgstore "github.com/JakeFAU/riftlens/internal/store/postgres"
	redisstore "github.com/JakeFAU/riftlens/internal/store/redis"
)

// reportBackend is a ReportStore that holds connections.
type reportBackend interface {
	riftlens.ReportStore
	Close() error
}

// Options customizes Build. The zero value uses the process-wide Prometheus
// registry.
type Options struct {
	Registerer prometheus.Registerer
}

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	clock  *system.Clock
	ids    *uuid.Generator

	reports   reportBackend
	merger    *merge.Store
	runs      store.RunRepository
	blobs     riftlens.BlobStore
	publisher riftlens.Publisher
	hub       *progress.Hub
	throttle  *throttle.Throttle

	gcsClient *storage.Client
	pubsub    *gcppublisher.Publisher
}

// Build creates the application's dependencies. Nothing here talks to the
// telemetry API; see Telemetry.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
		ids:    uuid.New(),
	}
	metrics.Init()

	if err := a.setupStore(ctx); err != nil {
		return nil, err
	}
	if err := a.setupArtifacts(ctx); err != nil {
		a.closeInfrastructure(ctx)
		return nil, err
	}
	if err := a.setupPublisher(ctx); err != nil {
		a.closeInfrastructure(ctx)
		return nil, err
	}
	if err := a.setupProgress(ctx, opts.Registerer); err != nil {
		a.closeInfrastructure(ctx)
		return nil, err
	}
	a.throttle = throttle.New(throttle.Config{
		Quota:  cfg.Throttle.Quota,
		Window: cfg.ThrottleWindow(),
	}, a.clock, a.clock)
	return a, nil
}

func (a *App) setupStore(ctx context.Context) error {
	switch a.cfg.Store.Backend {
	case config.BackendPostgres:
		s, err := pgstore.NewReportStore(ctx, pgstore.Config{
			DSN:      a.cfg.Store.Postgres.DSN,
			Table:    a.cfg.Store.Postgres.Table,
			MaxConns: a.cfg.Store.Postgres.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("postgres store init failed: %w", err)
		}
		if err := s.EnsureSchema(ctx); err != nil {
			_ = s.Close()
			return fmt.Errorf("postgres schema: %w", err)
		}
		runs := s.Runs()
		if err := runs.EnsureSchema(ctx); err != nil {
			_ = s.Close()
			return fmt.Errorf("postgres runs schema: %w", err)
		}
		a.reports = s
		a.runs = runs
		a.logger.Info("using postgres report store", zap.String("table", a.cfg.Store.Postgres.Table))
	case config.BackendRedis:
		s, err := redisstore.NewReportStore(redisstore.Config{
			Addr:     a.cfg.Store.Redis.Addr,
			Password: a.cfg.Store.Redis.Password,
			DB:       a.cfg.Store.Redis.DB,
			Prefix:   a.cfg.Store.Redis.Prefix,
		})
		if err != nil {
			return fmt.Errorf("redis store init failed: %w", err)
		}
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return fmt.Errorf("redis store ping: %w", err)
		}
		a.reports = s
		a.logger.Info("using redis report store", zap.String("addr", a.cfg.Store.Redis.Addr))
	default:
		a.reports = memorystore.NewReportStore()
		a.logger.Warn("using in-memory report store; reports are lost on exit")
	}
	a.merger = merge.New(a.reports,
		merge.WithClock(a.clock),
		merge.WithMaxConflictRetries(a.cfg.Store.MaxConflictRetries),
		merge.WithLogger(a.logger.Named("merge")),
	)
	return nil
}

func (a *App) setupArtifacts(ctx context.Context) error {
	switch a.cfg.Artifacts.Backend {
	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcsClient = client
		blobs, err := gcsartifact.New(client, gcsartifact.Config{
			Bucket: a.cfg.Artifacts.GCSBucket,
			Prefix: a.cfg.Artifacts.Prefix,
		})
		if err != nil {
			return fmt.Errorf("gcs artifact store init failed: %w", err)
		}
		a.blobs = blobs
		a.logger.Info("using GCS artifact store", zap.String("bucket", a.cfg.Artifacts.GCSBucket))
	case config.BackendLocal:
		blobs, err := localartifact.New(localartifact.Config{BaseDir: a.cfg.Artifacts.BaseDir})
		if err != nil {
			return fmt.Errorf("local artifact store init failed: %w", err)
		}
		a.blobs = blobs
		a.logger.Info("using local artifact store", zap.String("path", a.cfg.Artifacts.BaseDir))
	default:
		a.blobs = memoryartifact.NewBlobStore()
		a.logger.Info("using in-memory artifact store")
	}
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if a.cfg.PubSub.Topic == "" {
		a.logger.Info("no Pub/Sub topic configured, report updates stay in memory")
		a.publisher = memorypublisher.New()
		return nil
	}
	p, err := gcppublisher.Open(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.Topic)
	if err != nil {
		return fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.pubsub = p
	a.publisher = p
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.Topic),
	)
	return nil
}

func (a *App) setupProgress(ctx context.Context, reg prometheus.Registerer) error {
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return fmt.Errorf("progress prometheus sink: %w", err)
	}
	sinks := []progress.Sink{
		progresssinks.NewLogSink(a.logger.Named("progress")),
		promSink,
		progresssinks.NewArtifactSink(a.blobs, a.logger.Named("progress_artifact")),
	}
	if a.runs != nil {
		sinks = append(sinks, progresssinks.NewStoreSink(a.runs, a.logger.Named("progress_store")))
	}
	a.hub = progress.NewHub(progress.Config{
		BaseContext: context.WithoutCancel(ctx),
		Logger:      a.logger.Named("progress_hub"),
	}, sinks...)
	return nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Clock returns the wall clock.
func (a *App) Clock() riftlens.Clock { return a.clock }

// Reports returns the raw report store.
func (a *App) Reports() riftlens.ReportStore { return a.reports }

// Merger returns the merge pipeline over the report store.
func (a *App) Merger() *merge.Store { return a.merger }

// Blobs returns the artifact store.
func (a *App) Blobs() riftlens.BlobStore { return a.blobs }

// Publisher returns the report.updated publisher.
func (a *App) Publisher() riftlens.Publisher { return a.publisher }

// StartRun allocates a run id and emits RUN_START through the progress hub.
func (a *App) StartRun(kind progress.Kind) (*progress.Run, error) {
	id, err := a.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("allocate run id: %w", err)
	}
	run, err := progress.StartRun(a.hub, kind, id)
	if err != nil {
		return nil, err
	}
	a.logger.Info("run started", zap.String("kind", string(kind)), zap.String("run_id", id))
	return run, nil
}

// Telemetry builds the throttled Riot client. Every client returned by one App
// shares the same throttle, so the quota holds across commands and workers.
func (a *App) Telemetry() (*riot.Client, error) {
	if err := a.cfg.RequireAPIKey(); err != nil {
		return nil, err
	}
	opts := []riot.Option{riot.WithLogger(a.logger.Named("riot"))}
	if delay := a.cfg.PacingDelay(); delay > 0 {
		opts = append(opts, riot.WithPacer(ratelimit.New(ratelimit.Config{Delay: delay})))
	}
	if a.cfg.Retry.MaxAttempts > 0 {
		initial, maximum := a.cfg.RetryBackoff()
		opts = append(opts, riot.WithRetry(retry.NewExponentialPolicy(retry.Config{
			MaxAttempts: a.cfg.Retry.MaxAttempts,
			BaseDelay:   initial,
			MaxDelay:    maximum,
		})))
	}
	client, err := riot.New(riot.Config{
		APIKey:        a.cfg.Riot.APIKey,
		AccountRegion: a.cfg.Riot.AccountRegion,
		MatchRegion:   a.cfg.Riot.MatchRegion,
		BaseURL:       a.cfg.Riot.BaseURL,
		Timeout:       a.cfg.RiotTimeout(),
		Queue:         a.cfg.Riot.Queue,
	}, a.throttle, opts...)
	if err != nil {
		return nil, fmt.Errorf("riot client init failed: %w", err)
	}
	return client, nil
}

// APIServer builds the HTTP API over the report and artifact stores.
func (a *App) APIServer() *api.Server {
	var opts []api.Option
	if a.runs != nil {
		opts = append(opts, api.WithRunRepository(a.runs))
	}
	return api.NewServer(a.reports, a.blobs, a.cfg.Server, a.logger.Named("api"), opts...)
}

// Serve runs the HTTP API until ctx is canceled, then shuts it down.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.APIServer().Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// Close flushes progress and releases every connection.
func (a *App) Close(ctx context.Context) error {
	a.closeInfrastructure(ctx)
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			a.logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.reports != nil {
		if err := a.reports.Close(); err != nil {
			a.logger.Warn("report store close failed", zap.Error(err))
		}
	}
}
