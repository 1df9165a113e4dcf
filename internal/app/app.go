// Package app builds the long-lived services of the crawler from config and
// runs requests against them.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/hiscore-crawler/internal/api"
	"github.com/JakeFAU/hiscore-crawler/internal/clock/system"
	"github.com/JakeFAU/hiscore-crawler/internal/config"
	"github.com/JakeFAU/hiscore-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/hiscore-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/hiscore-crawler/internal/hash/sha256"
	"github.com/JakeFAU/hiscore-crawler/internal/hiscore"
	idgen "github.com/JakeFAU/hiscore-crawler/internal/id/uuid"
	"github.com/JakeFAU/hiscore-crawler/internal/logging"
	"github.com/JakeFAU/hiscore-crawler/internal/metrics"
	"github.com/JakeFAU/hiscore-crawler/internal/pipeline"
	"github.com/JakeFAU/hiscore-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/hiscore-crawler/internal/progress"
	progresssinks "github.com/JakeFAU/hiscore-crawler/internal/progress/sinks"
	"github.com/JakeFAU/hiscore-crawler/internal/proxy"
	memorypublisher "github.com/JakeFAU/hiscore-crawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/hiscore-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/hiscore-crawler/internal/retry"
	"github.com/JakeFAU/hiscore-crawler/internal/runner"
	"github.com/JakeFAU/hiscore-crawler/internal/sink"
	gcsstorage "github.com/JakeFAU/hiscore-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/hiscore-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/hiscore-crawler/internal/storage/memory"
	"github.com/JakeFAU/hiscore-crawler/internal/storage/postgres"
	"github.com/JakeFAU/hiscore-crawler/internal/telemetry"
)

// App holds the services shared by every run.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	clock  *system.Clock
	ids    *idgen.Generator

	fetcher   *collyfetcher.Fetcher
	pipeline  *pipeline.Pipeline
	finalizer *pipeline.Finalizer
	hub       *progress.Hub
	tracker   *progress.Tracker
	store     *postgres.Store
	errorLog  *sink.ErrorLog

	storageClient *storage.Client
	pubsubClient  *pubsub.Client
	publisher     *gcppublisher.Publisher
	tracer        *sdktrace.TracerProvider
}

// Deps overrides collaborators Build would otherwise create. Nil fields keep
// the configured ones.
type Deps struct {
	Logger    *zap.Logger
	Pages     crawler.PageFetcher
	Users     crawler.UserFetcher
	Blobs     crawler.BlobStore
	Publisher crawler.Publisher
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	return BuildWith(ctx, cfg, Deps{})
}

// BuildWith is Build with some collaborators supplied by the caller.
func BuildWith(ctx context.Context, cfg config.Config, deps Deps) (*App, error) {
	logger := deps.Logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Config{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		zap.ReplaceGlobals(logger)
	}
	metrics.Init()

	a := &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
		ids:    idgen.New(),
	}
	if err := a.build(ctx, deps); err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Close(closeCtx)
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, deps Deps) error {
	if a.cfg.Telemetry.Enabled {
		tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
			ServiceName: a.cfg.Telemetry.ServiceName,
			SampleRatio: a.cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			return fmt.Errorf("tracer init failed: %w", err)
		}
		a.tracer = tp
	}

	if err := a.setupDatabase(ctx); err != nil {
		return err
	}
	blobs := deps.Blobs
	if blobs == nil {
		var err error
		if blobs, err = a.setupStorage(ctx); err != nil {
			return err
		}
	}
	publisher := deps.Publisher
	if publisher == nil {
		var err error
		if publisher, err = a.setupPublisher(ctx); err != nil {
			return err
		}
	}
	if err := a.setupProgress(); err != nil {
		return err
	}

	pages, users := deps.Pages, deps.Users
	if pages == nil || users == nil {
		if err := a.setupFetcher(); err != nil {
			return err
		}
		if pages == nil {
			pages = a.fetcher
		}
		if users == nil {
			users = a.fetcher
		}
	}

	var errorSink retry.ErrorSink
	if a.cfg.Output.ErrorFile != "" {
		errorLog, err := sink.NewErrorLog(a.cfg.Output.ErrorFile)
		if err != nil {
			return fmt.Errorf("error log init failed: %w", err)
		}
		a.errorLog = errorLog
		errorSink = errorLog
	}
	retrier := retry.New(retry.Config{
		MaxRetries:   a.cfg.Retry.MaxRetries,
		InitialDelay: a.cfg.InitialDelay(),
	}, errorSink, a.clock, a.logger.Named("retry"))

	a.pipeline = pipeline.New(pipeline.Config{
		PageWorkers:         a.cfg.Crawler.PageWorkers,
		LookupWorkers:       a.cfg.Crawler.LookupWorkers,
		LookupQueueCapacity: a.cfg.Crawler.LookupQueueCapacity,
		Stagger:             a.cfg.Stagger(),
		PageSize:            a.cfg.Hiscores.PageSize,
		MaxPages:            a.cfg.Hiscores.MaxPages,
	}, pipeline.Deps{
		Pages:    pages,
		Users:    users,
		Retrier:  retrier,
		Progress: a.hub,
		Clock:    a.clock,
		IDs:      a.ids,
		Logger:   a.logger.Named("pipeline"),
	})
	a.finalizer = &pipeline.Finalizer{
		Hasher:    sha256.New(),
		Blobs:     blobs,
		Prefix:    a.cfg.Storage.Prefix,
		Publisher: publisher,
		Topic:     a.cfg.PubSub.TopicName,
		Logger:    a.logger.Named("finalize"),
	}
	a.logger.Info("application built",
		zap.Int("page_workers", a.cfg.Crawler.PageWorkers),
		zap.Int("lookup_workers", a.cfg.Crawler.LookupWorkers),
		zap.String("output", a.cfg.Output.Target),
		zap.String("storage", a.cfg.Storage.Backend),
		zap.String("pubsub", a.cfg.PubSub.Backend),
	)
	return nil
}

func (a *App) setupDatabase(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Debug("no database DSN, postgres output and run history disabled")
		return nil
	}
	store, err := postgres.New(ctx, postgres.Config{
		DSN:          a.cfg.DB.DSN,
		RecordsTable: a.cfg.DB.RecordsTable,
		PlayersTable: a.cfg.DB.PlayersTable,
		RunsTable:    a.cfg.DB.RunsTable,
		MaxConns:     a.cfg.DB.MaxConns,
		MinConns:     a.cfg.DB.MinConns,
	})
	if err != nil {
		return fmt.Errorf("postgres store init failed: %w", err)
	}
	a.store = store
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("postgres schema init failed: %w", err)
	}
	a.logger.Info("postgres store initialized")
	return nil
}

func (a *App) setupStorage(ctx context.Context) (crawler.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.storageClient = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("archiving output to GCS", zap.String("bucket", a.cfg.Storage.GCSBucket))
		return blobs, nil
	case "memory":
		return memorystorage.NewBlobStore(), nil
	case "local":
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("archiving output locally", zap.String("path", a.cfg.Storage.BaseDir))
		return blobs, nil
	default:
		return nil, nil
	}
}

func (a *App) setupPublisher(ctx context.Context) (crawler.Publisher, error) {
	switch a.cfg.PubSub.Backend {
	case "pubsub":
		client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.pubsubClient = client
		a.publisher = gcppublisher.New(client)
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.PubSub.ProjectID),
			zap.String("topic", a.cfg.PubSub.TopicName),
		)
		return a.publisher, nil
	case "memory":
		return memorypublisher.New(), nil
	default:
		return nil, nil
	}
}

func (a *App) setupProgress() error {
	a.tracker = progress.NewTracker(0)
	sinkList := []progress.Sink{
		a.tracker,
		progresssinks.NewLogSink(a.logger.Named("progress_log")),
	}
	promSink, err := progresssinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		a.logger.Warn("progress metrics disabled", zap.Error(err))
	} else {
		sinkList = append(sinkList, promSink)
	}
	if a.store != nil {
		sinkList = append(sinkList, progresssinks.NewStoreSink(a.store, a.logger.Named("progress_store")))
	}
	a.hub = progress.NewHub(progress.Config{Logger: a.logger.Named("progress_hub")}, sinkList...)
	return nil
}

func (a *App) setupFetcher() error {
	proxies, err := proxy.Load(a.cfg.Proxy.File)
	if err != nil {
		return fmt.Errorf("load proxies: %w", err)
	}
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   a.cfg.HTTP.RequestsPerSecond,
		DefaultBurst: a.cfg.HTTP.Burst,
	})
	a.fetcher = collyfetcher.New(collyfetcher.Config{
		BaseURL:   a.cfg.Hiscores.BaseURL,
		UserAgent: a.cfg.HTTP.UserAgent,
		Timeout:   a.cfg.Timeout(),
	}, proxy.NewRotator(proxies), limiter, a.logger.Named("fetcher"))
	a.logger.Info("hiscore fetcher ready",
		zap.String("base_url", a.cfg.Hiscores.BaseURL),
		zap.Int("proxies", len(proxies)),
		zap.Float64("requests_per_second", a.cfg.HTTP.RequestsPerSecond),
	)
	return nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Config returns the configuration the app was built from.
func (a *App) Config() config.Config { return a.cfg }

// Pipeline exposes the run assembly for single-shot commands.
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipeline }

// Tracker exposes the in-memory run progress.
func (a *App) Tracker() *progress.Tracker { return a.tracker }

// Serve runs the API and the run scheduler until ctx ends or a signal
// arrives.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runs := runner.New(runner.Config{
		Concurrency: a.cfg.Crawler.MaxConcurrentRuns,
	}, a, a.ids, a.logger.Named("runner"))
	deps := api.Deps{Runs: runs, Tracker: a.tracker, Auth: a.cfg.Auth}
	if a.store != nil {
		deps.History = a.store
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           api.NewServer(deps, a.logger.Named("api")).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	runnerDone := make(chan error, 1)
	go func() {
		runnerDone <- runs.Run(ctx)
	}()
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if err := <-runnerDone; err != nil {
		a.logger.Warn("runner stopped with error", zap.Error(err))
	}
	return nil
}

// Close shuts down every service the app opened. It is safe to call on a
// partially built app.
func (a *App) Close(ctx context.Context) error {
	a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.publisher != nil {
		a.publisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storageClient != nil {
		if err := a.storageClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.errorLog != nil {
		if err := a.errorLog.Close(); err != nil {
			a.logger.Warn("error log close failed", zap.Error(err))
		}
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

// request is a runner.Request resolved against the domain model.
type request struct {
	account  hiscore.AccountType
	category hiscore.Category
	filters  []hiscore.FilterEntry
}

// Validate implements runner.Executor.
func (a *App) Validate(req runner.Request) error {
	_, err := a.resolve(req)
	return err
}

func (a *App) resolve(req runner.Request) (request, error) {
	var out request
	switch req.Command {
	case pipeline.CommandScrape, pipeline.CommandFilter, pipeline.CommandAnalyse:
	default:
		return out, fmt.Errorf("unsupported command %q", req.Command)
	}
	acc, err := a.account(req.Account)
	if err != nil {
		return out, err
	}
	out.account = acc
	if req.Command != pipeline.CommandFilter || req.Input == "" {
		cat, err := hiscore.ParseCategory(req.Category)
		if err != nil {
			return out, err
		}
		if !cat.Ranked() {
			return out, fmt.Errorf("%s: %w", cat, pipeline.ErrUnrankedCategory)
		}
		out.category = cat
	}
	if req.StartRank < 0 || req.EndRank < 0 {
		return out, fmt.Errorf("ranks must be >= 0")
	}
	if req.EndRank > 0 && req.StartRank > req.EndRank {
		return out, fmt.Errorf("start_rank %d is past end_rank %d", req.StartRank, req.EndRank)
	}
	filters, err := hiscore.ParseFilters(req.Filters)
	if err != nil {
		return out, err
	}
	out.filters = filters
	return out, nil
}

type output interface {
	pipeline.RecordWriter
	pipeline.PlayerWriter
}

// openOutput picks where the results of run id go. path is empty when the
// results go to Postgres.
func (a *App) openOutput(id uuid.UUID, req runner.Request) (out output, path string, closeFn func() error, err error) {
	if a.cfg.Output.Target == "postgres" && a.store != nil && req.Command != pipeline.CommandAnalyse {
		return pipeline.StoreOutput{Store: a.store, RunID: id.String(), Clock: a.clock}, "", func() error { return nil }, nil
	}
	path = req.Output
	if path == "" {
		path = filepath.Join(a.cfg.Output.Dir, id.String()+".jsonl")
	}
	lines, err := sink.NewLines(path)
	if err != nil {
		return nil, "", nil, err
	}
	return pipeline.LinesOutput{Lines: lines}, lines.Path(), lines.Close, nil
}

// Execute implements runner.Executor: it runs req to completion, then
// archives the output and publishes the summary.
func (a *App) Execute(ctx context.Context, id uuid.UUID, req runner.Request) (crawler.RunSummary, error) {
	r, err := a.resolve(req)
	if err != nil {
		return crawler.RunSummary{}, err
	}
	if id == uuid.Nil {
		if id, err = a.ids.NewRunID(); err != nil {
			return crawler.RunSummary{}, fmt.Errorf("generate run id: %w", err)
		}
	}
	var input []hiscore.CategoryRecord
	if req.Command == pipeline.CommandFilter && req.Input != "" {
		if input, err = sink.ReadLinesFile[hiscore.CategoryRecord](req.Input); err != nil {
			return crawler.RunSummary{}, err
		}
		if input == nil {
			input = []hiscore.CategoryRecord{}
		}
	}

	out, path, closeOut, err := a.openOutput(id, req)
	if err != nil {
		return crawler.RunSummary{}, err
	}

	var (
		res    pipeline.Result
		runErr error
	)
	scrape := pipeline.ScrapeRequest{
		RunID:     id,
		Account:   r.account,
		Category:  r.category,
		StartRank: req.StartRank,
		EndRank:   req.EndRank,
	}
	switch req.Command {
	case pipeline.CommandScrape:
		res, runErr = a.pipeline.ScrapeRange(ctx, scrape, out)
	case pipeline.CommandFilter:
		res, runErr = a.pipeline.FilterPlayers(ctx, pipeline.FilterRequest{
			RunID:     id,
			Account:   r.account,
			Category:  r.category,
			Filters:   r.filters,
			StartRank: req.StartRank,
			Input:     input,
		}, out)
	case pipeline.CommandAnalyse:
		var summary hiscore.StatsSummary
		summary, res, runErr = a.pipeline.Analyse(ctx, scrape)
		if runErr == nil {
			if lo, ok := out.(pipeline.LinesOutput); ok {
				runErr = lo.Lines.Write(ctx, summary)
			}
		}
	}
	if err := closeOut(); err != nil && runErr == nil {
		runErr = err
	}

	s := res.Summary(r.account, r.category.Name, runErr)
	s.Output = path
	s = a.finalizer.Finalize(context.WithoutCancel(ctx), s)
	return s, runErr
}

func (a *App) account(name string) (hiscore.AccountType, error) {
	if name == "" {
		return a.cfg.Account(), nil
	}
	return hiscore.ParseAccountType(name)
}

// MaxPage finds the last page of the named leaderboard.
func (a *App) MaxPage(ctx context.Context, account, category string) (pipeline.MaxPageReport, error) {
	acc, err := a.account(account)
	if err != nil {
		return pipeline.MaxPageReport{}, err
	}
	cat, err := hiscore.ParseCategory(category)
	if err != nil {
		return pipeline.MaxPageReport{}, err
	}
	return a.pipeline.MaxPage(ctx, acc, cat)
}

// Lookup fetches one player's stat sheet.
func (a *App) Lookup(ctx context.Context, account, username string) (*hiscore.PlayerRecord, error) {
	acc, err := a.account(account)
	if err != nil {
		return nil, err
	}
	return a.pipeline.Lookup(ctx, acc, username)
}
