// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"workflow-dashboard/internal/config"
	"workflow-dashboard/internal/domain/ports/adapter"
	"workflow-dashboard/internal/infra/api"
	"workflow-dashboard/internal/infra/api/apiv1"
	"workflow-dashboard/internal/infra/auth"
	pg "workflow-dashboard/internal/infra/db/postgres"
	"workflow-dashboard/internal/infra/logging"
	"workflow-dashboard/internal/infra/metrics"
	"workflow-dashboard/internal/infra/notify"
	"workflow-dashboard/internal/infra/processor"
	red "workflow-dashboard/internal/infra/redis"
	"workflow-dashboard/internal/infra/sched"
	s3store "workflow-dashboard/internal/infra/storage/s3"
	"workflow-dashboard/internal/infra/tasks"
	"workflow-dashboard/internal/infra/worker"
	"workflow-dashboard/internal/usecase"

	"github.com/go-chi/chi/v5"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	if cfg.Database.Migrate {
		if err := pg.Migrate(ctx, pool); err != nil {
			logger.Fatal().Err(err).Msg("migrate")
		}
	}
	go pg.ReportPoolStats(ctx, pool, 15*time.Second, logger)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)
	limiter := red.NewRateLimiter(redisClient)

	// ---- Object storage ----
	storage, err := s3store.New(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("s3")
	}

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	userRepo := pg.NewUserRepo(pool)
	jobRepo := pg.NewJobRepo(pool)
	fileRepo := pg.NewFileRepo(pool)
	workflowFileRepo := pg.NewWorkflowFileRepo(pool)
	workflowRepo := pg.NewWorkflowRepoCacheDecorator(pg.NewWorkflowRepo(pool), redisClient, cfg.Redis.TTL, logger)

	// ---- Dispatch ----
	var dispatcher adapter.JobDispatcher
	switch cfg.Queue.Mode {
	case "inline":
		proc, err := processor.NewHTTPClient(cfg.Processor.Endpoint, cfg.Processor.AuthToken, cfg.Processor.Timeout)
		if err != nil {
			logger.Fatal().Err(err).Msg("processor client")
		}
		notifier, closeNotifier, err := notify.New(cfg.Notify, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("notifier")
		}
		defer func() { _ = closeNotifier() }()

		pipeline := worker.NewJobPipeline(jobRepo, fileRepo, storage, proc, notifier,
			worker.PipelineOptions{SkipIfOutputsExist: cfg.Processor.SkipIfOutputsExist}, logger)
		handler := tasks.NewProcessWorkflowHandler(pipeline, locker, red.NewStepJournal(redisClient, 0), cfg.Queue.TaskTimeout, logger)

		workers := worker.NewPool(cfg.Queue.Concurrency, logger)
		workers.Start(ctx)
		defer workers.Stop()
		dispatcher = tasks.NewInlineDispatcher(workers, handler, cfg.Queue, logger)
		logger.Info().Int("concurrency", cfg.Queue.Concurrency).Msg("jobs run in-process")
	default:
		d := tasks.NewDispatcher(tasks.RedisOpt(cfg.Redis), cfg.Queue, logger)
		defer func() { _ = d.Close() }()
		dispatcher = d
	}

	// ---- Use cases ----
	userUC := usecase.NewUserUseCase(userRepo, tm, logger)
	workflowUC := usecase.NewWorkflowUseCase(workflowRepo, tm, logger)
	workflowFileUC := usecase.NewWorkflowFileUseCase(workflowFileRepo, workflowRepo, storage, logger)
	jobUC := usecase.NewJobUseCase(jobRepo, fileRepo, workflowRepo, tm, storage, dispatcher, limiter,
		usecase.JobUseCaseConfig{PresignTTL: cfg.Storage.PresignTTL, ProcessPerMinute: cfg.RateLimit.ProcessPerMinute}, logger)

	// ---- Stale job reaper ----
	reaper := sched.NewStaleJobReaper(cfg.Reaper.Interval, cfg.Reaper.StaleAfter, jobRepo, locker, logger)
	go func() {
		if err := reaper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("stale job reaper stopped")
		}
	}()

	// ---- HTTP ----
	sessions := auth.NewManager(cfg.Auth)
	srv := apiv1.NewServer(jobUC, workflowUC, workflowFileUC, userUC, sessions, logger)
	r := chi.NewRouter()
	r.Use(api.Metrics())
	apiv1.RegisterAPIV1(r, srv)

	handler := api.Chain(r,
		api.TraceID(),
		api.Recover(logger),
		api.RequestLog(logger),
		api.Timeout(cfg.HTTP.RequestTimeout),
	)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Str("queue_mode", cfg.Queue.Mode).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
	case <-ctx.Done():
	}
	logger.Info().Msg("shutdown requested")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cancel()
}
