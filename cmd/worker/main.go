// File: cmd/worker/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"workflow-dashboard/internal/config"
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

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs)")
	metricsPort := flag.Int("metrics-port", 9091, "port serving /metrics; 0 disables it")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 15*time.Second, logger)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)

	// ---- Adapters ----
	storage, err := s3store.New(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("s3")
	}
	proc, err := processor.NewHTTPClient(cfg.Processor.Endpoint, cfg.Processor.AuthToken, cfg.Processor.Timeout)
	if err != nil {
		logger.Fatal().Err(err).Msg("processor client")
	}
	notifier, closeNotifier, err := notify.New(cfg.Notify, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("notifier")
	}
	defer func() { _ = closeNotifier() }()

	// ---- Pipeline ----
	jobRepo := pg.NewJobRepo(pool)
	pipeline := worker.NewJobPipeline(jobRepo, pg.NewFileRepo(pool), storage, proc, notifier,
		worker.PipelineOptions{SkipIfOutputsExist: cfg.Processor.SkipIfOutputsExist}, logger)
	handler := tasks.NewProcessWorkflowHandler(pipeline, locker, red.NewStepJournal(redisClient, 0), cfg.Queue.TaskTimeout, logger)

	// ---- Stale job reaper ----
	// every replica runs one; the redis lock lets a single sweep through
	reaper := sched.NewStaleJobReaper(cfg.Reaper.Interval, cfg.Reaper.StaleAfter, jobRepo, locker, logger)
	go func() {
		if err := reaper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("stale job reaper stopped")
		}
	}()

	if *metricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: fmt.Sprintf(":%d", *metricsPort), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server")
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	server := tasks.NewServer(tasks.RedisOpt(cfg.Redis), cfg.Queue, handler, logger)
	logger.Info().Str("queue", cfg.Queue.Name).Int("concurrency", cfg.Queue.Concurrency).Msg("worker started")
	if err := server.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("worker stopped")
	}
}
