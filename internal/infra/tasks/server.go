package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"workflow-dashboard/internal/config"
)

// Server consumes trigger events from asynq.
type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    *zerolog.Logger
}

func NewServer(redisOpt asynq.RedisConnOpt, cfg config.QueueConfig, h asynq.Handler, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "TaskServer").Logger()

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:    cfg.Concurrency,
		Queues:         map[string]int{cfg.Name: 1},
		RetryDelayFunc: RetryDelay(cfg.RetryInterval, cfg.BusyRetryDelay),
		IsFailure:      IsFailure,
		Logger:         asynqLogger{l: l},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, t *asynq.Task, err error) {
			if !IsFailure(err) {
				return
			}
			retry, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			l.Warn().Err(err).Str("type", t.Type()).Int("retry", retry).Int("max_retry", maxRetry).Msg("task failed")
		}),
	})

	mux := asynq.NewServeMux()
	mux.Handle(TypeProcessWorkflow, h)
	return &Server{server: srv, mux: mux, log: &l}
}

// Run processes tasks until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if err := s.server.Start(s.mux); err != nil {
		return fmt.Errorf("start task server: %w", err)
	}
	s.log.Info().Msg("task server started")
	<-ctx.Done()
	s.server.Shutdown()
	s.log.Info().Msg("task server stopped")
	return nil
}

// IsFailure excludes busy postponements from retry accounting.
func IsFailure(err error) bool {
	return err != nil && !errors.Is(err, ErrUserBusy)
}

// RetryDelay backs off exponentially up to ceiling; busy runs come back
// after busy.
func RetryDelay(ceiling, busy time.Duration) asynq.RetryDelayFunc {
	return func(n int, err error, t *asynq.Task) time.Duration {
		if errors.Is(err, ErrUserBusy) {
			return busy
		}
		if n < 0 {
			n = 0
		}
		if n > 16 {
			n = 16
		}
		delay := time.Duration(1<<uint(n)) * time.Second
		if ceiling > 0 && delay > ceiling {
			delay = ceiling
		}
		return delay
	}
}

type asynqLogger struct{ l zerolog.Logger }

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) { a.l.Fatal().Msg(fmt.Sprint(args...)) }
