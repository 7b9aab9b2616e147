package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tajong-backend/config"
	"tajong-backend/internal/notification"
	"tajong-backend/internal/scheduler"
)

// ErrStopped is returned by Do once the service has exited.
var ErrStopped = errors.New("scheduler service stopped")

// Command runs against the engine on the service goroutine.
type Command func(ctx context.Context, e *scheduler.Engine) error

type request struct {
	fn    Command
	reply chan error
}

// Service owns the engine. Ticks and commands from the API or CLI are executed
// one at a time on the goroutine running Run.
type Service struct {
	cfg        *config.SchedulerConfig
	engine     *scheduler.Engine
	workerPool *notification.WorkerPool
	log        *zap.Logger
	clock      func() time.Time

	requests chan request
	done     chan struct{}
	failures int
}

// NewService wires the engine with an optional notification pool.
func NewService(cfg *config.SchedulerConfig, engine *scheduler.Engine, pool *notification.WorkerPool, log *zap.Logger) *Service {
	return &Service{
		cfg:        cfg,
		engine:     engine,
		workerPool: pool,
		log:        log,
		clock:      time.Now,
		requests:   make(chan request),
		done:       make(chan struct{}),
	}
}

// Run ticks the engine until ctx is cancelled. It returns an error only when
// persistence failed MaxPersistenceFailures times in a row.
func (s *Service) Run(ctx context.Context) error {
	defer close(s.done)
	s.log.Info("starting scheduler service",
		zap.Duration("tick", s.cfg.TickInterval),
		zap.String("purge_policy", s.cfg.PurgePolicy))

	if s.workerPool != nil {
		s.workerPool.Start(ctx)
	}

	if s.cfg.AutoStart {
		if err := s.engine.Start(ctx); err != nil {
			s.log.Error("failed to start engine", zap.Error(err))
		}
	}

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler service shutting down")
			return nil
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				return err
			}
		case req := <-s.requests:
			req.reply <- req.fn(ctx, s.engine)
		}
	}
}

// tick counts failed ticks. Idle ticks touch nothing, so only a tick that
// settled an occurrence or resolved the next one ends a failure streak.
func (s *Service) tick(ctx context.Context) error {
	outcome, err := s.engine.Step(ctx, s.clock())
	if err == nil {
		if outcome != scheduler.OutcomeIdle {
			if s.failures > 0 {
				s.log.Info("persistence recovered", zap.Int("after_failures", s.failures))
			}
			s.failures = 0
		}
		return nil
	}
	if ctx.Err() != nil {
		return nil
	}

	s.failures++
	s.log.Error("tick failed", zap.Int("consecutive", s.failures), zap.Error(err))
	if s.cfg.MaxPersistenceFailures > 0 && s.failures >= s.cfg.MaxPersistenceFailures {
		return fmt.Errorf("giving up after %d consecutive persistence failures: %w", s.failures, err)
	}
	return nil
}

// Do runs fn on the service goroutine between ticks and returns its error.
func (s *Service) Do(ctx context.Context, fn Command) error {
	req := request{fn: fn, reply: make(chan error, 1)}
	select {
	case s.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStopped
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the engine snapshot.
func (s *Service) Status(ctx context.Context) (scheduler.Status, error) {
	var st scheduler.Status
	err := s.Do(ctx, func(ctx context.Context, e *scheduler.Engine) error {
		var err error
		st, err = e.Status(ctx)
		return err
	})
	return st, err
}
