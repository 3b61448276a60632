// Package scheduler runs the recurring maintenance jobs: update advisory
// refresh, directory synchronization, and session sweeping. Jobs are
// registered with cron specs and never overlap themselves.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/resalt-dev/resalt/pkg/errors"
	"github.com/resalt-dev/resalt/pkg/logger"
)

// Scheduler wraps a cron runner. Register jobs with Add before calling Run.
type Scheduler struct {
	cron *cron.Cron

	mu  sync.Mutex
	ctx context.Context
}

// New builds a scheduler. Jobs run in UTC and a slow run suppresses the
// ticks it overlaps instead of stacking.
func New() *Scheduler {
	log := cronLog{}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(log),
			cron.WithChain(cron.SkipIfStillRunning(log)),
		),
	}
}

// Add registers fn under a cron spec such as "@every 1h" or "@hourly".
// A failing run is logged and the schedule keeps going.
func (s *Scheduler) Add(name, spec string, fn func(context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx := s.context()
		logger.Debugw("Running scheduled job", "job", name)
		if err := fn(ctx); err != nil {
			logger.Errorw("scheduled job failed", "job", name, "error", err)
		}
	})
	if err != nil {
		return errors.NewInvalidRequestError(fmt.Sprintf("invalid schedule %q for job %s", spec, name), err)
	}
	return nil
}

// Run starts the schedule and blocks until the context is cancelled, then
// waits for in-flight jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return ctx.Err()
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return s.ctx
	}
	return context.Background()
}

// cronLog adapts the package logger to the cron Logger interface. The
// runner's own chatter goes to debug; chain errors are real errors.
type cronLog struct{}

func (cronLog) Info(msg string, keysAndValues ...any) {
	logger.Debugw(msg, keysAndValues...)
}

func (cronLog) Error(err error, msg string, keysAndValues ...any) {
	logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
