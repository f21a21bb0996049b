package enricher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
)

// DefaultScrapeInterval is the default period between cycles.
const DefaultScrapeInterval = 10 * time.Second

// Scheduler drives Service.RunCycle on a fixed period. Cycles never overlap:
// a tick that arrives while a cycle is still running is skipped. A cycle that
// fails or panics is logged and the next tick proceeds normally.
type Scheduler struct {
	svc      *Service
	interval time.Duration
	cron     *cron.Cron
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	done    chan struct{} // closed by Stop, ends the ctx watcher of this run
	first   sync.WaitGroup
}

// NewScheduler returns a Scheduler for svc. Intervals below one second are
// rounded up to one second.
func NewScheduler(svc *Service, interval time.Duration, log *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultScrapeInterval
	}
	logger := log.With("component", "scheduler")
	return &Scheduler{
		svc:      svc,
		interval: interval,
		logger:   logger,
	}
}

// Start runs a first cycle immediately and then one per interval until ctx
// is cancelled or Stop is called. A stopped Scheduler may be started again.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("scheduler already running")
	}

	cl := cronLogger{s.logger}
	job := cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).
		Then(cron.FuncJob(func() { s.runCycle(ctx) }))

	s.cron = cron.New(cron.WithLogger(cl))
	s.cron.Schedule(cron.Every(s.interval), job)
	s.cron.Start()
	s.running = true
	done := make(chan struct{})
	s.done = done

	s.logger.Info("scheduler started", slog.Duration("interval", s.interval))

	s.first.Add(1)
	go func() {
		defer s.first.Done()
		job.Run()
	}()

	go func() {
		select {
		case <-ctx.Done():
			s.stopRun(done)
		case <-done:
		}
	}()

	return nil
}

// Stop stops the scheduler and waits for a running cycle to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// stopRun stops the scheduler only if the run identified by done is still
// the current one.
func (s *Scheduler) stopRun(done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == done {
		s.stopLocked()
	}
}

func (s *Scheduler) stopLocked() {
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.first.Wait()
	close(s.done)
	s.done = nil
	s.running = false
	s.logger.Info("scheduler stopped")
}

// IsRunning reports whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.svc.Recovered(start)
			panic(r) // logged with stack by cron.Recover
		}
	}()
	// Errors are already logged by the service; the next tick retries.
	_ = s.svc.RunCycle(ctx)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
