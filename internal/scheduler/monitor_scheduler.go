package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// TickFunc performs one evaluation pass
type TickFunc func(ctx context.Context)

// MonitorScheduler runs a TickFunc at a fixed interval, plus once shortly
// after every start. Ticks never overlap: a tick that finds the previous one
// still running is skipped.
type MonitorScheduler struct {
	logger       *zap.Logger
	interval     time.Duration
	initialDelay time.Duration
	tick         TickFunc

	mu         sync.Mutex
	cron       *cron.Cron
	timer      *time.Timer
	cancel     context.CancelFunc
	generation uint64
	running    bool
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, fields(keysAndValues)...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(fields(keysAndValues), zap.Error(err))...)
}

func fields(keysAndValues []interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		out = append(out, zap.Any(key, keysAndValues[i+1]))
	}
	return out
}

// NewMonitorScheduler creates a new scheduler. Intervals below one second are
// rounded up to one second.
func NewMonitorScheduler(interval, initialDelay time.Duration, tick TickFunc, logger *zap.Logger) *MonitorScheduler {
	if interval < time.Second {
		interval = time.Second
	}
	if initialDelay < 0 {
		initialDelay = 0
	}
	return &MonitorScheduler{
		logger:       logger.Named("monitor-scheduler"),
		interval:     interval,
		initialDelay: initialDelay,
		tick:         tick,
	}
}

// Start arms the recurring tick and the initial run. Calling Start while
// running re-arms the timers. Cancelling ctx stops the scheduler.
func (s *MonitorScheduler) Start(ctx context.Context) error {
	if s.tick == nil {
		return ErrNoTickFunc
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrContextDone, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Info("Restarting monitor scheduler")
		s.stopLocked()
	}

	cl := &cronLogger{logger: s.logger.Named("cron")}
	job := cron.NewChain(
		cron.Recover(cl),
		cron.SkipIfStillRunning(cl),
	).Then(cron.FuncJob(func() {
		s.tick(ctx)
	}))

	c := cron.New(cron.WithLogger(cl))
	c.Schedule(cron.Every(s.interval), job)
	c.Start()

	watchCtx, cancel := context.WithCancel(ctx)
	s.generation++
	s.cron = c
	s.timer = time.AfterFunc(s.initialDelay, job.Run)
	s.cancel = cancel
	s.running = true

	go s.watch(ctx, watchCtx, s.generation)

	s.logger.Info("Monitor scheduler started",
		zap.Duration("interval", s.interval),
		zap.Duration("initial_delay", s.initialDelay))

	return nil
}

// Stop cancels pending ticks. An in-flight tick is not interrupted.
func (s *MonitorScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.stopLocked()
	s.logger.Info("Monitor scheduler stopped")
}

// Running reports whether the scheduler is armed
func (s *MonitorScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Interval returns the effective tick interval
func (s *MonitorScheduler) Interval() time.Duration {
	return s.interval
}

func (s *MonitorScheduler) stopLocked() {
	s.timer.Stop()
	// cron.Stop waits for running jobs only if its context is awaited.
	s.cron.Stop()
	s.cancel()
	s.running = false
}

func (s *MonitorScheduler) watch(parent, watchCtx context.Context, generation uint64) {
	<-watchCtx.Done()
	if parent.Err() == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running && s.generation == generation {
		s.stopLocked()
		s.logger.Info("Monitor scheduler stopped by context", zap.Error(parent.Err()))
	}
}
