// Package scheduler runs named periodic tasks from a single background loop.
//
// Every tick the loop walks the tasks in registration order and invokes each
// one whose interval has elapsed since its last successful run. Tasks never
// run concurrently with each other. A task that returns an error or panics is
// logged and stays due, so it is retried on the next tick.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/paysim/observability"
)

var (
	// ErrCallback wraps an error returned or a panic raised by a task.
	ErrCallback = errors.New("scheduler: task failed")

	// ErrRunning is returned by Register once the scheduler has started.
	ErrRunning = errors.New("scheduler: already running")

	// ErrDuplicateTask is returned by Register for a name already in use.
	ErrDuplicateTask = errors.New("scheduler: duplicate task name")
)

// Func is the body of a scheduled task.
type Func func(ctx context.Context) error

// Task is a registered periodic task.
type Task struct {
	Name     string
	Fn       Func
	Interval time.Duration

	lastRun     time.Time // last successful invocation, zero if never
	lastAttempt time.Time
	failed      bool
}

// Config holds scheduler tuning.
type Config struct {
	// Tick is the pause between evaluations. Default 60s.
	Tick time.Duration

	// HonorIntervals makes the loop wake up as soon as the earliest task is
	// due, never sleeping longer than Tick.
	HonorIntervals bool

	Now     func() time.Time
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Scheduler owns the task list and the background loop.
type Scheduler struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	tasks   []*Task
	byName  map[string]*Task
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// runMu serializes task evaluation between the loop and RunOnce.
	runMu sync.Mutex
}

// New creates a stopped scheduler.
func New(cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.Tick <= 0 {
		cfg.Tick = 60 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:    cfg,
		logger: logger,
		byName: make(map[string]*Task),
	}
}

// Register adds a task. It must be called before Start.
func (s *Scheduler) Register(name string, fn Func, interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("%w: cannot register %q", ErrRunning, name)
	}
	if _, ok := s.byName[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateTask, name)
	}

	t := &Task{Name: name, Fn: fn, Interval: interval}
	s.tasks = append(s.tasks, t)
	s.byName[name] = t

	s.logger.Info("registered background task", "task", name, "interval", interval)
	if interval < s.cfg.Tick && !s.cfg.HonorIntervals {
		s.logger.Warn("task interval is shorter than the scheduler tick and will run at most once per tick",
			"task", name, "interval", interval, "tick", s.cfg.Tick)
	}
	return nil
}

// Tasks returns the registered task names in registration order.
func (s *Scheduler) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.tasks))
	for i, t := range s.tasks {
		names[i] = t.Name
	}
	return names
}

// LastRun returns the time of the last successful run of the named task.
// The boolean is false when the task is unknown or has never succeeded.
func (s *Scheduler) LastRun(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byName[name]
	if !ok || t.lastRun.IsZero() {
		return time.Time{}, false
	}
	return t.lastRun, true
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start launches the background loop. Calling Start on a running scheduler
// does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.running = true

	go func(done chan struct{}) {
		defer close(done)
		s.loop(ctx)
	}(s.done)

	s.logger.Info("background task scheduler started", "tick", s.cfg.Tick, "tasks", len(s.tasks))
}

// Stop cancels the loop and waits for it to return. A task in progress sees
// its context cancelled. Calling Stop on a stopped scheduler does nothing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	done := s.done
	s.mu.Unlock()

	<-done

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.logger.Info("background task scheduler stopped")
}

// RunOnce evaluates every task once, synchronously, exactly as one loop tick
// would. The returned error joins every task failure.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.tick(ctx)
}

func (s *Scheduler) loop(ctx context.Context) {
	for {
		_ = s.tick(ctx)

		timer := time.NewTimer(s.nextWait())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.mu.Lock()
	tasks := append([]*Task(nil), s.tasks...)
	s.mu.Unlock()

	var errs []error
	for _, t := range tasks {
		if ctx.Err() != nil {
			break
		}
		now := s.cfg.Now()
		if !s.due(t, now) {
			continue
		}
		if err := s.invoke(ctx, t, now); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) due(t *Task, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return t.lastRun.IsZero() || now.Sub(t.lastRun) >= t.Interval
}

// invoke runs one task, converting panics into ErrCallback.
func (s *Scheduler) invoke(ctx context.Context, t *Task, now time.Time) (err error) {
	ctx, span := s.cfg.Tracer.StartTaskSpan(ctx, t.Name)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: panic: %v", ErrCallback, t.Name, r)
		}

		s.mu.Lock()
		t.lastAttempt = now
		t.failed = err != nil
		if err == nil {
			t.lastRun = now
		}
		s.mu.Unlock()

		s.cfg.Metrics.RecordTask(t.Name, err == nil, time.Since(start).Seconds())
		observability.EndSpan(span, err)
		if err != nil {
			s.logger.ErrorContext(ctx, "background task failed", "task", t.Name, "error", err)
		}
	}()

	s.logger.DebugContext(ctx, "running background task", "task", t.Name)
	if fnErr := t.Fn(ctx); fnErr != nil {
		return fmt.Errorf("%w: %s: %w", ErrCallback, t.Name, fnErr)
	}
	return nil
}

// nextWait returns how long the loop sleeps before the next evaluation.
func (s *Scheduler) nextWait() time.Duration {
	if !s.cfg.HonorIntervals {
		return s.cfg.Tick
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.cfg.Now()
	wait := s.cfg.Tick
	for _, t := range s.tasks {
		var next time.Time
		switch {
		case t.lastAttempt.IsZero():
			next = now
		case t.failed:
			next = t.lastAttempt.Add(s.cfg.Tick)
		case t.Interval <= 0:
			continue
		default:
			next = t.lastRun.Add(t.Interval)
		}
		if d := next.Sub(now); d < wait {
			wait = d
		}
	}
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return wait
}
