package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/xraph/paysim/observability"
	"github.com/xraph/paysim/scheduler"
)

// fakeClock is advanced manually by the tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestSuccessfulTaskSkippedUntilIntervalElapses(t *testing.T) {
	clock := newFakeClock()
	s := scheduler.New(scheduler.Config{Now: clock.Now}, nil)

	var runs atomic.Int32
	if err := s.Register("ok", func(context.Context) error {
		runs.Add(1)
		return nil
	}, 60*time.Second); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := s.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if runs.Load() != 1 {
		t.Fatalf("first tick should run the task, runs = %d", runs.Load())
	}

	clock.Advance(30 * time.Second)
	_ = s.RunOnce(ctx)
	if runs.Load() != 1 {
		t.Fatalf("task ran before its interval elapsed, runs = %d", runs.Load())
	}

	clock.Advance(30 * time.Second)
	_ = s.RunOnce(ctx)
	if runs.Load() != 2 {
		t.Fatalf("task should run once interval elapsed, runs = %d", runs.Load())
	}

	last, ok := s.LastRun("ok")
	if !ok || !last.Equal(clock.Now()) {
		t.Fatalf("LastRun = %v, %v; want %v", last, ok, clock.Now())
	}
}

func TestFailingTaskRetriedEveryTick(t *testing.T) {
	clock := newFakeClock()
	s := scheduler.New(scheduler.Config{Now: clock.Now}, nil)

	var runs atomic.Int32
	boom := errors.New("boom")
	_ = s.Register("failing", func(context.Context) error {
		runs.Add(1)
		return boom
	}, time.Hour)

	for i := 0; i < 3; i++ {
		err := s.RunOnce(context.Background())
		if !errors.Is(err, scheduler.ErrCallback) || !errors.Is(err, boom) {
			t.Fatalf("tick %d: expected wrapped callback error, got %v", i, err)
		}
		clock.Advance(time.Second)
	}
	if runs.Load() != 3 {
		t.Fatalf("runs = %d, want 3", runs.Load())
	}
	if _, ok := s.LastRun("failing"); ok {
		t.Fatal("failed task must not record a last run")
	}
}

func TestPanicIsContained(t *testing.T) {
	s := scheduler.New(scheduler.Config{}, nil)

	var afterRuns atomic.Int32
	_ = s.Register("panics", func(context.Context) error { panic("kaboom") }, time.Minute)
	_ = s.Register("after", func(context.Context) error {
		afterRuns.Add(1)
		return nil
	}, time.Minute)

	err := s.RunOnce(context.Background())
	if !errors.Is(err, scheduler.ErrCallback) {
		t.Fatalf("expected ErrCallback, got %v", err)
	}
	if afterRuns.Load() != 1 {
		t.Fatal("a panicking task must not prevent later tasks from running")
	}
	if _, ok := s.LastRun("panics"); ok {
		t.Fatal("panicking task must not record a last run")
	}
}

func TestRegistrationOrder(t *testing.T) {
	s := scheduler.New(scheduler.Config{}, nil)

	var (
		mu    sync.Mutex
		order []string
	)
	for _, name := range []string{"b", "a", "c"} {
		name := name
		_ = s.Register(name, func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}, time.Minute)
	}

	_ = s.RunOnce(context.Background())

	want := []string{"b", "a", "c"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	if names := s.Tasks(); len(names) != 3 || names[0] != "b" {
		t.Fatalf("Tasks() = %v", names)
	}
}

func TestRegisterErrors(t *testing.T) {
	s := scheduler.New(scheduler.Config{Tick: time.Hour}, nil)
	noop := func(context.Context) error { return nil }

	if err := s.Register("x", noop, time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := s.Register("x", noop, time.Minute); !errors.Is(err, scheduler.ErrDuplicateTask) {
		t.Fatalf("expected ErrDuplicateTask, got %v", err)
	}

	s.Start(context.Background())
	defer s.Stop()

	if err := s.Register("late", noop, time.Minute); !errors.Is(err, scheduler.ErrRunning) {
		t.Fatalf("expected ErrRunning, got %v", err)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	s := scheduler.New(scheduler.Config{Tick: time.Hour}, nil)

	var runs atomic.Int32
	_ = s.Register("once", func(context.Context) error {
		runs.Add(1)
		return nil
	}, time.Hour)

	s.Start(context.Background())
	s.Start(context.Background())
	if !s.Running() {
		t.Fatal("scheduler should be running")
	}

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if runs.Load() != 1 {
		t.Fatalf("first tick should run the task once, runs = %d", runs.Load())
	}

	s.Stop()
	s.Stop()
	if s.Running() {
		t.Fatal("scheduler should be stopped")
	}
}

func TestStopCancelsRunningTask(t *testing.T) {
	s := scheduler.New(scheduler.Config{Tick: time.Hour}, nil)

	started := make(chan struct{})
	_ = s.Register("blocking", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}, time.Hour)

	s.Start(context.Background())
	<-started

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestHonorIntervals(t *testing.T) {
	s := scheduler.New(scheduler.Config{Tick: time.Hour, HonorIntervals: true}, nil)

	var runs atomic.Int32
	_ = s.Register("fast", func(context.Context) error {
		runs.Add(1)
		return nil
	}, 10*time.Millisecond)

	s.Start(context.Background())
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if runs.Load() < 3 {
		t.Fatalf("short interval not honored, runs = %d", runs.Load())
	}
}

func TestTaskMetrics(t *testing.T) {
	m := observability.NewMetrics(prometheus.NewRegistry())
	s := scheduler.New(scheduler.Config{Metrics: m}, nil)

	_ = s.Register("good", func(context.Context) error { return nil }, time.Minute)
	_ = s.Register("bad", func(context.Context) error { return errors.New("x") }, time.Minute)
	_ = s.RunOnce(context.Background())

	if got := testutil.ToFloat64(m.TaskRuns.WithLabelValues("good", "success")); got != 1 {
		t.Errorf("good runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.TaskRuns.WithLabelValues("bad", "error")); got != 1 {
		t.Errorf("bad runs = %v, want 1", got)
	}
}
