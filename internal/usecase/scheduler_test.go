package usecase

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeTask struct {
	delay   time.Duration
	fn      func()
	stopped atomic.Bool
}

func (t *fakeTask) Stop() bool {
	return !t.stopped.Swap(true)
}

// fakeClock records scheduled callbacks and runs them on demand.
type fakeClock struct {
	mu    sync.Mutex
	tasks []*fakeTask
}

func (c *fakeClock) after(d time.Duration, f func()) stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	task := &fakeTask{delay: d, fn: f}
	c.tasks = append(c.tasks, task)
	return task
}

// fire runs every task that is neither stopped nor already run.
func (c *fakeClock) fire() int {
	c.mu.Lock()
	var due []*fakeTask
	for _, task := range c.tasks {
		if !task.stopped.Load() {
			due = append(due, task)
		}
	}
	c.mu.Unlock()

	for _, task := range due {
		task.stopped.Store(true)
		task.fn()
	}
	return len(due)
}

func (c *fakeClock) delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Duration
	for _, task := range c.tasks {
		if !task.stopped.Load() {
			out = append(out, task.delay)
		}
	}
	return out
}

func (c *fakeClock) all() []*fakeTask {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeTask(nil), c.tasks...)
}

func TestSchedulerReplacesTaskOfSameKind(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}
	s := newScheduler(clock.after)

	var fired []uint64
	record := func(_ timerKind, gen uint64) { fired = append(fired, gen) }
	s.schedule(timerAutoSubmit, time.Second, record)
	s.schedule(timerAutoSubmit, time.Second, record)

	tasks := clock.all()
	if len(tasks) != 2 || !tasks[0].stopped.Load() {
		t.Fatalf("expected the first task to be stopped")
	}
	if !s.pending(timerAutoSubmit) {
		t.Fatalf("expected a pending task")
	}

	tasks[0].fn()
	tasks[1].fn()
	if len(fired) != 2 {
		t.Fatalf("expected both callbacks to run, got %d", len(fired))
	}
	if s.claim(timerAutoSubmit, fired[0]) {
		t.Fatalf("superseded generation must not be claimed")
	}
	if !s.claim(timerAutoSubmit, fired[1]) {
		t.Fatalf("current generation must be claimed")
	}
	if s.claim(timerAutoSubmit, fired[1]) {
		t.Fatalf("a task is claimed at most once")
	}
}

func TestSchedulerCancelInvalidatesCallback(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}
	s := newScheduler(clock.after)

	var gen uint64
	s.schedule(timerAutoListen, time.Second, func(_ timerKind, g uint64) { gen = g })
	s.cancel(timerAutoListen)

	clock.all()[0].fn()
	if s.claim(timerAutoListen, gen) {
		t.Fatalf("cancelled task must not be claimed")
	}
	if s.pending(timerAutoListen) {
		t.Fatalf("expected no pending task")
	}
}

func TestSchedulerCancelAll(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}
	s := newScheduler(clock.after)
	noop := func(timerKind, uint64) {}
	s.schedule(timerAutoSubmit, time.Second, noop)
	s.schedule(timerAutoListen, time.Second, noop)
	s.schedule(timerCaptureRetry, time.Second, noop)

	s.cancelAll()
	if got := clock.fire(); got != 0 {
		t.Fatalf("expected no live tasks, got %d", got)
	}
}

func TestSchedulerKindsAreIndependent(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}
	s := newScheduler(clock.after)
	noop := func(timerKind, uint64) {}
	s.schedule(timerAutoSubmit, 800*time.Millisecond, noop)
	s.schedule(timerCaptureRetry, 100*time.Millisecond, noop)
	s.cancel(timerAutoSubmit)

	if !s.pending(timerCaptureRetry) || s.pending(timerAutoSubmit) {
		t.Fatalf("cancel must only affect its own kind")
	}
	if delays := clock.delays(); len(delays) != 1 || delays[0] != 100*time.Millisecond {
		t.Fatalf("unexpected live delays: %v", delays)
	}
}
