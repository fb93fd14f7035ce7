package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"flaneur/internal/persistence"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 6, 1, 16, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.Advance(d)
	return nil
}

// tasksAdvancing returns n tasks that each move the clock forward by d.
func tasksAdvancing(clock *fakeClock, n int, d time.Duration, fail map[int]error) []Task {
	tasks := make([]Task, n)
	for i := range tasks {
		tasks[i] = Task{ID: fmt.Sprintf("t%d", i), Run: func(context.Context) error {
			clock.Advance(d)
			return fail[i]
		}}
	}
	return tasks
}

func TestRunPhaseCompletesQueue(t *testing.T) {
	clock := newFakeClock()
	e := NewEngine(280*time.Second, WithClock(clock.Now), WithSleep(clock.Sleep))

	res := e.RunPhase(context.Background(), PhaseConfig{Name: "p", Concurrency: 4}, tasksAdvancing(clock, 9, time.Second, nil))

	if res.Stop != StopCompleted || res.Attempted != 9 || res.Succeeded != 9 || res.Remaining != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Skipped() {
		t.Error("completed phase should not report skipped work")
	}
}

func TestRunPhaseGlobalBudgetStopsAdmission(t *testing.T) {
	clock := newFakeClock()
	e := NewEngine(100*time.Second, WithClock(clock.Now), WithSleep(clock.Sleep))

	// each batch of 4 moves the clock 40s: batches start at 0s, 40s, 80s
	res := e.RunPhase(context.Background(), PhaseConfig{Name: "p", Concurrency: 4}, tasksAdvancing(clock, 20, 10*time.Second, nil))

	if res.Stop != StopGlobalBudget {
		t.Fatalf("Stop = %s, want %s", res.Stop, StopGlobalBudget)
	}
	if res.Attempted != 12 || res.Remaining != 8 {
		t.Errorf("attempted %d remaining %d, want 12 and 8", res.Attempted, res.Remaining)
	}
	if !res.Skipped() || !e.GlobalExpired() {
		t.Error("expected skipped work and expired budget")
	}

	// once expired, no later phase admits anything
	var ran atomic.Int32
	later := e.RunPhase(context.Background(), PhaseConfig{Name: "later", Concurrency: 4}, []Task{
		{ID: "x", Run: func(context.Context) error { ran.Add(1); return nil }},
	})
	if ran.Load() != 0 || later.Attempted != 0 || later.Stop != StopGlobalBudget {
		t.Errorf("expired engine admitted work: %+v", later)
	}
}

func TestRunPhaseBatchReserveHoldsBackBudget(t *testing.T) {
	clock := newFakeClock()
	e := NewEngine(100*time.Second, WithClock(clock.Now), WithSleep(clock.Sleep), WithBatchReserve(25*time.Second))

	// batches start at 0s and 40s; at 80s only 20s remain, less than the reserve
	res := e.RunPhase(context.Background(), PhaseConfig{Name: "p", Concurrency: 4}, tasksAdvancing(clock, 20, 10*time.Second, nil))

	if res.Stop != StopGlobalBudget {
		t.Fatalf("Stop = %s, want %s", res.Stop, StopGlobalBudget)
	}
	if res.Attempted != 8 || res.Remaining != 12 {
		t.Errorf("attempted %d remaining %d, want 8 and 12", res.Attempted, res.Remaining)
	}
	if e.GlobalExpired() {
		t.Error("reserve should not mark the budget itself as spent")
	}
}

func TestRunPhaseBudgetIsOffsetFromRunStart(t *testing.T) {
	clock := newFakeClock()
	e := NewEngine(280*time.Second, WithClock(clock.Now), WithSleep(clock.Sleep))

	res := e.RunPhase(context.Background(), PhaseConfig{Name: "p", Budget: 50 * time.Second, Concurrency: 4},
		tasksAdvancing(clock, 20, 10*time.Second, nil))

	if res.Stop != StopPhaseBudget || res.Attempted != 8 || res.Remaining != 12 {
		t.Errorf("unexpected result %+v", res)
	}
	if e.GlobalExpired() {
		t.Error("global budget should remain after a phase budget stop")
	}
}

func TestRunPhaseQuotaShortCircuit(t *testing.T) {
	clock := newFakeClock()
	e := NewEngine(280*time.Second, WithClock(clock.Now), WithSleep(clock.Sleep))
	fail := map[int]error{1: errors.New("Error 429: RESOURCE_EXHAUSTED")}

	res := e.RunPhase(context.Background(), PhaseConfig{Name: "p", Concurrency: 4, StopOnQuota: true},
		tasksAdvancing(clock, 10, time.Second, fail))

	if res.Stop != StopQuota {
		t.Fatalf("Stop = %s, want %s", res.Stop, StopQuota)
	}
	if res.Attempted != 4 || res.Succeeded != 3 || res.Failed != 1 || res.Remaining != 6 {
		t.Errorf("unexpected counts %+v", res)
	}
	if res.Skipped() {
		t.Error("quota stop is not a budget skip")
	}

	clock2 := newFakeClock()
	e2 := NewEngine(280*time.Second, WithClock(clock2.Now), WithSleep(clock2.Sleep))
	res2 := e2.RunPhase(context.Background(), PhaseConfig{Name: "p", Concurrency: 4},
		tasksAdvancing(clock2, 10, time.Second, fail))
	if res2.Stop != StopCompleted || res2.Attempted != 10 {
		t.Errorf("without StopOnQuota every task should run: %+v", res2)
	}
}

func TestRunPhaseStoreErrorWithDigitsIsNotQuota(t *testing.T) {
	clock := newFakeClock()
	e := NewEngine(280*time.Second, WithClock(clock.Now), WithSleep(clock.Sleep))
	notFound := fmt.Errorf("failed to store brief enrichment: brief 7f3a4290-0000: %w", persistence.ErrNotFound)
	fail := map[int]error{0: notFound}

	res := e.RunPhase(context.Background(), PhaseConfig{Name: "p", Concurrency: 1, StopOnQuota: true},
		tasksAdvancing(clock, 9, time.Second, fail))

	if res.Stop != StopCompleted {
		t.Fatalf("Stop = %s, want %s", res.Stop, StopCompleted)
	}
	if res.Attempted != 9 || res.Succeeded != 8 || res.Failed != 1 || res.Remaining != 0 {
		t.Errorf("unexpected counts %+v", res)
	}
}

func TestRunPhaseIsolatesFailuresAndPanics(t *testing.T) {
	e := NewEngine(time.Minute)
	tasks := []Task{
		{ID: "ok", Run: func(context.Context) error { return nil }},
		{ID: "err", Run: func(context.Context) error { return errors.New("boom") }},
		{ID: "panic", Run: func(context.Context) error { panic("bad item") }},
		{ID: "ok2", Run: func(context.Context) error { return nil }},
	}

	res := e.RunPhase(context.Background(), PhaseConfig{Name: "p", Concurrency: 4}, tasks)

	if res.Succeeded != 2 || res.Failed != 2 {
		t.Fatalf("unexpected counts %+v", res)
	}
	ids := map[string]bool{}
	for _, ie := range res.Errors {
		ids[ie.ID] = true
	}
	if !ids["err"] || !ids["panic"] {
		t.Errorf("expected errors for err and panic, got %+v", res.Errors)
	}
}

func TestRunPhasePacesBetweenBatchesOnly(t *testing.T) {
	clock := newFakeClock()
	var sleeps int
	e := NewEngine(time.Hour, WithClock(clock.Now), WithSleep(func(context.Context, time.Duration) error {
		sleeps++
		return nil
	}))

	e.RunPhase(context.Background(), PhaseConfig{Name: "p", Concurrency: 4, Pacing: 1500 * time.Millisecond},
		tasksAdvancing(clock, 9, 0, nil))

	if sleeps != 2 {
		t.Errorf("expected 2 pacing sleeps for 3 batches, got %d", sleeps)
	}
}

func TestRunPhaseBoundsConcurrency(t *testing.T) {
	e := NewEngine(time.Hour)
	var inFlight, peak atomic.Int32
	release := make(chan struct{})
	tasks := make([]Task, 8)
	for i := range tasks {
		tasks[i] = Task{ID: fmt.Sprint(i), Run: func(context.Context) error {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-release
			inFlight.Add(-1)
			return nil
		}}
	}
	close(release)

	res := e.RunPhase(context.Background(), PhaseConfig{Name: "p", Concurrency: 3}, tasks)
	if res.Attempted != 8 {
		t.Fatalf("attempted %d", res.Attempted)
	}
	if peak.Load() > 3 {
		t.Errorf("peak concurrency %d exceeds 3", peak.Load())
	}
}

func TestRunPhaseStopsOnCanceledContext(t *testing.T) {
	e := NewEngine(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := e.RunPhase(ctx, PhaseConfig{Name: "p", Concurrency: 2}, []Task{{ID: "a", Run: func(context.Context) error { return nil }}})
	if res.Stop != StopCanceled || res.Attempted != 0 || res.Remaining != 1 {
		t.Errorf("unexpected result %+v", res)
	}
}
