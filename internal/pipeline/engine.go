package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"flaneur/internal/llm"
	"flaneur/internal/logger"

	"golang.org/x/sync/errgroup"
)

// StopReason is why a phase stopped admitting work.
type StopReason string

const (
	StopCompleted    StopReason = "completed"
	StopPhaseBudget  StopReason = "phase_budget"
	StopGlobalBudget StopReason = "global_budget"
	StopQuota        StopReason = "quota_exhausted"
	StopCanceled     StopReason = "canceled"
	StopNotStarted   StopReason = "not_started"
)

// Task is one unit of isolated work in a phase.
type Task struct {
	ID  string
	Run func(ctx context.Context) error
}

// PhaseConfig configures one phase of a run.
type PhaseConfig struct {
	Name string
	// Budget is measured from run start, not phase start. Zero means the
	// phase is bounded by the global budget only.
	Budget      time.Duration
	Concurrency int
	// Pacing is the pause between batches while work remains.
	Pacing      time.Duration
	StopOnQuota bool
}

// ItemError records one failed task.
type ItemError struct {
	ID  string
	Err error
}

func (e ItemError) String() string { return fmt.Sprintf("%s: %v", e.ID, e.Err) }

// PhaseResult is the outcome of one phase.
type PhaseResult struct {
	Name      string
	Attempted int
	Succeeded int
	Failed    int
	// Remaining counts queued tasks that were never admitted.
	Remaining int
	Stop      StopReason
	Errors    []ItemError
	Elapsed   time.Duration
}

// Skipped reports whether work was left behind for a budget reason.
func (r PhaseResult) Skipped() bool {
	switch r.Stop {
	case StopNotStarted:
		return true
	case StopPhaseBudget, StopGlobalBudget:
		return r.Remaining > 0
	}
	return false
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithSleep replaces the pacing sleep.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) EngineOption {
	return func(e *Engine) { e.sleep = sleep }
}

// WithQuotaMatcher replaces the quota error classifier.
func WithQuotaMatcher(match func(error) bool) EngineOption {
	return func(e *Engine) { e.isQuota = match }
}

// WithBatchReserve holds back d of every budget when admitting a batch, so
// a batch whose calls all hit the worst-case retry backoff still finishes
// inside the budget.
func WithBatchReserve(d time.Duration) EngineOption {
	return func(e *Engine) { e.reserve = d }
}

// Engine runs phases of tasks in bounded concurrent batches under a
// global wall-clock budget. Budgets are only checked between batches;
// in-flight tasks always finish.
type Engine struct {
	globalBudget time.Duration
	start        time.Time
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error
	isQuota      func(error) bool
	reserve      time.Duration
}

// NewEngine creates an engine whose budget clock starts immediately.
func NewEngine(globalBudget time.Duration, opts ...EngineOption) *Engine {
	e := &Engine{
		globalBudget: globalBudget,
		now:          time.Now,
		sleep:        sleepContext,
		isQuota:      llm.IsQuotaError,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.start = e.now()
	return e
}

// StartedAt is the run start used for every budget.
func (e *Engine) StartedAt() time.Time { return e.start }

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time { return e.now() }

// Elapsed is the time since run start.
func (e *Engine) Elapsed() time.Duration { return e.now().Sub(e.start) }

// GlobalExpired reports whether the global budget is spent.
func (e *Engine) GlobalExpired() bool {
	return e.globalBudget > 0 && e.Elapsed() >= e.globalBudget
}

func (e *Engine) globalAdmits() bool {
	return e.globalBudget <= 0 || e.Elapsed()+e.reserve < e.globalBudget
}

func (e *Engine) phaseAdmits(phase PhaseConfig) bool {
	return phase.Budget <= 0 || e.Elapsed()+e.reserve < phase.Budget
}

// RunPhase drains tasks in queue order. It returns when the queue is
// empty, a budget is spent, a batch hit a quota error (with StopOnQuota),
// or ctx is done.
func (e *Engine) RunPhase(ctx context.Context, phase PhaseConfig, tasks []Task) PhaseResult {
	phaseStart := e.now()
	res := PhaseResult{Name: phase.Name, Stop: StopCompleted}

	concurrency := phase.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	queue := tasks
	for len(queue) > 0 {
		if ctx.Err() != nil {
			res.Stop = StopCanceled
			break
		}
		if !e.globalAdmits() {
			res.Stop = StopGlobalBudget
			break
		}
		if !e.phaseAdmits(phase) {
			res.Stop = StopPhaseBudget
			break
		}

		n := min(concurrency, len(queue))
		batch := queue[:n]
		queue = queue[n:]

		errs := e.runBatch(ctx, batch)
		quotaHit := false
		for i, err := range errs {
			res.Attempted++
			if err == nil {
				res.Succeeded++
				continue
			}
			res.Failed++
			res.Errors = append(res.Errors, ItemError{ID: batch[i].ID, Err: err})
			if e.isQuota(err) {
				quotaHit = true
			}
		}

		if quotaHit && phase.StopOnQuota {
			res.Stop = StopQuota
			break
		}
		if len(queue) > 0 && phase.Pacing > 0 {
			if err := e.sleep(ctx, phase.Pacing); err != nil {
				res.Stop = StopCanceled
				break
			}
		}
	}

	res.Remaining = len(queue)
	res.Elapsed = e.now().Sub(phaseStart)
	return res
}

// SkipPhase records a phase that was never started.
func (e *Engine) SkipPhase(name string, queued int) PhaseResult {
	return PhaseResult{Name: name, Stop: StopNotStarted, Remaining: queued}
}

// runBatch runs every task concurrently and returns errors by position.
// A panic in one task becomes that task's error.
func (e *Engine) runBatch(ctx context.Context, batch []Task) []error {
	errs := make([]error, len(batch))
	var g errgroup.Group
	for i, task := range batch {
		g.Go(func() error {
			errs[i] = runIsolated(ctx, task)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func runIsolated(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Get().Error("Task panicked", "task", task.ID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return task.Run(ctx)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
