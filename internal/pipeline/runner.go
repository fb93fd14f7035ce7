package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"flaneur/internal/logger"
)

// ErrUnknownJob is returned for a job name that is not registered.
var ErrUnknownJob = errors.New("unknown job")

// Registry maps job names to jobs.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

// NewRegistry creates a registry holding jobs.
func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{jobs: make(map[string]Job)}
	for _, j := range jobs {
		r.Register(j)
	}
	return r
}

// Register adds or replaces a job.
func (r *Registry) Register(j Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[j.Name()] = j
}

// Get looks up a job.
func (r *Registry) Get(name string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[name]
	return j, ok
}

// Names lists registered jobs alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.jobs))
	for n := range r.jobs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Runner executes registered jobs and wraps each run with the execution
// log, metrics and failure alerts.
type Runner struct {
	registry *Registry
	execLog  *ExecutionLogger
	notifier RunNotifier
	recorder RunRecorder
	now      func() time.Time
	log      *slog.Logger
}

// RunnerOption customises a Runner.
type RunnerOption func(*Runner)

// WithNotifier sends failed-run alerts through n.
func WithNotifier(n RunNotifier) RunnerOption {
	return func(r *Runner) { r.notifier = n }
}

// WithRecorder reports finished runs to rec.
func WithRecorder(rec RunRecorder) RunnerOption {
	return func(r *Runner) { r.recorder = rec }
}

// NewRunner creates a Runner. execLog may be nil to disable audit rows.
func NewRunner(registry *Registry, execLog *ExecutionLogger, opts ...RunnerOption) *Runner {
	r := &Runner{registry: registry, execLog: execLog, now: time.Now, log: logger.Get()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns the job registry.
func (r *Runner) Registry() *Registry { return r.registry }

// Run executes one job. Unknown jobs and failed preflight checks return an
// error before any work starts. A job that aborts mid-run still produces a
// summary and an execution row.
func (r *Runner) Run(ctx context.Context, name string, opts RunOptions) (*Summary, error) {
	job, ok := r.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if err := job.Preflight(); err != nil {
		r.log.Error("Job preflight failed", "job", name, "error", err)
		return nil, err
	}

	r.log.Info("Starting job", "job", name, "test_id", opts.TestID, "batch", opts.Batch)
	started := r.now()
	sum, err := job.Run(ctx, opts)
	if sum == nil {
		sum = NewSummary(name, started, "")
	}
	if err != nil {
		sum.Fail(err)
	}
	if sum.CompletedAt.IsZero() {
		sum.Finish(r.now())
	}

	processed, succeeded, failed := sum.Totals()
	r.log.Info("Job finished",
		"job", name,
		"success", sum.Success(),
		"processed", processed,
		"succeeded", succeeded,
		"failed", failed,
		"skipped_time_budget", sum.SkippedTimeBudget(),
		"quota_exhausted", sum.QuotaExhausted(),
		"elapsed", sum.Elapsed(),
	)

	if r.recorder != nil {
		r.recorder.ObserveRun(sum)
	}
	// Manual single-item runs are verification aids, not scheduled runs.
	if opts.TestID == "" && r.execLog != nil {
		r.execLog.Record(context.WithoutCancel(ctx), sum)
	}
	if !sum.Success() && r.notifier != nil {
		if nerr := r.notifier.NotifyRunFailure(context.WithoutCancel(ctx), sum); nerr != nil {
			r.log.Warn("Failed to send run alert", "job", name, "error", nerr)
		}
	}
	return sum, err
}
