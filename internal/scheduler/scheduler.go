// Package scheduler triggers pipeline jobs on cron expressions for
// deployments without an external scheduler.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"flaneur/internal/logger"
	"flaneur/internal/pipeline"

	"github.com/robfig/cron/v3"
)

// Runner runs a named job
type Runner interface {
	Run(ctx context.Context, name string, opts pipeline.RunOptions) (*pipeline.Summary, error)
}

// Scheduler registers one cron entry per job. A job whose previous run is
// still going skips its tick.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	ctx     context.Context
	cancel  context.CancelFunc
	log     *slog.Logger
	mu      sync.Mutex
	busy    map[string]bool
	entries map[string]cron.EntryID
	running bool
}

// New creates a Scheduler. Entries are evaluated in loc.
func New(runner Runner, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		runner:  runner,
		ctx:     ctx,
		cancel:  cancel,
		log:     logger.Get().With("component", "scheduler"),
		busy:    make(map[string]bool),
		entries: make(map[string]cron.EntryID),
	}
}

// Add registers job on a standard five-field cron expression.
func (s *Scheduler) Add(job, expr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[job]; ok {
		return fmt.Errorf("job %s already scheduled", job)
	}
	id, err := s.cron.AddFunc(expr, func() { s.Trigger(job) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", expr, job, err)
	}
	s.entries[job] = id
	return nil
}

// Start begins firing entries.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	s.cron.Start()
	s.running = true
	s.log.Info("Scheduler started", "jobs", len(s.entries))
	return nil
}

// Stop halts new ticks, cancels in-flight runs and waits for them.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	<-s.cron.Stop().Done()
	s.log.Info("Scheduler stopped")
}

// Trigger runs job now unless its previous run is still going. It reports
// whether the run happened.
func (s *Scheduler) Trigger(job string) bool {
	s.mu.Lock()
	if s.busy[job] {
		s.mu.Unlock()
		s.log.Warn("Skipping tick, previous run still active", "job", job)
		return false
	}
	s.busy[job] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.busy, job)
		s.mu.Unlock()
	}()

	sum, err := s.runner.Run(s.ctx, job, pipeline.RunOptions{})
	if err != nil {
		s.log.Error("Scheduled run failed", "job", job, "error", err)
		return true
	}
	if !sum.Success() {
		s.log.Warn("Scheduled run finished with failures", "job", job)
	}
	return true
}

// Entry is a scheduled job and its next fire time
type Entry struct {
	Job  string
	Next time.Time
}

// Entries lists scheduled jobs by name.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for job, id := range s.entries {
		out = append(out, Entry{Job: job, Next: s.cron.Entry(id).Next})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Job < out[j].Job })
	return out
}
