package pipeline

import (
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// MaxReportedErrors bounds the error list in a run's JSON response. The
// execution log keeps every error.
const MaxReportedErrors = 20

// Counter names shared by the jobs.
const (
	CounterBriefsEnriched   = "briefs_enriched"
	CounterArticlesEnriched = "articles_enriched"
	CounterArticlesCreated  = "articles_created"
	CounterCandidates       = "candidates"
	CounterFiltered         = "filtered"
	CounterStoriesGenerated = "stories_generated"
	CounterDistributed      = "distributed"
)

// Summary is the result of one pipeline run. It is safe for concurrent
// use by the tasks of a phase.
type Summary struct {
	Job         string
	TestID      string
	StartedAt   time.Time
	CompletedAt time.Time

	mu                sync.Mutex
	phases            []PhaseResult
	counters          map[string]int
	createdCounter    string
	errors            []string
	skippedTimeBudget bool
	quotaExhausted    bool
	fatal             error
}

// NewSummary starts a summary for job. createdCounter names the counter
// reported as items_created in the execution log.
func NewSummary(job string, startedAt time.Time, createdCounter string) *Summary {
	return &Summary{
		Job:            job,
		StartedAt:      startedAt,
		counters:       make(map[string]int),
		createdCounter: createdCounter,
	}
}

// Add increments a named counter.
func (s *Summary) Add(counter string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[counter] += n
}

// Count returns a named counter.
func (s *Summary) Count(counter string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[counter]
}

// AddError records a non-failing error message.
func (s *Summary) AddError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, msg)
}

// AddPhase records a finished phase and its item errors.
func (s *Summary) AddPhase(r PhaseResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phases = append(s.phases, r)
	for _, e := range r.Errors {
		s.errors = append(s.errors, r.Name+" "+e.String())
	}
	if r.Skipped() {
		s.skippedTimeBudget = true
	}
	if r.Stop == StopQuota {
		s.quotaExhausted = true
	}
}

// Fail marks the run as aborted by err.
func (s *Summary) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fatal = err
	s.errors = append(s.errors, err.Error())
}

// Finish stamps the completion time.
func (s *Summary) Finish(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CompletedAt = at
}

// Phases returns the recorded phases in order.
func (s *Summary) Phases() []PhaseResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PhaseResult(nil), s.phases...)
}

// Errors returns every recorded error.
func (s *Summary) Errors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.errors...)
}

// Totals sums attempted, succeeded and failed over all phases.
func (s *Summary) Totals() (processed, succeeded, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.phases {
		processed += p.Attempted
		succeeded += p.Succeeded
		failed += p.Failed
	}
	return processed, succeeded, failed
}

// Created returns the items_created counter.
func (s *Summary) Created() int {
	if s.createdCounter == "" {
		return 0
	}
	return s.Count(s.createdCounter)
}

// SkippedTimeBudget reports whether a budget left work behind.
func (s *Summary) SkippedTimeBudget() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skippedTimeBudget
}

// QuotaExhausted reports whether any phase stopped on a quota error.
func (s *Summary) QuotaExhausted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quotaExhausted
}

// Success is true when nothing failed or at least one item succeeded,
// and the run was not aborted.
func (s *Summary) Success() bool {
	if s.fatalErr() != nil {
		return false
	}
	_, succeeded, failed := s.Totals()
	return failed == 0 || succeeded > 0
}

func (s *Summary) fatalErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatal
}

// Elapsed is the run duration, or zero before Finish.
func (s *Summary) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CompletedAt.IsZero() {
		return 0
	}
	return s.CompletedAt.Sub(s.StartedAt)
}

// Response builds the flat JSON object returned to callers. The error
// list is bounded to MaxReportedErrors.
func (s *Summary) Response() map[string]any {
	processed, succeeded, failed := s.Totals()
	errs := s.Errors()
	reported := errs
	if len(reported) > MaxReportedErrors {
		reported = reported[:MaxReportedErrors]
	}
	if reported == nil {
		reported = []string{}
	}

	out := map[string]any{
		"job":                 s.Job,
		"success":             s.Success(),
		"processed":           processed,
		"succeeded":           succeeded,
		"failed":              failed,
		"errors":              reported,
		"error_count":         len(errs),
		"elapsed_ms":          s.Elapsed().Milliseconds(),
		"skipped_time_budget": s.SkippedTimeBudget(),
		"quota_exhausted":     s.QuotaExhausted(),
	}
	if s.TestID != "" {
		out["test_id"] = s.TestID
	}

	s.mu.Lock()
	keys := make([]string, 0, len(s.counters))
	for k := range s.counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out[k] = s.counters[k]
	}
	phases := make(map[string]any, len(s.phases))
	for _, p := range s.phases {
		phases[p.Name] = map[string]any{
			"processed":  p.Attempted,
			"succeeded":  p.Succeeded,
			"failed":     p.Failed,
			"remaining":  p.Remaining,
			"stopped":    string(p.Stop),
			"elapsed_ms": p.Elapsed.Milliseconds(),
		}
	}
	s.mu.Unlock()
	out["phases"] = phases
	return out
}

// MarshalJSON encodes Response.
func (s *Summary) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Response())
}
