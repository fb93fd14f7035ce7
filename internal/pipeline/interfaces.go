package pipeline

import (
	"context"

	"flaneur/internal/core"
	"flaneur/internal/enrich"
)

// ItemEnricher produces an enrichment for one work item
type ItemEnricher interface {
	// Enrich calls the generation service; quota errors are returned as-is
	Enrich(ctx context.Context, in enrich.Input) (enrich.Result, error)
}

// ContinuityBuilder supplies recent coverage for a locale
type ContinuityBuilder interface {
	// Build never fails; unavailable context is an empty list
	Build(ctx context.Context, localeID, excludeID string) []core.ContinuityItem
}

// RunNotifier is told about runs that did not succeed
type RunNotifier interface {
	NotifyRunFailure(ctx context.Context, s *Summary) error
}

// RunRecorder observes finished runs, typically for metrics
type RunRecorder interface {
	ObserveRun(s *Summary)
}

// RunOptions are the per-invocation overrides
type RunOptions struct {
	// TestID processes exactly one named item and skips the execution log
	TestID string
	// Batch overrides the configured batch sizes when positive
	Batch int
}

// Job is one schedulable pipeline
type Job interface {
	Name() string

	// Preflight checks credentials and configuration before any work
	Preflight() error

	// Run executes the pipeline; a non-nil error means the run aborted
	Run(ctx context.Context, opts RunOptions) (*Summary, error)
}
