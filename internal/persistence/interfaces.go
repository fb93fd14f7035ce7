// Package persistence provides the content store contracts used by the
// pipelines and their Postgres and in-memory implementations.
package persistence

import (
	"context"
	"errors"
	"time"

	"flaneur/internal/core"
)

var (
	// ErrNotFound is returned when a row lookup matches nothing.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an insert violates a unique constraint
	// (article slug, brief back-reference). Callers treat it as "already done".
	ErrConflict = errors.New("unique constraint conflict")
)

// CandidateQuery selects unprocessed work items.
type CandidateQuery struct {
	Since        time.Time          // lower bound on generated/created time
	Limit        int                // 0 means no limit
	ExcludeTypes []core.ArticleType // article types with their own pipeline
}

// RecentQuery selects recent content for a locale.
type RecentQuery struct {
	LocaleID     string
	Since        time.Time
	Limit        int
	ExcludeTypes []core.ArticleType
}

// LocaleRepository reads coverage-area configuration
type LocaleRepository interface {
	// Get retrieves a locale by ID
	Get(ctx context.Context, id string) (*core.Locale, error)

	// GetMany retrieves locales by ID; unknown IDs are skipped
	GetMany(ctx context.Context, ids []string) (map[string]core.Locale, error)

	// ListActive retrieves all active locales
	ListActive(ctx context.Context) ([]core.Locale, error)
}

// BriefRepository handles daily brief persistence operations
type BriefRepository interface {
	// Create inserts a new brief
	Create(ctx context.Context, brief *core.Brief) error

	// Get retrieves a brief by ID
	Get(ctx context.Context, id string) (*core.Brief, error)

	// ListUnenriched returns briefs without an enrichment timestamp, newest first
	ListUnenriched(ctx context.Context, q CandidateQuery) ([]core.Brief, error)

	// ListRecent returns briefs for one locale, newest first
	ListRecent(ctx context.Context, q RecentQuery) ([]core.Brief, error)

	// SetEnrichment writes every enrichment field in a single update
	SetEnrichment(ctx context.Context, id string, e core.Enrichment) error
}

// ArticleRepository handles article persistence operations
type ArticleRepository interface {
	// Create inserts a new article; returns ErrConflict on a duplicate slug
	// or brief back-reference
	Create(ctx context.Context, article *core.Article) error

	// Get retrieves an article by ID
	Get(ctx context.Context, id string) (*core.Article, error)

	// GetByBriefID retrieves the brief_summary article for a brief
	GetByBriefID(ctx context.Context, briefID string) (*core.Article, error)

	// ListUnenriched returns published articles without enrichment, newest first
	ListUnenriched(ctx context.Context, q CandidateQuery) ([]core.Article, error)

	// ListRecent returns articles for one locale, newest first
	ListRecent(ctx context.Context, q RecentQuery) ([]core.Article, error)

	// SetEnrichment writes the enrichment fields and regenerated preview text
	SetEnrichment(ctx context.Context, id string, e core.Enrichment, previewText string) error
}

// SourceRepository handles article citations
type SourceRepository interface {
	// CreateBatch inserts citations for one or more articles
	CreateBatch(ctx context.Context, sources []core.ArticleSource) error

	// ListByArticle retrieves the citations for an article
	ListByArticle(ctx context.Context, articleID string) ([]core.ArticleSource, error)
}

// CronExecutionRepository stores the append-only run audit log
type CronExecutionRepository interface {
	// Create appends one execution row
	Create(ctx context.Context, exec *core.CronExecution) error

	// ListRecent returns the latest executions for a job, newest first
	ListRecent(ctx context.Context, jobName string, limit int) ([]core.CronExecution, error)
}

// SightingRepository handles reader-submitted property sightings
type SightingRepository interface {
	// Create inserts a new sighting in pending state
	Create(ctx context.Context, s *core.PropertySighting) error

	// ListPending returns pending sightings, oldest first
	ListPending(ctx context.Context, limit int) ([]core.PropertySighting, error)

	// MarkProcessed records the triage outcome
	MarkProcessed(ctx context.Context, id string, status core.SightingStatus, confidence float64, articleID string) error
}

// Database aggregates all repositories
type Database interface {
	Locales() LocaleRepository
	Briefs() BriefRepository
	Articles() ArticleRepository
	Sources() SourceRepository
	CronExecutions() CronExecutionRepository
	Sightings() SightingRepository

	// Close closes the database connection
	Close() error

	// Ping verifies the database connection
	Ping(ctx context.Context) error
}

// IsConflict reports whether err is a unique-constraint conflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsNotFound reports whether err is a missing-row error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
