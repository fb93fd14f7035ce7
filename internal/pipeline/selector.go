package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flaneur/internal/core"
	"flaneur/internal/persistence"
)

// excludedArticleTypes have their own enrichment path and are never
// picked up by the article phase.
var excludedArticleTypes = []core.ArticleType{
	core.TypeBriefSummary,
	core.TypeAuctionCalendar,
	core.TypeAlfrescoAlert,
	core.TypeBrandResidency,
	core.TypePropertyWatch,
}

// ErrExcludedType is returned when a test ID names an article that the
// article phase never enriches.
var ErrExcludedType = errors.New("article type has its own pipeline")

// SelectQuery bounds a candidate read.
type SelectQuery struct {
	Window time.Duration
	Limit  int
}

// Selector reads unprocessed work items. It has no side effects.
type Selector struct {
	briefs   persistence.BriefRepository
	articles persistence.ArticleRepository
	now      func() time.Time
}

// NewSelector creates a Selector.
func NewSelector(briefs persistence.BriefRepository, articles persistence.ArticleRepository, now func() time.Time) *Selector {
	if now == nil {
		now = time.Now
	}
	return &Selector{briefs: briefs, articles: articles, now: now}
}

// Briefs returns up to q.Limit unenriched briefs inside the window,
// newest first.
func (s *Selector) Briefs(ctx context.Context, q SelectQuery) ([]core.Brief, error) {
	briefs, err := s.briefs.ListUnenriched(ctx, persistence.CandidateQuery{
		Since: s.now().Add(-q.Window),
		Limit: q.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to select briefs: %w", err)
	}
	return briefs, nil
}

// Articles returns up to q.Limit unenriched published articles inside the
// window, newest first, excluding brief summaries and the event story types.
func (s *Selector) Articles(ctx context.Context, q SelectQuery) ([]core.Article, error) {
	articles, err := s.articles.ListUnenriched(ctx, persistence.CandidateQuery{
		Since:        s.now().Add(-q.Window),
		Limit:        q.Limit,
		ExcludeTypes: excludedArticleTypes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to select articles: %w", err)
	}
	return articles, nil
}

// ByTestID fetches exactly one named item, bypassing window and limit.
// The ID is tried as a brief first, then as an article.
func (s *Selector) ByTestID(ctx context.Context, id string) (*core.Brief, *core.Article, error) {
	brief, err := s.briefs.Get(ctx, id)
	if err == nil {
		return brief, nil, nil
	}
	if !persistence.IsNotFound(err) {
		return nil, nil, fmt.Errorf("failed to load test item: %w", err)
	}

	article, err := s.articles.Get(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load test item %s: %w", id, err)
	}
	for _, t := range excludedArticleTypes {
		if article.Type == t {
			return nil, nil, fmt.Errorf("%s (%s): %w", id, article.Type, ErrExcludedType)
		}
	}
	return nil, article, nil
}
