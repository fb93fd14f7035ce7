// Package memstore is an in-memory persistence.Database that enforces the
// same uniqueness rules as the Postgres schema. It backs tests and dry runs.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"flaneur/internal/core"
	"flaneur/internal/persistence"
)

// Store holds every table in memory behind one mutex.
type Store struct {
	mu         sync.RWMutex
	locales    map[string]core.Locale
	briefs     map[string]core.Brief
	articles   map[string]core.Article
	slugs      map[string]string // slug -> article id
	briefLinks map[string]string // brief id -> article id
	sources    []core.ArticleSource
	executions []core.CronExecution
	sightings  map[string]core.PropertySighting

	// FailOn, when set, is consulted before each write. A non-nil return
	// aborts the write with that error.
	FailOn func(op, id string) error
}

// New returns an empty store.
func New() *Store {
	return &Store{
		locales:    make(map[string]core.Locale),
		briefs:     make(map[string]core.Brief),
		articles:   make(map[string]core.Article),
		slugs:      make(map[string]string),
		briefLinks: make(map[string]string),
		sightings:  make(map[string]core.PropertySighting),
	}
}

var _ persistence.Database = (*Store)(nil)

func (s *Store) Locales() persistence.LocaleRepository               { return localeRepo{s} }
func (s *Store) Briefs() persistence.BriefRepository                 { return briefRepo{s} }
func (s *Store) Articles() persistence.ArticleRepository             { return articleRepo{s} }
func (s *Store) Sources() persistence.SourceRepository               { return sourceRepo{s} }
func (s *Store) CronExecutions() persistence.CronExecutionRepository { return cronRepo{s} }
func (s *Store) Sightings() persistence.SightingRepository           { return sightingRepo{s} }

func (s *Store) Close() error                   { return nil }
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// PutLocale inserts or replaces a locale.
func (s *Store) PutLocale(l core.Locale) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locales[l.ID] = l
}

// PutBrief inserts or replaces a brief.
func (s *Store) PutBrief(b core.Brief) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.briefs[b.ID] = b
}

// PutArticle inserts or replaces an article without uniqueness checks.
func (s *Store) PutArticle(a core.Article) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.articles[a.ID] = a
	s.slugs[a.Slug] = a.ID
	if a.BriefID != "" {
		s.briefLinks[a.BriefID] = a.ID
	}
}

// AllArticles returns every stored article ordered by slug.
func (s *Store) AllArticles() []core.Article {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Article, 0, len(s.articles))
	for _, a := range s.articles {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// AllSources returns every stored citation in insertion order.
func (s *Store) AllSources() []core.ArticleSource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.sources)
}

// AllExecutions returns every logged run in insertion order.
func (s *Store) AllExecutions() []core.CronExecution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.executions)
}

func (s *Store) fail(op, id string) error {
	if s.FailOn == nil {
		return nil
	}
	return s.FailOn(op, id)
}

type localeRepo struct{ s *Store }

func (r localeRepo) Get(_ context.Context, id string) (*core.Locale, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	l, ok := r.s.locales[id]
	if !ok {
		return nil, fmt.Errorf("locale %s: %w", id, persistence.ErrNotFound)
	}
	return &l, nil
}

func (r localeRepo) GetMany(_ context.Context, ids []string) (map[string]core.Locale, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make(map[string]core.Locale, len(ids))
	for _, id := range ids {
		if l, ok := r.s.locales[id]; ok {
			out[id] = l
		}
	}
	return out, nil
}

func (r localeRepo) ListActive(_ context.Context) ([]core.Locale, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []core.Locale
	for _, l := range r.s.locales {
		if l.IsActive {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type briefRepo struct{ s *Store }

func (r briefRepo) Create(_ context.Context, b *core.Brief) error {
	if err := r.s.fail("briefs.create", b.ID); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.briefs[b.ID]; ok {
		return fmt.Errorf("brief %s: %w", b.ID, persistence.ErrConflict)
	}
	r.s.briefs[b.ID] = *b
	return nil
}

func (r briefRepo) Get(_ context.Context, id string) (*core.Brief, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.briefs[id]
	if !ok {
		return nil, fmt.Errorf("brief %s: %w", id, persistence.ErrNotFound)
	}
	return &b, nil
}

func (r briefRepo) ListUnenriched(_ context.Context, q persistence.CandidateQuery) ([]core.Brief, error) {
	return r.filter(func(b core.Brief) bool {
		return !b.IsEnriched() && !b.GeneratedAt.Before(q.Since)
	}, q.Limit), nil
}

func (r briefRepo) ListRecent(_ context.Context, q persistence.RecentQuery) ([]core.Brief, error) {
	return r.filter(func(b core.Brief) bool {
		return b.LocaleID == q.LocaleID && !b.GeneratedAt.Before(q.Since)
	}, q.Limit), nil
}

func (r briefRepo) filter(keep func(core.Brief) bool, limit int) []core.Brief {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []core.Brief
	for _, b := range r.s.briefs {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GeneratedAt.After(out[j].GeneratedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r briefRepo) SetEnrichment(_ context.Context, id string, e core.Enrichment) error {
	if err := r.s.fail("briefs.set_enrichment", id); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.briefs[id]
	if !ok {
		return fmt.Errorf("brief %s: %w", id, persistence.ErrNotFound)
	}
	b.Enrichment = &e
	r.s.briefs[id] = b
	return nil
}

type articleRepo struct{ s *Store }

func (r articleRepo) Create(_ context.Context, a *core.Article) error {
	if err := r.s.fail("articles.create", a.ID); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.articles[a.ID]; ok {
		return fmt.Errorf("article %s: %w", a.ID, persistence.ErrConflict)
	}
	if _, ok := r.s.slugs[a.Slug]; ok {
		return fmt.Errorf("articles_slug_key %s: %w", a.Slug, persistence.ErrConflict)
	}
	if a.BriefID != "" {
		if _, ok := r.s.briefLinks[a.BriefID]; ok {
			return fmt.Errorf("articles_brief_id_key %s: %w", a.BriefID, persistence.ErrConflict)
		}
		r.s.briefLinks[a.BriefID] = a.ID
	}
	r.s.slugs[a.Slug] = a.ID
	r.s.articles[a.ID] = *a
	return nil
}

func (r articleRepo) Get(_ context.Context, id string) (*core.Article, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.articles[id]
	if !ok {
		return nil, fmt.Errorf("article %s: %w", id, persistence.ErrNotFound)
	}
	return &a, nil
}

func (r articleRepo) GetByBriefID(_ context.Context, briefID string) (*core.Article, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.briefLinks[briefID]
	if !ok {
		return nil, fmt.Errorf("article for brief %s: %w", briefID, persistence.ErrNotFound)
	}
	a := r.s.articles[id]
	return &a, nil
}

func (r articleRepo) ListUnenriched(_ context.Context, q persistence.CandidateQuery) ([]core.Article, error) {
	return r.filter(func(a core.Article) bool {
		return !a.IsEnriched() && !slices.Contains(q.ExcludeTypes, a.Type) && publishedSince(a, q.Since)
	}, q.Limit), nil
}

func (r articleRepo) ListRecent(_ context.Context, q persistence.RecentQuery) ([]core.Article, error) {
	return r.filter(func(a core.Article) bool {
		return a.LocaleID == q.LocaleID && !slices.Contains(q.ExcludeTypes, a.Type) && publishedSince(a, q.Since)
	}, q.Limit), nil
}

func publishedSince(a core.Article, since time.Time) bool {
	return a.Status == core.StatusPublished && a.PublishedAt != nil && !a.PublishedAt.Before(since)
}

func (r articleRepo) filter(keep func(core.Article) bool, limit int) []core.Article {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []core.Article
	for _, a := range r.s.articles {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublishedAt.After(*out[j].PublishedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r articleRepo) SetEnrichment(_ context.Context, id string, e core.Enrichment, previewText string) error {
	if err := r.s.fail("articles.set_enrichment", id); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.articles[id]
	if !ok {
		return fmt.Errorf("article %s: %w", id, persistence.ErrNotFound)
	}
	a.Enrichment = &e
	if previewText != "" {
		a.PreviewText = previewText
	}
	r.s.articles[id] = a
	return nil
}

type sourceRepo struct{ s *Store }

func (r sourceRepo) CreateBatch(_ context.Context, sources []core.ArticleSource) error {
	if len(sources) > 0 {
		if err := r.s.fail("sources.create_batch", sources[0].ArticleID); err != nil {
			return err
		}
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, src := range sources {
		if _, ok := r.s.articles[src.ArticleID]; !ok {
			return fmt.Errorf("article %s: %w", src.ArticleID, persistence.ErrNotFound)
		}
	}
	r.s.sources = append(r.s.sources, sources...)
	return nil
}

func (r sourceRepo) ListByArticle(_ context.Context, articleID string) ([]core.ArticleSource, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []core.ArticleSource
	for _, src := range r.s.sources {
		if src.ArticleID == articleID {
			out = append(out, src)
		}
	}
	return out, nil
}

type cronRepo struct{ s *Store }

func (r cronRepo) Create(_ context.Context, exec *core.CronExecution) error {
	if err := r.s.fail("cron_executions.create", exec.JobName); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.executions = append(r.s.executions, *exec)
	return nil
}

func (r cronRepo) ListRecent(_ context.Context, jobName string, limit int) ([]core.CronExecution, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []core.CronExecution
	for i := len(r.s.executions) - 1; i >= 0; i-- {
		e := r.s.executions[i]
		if jobName != "" && e.JobName != jobName {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type sightingRepo struct{ s *Store }

func (r sightingRepo) Create(_ context.Context, sg *core.PropertySighting) error {
	if err := r.s.fail("sightings.create", sg.ID); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.sightings[sg.ID]; ok {
		return fmt.Errorf("sighting %s: %w", sg.ID, persistence.ErrConflict)
	}
	if sg.Status == "" {
		sg.Status = core.SightingPending
	}
	r.s.sightings[sg.ID] = *sg
	return nil
}

func (r sightingRepo) ListPending(_ context.Context, limit int) ([]core.PropertySighting, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []core.PropertySighting
	for _, sg := range r.s.sightings {
		if sg.Status == core.SightingPending {
			out = append(out, sg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r sightingRepo) MarkProcessed(_ context.Context, id string, status core.SightingStatus, confidence float64, articleID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sg, ok := r.s.sightings[id]
	if !ok {
		return fmt.Errorf("sighting %s: %w", id, persistence.ErrNotFound)
	}
	sg.Status = status
	sg.Confidence = &confidence
	sg.ArticleID = articleID
	r.s.sightings[id] = sg
	return nil
}
