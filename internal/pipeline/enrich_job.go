package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"flaneur/internal/core"
	"flaneur/internal/enrich"
	"flaneur/internal/logger"
	"flaneur/internal/persistence"
)

// Registered names of the enrichment job variants.
const (
	JobEnrichBriefs     = "enrich-briefs"
	JobEnrichBriefsOnly = "enrich-briefs-only"
)

// Phase names of the enrichment job.
const (
	PhaseBriefs   = "briefs"
	PhaseArticles = "articles"
)

// EnrichConfig parameterises one enrichment job variant.
type EnrichConfig struct {
	Name             string
	BriefWindow      time.Duration
	ArticleWindow    time.Duration
	BriefBatch       int
	ArticleBatch     int
	Concurrency      int
	GlobalBudget     time.Duration
	BriefPhaseBudget time.Duration
	Pacing           time.Duration
	StopOnQuota      bool
	// BriefsOnly skips the article phase.
	BriefsOnly bool
}

// EnrichJob enriches unenriched briefs, then unenriched articles, under a
// shared time budget.
type EnrichJob struct {
	cfg        EnrichConfig
	db         persistence.Database
	selector   *Selector
	continuity ContinuityBuilder
	enricher   ItemEnricher
	writer     *Writer
	preflight  func() error
	engineOpts []EngineOption
	now        func() time.Time
	log        *slog.Logger
}

// EnrichJobDeps are the collaborators of an EnrichJob.
type EnrichJobDeps struct {
	DB         persistence.Database
	Continuity ContinuityBuilder
	Enricher   ItemEnricher
	// Preflight validates credentials; nil means always ready.
	Preflight func() error
	// Now overrides the clock for selection windows and writes.
	Now func() time.Time
	// EngineOptions are passed to each run's Engine.
	EngineOptions []EngineOption
}

// NewEnrichJob wires an EnrichJob.
func NewEnrichJob(cfg EnrichConfig, deps EnrichJobDeps) *EnrichJob {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	cont := deps.Continuity
	if cont == nil {
		cont = noContinuity{}
	}
	return &EnrichJob{
		cfg:        cfg,
		db:         deps.DB,
		selector:   NewSelector(deps.DB.Briefs(), deps.DB.Articles(), now),
		continuity: cont,
		enricher:   deps.Enricher,
		writer:     NewWriter(deps.DB, now),
		preflight:  deps.Preflight,
		engineOpts: deps.EngineOptions,
		now:        now,
		log:        logger.Get(),
	}
}

type noContinuity struct{}

func (noContinuity) Build(context.Context, string, string) []core.ContinuityItem { return nil }

func (j *EnrichJob) Name() string { return j.cfg.Name }

func (j *EnrichJob) Preflight() error {
	if j.preflight == nil {
		return nil
	}
	return j.preflight()
}

// Run executes both phases.
func (j *EnrichJob) Run(ctx context.Context, opts RunOptions) (*Summary, error) {
	engine := NewEngine(j.cfg.GlobalBudget, j.engineOpts...)
	sum := NewSummary(j.cfg.Name, engine.StartedAt(), CounterArticlesCreated)
	sum.TestID = opts.TestID
	sum.Add(CounterBriefsEnriched, 0)
	sum.Add(CounterArticlesEnriched, 0)
	sum.Add(CounterArticlesCreated, 0)
	defer func() { sum.Finish(engine.Now()) }()

	briefs, articles, err := j.candidates(ctx, opts)
	if err != nil {
		return sum, err
	}

	locales, err := j.locales(ctx, briefs, articles)
	if err != nil {
		return sum, err
	}

	sum.AddPhase(engine.RunPhase(ctx, PhaseConfig{
		Name:        PhaseBriefs,
		Budget:      j.cfg.BriefPhaseBudget,
		Concurrency: j.cfg.Concurrency,
		Pacing:      j.cfg.Pacing,
		StopOnQuota: j.cfg.StopOnQuota,
	}, j.briefTasks(briefs, locales, sum)))

	if j.cfg.BriefsOnly && opts.TestID == "" {
		return sum, nil
	}
	if engine.GlobalExpired() {
		sum.AddPhase(engine.SkipPhase(PhaseArticles, len(articles)))
		return sum, nil
	}

	if articles == nil && opts.TestID == "" {
		articles, err = j.selector.Articles(ctx, SelectQuery{Window: j.cfg.ArticleWindow, Limit: batch(opts, j.cfg.ArticleBatch)})
		if err != nil {
			return sum, err
		}
		more, err := j.locales(ctx, nil, articles)
		if err != nil {
			return sum, err
		}
		for id, l := range more {
			locales[id] = l
		}
	}

	sum.AddPhase(engine.RunPhase(ctx, PhaseConfig{
		Name:        PhaseArticles,
		Concurrency: j.cfg.Concurrency,
		Pacing:      j.cfg.Pacing,
		StopOnQuota: j.cfg.StopOnQuota,
	}, j.articleTasks(articles, locales, sum)))
	return sum, nil
}

// candidates resolves the brief queue, and for test runs the article too.
// The article queue of a normal run is selected after the brief phase so
// its window is evaluated when that phase actually starts.
func (j *EnrichJob) candidates(ctx context.Context, opts RunOptions) ([]core.Brief, []core.Article, error) {
	if opts.TestID != "" {
		brief, article, err := j.selector.ByTestID(ctx, opts.TestID)
		if err != nil {
			return nil, nil, err
		}
		if brief != nil {
			return []core.Brief{*brief}, []core.Article{}, nil
		}
		return nil, []core.Article{*article}, nil
	}

	briefs, err := j.selector.Briefs(ctx, SelectQuery{Window: j.cfg.BriefWindow, Limit: batch(opts, j.cfg.BriefBatch)})
	if err != nil {
		return nil, nil, err
	}
	return briefs, nil, nil
}

func batch(opts RunOptions, configured int) int {
	if opts.Batch > 0 {
		return opts.Batch
	}
	return configured
}

func (j *EnrichJob) locales(ctx context.Context, briefs []core.Brief, articles []core.Article) (map[string]core.Locale, error) {
	ids := make([]string, 0, len(briefs)+len(articles))
	seen := make(map[string]bool)
	for _, b := range briefs {
		if !seen[b.LocaleID] {
			seen[b.LocaleID] = true
			ids = append(ids, b.LocaleID)
		}
	}
	for _, a := range articles {
		if !seen[a.LocaleID] {
			seen[a.LocaleID] = true
			ids = append(ids, a.LocaleID)
		}
	}
	locales, err := j.db.Locales().GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load locales: %w", err)
	}
	return locales, nil
}

func (j *EnrichJob) briefTasks(briefs []core.Brief, locales map[string]core.Locale, sum *Summary) []Task {
	tasks := make([]Task, 0, len(briefs))
	for _, b := range briefs {
		tasks = append(tasks, Task{ID: b.ID, Run: func(ctx context.Context) error {
			return j.processBrief(ctx, b, locales, sum)
		}})
	}
	return tasks
}

func (j *EnrichJob) processBrief(ctx context.Context, b core.Brief, locales map[string]core.Locale, sum *Summary) error {
	locale, ok := locales[b.LocaleID]
	if !ok {
		return fmt.Errorf("locale %s: %w", b.LocaleID, persistence.ErrNotFound)
	}

	res, err := j.enricher.Enrich(ctx, enrich.Input{
		Kind:       enrich.KindBrief,
		Locale:     locale,
		Headline:   b.Headline,
		Content:    b.Content,
		Continuity: j.continuity.Build(ctx, b.LocaleID, b.ID),
	})
	if err != nil {
		return err
	}

	wr, err := j.writer.WriteBrief(ctx, b, locale, res)
	if err != nil {
		return err
	}
	sum.Add(CounterBriefsEnriched, 1)
	if wr.ArticleCreated {
		sum.Add(CounterArticlesCreated, 1)
	}
	if wr.DerivedErr != nil {
		j.log.Warn("Derived article write failed", "brief_id", b.ID, "error", wr.DerivedErr)
		sum.AddError(fmt.Sprintf("%s %s: %v", PhaseBriefs, b.ID, wr.DerivedErr))
	}
	return nil
}

func (j *EnrichJob) articleTasks(articles []core.Article, locales map[string]core.Locale, sum *Summary) []Task {
	tasks := make([]Task, 0, len(articles))
	for _, a := range articles {
		tasks = append(tasks, Task{ID: a.ID, Run: func(ctx context.Context) error {
			return j.processArticle(ctx, a, locales, sum)
		}})
	}
	return tasks
}

func (j *EnrichJob) processArticle(ctx context.Context, a core.Article, locales map[string]core.Locale, sum *Summary) error {
	locale, ok := locales[a.LocaleID]
	if !ok {
		return fmt.Errorf("locale %s: %w", a.LocaleID, persistence.ErrNotFound)
	}

	res, err := j.enricher.Enrich(ctx, enrich.Input{
		Kind:       enrich.KindArticle,
		Locale:     locale,
		Headline:   a.Headline,
		Content:    a.Body,
		TypeHint:   a.Type,
		Continuity: j.continuity.Build(ctx, a.LocaleID, a.ID),
	})
	if err != nil {
		return err
	}

	wr, err := j.writer.WriteArticle(ctx, a, res)
	if err != nil {
		return err
	}
	sum.Add(CounterArticlesEnriched, 1)
	if wr.SourceErr != nil {
		j.log.Warn("Article source write failed", "article_id", a.ID, "error", wr.SourceErr)
		sum.AddError(fmt.Sprintf("%s %s: %v", PhaseArticles, a.ID, wr.SourceErr))
	}
	return nil
}
