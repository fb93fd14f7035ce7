package sources

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"flaneur/internal/core"
	"flaneur/internal/logger"
	"flaneur/internal/persistence"
	"flaneur/internal/pipeline"
)

// Phase names of a story job.
const (
	PhaseFetch    = "fetch"
	PhaseGenerate = "generate"
)

// Generator writes a story for one candidate.
type Generator interface {
	Generate(ctx context.Context, c Candidate, city string) (core.Story, error)
}

// JobConfig parameterises one story pipeline.
type JobConfig struct {
	Name    string
	Hubs    []Hub
	Filters []Filter
	Tier    Tierer
	// Budget bounds the whole run.
	Budget time.Duration
	// Limit caps generated candidates per run; zero means no cap.
	Limit int
	// MinConfidence gates publication; zero publishes everything.
	MinConfidence    float64
	FetchConcurrency int
}

// JobDeps are the collaborators of a StoryJob.
type JobDeps struct {
	DB            persistence.Database
	Fetcher       Fetcher
	Generator     Generator
	Preflight     func() error
	Now           func() time.Time
	EngineOptions []pipeline.EngineOption
}

// StoryJob runs fetch, filter, tier, generate and distribute for one
// event source. Generation is sequential and stops on quota errors.
type StoryJob struct {
	cfg         JobConfig
	db          persistence.Database
	fetcher     Fetcher
	generator   Generator
	distributor *Distributor
	preflight   func() error
	engineOpts  []pipeline.EngineOption
	log         *slog.Logger
}

// NewStoryJob wires a StoryJob.
func NewStoryJob(cfg JobConfig, deps JobDeps) *StoryJob {
	if len(cfg.Hubs) == 0 {
		cfg.Hubs = []Hub{{ID: cfg.Name}}
	}
	return &StoryJob{
		cfg:         cfg,
		db:          deps.DB,
		fetcher:     deps.Fetcher,
		generator:   deps.Generator,
		distributor: NewDistributor(deps.DB, deps.Now),
		preflight:   deps.Preflight,
		engineOpts:  deps.EngineOptions,
		log:         logger.Get().With("job", cfg.Name),
	}
}

func (j *StoryJob) Name() string { return j.cfg.Name }

func (j *StoryJob) Preflight() error {
	if j.preflight == nil {
		return nil
	}
	return j.preflight()
}

// Run executes one pass. A TestID restricts generation to the candidate
// with that ID.
func (j *StoryJob) Run(ctx context.Context, opts pipeline.RunOptions) (*pipeline.Summary, error) {
	engine := pipeline.NewEngine(j.cfg.Budget, j.engineOpts...)
	sum := pipeline.NewSummary(j.cfg.Name, engine.StartedAt(), pipeline.CounterDistributed)
	sum.TestID = opts.TestID
	for _, c := range []string{pipeline.CounterCandidates, pipeline.CounterFiltered, pipeline.CounterStoriesGenerated, pipeline.CounterDistributed} {
		sum.Add(c, 0)
	}
	defer func() { sum.Finish(engine.Now()) }()

	fetched := j.fetch(ctx, engine, sum)
	sum.Add(pipeline.CounterCandidates, len(fetched))

	kept, dropped := apply(fetched, j.cfg.Filters)
	for name, n := range dropped {
		j.log.Debug("Candidates filtered", "filter", name, "count", n)
		sum.Add(pipeline.CounterFiltered, n)
	}
	if j.cfg.Tier != nil {
		for i := range kept {
			kept[i].Tier = j.cfg.Tier(kept[i])
		}
	}
	order(kept)

	if opts.TestID != "" {
		i := slices.IndexFunc(kept, func(c Candidate) bool { return c.ID == opts.TestID })
		if i < 0 {
			return sum, fmt.Errorf("candidate %s: %w", opts.TestID, persistence.ErrNotFound)
		}
		kept = kept[i : i+1]
	}
	limit := j.cfg.Limit
	if opts.Batch > 0 {
		limit = opts.Batch
	}
	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}

	locales, err := j.locales(ctx, kept)
	if err != nil {
		return sum, err
	}

	tasks := make([]pipeline.Task, 0, len(kept))
	for _, c := range kept {
		tasks = append(tasks, pipeline.Task{ID: c.ID, Run: func(ctx context.Context) error {
			return j.process(ctx, c, locales, sum)
		}})
	}
	if engine.GlobalExpired() {
		sum.AddPhase(engine.SkipPhase(PhaseGenerate, len(tasks)))
		return sum, nil
	}
	sum.AddPhase(engine.RunPhase(ctx, pipeline.PhaseConfig{
		Name:        PhaseGenerate,
		Concurrency: 1,
		StopOnQuota: true,
	}, tasks))
	return sum, nil
}

// fetch pulls every hub and merges candidates seen in several hubs into
// one, targeting the union of their spokes.
func (j *StoryJob) fetch(ctx context.Context, engine *pipeline.Engine, sum *pipeline.Summary) []Candidate {
	var mu sync.Mutex
	byHub := make(map[string][]Candidate, len(j.cfg.Hubs))
	tasks := make([]pipeline.Task, 0, len(j.cfg.Hubs))
	for _, hub := range j.cfg.Hubs {
		tasks = append(tasks, pipeline.Task{ID: hub.ID, Run: func(ctx context.Context) error {
			cands, err := j.fetcher.Fetch(ctx, hub)
			if err != nil {
				return err
			}
			for i := range cands {
				if cands[i].HubID == "" {
					cands[i].HubID = hub.ID
				}
				if cands[i].City == "" {
					cands[i].City = hub.City
				}
				if len(cands[i].Targets) == 0 {
					cands[i].Targets = slices.Clone(hub.Spokes)
				}
			}
			mu.Lock()
			byHub[hub.ID] = cands
			mu.Unlock()
			j.log.Info("Fetched candidates", "hub", hub.ID, "count", len(cands))
			return nil
		}})
	}
	sum.AddPhase(engine.RunPhase(ctx, pipeline.PhaseConfig{Name: PhaseFetch, Concurrency: max(j.cfg.FetchConcurrency, 1)}, tasks))

	var out []Candidate
	index := make(map[string]int)
	for _, hub := range j.cfg.Hubs {
		for _, c := range byHub[hub.ID] {
			if i, ok := index[c.ID]; ok {
				for _, t := range c.Targets {
					if !slices.Contains(out[i].Targets, t) {
						out[i].Targets = append(out[i].Targets, t)
					}
				}
				continue
			}
			index[c.ID] = len(out)
			out = append(out, c)
		}
	}
	return out
}

func (j *StoryJob) locales(ctx context.Context, cands []Candidate) (map[string]core.Locale, error) {
	var ids []string
	for _, c := range cands {
		for _, t := range c.Targets {
			if !slices.Contains(ids, t) {
				ids = append(ids, t)
			}
		}
	}
	if len(ids) == 0 {
		return map[string]core.Locale{}, nil
	}
	locales, err := j.db.Locales().GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load locales: %w", err)
	}
	return locales, nil
}

func (j *StoryJob) process(ctx context.Context, c Candidate, locales map[string]core.Locale, sum *pipeline.Summary) error {
	targets := make([]core.Locale, 0, len(c.Targets))
	for _, id := range c.Targets {
		if l, ok := locales[id]; ok {
			targets = append(targets, l)
		}
	}
	if len(targets) == 0 {
		return fmt.Errorf("no known locales among %v: %w", c.Targets, persistence.ErrNotFound)
	}
	city := c.City
	if city == "" {
		city = targets[0].City
	}

	story, err := j.generator.Generate(ctx, c, city)
	if err != nil {
		return err
	}
	sum.Add(pipeline.CounterStoriesGenerated, 1)

	if j.cfg.MinConfidence > 0 && story.Confidence < j.cfg.MinConfidence {
		j.log.Info("Story held below confidence threshold", "candidate", c.ID, "confidence", story.Confidence)
		return j.settle(ctx, c, Outcome{Confidence: story.Confidence})
	}

	dist, err := j.distributor.Distribute(ctx, story, c, targets)
	sum.Add(pipeline.CounterDistributed, len(dist.Created))
	if err != nil {
		return err
	}
	out := Outcome{Published: true, Confidence: story.Confidence}
	if len(dist.Created) > 0 {
		out.ArticleID = dist.Created[0]
	}
	return j.settle(ctx, c, out)
}

func (j *StoryJob) settle(ctx context.Context, c Candidate, out Outcome) error {
	s, ok := j.fetcher.(Settler)
	if !ok {
		return nil
	}
	return s.Settle(ctx, c, out)
}
