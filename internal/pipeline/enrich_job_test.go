package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"flaneur/internal/core"
	"flaneur/internal/enrich"
	"flaneur/internal/persistence/memstore"
)

// mockEnricher records calls and returns a canned result per item.
type mockEnricher struct {
	mu      sync.Mutex
	calls   []enrich.Input
	models  []string
	policy  enrich.ModelPolicy
	errFor  map[string]error // keyed by headline
	advance func()
}

func (m *mockEnricher) Enrich(_ context.Context, in enrich.Input) (enrich.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, in)
	m.models = append(m.models, m.policy.ForKind(in.Kind))
	m.mu.Unlock()
	if m.advance != nil {
		m.advance()
	}
	if err := m.errFor[in.Headline]; err != nil {
		return enrich.Result{}, err
	}
	cats := []core.Category{{Name: "News", Stories: []core.CategorizedStory{
		{Entity: in.Headline, Source: &core.SourceRef{Name: "Tribeca Citizen", URL: "https://tribecacitizen.com/x"}},
	}}}
	return enrich.Result{
		Content:    "Enriched " + in.Headline + ". With detail.",
		Categories: cats,
		Model:      m.policy.ForKind(in.Kind),
	}, nil
}

func newTestJob(store *memstore.Store, clock *fakeClock, enr ItemEnricher, cfg EnrichConfig) *EnrichJob {
	if cfg.Name == "" {
		cfg.Name = "enrich-briefs"
	}
	if cfg.BriefWindow == 0 {
		cfg.BriefWindow = 240 * time.Hour
		cfg.ArticleWindow = 96 * time.Hour
		cfg.BriefBatch, cfg.ArticleBatch = 50, 50
		cfg.Concurrency = 4
		cfg.GlobalBudget = 280 * time.Second
		cfg.BriefPhaseBudget = 200 * time.Second
		cfg.StopOnQuota = true
	}
	return NewEnrichJob(cfg, EnrichJobDeps{
		DB:            store,
		Enricher:      enr,
		Now:           clock.Now,
		EngineOptions: []EngineOption{WithClock(clock.Now), WithSleep(clock.Sleep)},
	})
}

func TestEnrichJobEndToEnd(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock() // 2024-06-01 12:00 in New York
	store := memstore.New()
	store.PutLocale(tribeca)
	store.PutBrief(core.Brief{
		ID:          "brief-1",
		LocaleID:    tribeca.ID,
		Headline:    "Torrisi Returns to Tribeca",
		Content:     "Draft copy.",
		GeneratedAt: clock.Now().Add(-time.Hour),
	})

	enr := &mockEnricher{policy: enrich.ModelPolicy{Quality: "gemini-2.5-pro", Fast: "gemini-2.5-flash"}}
	job := newTestJob(store, clock, enr, EnrichConfig{})

	sum, err := job.Run(ctx, RunOptions{Batch: 5})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(enr.models) != 1 || enr.models[0] != "gemini-2.5-pro" {
		t.Errorf("expected one call with the quality model, got %v", enr.models)
	}

	brief, _ := store.Briefs().Get(ctx, "brief-1")
	if !brief.IsEnriched() {
		t.Error("brief enrichment not written")
	}

	article, err := store.Articles().GetByBriefID(ctx, "brief-1")
	if err != nil {
		t.Fatalf("derived article missing: %v", err)
	}
	if article.Slug != "nyc-tribeca-brief-2024-06-01-torrisi-returns-to-tribeca" {
		t.Errorf("Slug = %q", article.Slug)
	}
	if article.Type != core.TypeBriefSummary || article.Status != core.StatusPublished {
		t.Errorf("unexpected article %+v", article)
	}

	raw, err := json.Marshal(sum)
	if err != nil {
		t.Fatalf("marshal summary: %v", err)
	}
	var resp map[string]any
	_ = json.Unmarshal(raw, &resp)
	if resp["briefs_enriched"] != float64(1) || resp["articles_created"] != float64(1) || resp["success"] != true {
		t.Errorf("unexpected response %s", raw)
	}
	if resp["skipped_time_budget"] != false {
		t.Errorf("skipped_time_budget = %v", resp["skipped_time_budget"])
	}
}

func TestEnrichJobIsIdempotent(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := memstore.New()
	store.PutLocale(tribeca)
	for i := 0; i < 3; i++ {
		store.PutBrief(core.Brief{ID: fmt.Sprintf("b%d", i), LocaleID: tribeca.ID, Headline: fmt.Sprintf("Brief %d", i),
			GeneratedAt: clock.Now().Add(-time.Duration(i+1) * time.Hour)})
	}
	enr := &mockEnricher{policy: enrich.ModelPolicy{Quality: "q", Fast: "f"}}
	job := newTestJob(store, clock, enr, EnrichConfig{})

	first, _ := job.Run(ctx, RunOptions{})
	second, _ := job.Run(ctx, RunOptions{})

	if first.Count(CounterBriefsEnriched) != 3 || second.Count(CounterBriefsEnriched) != 0 {
		t.Errorf("briefs enriched %d then %d", first.Count(CounterBriefsEnriched), second.Count(CounterBriefsEnriched))
	}
	summaries := 0
	for _, a := range store.AllArticles() {
		if a.Type == core.TypeBriefSummary {
			summaries++
		}
	}
	if summaries != 3 {
		t.Errorf("expected 3 brief summaries, got %d", summaries)
	}
	if len(enr.calls) != 3 {
		t.Errorf("expected 3 enrichment calls total, got %d", len(enr.calls))
	}
}

func TestEnrichJobArticlePhaseExcludesSummariesAndUsesFastModel(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := memstore.New()
	store.PutLocale(tribeca)
	published := clock.Now().Add(-2 * time.Hour)
	store.PutArticle(core.Article{ID: "rss", LocaleID: tribeca.ID, Slug: "rss", Headline: "RSS recap", Body: "Body",
		Status: core.StatusPublished, PublishedAt: &published, Type: core.TypeRSSRecap})
	store.PutArticle(core.Article{ID: "sum", LocaleID: tribeca.ID, Slug: "sum", Headline: "Summary", Body: "Body",
		Status: core.StatusPublished, PublishedAt: &published, Type: core.TypeBriefSummary})

	enr := &mockEnricher{policy: enrich.ModelPolicy{Quality: "q", Fast: "f"}}
	sum, err := newTestJob(store, clock, enr, EnrichConfig{}).Run(ctx, RunOptions{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if sum.Count(CounterArticlesEnriched) != 1 {
		t.Errorf("articles_enriched = %d", sum.Count(CounterArticlesEnriched))
	}
	if len(enr.calls) != 1 || enr.calls[0].Headline != "RSS recap" || enr.models[0] != "f" {
		t.Errorf("unexpected calls %+v models %v", enr.calls, enr.models)
	}
	if enr.calls[0].TypeHint != core.TypeRSSRecap {
		t.Errorf("TypeHint = %q", enr.calls[0].TypeHint)
	}
}

func TestEnrichJobQuotaDrainsPhaseButArticlesStillRun(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := memstore.New()
	store.PutLocale(tribeca)
	for i := 0; i < 8; i++ {
		store.PutBrief(core.Brief{ID: fmt.Sprintf("b%d", i), LocaleID: tribeca.ID, Headline: fmt.Sprintf("Brief %d", i),
			GeneratedAt: clock.Now().Add(-time.Duration(i+1) * time.Minute)})
	}
	published := clock.Now().Add(-time.Hour)
	store.PutArticle(core.Article{ID: "a1", LocaleID: tribeca.ID, Slug: "a1", Headline: "Article", Body: "Body",
		Status: core.StatusPublished, PublishedAt: &published})

	enr := &mockEnricher{
		policy: enrich.ModelPolicy{Quality: "q", Fast: "f"},
		errFor: map[string]error{"Brief 0": errors.New("googleapi: Error 429: quota exceeded")},
	}
	sum, _ := newTestJob(store, clock, enr, EnrichConfig{}).Run(ctx, RunOptions{})

	phases := sum.Phases()
	if len(phases) != 2 {
		t.Fatalf("expected 2 phases, got %d", len(phases))
	}
	if phases[0].Stop != StopQuota || phases[0].Attempted != 4 || phases[0].Remaining != 4 {
		t.Errorf("brief phase = %+v", phases[0])
	}
	if phases[1].Succeeded != 1 {
		t.Errorf("article phase = %+v", phases[1])
	}
	if !sum.QuotaExhausted() || !sum.Success() {
		t.Errorf("quota=%v success=%v", sum.QuotaExhausted(), sum.Success())
	}
}

func TestEnrichJobGlobalBudgetSkipsArticlePhase(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := memstore.New()
	store.PutLocale(tribeca)
	for i := 0; i < 12; i++ {
		store.PutBrief(core.Brief{ID: fmt.Sprintf("b%02d", i), LocaleID: tribeca.ID, Headline: fmt.Sprintf("Brief %d", i),
			GeneratedAt: clock.Now().Add(-time.Duration(i+1) * time.Minute)})
	}
	published := clock.Now().Add(-time.Hour)
	store.PutArticle(core.Article{ID: "a1", LocaleID: tribeca.ID, Slug: "a1", Headline: "Article", Body: "Body",
		Status: core.StatusPublished, PublishedAt: &published})

	enr := &mockEnricher{policy: enrich.ModelPolicy{Quality: "q", Fast: "f"}}
	enr.advance = func() { clock.Advance(20 * time.Second) }
	cfg := EnrichConfig{
		Name: "enrich-briefs", BriefWindow: 240 * time.Hour, ArticleWindow: 96 * time.Hour,
		BriefBatch: 50, ArticleBatch: 50, Concurrency: 4,
		GlobalBudget: 100 * time.Second, BriefPhaseBudget: 200 * time.Second, StopOnQuota: true,
	}
	sum, _ := newTestJob(store, clock, enr, cfg).Run(ctx, RunOptions{})

	phases := sum.Phases()
	if phases[0].Stop != StopGlobalBudget || phases[0].Attempted != 8 {
		t.Errorf("brief phase = %+v", phases[0])
	}
	if phases[1].Stop != StopNotStarted {
		t.Errorf("article phase = %+v", phases[1])
	}
	if !sum.SkippedTimeBudget() || !sum.Success() {
		t.Errorf("skipped=%v success=%v", sum.SkippedTimeBudget(), sum.Success())
	}
	for _, c := range enr.calls {
		if c.Kind == enrich.KindArticle {
			t.Error("article enriched after global budget expired")
		}
	}
}

func TestEnrichJobTestIDBypassesWindow(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := memstore.New()
	store.PutLocale(tribeca)
	store.PutBrief(core.Brief{ID: "ancient", LocaleID: tribeca.ID, Headline: "Old news",
		GeneratedAt: clock.Now().Add(-60 * 24 * time.Hour)})
	store.PutBrief(core.Brief{ID: "fresh", LocaleID: tribeca.ID, Headline: "Fresh", GeneratedAt: clock.Now()})

	enr := &mockEnricher{policy: enrich.ModelPolicy{Quality: "q", Fast: "f"}}
	sum, err := newTestJob(store, clock, enr, EnrichConfig{}).Run(ctx, RunOptions{TestID: "ancient"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(enr.calls) != 1 || enr.calls[0].Headline != "Old news" {
		t.Errorf("expected only the named brief, got %+v", enr.calls)
	}
	if sum.TestID != "ancient" {
		t.Errorf("TestID = %q", sum.TestID)
	}

	_, err = newTestJob(store, clock, enr, EnrichConfig{}).Run(ctx, RunOptions{TestID: "missing"})
	if err == nil || !strings.Contains(err.Error(), "missing") {
		t.Errorf("expected not-found error, got %v", err)
	}
}

func TestEnrichJobUnknownLocaleFailsOnlyThatItem(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := memstore.New()
	store.PutLocale(tribeca)
	store.PutBrief(core.Brief{ID: "ok", LocaleID: tribeca.ID, Headline: "OK", GeneratedAt: clock.Now()})
	store.PutBrief(core.Brief{ID: "orphan", LocaleID: "gone", Headline: "Orphan", GeneratedAt: clock.Now()})

	enr := &mockEnricher{policy: enrich.ModelPolicy{Quality: "q", Fast: "f"}}
	sum, _ := newTestJob(store, clock, enr, EnrichConfig{}).Run(ctx, RunOptions{})

	_, succeeded, failed := sum.Totals()
	if succeeded != 1 || failed != 1 || !sum.Success() {
		t.Errorf("succeeded=%d failed=%d success=%v", succeeded, failed, sum.Success())
	}
}
