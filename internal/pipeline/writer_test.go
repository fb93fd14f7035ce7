package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"flaneur/internal/core"
	"flaneur/internal/enrich"
	"flaneur/internal/persistence/memstore"
)

var tribeca = core.Locale{
	ID:       "nyc-tribeca",
	Name:     "Tribeca",
	City:     "New York",
	Country:  "USA",
	Timezone: "America/New_York",
	IsActive: true,
}

func TestExtractSourcesDeduplicates(t *testing.T) {
	cats := []core.Category{
		{Name: "Openings", Stories: []core.CategorizedStory{
			{Entity: "Torrisi", Source: &core.SourceRef{Name: "Eater NY", URL: "https://ny.eater.com/torrisi"}},
			{Entity: "Torrisi Bar", Source: &core.SourceRef{Name: "Eater New York", URL: "https://ny.eater.com/torrisi/"},
				SecondarySource: &core.SourceRef{Name: "@tribecacitizen"}},
		}},
		{Name: "Events", Stories: []core.CategorizedStory{
			{Entity: "Film Festival", Source: &core.SourceRef{Name: "Tribeca Citizen"}},
			{Entity: "Film Festival Gala", Source: &core.SourceRef{Name: "tribeca  citizen"}},
			{Entity: "Dinner", Source: &core.SourceRef{Name: "Resy", URL: "https://resy.com/cities/ny"}},
		}},
	}

	got := ExtractSources(cats)

	if len(got) != 4 {
		t.Fatalf("expected 4 sources, got %d: %+v", len(got), got)
	}
	want := []struct {
		name string
		typ  core.SourceType
	}{
		{"Eater NY", core.SourcePublication},
		{"@tribecacitizen", core.SourceSocial},
		{"Tribeca Citizen", core.SourcePublication},
		{"Resy", core.SourcePlatform},
	}
	for i, w := range want {
		if got[i].Name != w.name || got[i].Type != w.typ {
			t.Errorf("source %d = %+v, want %s/%s", i, got[i], w.name, w.typ)
		}
	}
}

func TestDerivedSlugUsesLocaleDate(t *testing.T) {
	// 02:00 UTC on June 2 is still June 1 in New York
	generated := time.Date(2024, 6, 2, 2, 0, 0, 0, time.UTC)
	got := DerivedSlug(tribeca, generated, "Torrisi's Big Return!")
	want := "nyc-tribeca-brief-2024-06-01-torrisis-big-return"
	if got != want {
		t.Errorf("DerivedSlug() = %q, want %q", got, want)
	}
}

func TestWriteBriefCreatesArticleWithFallbackSources(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	now := time.Date(2024, 6, 1, 16, 0, 0, 0, time.UTC)
	brief := core.Brief{ID: "b1", LocaleID: tribeca.ID, Headline: "Tribeca Today", Content: "raw", GeneratedAt: now.Add(-time.Hour)}
	store.PutBrief(brief)

	w := NewWriter(store, func() time.Time { return now })
	wr, err := w.WriteBrief(ctx, brief, tribeca, enrich.Result{Content: "**Big** news. More text.", Model: "quality"})
	if err != nil {
		t.Fatalf("WriteBrief() error = %v", err)
	}
	if !wr.ArticleCreated || wr.DerivedErr != nil {
		t.Fatalf("unexpected write result %+v", wr)
	}

	stored, _ := store.Briefs().Get(ctx, "b1")
	if !stored.IsEnriched() || stored.Enrichment.Model != "quality" {
		t.Errorf("brief enrichment not stored: %+v", stored.Enrichment)
	}

	article, err := store.Articles().GetByBriefID(ctx, "b1")
	if err != nil {
		t.Fatalf("derived article missing: %v", err)
	}
	if article.PreviewText != "Big news. More text." {
		t.Errorf("PreviewText = %q", article.PreviewText)
	}
	if article.Status != core.StatusPublished || article.Type != core.TypeBriefSummary {
		t.Errorf("unexpected article %+v", article)
	}

	sources, _ := store.Sources().ListByArticle(ctx, article.ID)
	if len(sources) != 2 || sources[0].Type != core.SourcePlatform {
		t.Errorf("expected two platform fallback sources, got %+v", sources)
	}
}

func TestWriteBriefTreatsExistingArticleAsDone(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	now := time.Date(2024, 6, 1, 16, 0, 0, 0, time.UTC)
	brief := core.Brief{ID: "b1", LocaleID: tribeca.ID, Headline: "Tribeca Today", GeneratedAt: now}
	store.PutBrief(brief)
	// a concurrent run already published an article under the same slug
	store.PutArticle(core.Article{ID: "other", Slug: DerivedSlug(tribeca, now, "Tribeca Today")})

	w := NewWriter(store, func() time.Time { return now })
	wr, err := w.WriteBrief(ctx, brief, tribeca, enrich.Result{Content: "Body."})
	if err != nil {
		t.Fatalf("WriteBrief() error = %v", err)
	}
	if wr.ArticleCreated || !wr.ArticleExisted || wr.DerivedErr != nil {
		t.Errorf("conflict should be benign, got %+v", wr)
	}
	if n := len(store.AllArticles()); n != 1 {
		t.Errorf("expected 1 article, got %d", n)
	}
}

func TestWriteBriefFailsOnlyWhenEnrichmentUpdateFails(t *testing.T) {
	store := memstore.New()
	store.FailOn = func(op, id string) error {
		if op == "briefs.set_enrichment" {
			return errors.New("update failed")
		}
		return nil
	}
	w := NewWriter(store, nil)
	_, err := w.WriteBrief(context.Background(), core.Brief{ID: "b1"}, tribeca, enrich.Result{Content: "x"})
	if err == nil || !strings.Contains(err.Error(), "update failed") {
		t.Errorf("expected update error, got %v", err)
	}
}

func TestWriteArticleRegeneratesPreviewAndSkipsKnownSources(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	published := time.Now()
	store.PutArticle(core.Article{ID: "a1", LocaleID: tribeca.ID, Slug: "a1", PreviewText: "old",
		Status: core.StatusPublished, PublishedAt: &published})
	_ = store.Sources().CreateBatch(ctx, []core.ArticleSource{{ID: "s0", ArticleID: "a1", Name: "Eater NY", URL: "https://ny.eater.com/x"}})

	w := NewWriter(store, nil)
	wr, err := w.WriteArticle(ctx, core.Article{ID: "a1"}, enrich.Result{
		Content: "# Heading\n\nFresh preview.",
		Categories: []core.Category{{Name: "Food", Stories: []core.CategorizedStory{
			{Entity: "X", Source: &core.SourceRef{Name: "Eater NY", URL: "https://ny.eater.com/x"}},
			{Entity: "Y", Source: &core.SourceRef{Name: "Grub Street", URL: "https://grubstreet.com/y"}},
		}}},
	})
	if err != nil || wr.SourceErr != nil {
		t.Fatalf("WriteArticle() = %+v, %v", wr, err)
	}
	if wr.SourcesAdded != 1 {
		t.Errorf("SourcesAdded = %d, want 1", wr.SourcesAdded)
	}

	a, _ := store.Articles().Get(ctx, "a1")
	if a.PreviewText != "Heading Fresh preview." || !a.IsEnriched() {
		t.Errorf("unexpected article %+v", a)
	}
}
