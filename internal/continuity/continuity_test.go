package continuity

import (
	"context"
	"errors"
	"testing"
	"time"

	"flaneur/internal/core"
	"flaneur/internal/persistence"
	"flaneur/internal/persistence/memstore"
)

type failingBriefs struct{ persistence.BriefRepository }

func (failingBriefs) ListRecent(context.Context, persistence.RecentQuery) ([]core.Brief, error) {
	return nil, errors.New("connection refused")
}

func TestBuildOrdersAndExcludes(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store := memstore.New()
	ago := func(h int) time.Time { return now.Add(-time.Duration(h) * time.Hour) }
	ptr := func(t time.Time) *time.Time { return &t }

	store.PutBrief(core.Brief{ID: "self", LocaleID: "nyc-tribeca", Headline: "Self", GeneratedAt: ago(1)})
	store.PutBrief(core.Brief{ID: "b2", LocaleID: "nyc-tribeca", Headline: "Two days", GeneratedAt: ago(48),
		Enrichment: &core.Enrichment{Content: "**Enriched** text.", EnrichedAt: ago(47)}})
	store.PutBrief(core.Brief{ID: "old", LocaleID: "nyc-tribeca", Headline: "Too old", GeneratedAt: ago(24 * 11)})
	store.PutBrief(core.Brief{ID: "other", LocaleID: "london-mayfair", Headline: "Elsewhere", GeneratedAt: ago(2)})
	store.PutArticle(core.Article{ID: "a1", LocaleID: "nyc-tribeca", Slug: "a1", Headline: "Yesterday", Body: "Body.",
		Status: core.StatusPublished, PublishedAt: ptr(ago(24))})
	store.PutArticle(core.Article{ID: "sum", LocaleID: "nyc-tribeca", Slug: "sum", Headline: "Summary",
		Status: core.StatusPublished, PublishedAt: ptr(ago(3)), Type: core.TypeBriefSummary})
	store.PutArticle(core.Article{ID: "a-old", LocaleID: "nyc-tribeca", Slug: "a-old", Headline: "Eight days",
		Status: core.StatusPublished, PublishedAt: ptr(ago(24 * 8))})

	b := NewBuilder(store.Briefs(), store.Articles(), Options{})
	b.now = func() time.Time { return now }

	items := b.Build(context.Background(), "nyc-tribeca", "self")

	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d: %+v", len(items), items)
	}
	if items[0].Headline != "Yesterday" || items[0].Kind != core.ContinuityArticle {
		t.Errorf("unexpected first item %+v", items[0])
	}
	if items[1].Headline != "Two days" || items[1].Excerpt != "Enriched text." {
		t.Errorf("unexpected second item %+v", items[1])
	}
}

func TestBuildCapsAtLimit(t *testing.T) {
	now := time.Now()
	store := memstore.New()
	for i := 0; i < 40; i++ {
		store.PutBrief(core.Brief{ID: string(rune('A' + i)), LocaleID: "x", Headline: "h", GeneratedAt: now.Add(-time.Duration(i) * time.Hour)})
	}

	b := NewBuilder(store.Briefs(), store.Articles(), Options{})
	b.now = func() time.Time { return now }
	items := b.Build(context.Background(), "x", "")
	if len(items) != DefaultLimit {
		t.Errorf("expected %d items, got %d", DefaultLimit, len(items))
	}
}

func TestBuildSwallowsErrors(t *testing.T) {
	store := memstore.New()
	b := NewBuilder(failingBriefs{store.Briefs()}, store.Articles(), Options{})
	if items := b.Build(context.Background(), "x", ""); len(items) != 0 {
		t.Errorf("expected empty context, got %+v", items)
	}
}
