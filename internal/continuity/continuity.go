// Package continuity assembles the recent-coverage context passed to each
// enrichment call.
package continuity

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"flaneur/internal/core"
	"flaneur/internal/logger"
	"flaneur/internal/markdown"
	"flaneur/internal/persistence"
)

// Defaults for the context window.
const (
	DefaultBriefWindow   = 10 * 24 * time.Hour
	DefaultArticleWindow = 7 * 24 * time.Hour
	DefaultLimit         = 30
	ExcerptLength        = 200
)

// Options tunes a Builder.
type Options struct {
	BriefWindow   time.Duration
	ArticleWindow time.Duration
	Limit         int
}

func (o Options) withDefaults() Options {
	if o.BriefWindow <= 0 {
		o.BriefWindow = DefaultBriefWindow
	}
	if o.ArticleWindow <= 0 {
		o.ArticleWindow = DefaultArticleWindow
	}
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	return o
}

// Builder reads recent briefs and articles for a locale.
type Builder struct {
	briefs   persistence.BriefRepository
	articles persistence.ArticleRepository
	opts     Options
	now      func() time.Time
	log      *slog.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(briefs persistence.BriefRepository, articles persistence.ArticleRepository, opts Options) *Builder {
	return &Builder{
		briefs:   briefs,
		articles: articles,
		opts:     opts.withDefaults(),
		now:      time.Now,
		log:      logger.Get(),
	}
}

// Build returns up to Limit recent items for localeID, newest first,
// excluding excludeID. Read failures are logged and produce an empty
// context so enrichment can continue without it.
func (b *Builder) Build(ctx context.Context, localeID, excludeID string) []core.ContinuityItem {
	now := b.now()

	briefs, err := b.briefs.ListRecent(ctx, persistence.RecentQuery{
		LocaleID: localeID,
		Since:    now.Add(-b.opts.BriefWindow),
		Limit:    b.opts.Limit + 1,
	})
	if err != nil {
		b.log.Warn("Continuity context unavailable", "locale", localeID, "error", err)
		return nil
	}
	articles, err := b.articles.ListRecent(ctx, persistence.RecentQuery{
		LocaleID:     localeID,
		Since:        now.Add(-b.opts.ArticleWindow),
		Limit:        b.opts.Limit + 1,
		ExcludeTypes: []core.ArticleType{core.TypeBriefSummary},
	})
	if err != nil {
		b.log.Warn("Continuity context unavailable", "locale", localeID, "error", err)
		return nil
	}

	items := make([]core.ContinuityItem, 0, len(briefs)+len(articles))
	for _, br := range briefs {
		if br.ID == excludeID {
			continue
		}
		items = append(items, core.ContinuityItem{
			Date:     br.GeneratedAt,
			Headline: br.Headline,
			Excerpt:  Excerpt(bestText(br.Enrichment, br.Content)),
			Kind:     core.ContinuityBrief,
		})
	}
	for _, a := range articles {
		if a.ID == excludeID {
			continue
		}
		date := a.CreatedAt
		if a.PublishedAt != nil {
			date = *a.PublishedAt
		}
		items = append(items, core.ContinuityItem{
			Date:     date,
			Headline: a.Headline,
			Excerpt:  Excerpt(bestText(a.Enrichment, a.Body)),
			Kind:     core.ContinuityArticle,
		})
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Date.After(items[j].Date) })
	if len(items) > b.opts.Limit {
		items = items[:b.opts.Limit]
	}
	return items
}

func bestText(e *core.Enrichment, fallback string) string {
	if e != nil && e.Content != "" {
		return e.Content
	}
	return fallback
}

// Excerpt strips markup and truncates to ExcerptLength at a sentence or
// word boundary.
func Excerpt(s string) string {
	return markdown.TruncateToSentence(markdown.StripMarkup(s), ExcerptLength)
}
