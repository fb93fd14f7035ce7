package sources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"flaneur/internal/core"
	"flaneur/internal/logger"
	"flaneur/internal/markdown"
	"flaneur/internal/persistence"
	"flaneur/internal/pipeline"

	"github.com/google/uuid"
)

// Distributor fans a story out to spoke locales, one article each.
type Distributor struct {
	db    persistence.Database
	now   func() time.Time
	newID func() string
	log   *slog.Logger
}

// NewDistributor creates a Distributor.
func NewDistributor(db persistence.Database, now func() time.Time) *Distributor {
	if now == nil {
		now = time.Now
	}
	return &Distributor{db: db, now: now, newID: uuid.NewString, log: logger.Get()}
}

// Distribution reports what one fan-out wrote.
type Distribution struct {
	Created []string
	Existed int
}

// Distribute inserts one published article per locale. A slug conflict
// means another run already placed the story there and is not an error.
// A failure for one locale does not stop the others.
func (d *Distributor) Distribute(ctx context.Context, story core.Story, c Candidate, locales []core.Locale) (Distribution, error) {
	var (
		res  Distribution
		errs []error
	)
	now := d.now()
	for _, locale := range locales {
		article := d.article(story, c, locale, now)
		if err := d.db.Articles().Create(ctx, &article); err != nil {
			if persistence.IsConflict(err) {
				d.log.Info("Story already distributed", "candidate", c.ID, "locale", locale.ID, "slug", article.Slug)
				res.Existed++
				continue
			}
			errs = append(errs, fmt.Errorf("locale %s: %w", locale.ID, err))
			continue
		}
		res.Created = append(res.Created, article.ID)

		if c.URL == "" {
			continue
		}
		name := firstNonEmpty(c.SourceName, "Original listing")
		src := core.ArticleSource{
			ID:        d.newID(),
			ArticleID: article.ID,
			Name:      name,
			Type:      pipeline.ClassifySource(name, c.URL),
			URL:       c.URL,
		}
		if err := d.db.Sources().CreateBatch(ctx, []core.ArticleSource{src}); err != nil {
			d.log.Warn("Failed to attach story source", "article_id", article.ID, "error", err)
		}
	}
	return res, errors.Join(errs...)
}

func (d *Distributor) article(story core.Story, c Candidate, locale core.Locale, now time.Time) core.Article {
	published := now
	return core.Article{
		ID:          d.newID(),
		LocaleID:    locale.ID,
		Headline:    story.Headline,
		Body:        story.Body,
		PreviewText: firstNonEmpty(story.Teaser, pipeline.Preview(story.Body)),
		Slug:        StorySlug(locale, c, now),
		Status:      core.StatusPublished,
		PublishedAt: &published,
		Type:        c.Kind,
		CreatedAt:   now,
	}
}

// StorySlug is stable for a candidate and locale, so re-running a
// pipeline cannot publish the same event twice:
// {locale}-{type}-{YYYY-MM-DD of the event}-{title slug}.
func StorySlug(locale core.Locale, c Candidate, now time.Time) string {
	when := c.When
	if when.IsZero() {
		when = now
	}
	kind := strings.ReplaceAll(string(c.Kind), "_", "-")
	title := markdown.Slugify(firstNonEmpty(c.Title, c.ID))
	return fmt.Sprintf("%s-%s-%s-%s", locale.ID, kind, locale.LocalDate(when), title)
}
