package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"flaneur/internal/core"
	"flaneur/internal/enrich"
	"flaneur/internal/logger"
	"flaneur/internal/markdown"
	"flaneur/internal/persistence"

	"github.com/google/uuid"
)

// PreviewLength is the rune limit for article preview text.
const PreviewLength = 200

// BriefWrite is the outcome of writing one brief's enrichment.
type BriefWrite struct {
	ArticleCreated bool
	ArticleExisted bool
	// DerivedErr is a failure of the derived-article writes. It is reported
	// but does not fail the brief, whose enrichment is already stored.
	DerivedErr error
}

// Writer stores enrichment results and their derived rows.
type Writer struct {
	db    persistence.Database
	now   func() time.Time
	newID func() string
	log   *slog.Logger
}

// NewWriter creates a Writer.
func NewWriter(db persistence.Database, now func() time.Time) *Writer {
	if now == nil {
		now = time.Now
	}
	return &Writer{db: db, now: now, newID: uuid.NewString, log: logger.Get()}
}

// WriteBrief stores the enrichment in one update, then creates the
// brief_summary article for the brief unless one already exists.
func (w *Writer) WriteBrief(ctx context.Context, brief core.Brief, locale core.Locale, res enrich.Result) (BriefWrite, error) {
	now := w.now()
	e := res.Enrichment(now)
	if err := w.db.Briefs().SetEnrichment(ctx, brief.ID, e); err != nil {
		return BriefWrite{}, fmt.Errorf("failed to store brief enrichment: %w", err)
	}

	_, err := w.db.Articles().GetByBriefID(ctx, brief.ID)
	switch {
	case err == nil:
		return BriefWrite{ArticleExisted: true}, nil
	case !persistence.IsNotFound(err):
		return BriefWrite{DerivedErr: fmt.Errorf("failed to check derived article: %w", err)}, nil
	}

	article := w.deriveArticle(brief, locale, e, now)
	if err := w.db.Articles().Create(ctx, &article); err != nil {
		if persistence.IsConflict(err) {
			w.log.Info("Derived article already exists", "brief_id", brief.ID, "slug", article.Slug)
			return BriefWrite{ArticleExisted: true}, nil
		}
		return BriefWrite{DerivedErr: fmt.Errorf("failed to create derived article: %w", err)}, nil
	}

	sources := ExtractSources(res.Categories)
	if len(sources) == 0 {
		sources = FallbackSources(locale)
	}
	if err := w.insertSources(ctx, article.ID, sources); err != nil {
		return BriefWrite{ArticleCreated: true, DerivedErr: err}, nil
	}
	return BriefWrite{ArticleCreated: true}, nil
}

// ArticleWrite is the outcome of writing one article's enrichment.
type ArticleWrite struct {
	SourcesAdded int
	// SourceErr is reported but does not undo the stored enrichment.
	SourceErr error
}

// WriteArticle stores the enrichment with a regenerated preview, then adds
// any sources not already attached.
func (w *Writer) WriteArticle(ctx context.Context, article core.Article, res enrich.Result) (ArticleWrite, error) {
	e := res.Enrichment(w.now())
	if err := w.db.Articles().SetEnrichment(ctx, article.ID, e, Preview(e.Content)); err != nil {
		return ArticleWrite{}, fmt.Errorf("failed to store article enrichment: %w", err)
	}

	sources := ExtractSources(res.Categories)
	if len(sources) == 0 {
		return ArticleWrite{}, nil
	}
	existing, err := w.db.Sources().ListByArticle(ctx, article.ID)
	if err != nil {
		return ArticleWrite{SourceErr: fmt.Errorf("failed to read article sources: %w", err)}, nil
	}
	sources = withoutExisting(sources, existing)
	if err := w.insertSources(ctx, article.ID, sources); err != nil {
		return ArticleWrite{SourceErr: err}, nil
	}
	return ArticleWrite{SourcesAdded: len(sources)}, nil
}

func (w *Writer) insertSources(ctx context.Context, articleID string, sources []core.ArticleSource) error {
	if len(sources) == 0 {
		return nil
	}
	for i := range sources {
		sources[i].ID = w.newID()
		sources[i].ArticleID = articleID
	}
	if err := w.db.Sources().CreateBatch(ctx, sources); err != nil {
		return fmt.Errorf("failed to insert sources: %w", err)
	}
	return nil
}

func (w *Writer) deriveArticle(brief core.Brief, locale core.Locale, e core.Enrichment, now time.Time) core.Article {
	headline := DerivedHeadline(brief, locale, e)
	published := now
	return core.Article{
		ID:          w.newID(),
		LocaleID:    brief.LocaleID,
		Headline:    headline,
		Body:        e.Content,
		PreviewText: Preview(e.Content),
		Slug:        DerivedSlug(locale, brief.GeneratedAt, headline),
		Status:      core.StatusPublished,
		PublishedAt: &published,
		Type:        core.TypeBriefSummary,
		BriefID:     brief.ID,
		CreatedAt:   now,
		Enrichment:  &e,
	}
}

// DerivedHeadline picks the summary article headline: the brief's own
// headline, else the subject teaser, else a dated locale title.
func DerivedHeadline(brief core.Brief, locale core.Locale, e core.Enrichment) string {
	if h := strings.TrimSpace(brief.Headline); h != "" {
		return h
	}
	if h := strings.TrimSpace(e.SubjectTeaser); h != "" {
		return h
	}
	name := locale.Name
	if name == "" {
		name = locale.ID
	}
	return name + " Daily Brief"
}

// DerivedSlug formats {locale-id}-brief-{YYYY-MM-DD}-{headline-slug} with
// the date taken in the locale's time zone.
func DerivedSlug(locale core.Locale, generatedAt time.Time, headline string) string {
	hs := markdown.Slugify(headline)
	if hs == "" {
		hs = "daily"
	}
	return fmt.Sprintf("%s-brief-%s-%s", locale.ID, locale.LocalDate(generatedAt), hs)
}

// Preview is the stripped, sentence-truncated preview of body.
func Preview(body string) string {
	return markdown.TruncateToSentence(markdown.StripMarkup(body), PreviewLength)
}

// ExtractSources flattens every primary and secondary source in cats,
// deduplicated by URL, or by name when there is no URL.
func ExtractSources(cats []core.Category) []core.ArticleSource {
	var out []core.ArticleSource
	seen := make(map[string]bool)
	add := func(ref *core.SourceRef) {
		if ref == nil {
			return
		}
		name, link := strings.TrimSpace(ref.Name), strings.TrimSpace(ref.URL)
		if name == "" && link == "" {
			return
		}
		key := sourceKey(name, link)
		if seen[key] {
			return
		}
		seen[key] = true
		if name == "" {
			name = hostName(link)
		}
		out = append(out, core.ArticleSource{Name: name, URL: link, Type: ClassifySource(name, link)})
	}
	for _, c := range cats {
		for _, s := range c.Stories {
			add(s.Source)
			add(s.SecondarySource)
		}
	}
	return out
}

func sourceKey(name, link string) string {
	if link != "" {
		return "url:" + strings.TrimSuffix(strings.ToLower(link), "/")
	}
	return "name:" + core.NormalizeName(name)
}

func withoutExisting(sources, existing []core.ArticleSource) []core.ArticleSource {
	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		seen[sourceKey(e.Name, e.URL)] = true
	}
	out := sources[:0]
	for _, s := range sources {
		if !seen[sourceKey(s.Name, s.URL)] {
			out = append(out, s)
		}
	}
	return out
}

var (
	socialHosts   = []string{"instagram.com", "twitter.com", "x.com", "tiktok.com", "facebook.com", "threads.net"}
	platformHosts = []string{"google.com", "yelp.com", "resy.com", "opentable.com", "tripadvisor.com", "eventbrite.com"}
)

// ClassifySource guesses the source type from its name and URL host.
func ClassifySource(name, link string) core.SourceType {
	if strings.HasPrefix(strings.TrimSpace(name), "@") {
		return core.SourceSocial
	}
	host := hostName(link)
	for _, h := range socialHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return core.SourceSocial
		}
	}
	for _, h := range platformHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return core.SourcePlatform
		}
	}
	return core.SourcePublication
}

func hostName(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// FallbackSources are the generic platform citations used when an
// enrichment names no sources.
func FallbackSources(locale core.Locale) []core.ArticleSource {
	q := url.QueryEscape(strings.TrimSpace(locale.Name + " " + locale.City))
	return []core.ArticleSource{
		{Name: "Google News", Type: core.SourcePlatform, URL: "https://news.google.com/search?q=" + q},
		{Name: "Google Maps", Type: core.SourcePlatform, URL: "https://www.google.com/maps/search/" + q},
	}
}
