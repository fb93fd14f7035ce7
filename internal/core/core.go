package core

import (
	"strings"
	"time"
)

// Locale is a named coverage area (a city neighborhood or a vacation destination).
type Locale struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	City            string  `json:"city"`
	Country         string  `json:"country"`
	Timezone        string  `json:"timezone"`
	Currency        string  `json:"currency"`
	HasListingsAPI  bool    `json:"has_listings_api"`
	EnableSightings bool    `json:"enable_crowdsourced_sightings"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	IsActive        bool    `json:"is_active"`
}

// Location returns the locale's time zone, falling back to UTC when the
// configured zone is unknown.
func (l Locale) Location() *time.Location {
	if l.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(l.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LocalDate formats t as YYYY-MM-DD in the locale's time zone.
func (l Locale) LocalDate(t time.Time) string {
	return t.In(l.Location()).Format("2006-01-02")
}

// SourceRef names where a fact came from.
type SourceRef struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// CategorizedStory is one entity inside an enrichment category.
type CategorizedStory struct {
	Entity          string     `json:"entity"`
	Source          *SourceRef `json:"source,omitempty"`
	SecondarySource *SourceRef `json:"secondary_source,omitempty"`
	Context         string     `json:"context,omitempty"`
}

// Category groups the stories an enrichment call found under one heading.
type Category struct {
	Name    string             `json:"name"`
	Stories []CategorizedStory `json:"stories"`
}

// Enrichment is the all-or-nothing result written back to a Brief or Article.
type Enrichment struct {
	Content       string     `json:"enriched_content"`
	Categories    []Category `json:"enriched_categories"`
	Model         string     `json:"enrichment_model"`
	EnrichedAt    time.Time  `json:"enriched_at"`
	SubjectTeaser string     `json:"subject_teaser,omitempty"`
	EmailTeaser   string     `json:"email_teaser,omitempty"`
}

// Brief is a generated daily digest for a Locale, enriched exactly once.
type Brief struct {
	ID          string      `json:"id"`
	LocaleID    string      `json:"neighborhood_id"`
	Headline    string      `json:"headline"`
	Content     string      `json:"content"`
	GeneratedAt time.Time   `json:"generated_at"`
	Enrichment  *Enrichment `json:"enrichment,omitempty"`
}

// IsEnriched reports whether the enrichment fields have been written.
func (b Brief) IsEnriched() bool { return b.Enrichment != nil && !b.Enrichment.EnrichedAt.IsZero() }

// ArticleStatus is the publication state of an Article.
type ArticleStatus string

const (
	StatusDraft     ArticleStatus = "draft"
	StatusScheduled ArticleStatus = "scheduled"
	StatusPublished ArticleStatus = "published"
	StatusRejected  ArticleStatus = "rejected"
)

// ArticleType tags where an Article came from.
type ArticleType string

const (
	TypeStandard        ArticleType = "standard"
	TypeBriefSummary    ArticleType = "brief_summary"
	TypeRSSRecap        ArticleType = "rss_recap"
	TypeLookAhead       ArticleType = "look_ahead"
	TypeAuctionCalendar ArticleType = "auction_calendar"
	TypeAlfrescoAlert   ArticleType = "alfresco_alert"
	TypeBrandResidency  ArticleType = "brand_residency"
	TypePropertyWatch   ArticleType = "property_watch"
)

// Article is a published content unit for a Locale. Slugs are globally
// unique and at most one brief_summary Article references a given Brief.
type Article struct {
	ID          string        `json:"id"`
	LocaleID    string        `json:"neighborhood_id"`
	Headline    string        `json:"headline"`
	Body        string        `json:"body_text"`
	PreviewText string        `json:"preview_text"`
	Slug        string        `json:"slug"`
	Status      ArticleStatus `json:"status"`
	PublishedAt *time.Time    `json:"published_at,omitempty"`
	Type        ArticleType   `json:"article_type"`
	BriefID     string        `json:"brief_id,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	Enrichment  *Enrichment   `json:"enrichment,omitempty"`
}

// IsEnriched reports whether the enrichment fields have been written.
func (a Article) IsEnriched() bool { return a.Enrichment != nil && !a.Enrichment.EnrichedAt.IsZero() }

// SourceType classifies an ArticleSource.
type SourceType string

const (
	SourcePublication SourceType = "publication"
	SourcePlatform    SourceType = "platform"
	SourceSocial      SourceType = "social_account"
)

// ArticleSource is a citation owned by an Article.
type ArticleSource struct {
	ID        string     `json:"id"`
	ArticleID string     `json:"article_id"`
	Name      string     `json:"source_name"`
	Type      SourceType `json:"source_type"`
	URL       string     `json:"source_url,omitempty"`
}

// ContinuityKind distinguishes the two projections in a continuity context.
type ContinuityKind string

const (
	ContinuityBrief   ContinuityKind = "brief"
	ContinuityArticle ContinuityKind = "article"
)

// ContinuityItem is a read-only projection of recent content, never stored.
type ContinuityItem struct {
	Date     time.Time      `json:"date"`
	Headline string         `json:"headline"`
	Excerpt  string         `json:"excerpt"`
	Kind     ContinuityKind `json:"kind"`
}

// CronExecution is the append-only audit row for one pipeline run.
type CronExecution struct {
	ID             string         `json:"id"`
	JobName        string         `json:"job_name"`
	StartedAt      time.Time      `json:"started_at"`
	CompletedAt    time.Time      `json:"completed_at"`
	Success        bool           `json:"success"`
	ItemsProcessed int            `json:"items_processed"`
	ItemsCreated   int            `json:"items_created"`
	ItemsFailed    int            `json:"items_failed"`
	Errors         []string       `json:"errors"`
	ResponseData   map[string]any `json:"response_data"`
}

// NormalizeName lowercases and collapses whitespace for keyword matching.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
