package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"flaneur/internal/core"
	"flaneur/internal/markdown"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"
)

// ResidencyFetcher searches a news RSS feed for brand pop-ups and
// residencies in each hub. The feed URL may contain one %s, replaced by
// the hub's escaped search query.
type ResidencyFetcher struct {
	feedURL   string
	client    *http.Client
	userAgent string
	lookback  time.Duration
	brands    Brands
	now       func() time.Time
}

// NewResidencyFetcher creates a ResidencyFetcher over items newer than
// lookback.
func NewResidencyFetcher(feedURL string, lookback time.Duration, brands Brands, opts HTTPOptions) *ResidencyFetcher {
	return &ResidencyFetcher{
		feedURL:   feedURL,
		client:    opts.client(),
		userAgent: opts.UserAgent,
		lookback:  lookback,
		brands:    brands,
		now:       time.Now,
	}
}

func (f *ResidencyFetcher) Fetch(ctx context.Context, hub Hub) ([]Candidate, error) {
	if f.feedURL == "" {
		return nil, fmt.Errorf("residency feed is not configured")
	}
	query := firstNonEmpty(hub.ResidencyQuery, hub.City+" pop-up")
	feedURL := f.feedURL
	if strings.Contains(feedURL, "%s") {
		feedURL = fmt.Sprintf(feedURL, url.QueryEscape(query))
	}

	body, err := get(ctx, f.client, feedURL, f.userAgent, "application/rss+xml, application/xml")
	if err != nil {
		return nil, err
	}

	events, err := ParseResidencies(body, hub.ID, f.brands, f.now(), f.lookback)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(events))
	for _, ev := range events {
		out = append(out, residencyCandidate(ev, hub))
	}
	return out, nil
}

// ParseResidencies parses an RSS or Atom document leniently. Items
// without a title or link are skipped, as are items older than lookback
// when their publication time is known.
func ParseResidencies(body []byte, region string, brands Brands, now time.Time, lookback time.Duration) ([]core.ResidencyAnnouncement, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	var out []core.ResidencyAnnouncement
	for _, item := range feed.Items {
		title := strings.TrimSpace(item.Title)
		if title == "" || item.Link == "" {
			continue
		}
		var published time.Time
		if item.PublishedParsed != nil {
			published = *item.PublishedParsed
			if lookback > 0 && published.Before(now.Add(-lookback)) {
				continue
			}
		}
		summary := markdown.TruncateToSentence(markdown.StripMarkup(item.Description), 400)
		brand, _ := brands.Find(title + " " + summary)
		id := item.GUID
		if id == "" {
			id = item.Link
		}
		out = append(out, core.ResidencyAnnouncement{
			ID:          id,
			Brand:       brand,
			Headline:    title,
			Region:      region,
			URL:         item.Link,
			Summary:     summary,
			PublishedAt: published,
		})
	}
	return out, nil
}

func residencyCandidate(ev core.ResidencyAnnouncement, hub Hub) Candidate {
	facts := []string{"Reported headline: " + ev.Headline}
	if ev.Brand != "" {
		facts = append(facts, "Brand: "+ev.Brand)
	}
	if ev.Summary != "" {
		facts = append(facts, "Report: "+ev.Summary)
	}
	return Candidate{
		ID:         "residency:" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(ev.ID)).String(),
		Kind:       core.TypeBrandResidency,
		HubID:      hub.ID,
		City:       hub.City,
		Title:      ev.Headline,
		Subject:    ev.Brand,
		Summary:    ev.Summary,
		URL:        ev.URL,
		SourceName: sourceFromHeadline(ev.Headline),
		When:       ev.PublishedAt,
		Facts:      facts,
		Event:      ev,
	}
}

// sourceFromHeadline reads the publication from news-search titles of the
// form "Headline - Publication".
func sourceFromHeadline(h string) string {
	if i := strings.LastIndex(h, " - "); i > 0 {
		return strings.TrimSpace(h[i+3:])
	}
	return ""
}
