package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"flaneur/internal/core"
	"flaneur/internal/markdown"

	"github.com/tidwall/gjson"
)

// AuctionFetcher reads an auction-calendar JSON endpoint per hub region.
type AuctionFetcher struct {
	endpoint  string
	client    *http.Client
	userAgent string
	horizon   time.Duration
	now       func() time.Time
}

// NewAuctionFetcher creates an AuctionFetcher. Sales starting after
// now+horizon are ignored.
func NewAuctionFetcher(endpoint string, horizon time.Duration, opts HTTPOptions) *AuctionFetcher {
	return &AuctionFetcher{
		endpoint:  endpoint,
		client:    opts.client(),
		userAgent: opts.UserAgent,
		horizon:   horizon,
		now:       time.Now,
	}
}

func (f *AuctionFetcher) Fetch(ctx context.Context, hub Hub) ([]Candidate, error) {
	if f.endpoint == "" {
		return nil, fmt.Errorf("auction endpoint is not configured")
	}
	q := url.Values{}
	q.Set("region", firstNonEmpty(hub.Region, hub.ID))
	q.Set("from", f.now().Format("2006-01-02"))

	body, err := get(ctx, f.client, f.endpoint+"?"+q.Encode(), f.userAgent, "application/json")
	if err != nil {
		return nil, err
	}

	events := ParseAuctions(body, hub.Region, f.now(), f.horizon)
	out := make([]Candidate, 0, len(events))
	for _, ev := range events {
		out = append(out, auctionCandidate(ev, hub))
	}
	return out, nil
}

// ParseAuctions reads a loosely-typed auction list. The list may be the
// document itself or sit under "results", "data" or "auctions". Records
// without a title or a parseable start date, or outside [now, now+horizon],
// are skipped.
func ParseAuctions(body []byte, region string, now time.Time, horizon time.Duration) []core.AuctionEvent {
	var out []core.AuctionEvent
	items(body, "results", "data", "auctions").ForEach(func(_, r gjson.Result) bool {
		title := strings.TrimSpace(str(r, "title", "name", "sale_title"))
		if title == "" {
			return true
		}
		starts, ok := parseTime(str(r, "start_date", "date", "starts_at", "sale_date"), time.UTC)
		if !ok || starts.Before(now.Truncate(24*time.Hour)) {
			return true
		}
		if horizon > 0 && starts.After(now.Add(horizon)) {
			return true
		}
		house := strings.TrimSpace(str(r, "house", "auction_house", "auctioneer"))
		id := str(r, "id", "sale_id", "sale_number")
		if id == "" {
			id = markdown.Slugify(house + " " + title + " " + starts.Format("2006-01-02"))
		}
		out = append(out, core.AuctionEvent{
			ID:           id,
			House:        house,
			Title:        title,
			Region:       firstNonEmpty(str(r, "region", "location_region"), region),
			Location:     str(r, "location", "venue", "city"),
			URL:          str(r, "url", "link", "sale_url"),
			StartsAt:     starts,
			LotCount:     int(num(r, "lot_count", "lots", "total_lots")),
			EstimateHigh: num(r, "estimate_high", "estimate.high", "high_estimate"),
			Currency:     str(r, "currency", "estimate.currency"),
		})
		return true
	})
	return out
}

func auctionCandidate(ev core.AuctionEvent, hub Hub) Candidate {
	facts := []string{
		"House: " + firstNonEmpty(ev.House, "unknown"),
		"Sale date: " + ev.StartsAt.Format("Monday, January 2, 2006"),
	}
	if ev.Location != "" {
		facts = append(facts, "Location: "+ev.Location)
	}
	if ev.LotCount > 0 {
		facts = append(facts, fmt.Sprintf("Lots: %d", ev.LotCount))
	}
	if ev.EstimateHigh > 0 {
		facts = append(facts, fmt.Sprintf("High estimate: %s %.0f", firstNonEmpty(ev.Currency, "USD"), ev.EstimateHigh))
	}
	return Candidate{
		ID:         "auction:" + ev.ID,
		Kind:       core.TypeAuctionCalendar,
		HubID:      hub.ID,
		City:       hub.City,
		Title:      ev.Title,
		Subject:    ev.House,
		URL:        ev.URL,
		SourceName: ev.House,
		When:       ev.StartsAt,
		Facts:      facts,
		Event:      ev,
	}
}

// items returns the JSON array in body, looking under keys when the
// document is an object.
func items(body []byte, keys ...string) gjson.Result {
	doc := gjson.ParseBytes(body)
	if doc.IsArray() {
		return doc
	}
	for _, k := range keys {
		if r := doc.Get(k); r.IsArray() {
			return r
		}
	}
	return gjson.Result{}
}

// str returns the first non-empty string among paths.
func str(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() && v.Type != gjson.Null {
			if s := strings.TrimSpace(v.String()); s != "" {
				return s
			}
		}
	}
	return ""
}

// num returns the first numeric value among paths. Numeric strings, as
// some open-data APIs send, are accepted.
func num(r gjson.Result, paths ...string) float64 {
	for _, p := range paths {
		v := r.Get(p)
		switch v.Type {
		case gjson.Number:
			return v.Float()
		case gjson.String:
			if f := gjson.Parse(strings.ReplaceAll(v.Str, ",", "")); f.Type == gjson.Number {
				return f.Float()
			}
		}
	}
	return 0
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
