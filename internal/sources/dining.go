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

// diningZone is the time zone of the open-data permit timestamps, which
// carry no offset.
const diningZone = "America/New_York"

// DiningFetcher reads outdoor dining permit filings from an open-data
// (Socrata) JSON endpoint, filtered by hub borough.
type DiningFetcher struct {
	endpoint  string
	client    *http.Client
	userAgent string
	lookback  time.Duration
	limit     int
	now       func() time.Time
}

// NewDiningFetcher creates a DiningFetcher over filings newer than lookback.
func NewDiningFetcher(endpoint string, lookback time.Duration, opts HTTPOptions) *DiningFetcher {
	return &DiningFetcher{
		endpoint:  endpoint,
		client:    opts.client(),
		userAgent: opts.UserAgent,
		lookback:  lookback,
		limit:     200,
		now:       time.Now,
	}
}

func (f *DiningFetcher) Fetch(ctx context.Context, hub Hub) ([]Candidate, error) {
	if f.endpoint == "" {
		return nil, fmt.Errorf("dining endpoint is not configured")
	}
	q := url.Values{}
	if hub.Borough != "" {
		q.Set("borough", hub.Borough)
	}
	q.Set("$order", "time_of_submission DESC")
	q.Set("$limit", fmt.Sprint(f.limit))

	body, err := get(ctx, f.client, f.endpoint+"?"+q.Encode(), f.userAgent, "application/json")
	if err != nil {
		return nil, err
	}

	events := ParseDiningPermits(body, firstNonEmpty(hub.Borough, hub.Region), f.now(), f.lookback)
	out := make([]Candidate, 0, len(events))
	for _, ev := range events {
		out = append(out, diningCandidate(ev, hub))
	}
	return out, nil
}

// ParseDiningPermits reads permit records. Records without a restaurant
// name are skipped; filings older than lookback are skipped when their
// submission time is known.
func ParseDiningPermits(body []byte, region string, now time.Time, lookback time.Duration) []core.OutdoorDiningEvent {
	loc, err := time.LoadLocation(diningZone)
	if err != nil {
		loc = time.UTC
	}
	var out []core.OutdoorDiningEvent
	items(body, "results", "data").ForEach(func(_, r gjson.Result) bool {
		name := strings.TrimSpace(str(r, "restaurant_name", "doing_business_as_dba", "legal_business_name", "name"))
		if name == "" {
			return true
		}
		submitted, known := parseTime(str(r, "time_of_submission", "submitted_at", "created_at"), loc)
		if known && lookback > 0 && submitted.Before(now.Add(-lookback)) {
			return true
		}
		address := str(r, "business_address", "address", "street_address")
		id := str(r, "objectid", "globalid", "id")
		if id == "" {
			id = markdown.Slugify(name + " " + address)
		}
		out = append(out, core.OutdoorDiningEvent{
			ID:               id,
			RestaurantName:   name,
			Address:          address,
			Region:           firstNonEmpty(str(r, "borough"), region),
			SidewalkApproved: yes(r, "approved_for_sidewalk_seating", "sidewalk_approved"),
			RoadwayApproved:  yes(r, "approved_for_roadway_seating", "roadway_approved"),
			SubmittedAt:      submitted,
			SeatingCapacity:  int(num(r, "seating_capacity", "sidewalk_seats", "total_seats")),
		})
		return true
	})
	return out
}

func yes(r gjson.Result, paths ...string) bool {
	for _, p := range paths {
		v := r.Get(p)
		if v.Type == gjson.True {
			return true
		}
		if v.Type == gjson.String && (strings.EqualFold(v.Str, "yes") || strings.EqualFold(v.Str, "true")) {
			return true
		}
	}
	return false
}

func diningCandidate(ev core.OutdoorDiningEvent, hub Hub) Candidate {
	var seating []string
	if ev.SidewalkApproved {
		seating = append(seating, "sidewalk")
	}
	if ev.RoadwayApproved {
		seating = append(seating, "roadway")
	}
	facts := []string{"Restaurant: " + ev.RestaurantName}
	if ev.Address != "" {
		facts = append(facts, "Address: "+ev.Address)
	}
	if len(seating) > 0 {
		facts = append(facts, "Approved seating: "+strings.Join(seating, " and "))
	}
	if ev.SeatingCapacity > 0 {
		facts = append(facts, fmt.Sprintf("Seats: %d", ev.SeatingCapacity))
	}
	return Candidate{
		ID:         "dining:" + ev.ID,
		Kind:       core.TypeAlfrescoAlert,
		HubID:      hub.ID,
		City:       hub.City,
		Title:      ev.RestaurantName + " opens for outdoor dining",
		Subject:    ev.RestaurantName,
		SourceName: "NYC Open Data",
		When:       ev.SubmittedAt,
		Facts:      facts,
		Event:      ev,
	}
}
