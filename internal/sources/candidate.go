// Package sources implements the domain event pipelines: auction calendars,
// alfresco dining alerts, brand residencies and reader property sightings.
// Each fetches loosely-typed third-party data, filters and tiers it,
// generates one story per survivor and distributes it to spoke locales.
package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"flaneur/internal/core"
)

// maxBodyBytes caps a third-party response.
const maxBodyBytes = 5 << 20

// Candidate is one validated event, normalised for the shared
// filter/tier/generate/distribute steps. Event holds the typed record.
type Candidate struct {
	ID         string
	Kind       core.ArticleType
	HubID      string
	City       string
	Title      string
	Subject    string
	Summary    string
	URL        string
	SourceName string
	When       time.Time
	Facts      []string
	Tier       core.Tier
	Targets    []string
	Event      any
}

// Fetcher pulls candidates for one hub. Records missing required fields
// are dropped, never returned half-filled.
type Fetcher interface {
	Fetch(ctx context.Context, hub Hub) ([]Candidate, error)
}

// Settler is implemented by fetchers whose records must be marked once
// a candidate has been handled.
type Settler interface {
	Settle(ctx context.Context, c Candidate, out Outcome) error
}

// Outcome is what happened to a generated candidate.
type Outcome struct {
	Published  bool
	Confidence float64
	ArticleID  string
}

// HTTPOptions configure the HTTP fetchers.
type HTTPOptions struct {
	Client    *http.Client
	UserAgent string
	Timeout   time.Duration
}

func (o HTTPOptions) client() *http.Client {
	if o.Client != nil {
		return o.Client
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// get fetches url and returns the body of a 200 response.
func get(ctx context.Context, client *http.Client, url, userAgent, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("%s returned status %d: %s", url, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// parseTime accepts the timestamp shapes seen in listing feeds.
func parseTime(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.000", "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02", "01/02/2006"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
