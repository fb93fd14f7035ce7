// Package enrich turns raw generated content into verified, categorized
// copy through one generation call per item.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"flaneur/internal/core"
	"flaneur/internal/llm"
)

// Kind is the work-item kind being enriched.
type Kind string

const (
	KindBrief   Kind = "brief"
	KindArticle Kind = "article"
)

// ModelPolicy fixes which model serves each kind. Briefs always get the
// quality model.
type ModelPolicy struct {
	Quality string
	Fast    string
}

// ForKind returns the model for kind.
func (p ModelPolicy) ForKind(k Kind) string {
	if k == KindBrief {
		return p.Quality
	}
	return p.Fast
}

// Input is everything one enrichment call needs.
type Input struct {
	Kind       Kind
	Locale     core.Locale
	Headline   string
	Content    string
	TypeHint   core.ArticleType
	Continuity []core.ContinuityItem
}

// Result is the parsed model output.
type Result struct {
	Content       string          `json:"enriched_content"`
	Categories    []core.Category `json:"categories"`
	SubjectTeaser string          `json:"subject_teaser"`
	EmailTeaser   string          `json:"email_teaser"`
	Model         string          `json:"-"`
}

// Enrichment converts r into the stored form, stamped at now.
func (r Result) Enrichment(now time.Time) core.Enrichment {
	return core.Enrichment{
		Content:       r.Content,
		Categories:    r.Categories,
		Model:         r.Model,
		EnrichedAt:    now,
		SubjectTeaser: r.SubjectTeaser,
		EmailTeaser:   r.EmailTeaser,
	}
}

// ErrMalformedResponse is returned when the model output cannot be parsed
// into a usable Result.
var ErrMalformedResponse = errors.New("malformed enrichment response")

// Enricher calls the generation service for one item at a time.
type Enricher struct {
	gen    llm.Generator
	policy ModelPolicy
}

// New creates an Enricher.
func New(gen llm.Generator, policy ModelPolicy) *Enricher {
	return &Enricher{gen: gen, policy: policy}
}

// Policy returns the model policy in use.
func (e *Enricher) Policy() ModelPolicy { return e.policy }

// Enrich runs one generation call. Errors, including quota errors, are
// returned unchanged for the caller to classify.
func (e *Enricher) Enrich(ctx context.Context, in Input) (Result, error) {
	model := e.policy.ForKind(in.Kind)
	resp, err := e.gen.Generate(ctx, llm.Request{
		Model:          model,
		System:         systemPrompt,
		Prompt:         BuildPrompt(in),
		ResponseSchema: ResponseSchema(),
	})
	if err != nil {
		return Result{}, err
	}

	res, err := ParseResult(resp.Text)
	if err != nil {
		return Result{}, err
	}
	res.Model = resp.Model
	if res.Model == "" {
		res.Model = model
	}
	return res, nil
}

// ParseResult decodes model output, tolerating code fences and prose
// around the JSON object.
func ParseResult(text string) (Result, error) {
	body := llm.StripCodeFence(text)
	var res Result
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		start, end := strings.IndexByte(body, '{'), strings.LastIndexByte(body, '}')
		if start < 0 || end <= start {
			return Result{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		if err := json.Unmarshal([]byte(body[start:end+1]), &res); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	}

	res.Content = strings.TrimSpace(res.Content)
	if res.Content == "" {
		return Result{}, fmt.Errorf("%w: empty enriched_content", ErrMalformedResponse)
	}
	res.Categories = cleanCategories(res.Categories)
	return res, nil
}

// cleanCategories drops empty categories and stories without an entity.
func cleanCategories(cats []core.Category) []core.Category {
	out := cats[:0]
	for _, c := range cats {
		stories := c.Stories[:0]
		for _, s := range c.Stories {
			s.Entity = strings.TrimSpace(s.Entity)
			if s.Entity == "" {
				continue
			}
			if s.Source != nil && strings.TrimSpace(s.Source.Name) == "" && strings.TrimSpace(s.Source.URL) == "" {
				s.Source = nil
			}
			if s.SecondarySource != nil && strings.TrimSpace(s.SecondarySource.Name) == "" && strings.TrimSpace(s.SecondarySource.URL) == "" {
				s.SecondarySource = nil
			}
			stories = append(stories, s)
		}
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" || len(stories) == 0 {
			continue
		}
		c.Stories = stories
		out = append(out, c)
	}
	return out
}
