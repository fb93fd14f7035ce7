package enrich

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"flaneur/internal/core"
	"flaneur/internal/llm"
)

const sampleResponse = "```json\n" + `{
  "enriched_content": "Torrisi reopened on Mulberry Street.",
  "categories": [
    {"name": "Openings", "stories": [
      {"entity": "Torrisi", "source": {"name": "Eater NY", "url": "https://ny.eater.com/torrisi"}, "context": "Reopened"},
      {"entity": "  ", "source": {"name": "Nobody"}}
    ]},
    {"name": "Empty", "stories": []}
  ],
  "subject_teaser": "Torrisi is back",
  "email_teaser": "The Mulberry Street favourite reopens."
}` + "\n```"

func TestModelPolicy(t *testing.T) {
	p := ModelPolicy{Quality: "gemini-2.5-pro", Fast: "gemini-2.5-flash"}
	if p.ForKind(KindBrief) != "gemini-2.5-pro" {
		t.Error("briefs must use the quality model")
	}
	if p.ForKind(KindArticle) != "gemini-2.5-flash" {
		t.Error("articles must use the fast model")
	}
}

func TestEnrichUsesPolicyModelAndParses(t *testing.T) {
	var got llm.Request
	gen := llm.GeneratorFunc(func(_ context.Context, req llm.Request) (llm.Response, error) {
		got = req
		return llm.Response{Text: sampleResponse}, nil
	})
	e := New(gen, ModelPolicy{Quality: "quality", Fast: "fast"})

	res, err := e.Enrich(context.Background(), Input{
		Kind:    KindBrief,
		Locale:  core.Locale{ID: "nyc-tribeca", Name: "Tribeca", City: "New York"},
		Content: "Torrisi is reopening.",
		Continuity: []core.ContinuityItem{
			{Date: time.Date(2024, 5, 30, 0, 0, 0, 0, time.UTC), Headline: "Earlier", Excerpt: "Past", Kind: core.ContinuityBrief},
		},
	})
	if err != nil {
		t.Fatalf("Enrich() error = %v", err)
	}
	if got.Model != "quality" || got.ResponseSchema == nil {
		t.Errorf("unexpected request %+v", got)
	}
	if !strings.Contains(got.Prompt, "Tribeca") || !strings.Contains(got.Prompt, "2024-05-30") {
		t.Errorf("prompt missing locale or continuity:\n%s", got.Prompt)
	}
	if res.Model != "quality" {
		t.Errorf("Model = %q", res.Model)
	}
	if len(res.Categories) != 1 || len(res.Categories[0].Stories) != 1 {
		t.Fatalf("categories not cleaned: %+v", res.Categories)
	}
	if res.SubjectTeaser != "Torrisi is back" {
		t.Errorf("SubjectTeaser = %q", res.SubjectTeaser)
	}

	now := time.Now()
	enr := res.Enrichment(now)
	if !enr.EnrichedAt.Equal(now) || enr.Content != res.Content {
		t.Errorf("Enrichment() = %+v", enr)
	}
}

func TestEnrichPropagatesGenerationError(t *testing.T) {
	quota := errors.New("429 RESOURCE_EXHAUSTED")
	gen := llm.GeneratorFunc(func(context.Context, llm.Request) (llm.Response, error) {
		return llm.Response{}, quota
	})
	_, err := New(gen, ModelPolicy{}).Enrich(context.Background(), Input{Kind: KindArticle, Content: "x"})
	if !errors.Is(err, quota) {
		t.Errorf("expected original error, got %v", err)
	}
}

func TestParseResult(t *testing.T) {
	t.Run("prose around json", func(t *testing.T) {
		res, err := ParseResult(`Here you go: {"enriched_content": "Body", "categories": []} thanks`)
		if err != nil || res.Content != "Body" {
			t.Errorf("ParseResult() = %+v, %v", res, err)
		}
	})

	t.Run("empty content", func(t *testing.T) {
		_, err := ParseResult(`{"enriched_content": "  ", "categories": []}`)
		if !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("expected ErrMalformedResponse, got %v", err)
		}
	})

	t.Run("not json", func(t *testing.T) {
		_, err := ParseResult("I cannot help with that.")
		if !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("expected ErrMalformedResponse, got %v", err)
		}
	})
}
