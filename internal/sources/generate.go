package sources

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"flaneur/internal/core"
	"flaneur/internal/llm"
	"flaneur/internal/markdown"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// ErrMalformedStory is returned when the model reply lacks a headline or
// body.
var ErrMalformedStory = errors.New("malformed story response")

// Angles frame the story prompt per article type.
var Angles = map[core.ArticleType]string{
	core.TypeAuctionCalendar: "an upcoming auction worth putting in the diary",
	core.TypeAlfrescoAlert:   "a restaurant newly approved for outdoor dining",
	core.TypeBrandResidency:  "a luxury brand pop-up or seasonal residency",
	core.TypePropertyWatch:   "a property a reader spotted on the market",
}

const storySystemPrompt = `You write short items for Flâneur, a hyper-local newsletter read by well-travelled locals.
Write in a dry, knowing, concise register. Use only the facts provided; never invent prices, dates or names.
Reply with a JSON object only:
{"headline": string (max 90 chars), "body": string (markdown, 80-160 words), "teaser": string (max 120 chars),
 "link_candidates": [exact names from your body worth linking], "confidence": number 0-1 (how well the facts support a publishable item)}`

// StoryGenerator writes one story per candidate. Calls are spaced by a
// rate limiter so the generation API is never hit in a burst.
type StoryGenerator struct {
	gen       llm.Generator
	model     string
	maxTokens int32
	limiter   *rate.Limiter
}

// NewStoryGenerator creates a StoryGenerator allowing one call per delay.
func NewStoryGenerator(gen llm.Generator, model string, delay time.Duration) *StoryGenerator {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &StoryGenerator{gen: gen, model: model, maxTokens: 2048, limiter: rate.NewLimiter(limit, 1)}
}

// Generate writes the story for c and links its named entities to search
// URLs scoped to city.
func (g *StoryGenerator) Generate(ctx context.Context, c Candidate, city string) (core.Story, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return core.Story{}, err
	}
	resp, err := g.gen.Generate(ctx, llm.Request{
		Model:     g.model,
		System:    storySystemPrompt,
		Prompt:    StoryPrompt(c, city),
		MaxTokens: g.maxTokens,
	})
	if err != nil {
		return core.Story{}, err
	}

	story, err := ParseStory(resp.Text)
	if err != nil {
		return core.Story{}, err
	}
	story.CandidateID = c.ID
	story.Model = firstNonEmpty(resp.Model, g.model)
	story.Body = markdown.InjectHyperlinks(story.Body, markdown.SearchLinks(story.LinkCandidates, city))
	return story, nil
}

// StoryPrompt renders the candidate facts for the model.
func StoryPrompt(c Candidate, city string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write about %s", firstNonEmpty(Angles[c.Kind], "a local event"))
	if city != "" {
		fmt.Fprintf(&b, " in %s", city)
	}
	b.WriteString(".\n")
	switch c.Tier {
	case core.TierMega:
		b.WriteString("This is a marquee event: lead with why it matters.\n")
	case core.TierFeatured:
		b.WriteString("This is a notable event: give it a confident lede.\n")
	}
	fmt.Fprintf(&b, "\nTitle: %s\n", c.Title)
	for _, f := range c.Facts {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	if c.URL != "" {
		fmt.Fprintf(&b, "Source: %s\n", c.URL)
	}
	return b.String()
}

// ParseStory reads the model reply leniently: code fences and text around
// the JSON object are ignored, and missing optional fields default. A
// missing confidence reads as zero.
func ParseStory(text string) (core.Story, error) {
	raw := llm.StripCodeFence(text)
	if !gjson.Valid(raw) {
		start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}")
		if start < 0 || end <= start || !gjson.Valid(raw[start:end+1]) {
			return core.Story{}, fmt.Errorf("%w: not a JSON object", ErrMalformedStory)
		}
		raw = raw[start : end+1]
	}

	doc := gjson.Parse(raw)
	story := core.Story{
		Headline: strings.TrimSpace(doc.Get("headline").String()),
		Body:     strings.TrimSpace(doc.Get("body").String()),
		Teaser:   strings.TrimSpace(doc.Get("teaser").String()),
	}
	if story.Headline == "" || story.Body == "" {
		return core.Story{}, fmt.Errorf("%w: headline and body are required", ErrMalformedStory)
	}
	if v := doc.Get("confidence"); v.Type == gjson.Number {
		story.Confidence = min(max(v.Float(), 0), 1)
	}
	doc.Get("link_candidates").ForEach(func(_, v gjson.Result) bool {
		if s := strings.TrimSpace(v.String()); s != "" {
			story.LinkCandidates = append(story.LinkCandidates, s)
		}
		return true
	})
	if story.Teaser == "" {
		story.Teaser = markdown.TruncateToSentence(markdown.StripMarkup(story.Body), 120)
	}
	return story, nil
}
