package enrich

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are the local editor for a hyper-local neighborhood newsletter.
You verify and enrich draft copy. Keep every claim grounded in a named source,
never invent venues or events, and write in a warm, knowledgeable register.`

// BuildPrompt renders the user prompt for in.
func BuildPrompt(in Input) string {
	var b strings.Builder

	loc := in.Locale
	fmt.Fprintf(&b, "NEIGHBORHOOD: %s, %s", loc.Name, loc.City)
	if loc.Country != "" {
		fmt.Fprintf(&b, ", %s", loc.Country)
	}
	b.WriteString("\n")
	if in.TypeHint != "" {
		fmt.Fprintf(&b, "CONTENT TYPE: %s\n", in.TypeHint)
	}

	if len(in.Continuity) > 0 {
		b.WriteString("\nRECENT COVERAGE (avoid repeating, reference when relevant):\n")
		for _, item := range in.Continuity {
			fmt.Fprintf(&b, "- [%s %s] %s: %s\n", item.Date.Format("2006-01-02"), item.Kind, item.Headline, item.Excerpt)
		}
	}

	if in.Headline != "" {
		fmt.Fprintf(&b, "\nHEADLINE: %s\n", in.Headline)
	}
	b.WriteString("\nDRAFT:\n")
	b.WriteString(in.Content)
	b.WriteString("\n\nTASKS:\n")
	b.WriteString("1. Rewrite the draft as enriched_content in markdown, adding verified specifics.\n")
	b.WriteString("2. Group every venue, business or event into categories with a primary source and, when available, a secondary source.\n")
	if in.Kind == KindBrief {
		b.WriteString("3. Write a subject_teaser (max 60 chars) and an email_teaser (max 120 chars).\n")
	}
	return b.String()
}
