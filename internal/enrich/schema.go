package enrich

import "google.golang.org/genai"

func sourceSchema(description string) *genai.Schema {
	return &genai.Schema{
		Type:        genai.TypeObject,
		Description: description,
		Properties: map[string]*genai.Schema{
			"name": {Type: genai.TypeString, Description: "Publication, platform or account name"},
			"url":  {Type: genai.TypeString, Description: "Direct URL to the source, empty if unknown"},
		},
		Required: []string{"name"},
	}
}

// ResponseSchema is the structured-output schema for one enrichment call.
func ResponseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"enriched_content": {
				Type:        genai.TypeString,
				Description: "The rewritten content in markdown with verified details woven in",
			},
			"categories": {
				Type:        genai.TypeArray,
				Description: "Stories grouped under short category headings",
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"name": {Type: genai.TypeString},
						"stories": {
							Type: genai.TypeArray,
							Items: &genai.Schema{
								Type: genai.TypeObject,
								Properties: map[string]*genai.Schema{
									"entity":           {Type: genai.TypeString, Description: "Venue, business, person or event name"},
									"source":           sourceSchema("Primary source for the story"),
									"secondary_source": sourceSchema("Optional corroborating source"),
									"context":          {Type: genai.TypeString, Description: "One sentence of context"},
								},
								Required: []string{"entity"},
							},
						},
					},
					Required: []string{"name", "stories"},
				},
			},
			"subject_teaser": {
				Type:        genai.TypeString,
				Description: "Email subject teaser, at most 60 characters",
			},
			"email_teaser": {
				Type:        genai.TypeString,
				Description: "One-sentence email preview, at most 120 characters",
			},
		},
		Required: []string{"enriched_content", "categories"},
	}
}
