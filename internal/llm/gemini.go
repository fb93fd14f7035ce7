package llm

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// GeminiOptions configures a GeminiClient
type GeminiOptions struct {
	APIKey      string
	Timeout     time.Duration
	MaxTokens   int32
	Temperature float32
}

// GeminiClient calls the Gemini API
type GeminiClient struct {
	client *genai.Client
	opts   GeminiOptions
}

// NewGeminiClient creates a Gemini client for the public Gemini API backend
func NewGeminiClient(ctx context.Context, opts GeminiOptions) (*GeminiClient, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiClient{client: client, opts: opts}, nil
}

// Generate runs a single GenerateContent call
func (g *GeminiClient) Generate(ctx context.Context, req Request) (Response, error) {
	if req.Prompt == "" {
		return Response{}, fmt.Errorf("prompt cannot be empty")
	}
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: req.Prompt}},
		Role:  "user",
	}}

	config := &genai.GenerateContentConfig{}
	if maxTokens := firstNonZero(req.MaxTokens, g.opts.MaxTokens); maxTokens > 0 {
		config.MaxOutputTokens = maxTokens
	}
	if temp := firstNonZero(req.Temperature, g.opts.Temperature); temp > 0 {
		config.Temperature = &temp
	}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.ResponseSchema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = req.ResponseSchema
	}

	resp, err := g.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return Response{}, classify("gemini", err)
	}

	text := resp.Text()
	if text == "" {
		return Response{}, fmt.Errorf("gemini %s: %w", req.Model, ErrEmptyResponse)
	}
	return Response{Text: text, Model: req.Model}, nil
}

func firstNonZero[T int32 | float32](vals ...T) T {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}
