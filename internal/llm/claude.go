package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultClaudeMaxTokens = 4096

// ClaudeOptions configures a ClaudeClient
type ClaudeOptions struct {
	APIKey    string
	Timeout   time.Duration
	MaxTokens int
}

// ClaudeClient calls the Anthropic Messages API
type ClaudeClient struct {
	client anthropic.Client
	opts   ClaudeOptions
}

// NewClaudeClient creates a Claude client
func NewClaudeClient(opts ClaudeOptions) (*ClaudeClient, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultClaudeMaxTokens
	}
	return &ClaudeClient{
		client: anthropic.NewClient(option.WithAPIKey(opts.APIKey)),
		opts:   opts,
	}, nil
}

// Generate sends a single-turn message. Structured output is requested
// through the system prompt since the Messages API takes no schema.
func (c *ClaudeClient) Generate(ctx context.Context, req Request) (Response, error) {
	if req.Prompt == "" {
		return Response{}, fmt.Errorf("prompt cannot be empty")
	}
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	maxTokens := int64(c.opts.MaxTokens)
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(req.Temperature))
	}

	system := req.System
	if req.ResponseSchema != nil {
		system = strings.TrimSpace(system + "\n\nRespond with a single JSON object only, no prose or code fences.")
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, classify("claude", err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return Response{}, fmt.Errorf("claude %s: %w", req.Model, ErrEmptyResponse)
	}
	return Response{Text: out.String(), Model: string(resp.Model)}, nil
}
