// Package llm wraps the generation services behind a single Generator
// contract with model routing and a retry policy.
package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"google.golang.org/genai"
)

// Request is one generation call.
type Request struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int32
	Temperature float32
	// ResponseSchema requests structured JSON output. Providers without
	// schema support fall back to instructing JSON in the system prompt.
	ResponseSchema *genai.Schema
}

// Response is the raw text returned by the model that served the request.
type Response struct {
	Text  string
	Model string
}

// Generator produces text for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request) (Response, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

var (
	// ErrQuotaExhausted marks a rate-limit or quota rejection. It ends the
	// current phase of a run rather than being retried.
	ErrQuotaExhausted = errors.New("generation quota exhausted")

	// ErrEmptyResponse is returned when the model produced no text.
	ErrEmptyResponse = errors.New("empty response from model")
)

// quotaPattern matches provider quota and rate-limit text. Status codes are
// anchored so IDs that happen to contain the digits do not match.
var quotaPattern = regexp.MustCompile(`(?i)(\b429\b|resource[_ ]exhausted|quota[_ ]exceeded|exceeded (your )?(current )?quota|rate[_ ]limit|too many requests)`)

// IsQuotaError reports whether err signals quota exhaustion, either as a
// wrapped ErrQuotaExhausted or by the provider's error text.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrQuotaExhausted) {
		return true
	}
	return quotaPattern.MatchString(err.Error())
}

// classify wraps provider errors so callers can match on ErrQuotaExhausted.
func classify(provider string, err error) error {
	if IsQuotaError(err) && !errors.Is(err, ErrQuotaExhausted) {
		return fmt.Errorf("%s: %w: %v", provider, ErrQuotaExhausted, err)
	}
	return fmt.Errorf("%s: %w", provider, err)
}

// Router sends a request to the Claude client when the model name starts
// with "claude" and to the Gemini client otherwise.
type Router struct {
	Gemini Generator
	Claude Generator
}

func (r *Router) Generate(ctx context.Context, req Request) (Response, error) {
	if strings.HasPrefix(strings.ToLower(req.Model), "claude") {
		if r.Claude == nil {
			return Response{}, fmt.Errorf("no Claude client configured for model %s", req.Model)
		}
		return r.Claude.Generate(ctx, req)
	}
	if r.Gemini == nil {
		return Response{}, fmt.Errorf("no Gemini client configured for model %s", req.Model)
	}
	return r.Gemini.Generate(ctx, req)
}

// StripCodeFence removes a surrounding ```json fence from model output.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
