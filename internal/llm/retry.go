package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"flaneur/internal/logger"
)

// RetryPolicy is the explicit backoff schedule owned by the generation
// adapter. Quota errors are never retried.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 2, InitialBackoff: 2 * time.Second, MaxBackoff: 8 * time.Second, Multiplier: 2}
}

// Delay returns the wait before retry number attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 || p.InitialBackoff <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.InitialBackoff)
	for i := 1; i < attempt; i++ {
		d *= mult
	}
	backoff := time.Duration(d)
	if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
		backoff = p.MaxBackoff
	}
	return backoff
}

// MaxDuration is the total backoff the policy can add to one call. Runs
// reserve it when admitting a batch.
func (p RetryPolicy) MaxDuration() time.Duration {
	var total time.Duration
	for i := 1; i < p.MaxAttempts; i++ {
		total += p.Delay(i)
	}
	return total
}

var transientMarkers = []string{
	"500", "502", "503", "504", "unavailable", "overloaded", "deadline exceeded",
	"timeout", "connection reset", "eof", "internal error",
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil || IsQuotaError(err) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrEmptyResponse) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// Retrying wraps a Generator with a RetryPolicy.
type Retrying struct {
	next   Generator
	policy RetryPolicy
	sleep  func(ctx context.Context, d time.Duration) error
}

// WithRetry returns a Generator that retries transient failures of next.
func WithRetry(next Generator, policy RetryPolicy) *Retrying {
	return &Retrying{next: next, policy: policy, sleep: sleepContext}
}

func (r *Retrying) Generate(ctx context.Context, req Request) (Response, error) {
	attempts := r.policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := r.next.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if IsQuotaError(err) {
			return Response{}, err
		}
		if !IsTransient(err) || attempt == attempts {
			break
		}

		delay := r.policy.Delay(attempt)
		logger.Warn("Generation failed, retrying", "model", req.Model, "attempt", attempt, "delay", delay, "error", err)
		if err := r.sleep(ctx, delay); err != nil {
			return Response{}, err
		}
	}
	return Response{}, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
