package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/actiond/internal/logging"
	"github.com/fyrsmithlabs/actiond/internal/secrets"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// WithTimeout bounds each call. A call that runs out its own deadline is
// reported as unreachable.
func WithTimeout(d time.Duration) Middleware {
	return func(next Client) Client {
		if d <= 0 {
			return next
		}
		return ClientFunc(func(ctx context.Context, prompt string) (string, error) {
			callCtx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			out, err := next.Complete(callCtx, prompt)
			if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !IsUnreachable(err) {
				return "", fmt.Errorf("%w: call timed out after %s: %w", ErrUnreachable, d, err)
			}
			return out, err
		})
	}
}

// WithRetry retries failed calls with exponential backoff starting at base.
// Empty prompts and cancellation of the caller's context are not retried.
func WithRetry(maxRetries int, base time.Duration) Middleware {
	return func(next Client) Client {
		if maxRetries <= 0 {
			return next
		}
		return ClientFunc(func(ctx context.Context, prompt string) (string, error) {
			var lastErr error
			for attempt := 0; attempt <= maxRetries; attempt++ {
				if attempt > 0 {
					backoff := base * time.Duration(1<<(attempt-1))
					select {
					case <-time.After(backoff):
					case <-ctx.Done():
						return "", ctx.Err()
					}
				}

				out, err := next.Complete(ctx, prompt)
				if err == nil {
					return out, nil
				}
				lastErr = err
				if errors.Is(err, ErrEmptyPrompt) || ctx.Err() != nil {
					return "", err
				}
				logging.FromContext(ctx).Debug(ctx, "text generation call failed, retrying",
					zap.Int("attempt", attempt+1),
					zap.Int("max_retries", maxRetries),
					zap.Error(err),
				)
			}
			return "", fmt.Errorf("max retries exceeded: %w", lastErr)
		})
	}
}

// WithRateLimit waits on limiter before each call.
func WithRateLimit(limiter *rate.Limiter) Middleware {
	return func(next Client) Client {
		if limiter == nil {
			return next
		}
		return ClientFunc(func(ctx context.Context, prompt string) (string, error) {
			if err := limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("rate limiter error: %w", err)
			}
			return next.Complete(ctx, prompt)
		})
	}
}

// Redactor removes secrets from text.
type Redactor interface {
	Redact(content string) secrets.Result
}

// WithScrubber redacts secrets from every prompt before it is sent.
func WithScrubber(r Redactor) Middleware {
	return func(next Client) Client {
		if r == nil {
			return next
		}
		return ClientFunc(func(ctx context.Context, prompt string) (string, error) {
			res := r.Redact(prompt)
			if n := len(res.Findings); n > 0 {
				rules := make([]string, 0, n)
				for _, f := range res.Findings {
					rules = append(rules, f.RuleID)
				}
				logging.FromContext(ctx).Warn(ctx, "redacted secrets from prompt",
					zap.Int("count", n),
					zap.Strings("rules", rules),
				)
			}
			return next.Complete(ctx, res.Content)
		})
	}
}
