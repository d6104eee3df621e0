// Package llm adapts text generation services to a single-prompt,
// single-response contract.
//
// The pipeline treats the service as a black box: a prompt goes in, free
// text comes out, and no state is carried between calls. Provider clients
// are built on langchaingo; cross-cutting behavior (timeouts, retries, rate
// limiting, secret redaction, tracing) is layered on with Middleware:
//
//	base, _ := llm.New(llm.Settings{Provider: "openai", Model: "gpt-4"})
//	client := llm.Chain(base,
//	    llm.WithScrubber(redactor),
//	    llm.WithRateLimit(limiter),
//	    llm.WithRetry(2, time.Second),
//	    llm.WithTimeout(60*time.Second),
//	    llm.WithInstrumentation("map"),
//	)
package llm

import (
	"context"
	"errors"
)

var (
	// ErrUnreachable marks calls that could not complete: transport
	// failures, provider errors and timeouts.
	ErrUnreachable = errors.New("text generation service unreachable")

	// ErrEmptyPrompt is returned for blank prompts without calling out.
	ErrEmptyPrompt = errors.New("empty prompt")
)

// Client sends one prompt and returns the generated text.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, prompt string) (string, error)

// Complete calls f.
func (f ClientFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Middleware decorates a Client.
type Middleware func(Client) Client

// Chain applies middleware so that the first listed is outermost.
func Chain(c Client, mws ...Middleware) Client {
	for i := len(mws) - 1; i >= 0; i-- {
		c = mws[i](c)
	}
	return c
}

// IsUnreachable reports whether err marks a call that never completed.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable)
}
