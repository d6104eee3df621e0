package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Settings selects and parameterizes a provider.
type Settings struct {
	Provider    string
	Model       string
	APIKey      string `json:"-"`
	BaseURL     string
	Temperature float64
	MaxTokens   int
}

// LangChainClient implements Client on top of a langchaingo model.
type LangChainClient struct {
	model       llms.Model
	name        string
	temperature float64
	maxTokens   int
}

// New builds a client for settings.Provider ("openai", "anthropic" or
// "ollama"). An empty API key lets the provider fall back to its usual
// environment variable.
func New(s Settings) (*LangChainClient, error) {
	var (
		model llms.Model
		err   error
	)

	switch strings.ToLower(s.Provider) {
	case "", "openai":
		opts := []openai.Option{openai.WithModel(s.Model)}
		if s.APIKey != "" {
			opts = append(opts, openai.WithToken(s.APIKey))
		}
		if s.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(s.BaseURL))
		}
		model, err = openai.New(opts...)
	case "anthropic":
		opts := []anthropic.Option{anthropic.WithModel(s.Model)}
		if s.APIKey != "" {
			opts = append(opts, anthropic.WithToken(s.APIKey))
		}
		if s.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(s.BaseURL))
		}
		model, err = anthropic.New(opts...)
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(s.Model)}
		if s.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(s.BaseURL))
		}
		model, err = ollama.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q", s.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s client: %w", s.Provider, err)
	}

	return &LangChainClient{
		model:       model,
		name:        s.Provider + "/" + s.Model,
		temperature: s.Temperature,
		maxTokens:   s.MaxTokens,
	}, nil
}

// WithTemperature returns a client sharing the same model at another
// temperature.
func (c *LangChainClient) WithTemperature(t float64) *LangChainClient {
	out := *c
	out.temperature = t
	return &out
}

// Name identifies provider and model, e.g. "openai/gpt-4".
func (c *LangChainClient) Name() string { return c.name }

// Complete sends prompt as a single human message.
func (c *LangChainClient) Complete(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	opts := []llms.CallOption{llms.WithTemperature(c.temperature)}
	if c.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.maxTokens))
	}

	out, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrUnreachable, c.name, err)
	}
	return out, nil
}
