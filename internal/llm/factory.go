package llm

import (
	"math"
	"time"

	"github.com/fyrsmithlabs/actiond/internal/config"
	"golang.org/x/time/rate"
)

const (
	defaultBaseBackoff = 1 * time.Second
	scoringTemperature = 0.1
)

// StageClients holds one decorated client per pipeline stage. The three
// share a model and rate limiter and differ in temperature.
type StageClients struct {
	Map    Client
	Reduce Client
	Score  Client
}

// NewStageClients builds provider clients from cfg and decorates them.
// redactor may be nil to disable prompt scrubbing.
func NewStageClients(cfg config.LLMConfig, redactor Redactor) (*StageClients, error) {
	base, err := New(Settings{
		Provider:    cfg.Provider,
		Model:       cfg.Model,
		APIKey:      cfg.APIKey.Value(),
		BaseURL:     cfg.BaseURL,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	return Decorate(cfg, redactor,
		base,
		base.WithTemperature(math.Max(0, math.Round((cfg.Temperature-0.1)*100)/100)),
		base.WithTemperature(scoringTemperature),
	), nil
}

// Decorate wraps the per-stage clients with the configured middleware.
func Decorate(cfg config.LLMConfig, redactor Redactor, mapClient, reduceClient, scoreClient Client) *StageClients {
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst)
	}

	wrap := func(c Client, stage string) Client {
		mws := []Middleware{WithInstrumentation(stage)}
		if redactor != nil {
			mws = append(mws, WithScrubber(redactor))
		}
		mws = append(mws,
			WithRetry(cfg.MaxRetries, defaultBaseBackoff),
			WithRateLimit(limiter),
			WithTimeout(cfg.CallTimeout.Duration()),
		)
		return Chain(c, mws...)
	}

	return &StageClients{
		Map:    wrap(mapClient, "map"),
		Reduce: wrap(reduceClient, "reduce"),
		Score:  wrap(scoreClient, "confidence"),
	}
}
