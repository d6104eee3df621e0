// Package config provides configuration loading for actiond.
//
// Configuration is assembled from hardcoded defaults, an optional YAML
// file, and environment variables, in increasing order of precedence.
// The resulting Config is passed explicitly to every component; nothing
// reads configuration from process state after Load returns.
package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Chunk strategy names.
const (
	StrategySpeakerTurns = "speaker_turns"
	StrategyTimeBased    = "time_based"
)

// Supported text generation providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// Config holds the complete actiond configuration.
type Config struct {
	Pipeline      PipelineConfig      `koanf:"pipeline"`
	LLM           LLMConfig           `koanf:"llm"`
	Prompts       PromptsConfig       `koanf:"prompts"`
	Scrub         ScrubConfig         `koanf:"scrub"`
	Server        ServerConfig        `koanf:"server"`
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// PipelineConfig controls chunking, fan-out and acceptance.
type PipelineConfig struct {
	ConfidenceThreshold float64 `koanf:"confidence_threshold"`
	ChunkStrategy       string  `koanf:"chunk_strategy"`
	ChunkSizeMinutes    int     `koanf:"chunk_size_minutes"`
	MapConcurrency      int     `koanf:"map_concurrency"`
	ScoreConcurrency    int     `koanf:"score_concurrency"`
}

// LLMConfig configures the text generation service.
type LLMConfig struct {
	Provider    string   `koanf:"provider"`
	Model       string   `koanf:"model"`
	APIKey      Secret   `koanf:"api_key"`
	BaseURL     string   `koanf:"base_url"`
	Temperature float64  `koanf:"temperature"`
	MaxTokens   int      `koanf:"max_tokens"`
	CallTimeout Duration `koanf:"call_timeout"`
	MaxRetries  int      `koanf:"max_retries"`
	RateLimit   float64  `koanf:"rate_limit"` // requests per second, 0 disables
	Burst       int      `koanf:"burst"`
}

// PromptsConfig points at an optional prompt template override file.
type PromptsConfig struct {
	Path string `koanf:"path"`
}

// ScrubConfig controls secret redaction of outgoing prompts.
type ScrubConfig struct {
	Enabled bool `koanf:"enabled"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig selects log level and encoding.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ObservabilityConfig holds OpenTelemetry export settings.
type ObservabilityConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"`
	Insecure    bool    `koanf:"insecure"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			ConfidenceThreshold: 0.4,
			ChunkStrategy:       StrategySpeakerTurns,
			ChunkSizeMinutes:    2,
			MapConcurrency:      4,
			ScoreConcurrency:    4,
		},
		LLM: LLMConfig{
			Provider:    ProviderOpenAI,
			Model:       "gpt-4",
			Temperature: 0.3,
			MaxTokens:   1000,
			CallTimeout: Duration(60 * time.Second),
			MaxRetries:  2,
			RateLimit:   50.0 / 60.0,
			Burst:       5,
		},
		Scrub: ScrubConfig{Enabled: true},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            9191,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Observability: ObservabilityConfig{
			Endpoint:    "localhost:4317",
			Protocol:    "grpc",
			Insecure:    true,
			ServiceName: "actiond",
			SampleRate:  1.0,
		},
	}
}

// Validate checks the configuration for values the pipeline cannot use.
//
// Unknown chunk strategies are accepted here; the chunker falls back to
// speaker turns and logs a warning.
func (c *Config) Validate() error {
	var errs []error
	p := c.Pipeline
	if p.ConfidenceThreshold < 0 || p.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("pipeline.confidence_threshold must be within [0,1], got %v", p.ConfidenceThreshold))
	}
	if p.ChunkSizeMinutes < 1 {
		errs = append(errs, fmt.Errorf("pipeline.chunk_size_minutes must be >= 1, got %d", p.ChunkSizeMinutes))
	}
	if p.MapConcurrency < 1 {
		errs = append(errs, fmt.Errorf("pipeline.map_concurrency must be >= 1, got %d", p.MapConcurrency))
	}
	if p.ScoreConcurrency < 1 {
		errs = append(errs, fmt.Errorf("pipeline.score_concurrency must be >= 1, got %d", p.ScoreConcurrency))
	}

	l := c.LLM
	switch l.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderOllama:
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q is not supported", l.Provider))
	}
	if l.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}
	if l.Temperature < 0 || l.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature must be within [0,2], got %v", l.Temperature))
	}
	if l.MaxTokens < 1 {
		errs = append(errs, fmt.Errorf("llm.max_tokens must be >= 1, got %d", l.MaxTokens))
	}
	if l.CallTimeout.Duration() <= 0 {
		errs = append(errs, errors.New("llm.call_timeout must be positive"))
	}
	if l.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("llm.max_retries must be >= 0, got %d", l.MaxRetries))
	}
	if l.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("llm.rate_limit must be >= 0, got %v", l.RateLimit))
	}
	if l.RateLimit > 0 && l.Burst < 1 {
		errs = append(errs, fmt.Errorf("llm.burst must be >= 1 when rate limiting, got %d", l.Burst))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port))
	}

	if c.Observability.Enabled {
		if c.Observability.Endpoint == "" {
			errs = append(errs, errors.New("observability.endpoint is required when enabled"))
		}
		if c.Observability.SampleRate < 0 || c.Observability.SampleRate > 1 {
			errs = append(errs, fmt.Errorf("observability.sample_rate must be within [0,1], got %v", c.Observability.SampleRate))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
