package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateEnv points HOME at a temp dir and clears variables Load reads.
func isolateEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for name := range legacyEnv {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				name := kv[:i]
				if len(name) > len(EnvPrefix) && name[:len(EnvPrefix)] == EnvPrefix {
					t.Setenv(name, "")
					os.Unsetenv(name)
				}
				break
			}
		}
	}
	return home
}

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	isolateEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 0.4, cfg.Pipeline.ConfidenceThreshold)
	assert.Equal(t, StrategySpeakerTurns, cfg.Pipeline.ChunkStrategy)
	assert.Equal(t, 2, cfg.Pipeline.ChunkSizeMinutes)
	assert.Equal(t, "gpt-4", cfg.LLM.Model)
	assert.Equal(t, 1000, cfg.LLM.MaxTokens)
}

func TestLoad_YAMLFile(t *testing.T) {
	isolateEnv(t)
	path := writeConfig(t, t.TempDir(), `
pipeline:
  confidence_threshold: 0.6
  chunk_strategy: time_based
  chunk_size_minutes: 5
llm:
  provider: ollama
  model: llama3
  call_timeout: 15s
scrub:
  enabled: false
`, 0o600)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.6, cfg.Pipeline.ConfidenceThreshold)
	assert.Equal(t, StrategyTimeBased, cfg.Pipeline.ChunkStrategy)
	assert.Equal(t, 5, cfg.Pipeline.ChunkSizeMinutes)
	assert.Equal(t, ProviderOllama, cfg.LLM.Provider)
	assert.Equal(t, "llama3", cfg.LLM.Model)
	assert.Equal(t, 15*time.Second, cfg.LLM.CallTimeout.Duration())
	assert.False(t, cfg.Scrub.Enabled)
	// untouched keys keep defaults
	assert.Equal(t, 4, cfg.Pipeline.MapConcurrency)
	assert.Equal(t, 0.3, cfg.LLM.Temperature)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	isolateEnv(t)
	path := writeConfig(t, t.TempDir(), "pipeline:\n  confidence_threshold: 0.6\n", 0o600)

	t.Setenv("ACTIOND_PIPELINE_CONFIDENCE_THRESHOLD", "0.75")
	t.Setenv("ACTIOND_LLM_MAX_RETRIES", "5")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.75, cfg.Pipeline.ConfidenceThreshold)
	assert.Equal(t, 5, cfg.LLM.MaxRetries)
}

func TestLoad_LegacyEnv(t *testing.T) {
	isolateEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-legacy")
	t.Setenv("OPENAI_MODEL", "gpt-4o")
	t.Setenv("CONFIDENCE_THRESHOLD", "0.5")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-legacy", cfg.LLM.APIKey.Value())
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 0.5, cfg.Pipeline.ConfidenceThreshold)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
}

func TestLoad_PrefixedEnvBeatsLegacy(t *testing.T) {
	isolateEnv(t)
	t.Setenv("OPENAI_MODEL", "gpt-4o")
	t.Setenv("ACTIOND_LLM_MODEL", "gpt-4.1")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1", cfg.LLM.Model)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	isolateEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_InsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on windows")
	}
	isolateEnv(t)
	path := writeConfig(t, t.TempDir(), "llm:\n  api_key: sk-x\n", 0o644)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoad_InvalidValues(t *testing.T) {
	isolateEnv(t)
	path := writeConfig(t, t.TempDir(), "pipeline:\n  confidence_threshold: 1.5\n", 0o600)

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "confidence_threshold")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"unknown strategy is allowed", func(c *Config) { c.Pipeline.ChunkStrategy = "by_topic" }, ""},
		{"threshold boundary 0", func(c *Config) { c.Pipeline.ConfidenceThreshold = 0 }, ""},
		{"threshold boundary 1", func(c *Config) { c.Pipeline.ConfidenceThreshold = 1 }, ""},
		{"negative threshold", func(c *Config) { c.Pipeline.ConfidenceThreshold = -0.1 }, "confidence_threshold"},
		{"zero minutes", func(c *Config) { c.Pipeline.ChunkSizeMinutes = 0 }, "chunk_size_minutes"},
		{"zero map concurrency", func(c *Config) { c.Pipeline.MapConcurrency = 0 }, "map_concurrency"},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "bard" }, "llm.provider"},
		{"zero timeout", func(c *Config) { c.LLM.CallTimeout = 0 }, "call_timeout"},
		{"burst without rate", func(c *Config) { c.LLM.RateLimit = 0; c.LLM.Burst = 0 }, ""},
		{"rate without burst", func(c *Config) { c.LLM.Burst = 0 }, "llm.burst"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSecret_NeverPrinted(t *testing.T) {
	s := Secret("sk-very-secret")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.NotContains(t, fmt.Sprintf("%#v", s), "sk-very-secret")

	data, err := json.Marshal(struct{ Key Secret }{s})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-very-secret")

	assert.True(t, s.IsSet())
	assert.False(t, Secret("").IsSet())
	assert.Equal(t, "sk-very-secret", s.Value())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration())
	assert.Error(t, d.UnmarshalText([]byte("-1s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
