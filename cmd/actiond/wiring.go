package main

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/actiond/internal/config"
	"github.com/fyrsmithlabs/actiond/internal/llm"
	"github.com/fyrsmithlabs/actiond/internal/logging"
	"github.com/fyrsmithlabs/actiond/internal/pipeline"
	"github.com/fyrsmithlabs/actiond/internal/prompts"
	"github.com/fyrsmithlabs/actiond/internal/secrets"
	"github.com/fyrsmithlabs/actiond/internal/telemetry"
	"go.uber.org/zap"
)

// deps holds the components built for one command invocation.
type deps struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	pipeline  *pipeline.Pipeline
}

// Close flushes logs and telemetry.
func (d *deps) Close(ctx context.Context) {
	if d.telemetry != nil {
		if err := d.telemetry.Shutdown(ctx); err != nil {
			d.logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
		}
	}
	_ = d.logger.Sync()
}

// setup loads configuration, applies overrides and wires the pipeline.
// override may be nil.
func (a *app) setup(ctx context.Context, override func(*config.Config)) (*deps, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Logging.Format = a.logFormat
	}
	if override != nil {
		override(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Observability, version))
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}
	for _, degraded := range tel.Degraded {
		logger.Warn(ctx, "telemetry degraded", zap.Error(degraded))
	}

	d := &deps{cfg: cfg, logger: logger, telemetry: tel}

	var redactor llm.Redactor
	if cfg.Scrub.Enabled {
		r, err := secrets.NewRedactor()
		if err != nil {
			d.Close(ctx)
			return nil, err
		}
		redactor = r
	}

	clients, err := a.newClients(cfg.LLM, redactor)
	if err != nil {
		d.Close(ctx)
		return nil, fmt.Errorf("initializing %s client: %w", cfg.LLM.Provider, err)
	}

	templates, err := prompts.Load(cfg.Prompts.Path)
	if err != nil {
		d.Close(ctx)
		return nil, err
	}

	stages := pipeline.BuildStages(cfg.Pipeline, clients, templates, logger)
	d.pipeline = pipeline.New(stages, logger, pipeline.DefaultMetrics())
	d.pipeline.OnProgress(func(p pipeline.Progress) {
		logger.Debug(ctx, "stage finished",
			zap.String("run.id", p.RunID),
			zap.String("stage", p.Stage),
			zap.Int("items", p.Items),
			zap.Duration("duration", p.Duration),
		)
	})

	logger.Debug(ctx, "actiond configured",
		zap.String("provider", cfg.LLM.Provider),
		zap.String("model", cfg.LLM.Model),
		logging.Secret("api_key", cfg.LLM.APIKey),
		zap.Float64("confidence_threshold", cfg.Pipeline.ConfidenceThreshold),
		zap.String("chunk_strategy", cfg.Pipeline.ChunkStrategy),
		zap.Bool("scrub", cfg.Scrub.Enabled),
	)
	return d, nil
}

func initLogger(c config.LoggingConfig) (*logging.Logger, error) {
	level, err := logging.LevelFromString(c.Level)
	if err != nil {
		return nil, err
	}
	logCfg := logging.NewDefaultConfig()
	logCfg.Level = level
	if c.Format != "" {
		logCfg.Format = c.Format
	}
	logger, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	return logger, nil
}
