package pipeline

import (
	"github.com/fyrsmithlabs/actiond/internal/chunker"
	"github.com/fyrsmithlabs/actiond/internal/config"
	"github.com/fyrsmithlabs/actiond/internal/consolidation"
	"github.com/fyrsmithlabs/actiond/internal/extraction"
	"github.com/fyrsmithlabs/actiond/internal/llm"
	"github.com/fyrsmithlabs/actiond/internal/logging"
	"github.com/fyrsmithlabs/actiond/internal/prompts"
	"github.com/fyrsmithlabs/actiond/internal/scoring"
	"github.com/fyrsmithlabs/actiond/internal/validation"
)

// BuildStages wires the default stage implementations from cfg.
func BuildStages(cfg config.PipelineConfig, clients *llm.StageClients, templates *prompts.Templates, logger *logging.Logger) Stages {
	if logger == nil {
		logger = logging.NewNop()
	}
	return Stages{
		Chunker: chunker.New(cfg.ChunkStrategy, cfg.ChunkSizeMinutes, logger.Named("chunker")),
		Extractor: extraction.New(clients.Map, templates,
			extraction.Config{Concurrency: cfg.MapConcurrency}, logger.Named("map")),
		Consolidator: consolidation.New(clients.Reduce, templates, logger.Named("reduce")),
		Scorer: scoring.New(clients.Score, templates,
			scoring.Config{Concurrency: cfg.ScoreConcurrency}, logger.Named("confidence")),
		Validator: validation.New(cfg.ConfidenceThreshold, logger.Named("validation")),
	}
}
