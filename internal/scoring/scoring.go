// Package scoring asks the text generation service how confident it is
// that each item is a genuine, actionable task.
package scoring

import (
	"context"

	"github.com/fyrsmithlabs/actiond/internal/actionitem"
	"github.com/fyrsmithlabs/actiond/internal/llm"
	"github.com/fyrsmithlabs/actiond/internal/logging"
	"github.com/fyrsmithlabs/actiond/internal/prompts"
	"github.com/fyrsmithlabs/actiond/internal/structured"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 4

// Config controls batch scoring.
type Config struct {
	// Concurrency bounds in-flight calls in ScoreBatch.
	Concurrency int
}

// Scorer runs the confidence phase.
type Scorer struct {
	client      llm.Client
	templates   *prompts.Templates
	concurrency int
	logger      *logging.Logger
}

// New creates a Scorer. Nil templates and logger take defaults.
func New(client llm.Client, templates *prompts.Templates, cfg Config, logger *logging.Logger) *Scorer {
	if templates == nil {
		templates = prompts.Default()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = defaultConcurrency
	}
	return &Scorer{
		client:      client,
		templates:   templates,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Score returns the service's confidence for item, clamped to [0,1]. Any
// failure returns the item's current confidence.
func (s *Scorer) Score(ctx context.Context, item actionitem.ActionItem) float64 {
	score, _ := s.score(ctx, item)
	return score
}

func (s *Scorer) score(ctx context.Context, item actionitem.ActionItem) (float64, bool) {
	prompt, err := s.templates.Confidence(item)
	if err != nil {
		s.logger.Error(ctx, "failed to render confidence prompt", zap.Error(err))
		return item.Confidence, false
	}

	response, err := s.client.Complete(ctx, prompt)
	if err != nil {
		s.logger.Warn(ctx, "confidence call failed, keeping existing score",
			zap.String("task", item.Task),
			zap.Error(err),
		)
		return item.Confidence, false
	}

	n := structured.Number(response)
	if !n.OK() {
		s.logger.Warn(ctx, "failed to parse confidence score",
			zap.String("task", item.Task),
			zap.Stringer("kind", n.Kind),
			zap.String("reason", n.Reason),
		)
		return item.Confidence, false
	}
	return Clamp(n.Value), true
}

// ScoreBatch scores every item with bounded concurrency and returns new
// items in input order. The input slice is not modified.
func (s *Scorer) ScoreBatch(ctx context.Context, items []actionitem.ActionItem) []actionitem.ActionItem {
	out := make([]actionitem.ActionItem, len(items))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, item := range items {
		g.Go(func() error {
			if score, ok := s.score(ctx, item); ok {
				out[i] = item.WithConfidence(score, actionitem.StageConfidence)
			} else {
				out[i] = item.Clone()
			}
			return nil
		})
	}
	_ = g.Wait()

	return out
}

// Clamp limits c to [0,1].
func Clamp(c float64) float64 {
	return min(1, max(0, c))
}
