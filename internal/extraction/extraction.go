// Package extraction implements the map phase: one text generation call
// per transcript chunk, parsed into candidate action items.
//
// Failures are contained to the chunk. An unreachable service, a response
// without a JSON array, or an unparseable array each yield a
// MapPhaseOutput with no items and Error set. Individual array elements
// that cannot become action items are dropped without affecting their
// siblings.
package extraction

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/actiond/internal/actionitem"
	"github.com/fyrsmithlabs/actiond/internal/llm"
	"github.com/fyrsmithlabs/actiond/internal/logging"
	"github.com/fyrsmithlabs/actiond/internal/prompts"
	"github.com/fyrsmithlabs/actiond/internal/structured"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 4

// Config controls batch extraction.
type Config struct {
	// Concurrency bounds in-flight calls in ExtractBatch.
	Concurrency int
}

// Extractor runs the map phase.
type Extractor struct {
	client      llm.Client
	templates   *prompts.Templates
	concurrency int
	logger      *logging.Logger
}

// New creates an Extractor. Nil templates and logger take defaults.
func New(client llm.Client, templates *prompts.Templates, cfg Config, logger *logging.Logger) *Extractor {
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
	return &Extractor{
		client:      client,
		templates:   templates,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Extract sends one chunk to the service and parses the candidates.
// Every returned item has SourceChunk set to chunkIndex.
func (e *Extractor) Extract(ctx context.Context, chunkText string, chunkIndex, totalChunks int) actionitem.MapPhaseOutput {
	start := time.Now()
	out := actionitem.MapPhaseOutput{
		Items:       []actionitem.ActionItem{},
		ChunkIndex:  chunkIndex,
		TotalChunks: totalChunks,
	}
	fields := []zap.Field{zap.Int("chunk_index", chunkIndex), zap.Int("total_chunks", totalChunks)}

	prompt, err := e.templates.Map(chunkText)
	if err != nil {
		out.Error = err.Error()
		out.ProcessingTime = time.Since(start)
		e.logger.Error(ctx, "failed to render extraction prompt", append(fields, zap.Error(err))...)
		return out
	}

	response, err := e.client.Complete(ctx, prompt)
	if err != nil {
		out.Error = fmt.Sprintf("extraction call failed: %v", err)
		out.Unreachable = llm.IsUnreachable(err)
		out.ProcessingTime = time.Since(start)
		e.logger.Warn(ctx, "extraction call failed, skipping chunk", append(fields, zap.Error(err))...)
		return out
	}

	parsed := structured.Array(response)
	if !parsed.OK() {
		out.Error = parsed.Err().Error()
		out.ProcessingTime = time.Since(start)
		e.logger.Warn(ctx, "no usable item array in extraction response",
			append(fields, zap.Stringer("kind", parsed.Kind), zap.String("reason", parsed.Reason))...)
		return out
	}

	items, errs := actionitem.CoerceAll(parsed.Value)
	for i, err := range errs {
		e.logger.Warn(ctx, "dropping malformed item", append(fields, zap.Int("element", i), zap.Error(err))...)
	}
	for i := range items {
		items[i] = items[i].
			Stamped(actionitem.StageMap, actionitem.FieldTask).
			WithSourceChunk(chunkIndex, actionitem.StageMap)
	}

	out.Items = items
	out.ProcessingTime = time.Since(start)
	e.logger.Debug(ctx, "extracted chunk",
		append(fields,
			zap.Int("items", len(items)),
			zap.Int("dropped", len(errs)),
			zap.Duration("duration", out.ProcessingTime),
		)...)
	return out
}

// ExtractBatch extracts every chunk with bounded concurrency. The result
// has one output per chunk, in chunk order.
func (e *Extractor) ExtractBatch(ctx context.Context, chunks []string) []actionitem.MapPhaseOutput {
	outputs := make([]actionitem.MapPhaseOutput, len(chunks))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, text := range chunks {
		g.Go(func() error {
			outputs[i] = e.Extract(ctx, text, i, len(chunks))
			return nil
		})
	}
	_ = g.Wait()

	return outputs
}
