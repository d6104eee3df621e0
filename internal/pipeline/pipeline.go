// Package pipeline sequences the extraction stages over one transcript.
//
//	chunk -> map -> reduce -> confidence -> validation
//
// Each stage starts only after the previous one has finished. Stages
// degrade on their own when the text generation service misbehaves; the
// only run-level failure is a service that could not be reached for any
// chunk, reported as ErrCollaboratorUnreachable.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/actiond/internal/actionitem"
	"github.com/fyrsmithlabs/actiond/internal/logging"
	"github.com/fyrsmithlabs/actiond/internal/validation"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// InstrumentationName is the tracer name for pipeline spans.
const InstrumentationName = "github.com/fyrsmithlabs/actiond/internal/pipeline"

// StageChunk names the chunking stage in metrics, spans and stats.
const StageChunk = "chunk"

// ErrCollaboratorUnreachable is returned when every map call failed
// because the text generation service could not be reached.
var ErrCollaboratorUnreachable = errors.New("text generation service unreachable for the entire run")

// Chunker splits a transcript.
type Chunker interface {
	Chunk(ctx context.Context, text, source string) []actionitem.Chunk
}

// Extractor runs the map phase over chunk texts.
type Extractor interface {
	ExtractBatch(ctx context.Context, chunks []string) []actionitem.MapPhaseOutput
}

// Consolidator runs the reduce phase.
type Consolidator interface {
	Consolidate(ctx context.Context, items []actionitem.ActionItem) actionitem.ReducePhaseOutput
}

// Scorer runs the confidence phase.
type Scorer interface {
	ScoreBatch(ctx context.Context, items []actionitem.ActionItem) []actionitem.ActionItem
}

// Validator runs the validation phase.
type Validator interface {
	Process(ctx context.Context, items []actionitem.ActionItem) validation.Outcome
}

// Stages are the components a Pipeline runs, in order.
type Stages struct {
	Chunker      Chunker
	Extractor    Extractor
	Consolidator Consolidator
	Scorer       Scorer
	Validator    Validator
}

// Progress reports a finished stage.
type Progress struct {
	RunID    string
	Stage    string
	Items    int
	Duration time.Duration
}

// ProgressFunc receives stage progress. It is called synchronously.
type ProgressFunc func(Progress)

// Pipeline runs transcripts through the stages.
type Pipeline struct {
	stages     Stages
	logger     *logging.Logger
	metrics    *Metrics
	tracer     trace.Tracer
	onProgress ProgressFunc
}

// New creates a Pipeline. A nil logger discards output and nil metrics
// record nothing.
func New(stages Stages, logger *logging.Logger, metrics *Metrics) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pipeline{
		stages:  stages,
		logger:  logger,
		metrics: metrics,
		tracer:  otel.Tracer(InstrumentationName),
	}
}

// OnProgress registers fn to be called after each stage.
func (p *Pipeline) OnProgress(fn ProgressFunc) {
	p.onProgress = fn
}

// Run extracts action items from transcript. source identifies the
// transcript in logs and in the output document.
func (p *Pipeline) Run(ctx context.Context, transcript, source string) (*Result, error) {
	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	ctx = logging.WithSource(ctx, source)
	ctx = logging.WithLogger(ctx, p.logger)

	ctx, span := p.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("run.source", source),
	))
	defer span.End()

	started := time.Now()
	res := &Result{
		RunID:  runID,
		Source: source,
		Items:  []actionitem.ActionItem{},
		Stats:  Stats{StageDurations: make(map[string]time.Duration)},
	}
	p.logger.Info(ctx, "pipeline run started", zap.Int("transcript_bytes", len(transcript)))

	// Chunk.
	var chunks []actionitem.Chunk
	p.stage(ctx, res, StageChunk, func(ctx context.Context) int {
		chunks = p.stages.Chunker.Chunk(ctx, transcript, source)
		return len(chunks)
	})
	res.Stats.Chunks = len(chunks)

	// Map.
	var candidates []actionitem.ActionItem
	unreachable := 0
	p.stage(ctx, res, actionitem.StageMap, func(ctx context.Context) int {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		for _, out := range p.stages.Extractor.ExtractBatch(ctx, texts) {
			if out.Failed() {
				res.Stats.MapFailures++
			}
			if out.Unreachable {
				unreachable++
			}
			candidates = append(candidates, out.Items...)
		}
		return len(candidates)
	})
	res.Stats.Candidates = len(candidates)
	p.metrics.recordFallbacks(actionitem.StageMap, res.Stats.MapFailures)

	if len(chunks) > 0 && unreachable == len(chunks) {
		err := fmt.Errorf("%w: %d of %d chunks failed", ErrCollaboratorUnreachable, unreachable, len(chunks))
		res.Stats.Total = time.Since(started)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.metrics.recordRun(StatusFailed)
		p.logger.Error(ctx, "pipeline run failed", zap.Error(err))
		return nil, err
	}

	if len(candidates) == 0 {
		res.Stats.Total = time.Since(started)
		p.metrics.recordRun(StatusEmpty)
		p.logger.Info(ctx, "no candidate items found, ending run early",
			zap.Int("chunks", len(chunks)),
			zap.Int("map_failures", res.Stats.MapFailures),
		)
		return res, nil
	}

	// Reduce.
	var consolidated actionitem.ReducePhaseOutput
	p.stage(ctx, res, actionitem.StageReduce, func(ctx context.Context) int {
		consolidated = p.stages.Consolidator.Consolidate(ctx, candidates)
		return len(consolidated.Items)
	})
	res.Stats.Consolidated = len(consolidated.Items)
	res.Stats.DuplicatesRemoved = consolidated.DuplicatesRemoved
	res.Stats.FieldsFilled = consolidated.FieldsFilled
	res.Stats.ReduceFellBack = consolidated.FellBack
	res.Stats.ReduceNotes = consolidated.Notes
	if consolidated.FellBack {
		p.metrics.recordFallbacks(actionitem.StageReduce, 1)
	}

	// Confidence.
	var scored []actionitem.ActionItem
	p.stage(ctx, res, actionitem.StageConfidence, func(ctx context.Context) int {
		scored = p.stages.Scorer.ScoreBatch(ctx, consolidated.Items)
		return len(scored)
	})
	for _, item := range scored {
		if item.LastWriter(actionitem.FieldConfidence) == actionitem.StageConfidence {
			res.Stats.Scored++
		}
	}
	p.metrics.recordFallbacks(actionitem.StageConfidence, len(scored)-res.Stats.Scored)

	// Validation.
	var outcome validation.Outcome
	p.stage(ctx, res, actionitem.StageValidation, func(ctx context.Context) int {
		outcome = p.stages.Validator.Process(ctx, scored)
		return len(outcome.Accepted)
	})
	if outcome.Accepted != nil {
		res.Items = outcome.Accepted
	}
	res.Rejected = outcome.Rejected
	res.Stats.Accepted = len(outcome.Accepted)
	res.Stats.Rejected = len(outcome.Rejected)
	res.Stats.AmbiguousOwners = outcome.AmbiguousOwners
	res.Stats.DeadlinesFlagged = outcome.DeadlinesFlagged
	res.Stats.Total = time.Since(started)

	span.SetAttributes(attribute.Int("items.accepted", res.Stats.Accepted))
	p.metrics.recordRun(StatusSuccess)
	p.logger.Info(ctx, "pipeline run finished",
		zap.Int("chunks", res.Stats.Chunks),
		zap.Int("candidates", res.Stats.Candidates),
		zap.Int("accepted", res.Stats.Accepted),
		zap.Int("rejected", res.Stats.Rejected),
		zap.Duration("duration", res.Stats.Total),
	)
	return res, nil
}

// stage runs fn inside a span and records its duration and output size.
func (p *Pipeline) stage(ctx context.Context, res *Result, name string, fn func(context.Context) int) {
	ctx, span := p.tracer.Start(ctx, "pipeline."+name)
	defer span.End()

	start := time.Now()
	items := fn(ctx)
	elapsed := time.Since(start)

	span.SetAttributes(attribute.Int("items", items))
	res.Stats.StageDurations[name] = elapsed
	p.metrics.recordStage(name, elapsed, items)
	p.logger.Debug(ctx, "stage finished",
		zap.String("stage", name),
		zap.Int("items", items),
		zap.Duration("duration", elapsed),
	)
	if p.onProgress != nil {
		p.onProgress(Progress{RunID: res.RunID, Stage: name, Items: items, Duration: elapsed})
	}
}
