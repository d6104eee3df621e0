// Package consolidation implements the reduce phase: a single call that
// merges and deduplicates every candidate from the map phase.
//
// Consolidation is an optimization. When the call fails or the response
// cannot be used, the input is returned unchanged with zero counters and
// a note explaining why.
package consolidation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/actiond/internal/actionitem"
	"github.com/fyrsmithlabs/actiond/internal/llm"
	"github.com/fyrsmithlabs/actiond/internal/logging"
	"github.com/fyrsmithlabs/actiond/internal/prompts"
	"github.com/fyrsmithlabs/actiond/internal/structured"
	"go.uber.org/zap"
)

// Consolidator runs the reduce phase.
type Consolidator struct {
	client    llm.Client
	templates *prompts.Templates
	logger    *logging.Logger
}

// New creates a Consolidator. Nil templates and logger take defaults.
func New(client llm.Client, templates *prompts.Templates, logger *logging.Logger) *Consolidator {
	if templates == nil {
		templates = prompts.Default()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Consolidator{client: client, templates: templates, logger: logger}
}

// Consolidate merges items. An empty input returns immediately without
// calling the service.
func (c *Consolidator) Consolidate(ctx context.Context, items []actionitem.ActionItem) actionitem.ReducePhaseOutput {
	start := time.Now()
	if len(items) == 0 {
		c.logger.Debug(ctx, "no items to consolidate")
		return actionitem.ReducePhaseOutput{Items: []actionitem.ActionItem{}}
	}

	payload, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return c.fallback(ctx, items, start, fmt.Sprintf("Error: %v", err))
	}
	prompt, err := c.templates.Reduce(string(payload))
	if err != nil {
		return c.fallback(ctx, items, start, fmt.Sprintf("Error: %v", err))
	}

	c.logger.Info(ctx, "consolidating items", zap.Int("items", len(items)))
	response, err := c.client.Complete(ctx, prompt)
	if err != nil {
		return c.fallback(ctx, items, start, fmt.Sprintf("Error: %v", err))
	}

	obj := structured.Object(response)
	if !obj.OK() {
		return c.fallback(ctx, items, start, fmt.Sprintf("Consolidation failed: %v", obj.Err()))
	}

	elements, err := itemsArray(obj.Value)
	if err != nil {
		return c.fallback(ctx, items, start, fmt.Sprintf("Consolidation failed: %v", err))
	}

	merged, errs := actionitem.CoerceAll(elements)
	for i, err := range errs {
		c.logger.Warn(ctx, "dropping malformed consolidated item", zap.Int("element", i), zap.Error(err))
	}
	if len(merged) == 0 {
		return c.fallback(ctx, items, start,
			fmt.Sprintf("Consolidation failed: none of %d consolidated items were usable", len(elements)))
	}

	merged = restoreProvenance(items, merged)

	var summary map[string]json.RawMessage
	if raw, ok := obj.Value["summary"]; ok {
		// A non-object summary leaves the counters at zero.
		_ = json.Unmarshal(raw, &summary)
	}

	out := actionitem.ReducePhaseOutput{
		Items:               merged,
		DuplicatesRemoved:   structured.Int(summary, "duplicates_removed", 0),
		FieldsFilled:        structured.Int(summary, "items_needing_review", 0),
		TotalProcessingTime: time.Since(start),
		Notes:               fmt.Sprintf("Consolidated from %d items", len(items)),
	}
	c.logger.Info(ctx, "consolidated items",
		zap.Int("input", len(items)),
		zap.Int("output", len(merged)),
		zap.Int("duplicates_removed", out.DuplicatesRemoved),
		zap.Int("dropped", len(errs)),
		zap.Duration("duration", out.TotalProcessingTime),
	)
	return out
}

func (c *Consolidator) fallback(ctx context.Context, items []actionitem.ActionItem, start time.Time, notes string) actionitem.ReducePhaseOutput {
	c.logger.Warn(ctx, "consolidation failed, keeping unconsolidated items",
		zap.Int("items", len(items)),
		zap.String("notes", notes),
	)
	kept := make([]actionitem.ActionItem, len(items))
	for i, item := range items {
		kept[i] = item.Clone()
	}
	return actionitem.ReducePhaseOutput{
		Items:               kept,
		TotalProcessingTime: time.Since(start),
		Notes:               notes,
		FellBack:            true,
	}
}

func itemsArray(obj map[string]json.RawMessage) ([]json.RawMessage, error) {
	raw, ok := obj["items"]
	if !ok {
		return nil, fmt.Errorf("response has no items")
	}
	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil || elements == nil {
		return nil, fmt.Errorf("items is not an array")
	}
	return elements, nil
}

// restoreProvenance gives consolidated items that lost their source_chunk
// the chunk of the first input item with the same normalized task.
func restoreProvenance(inputs, merged []actionitem.ActionItem) []actionitem.ActionItem {
	chunks := make(map[string]int, len(inputs))
	for _, in := range inputs {
		if in.SourceChunk == nil {
			continue
		}
		key := normalizeTask(in.Task)
		if _, seen := chunks[key]; !seen {
			chunks[key] = *in.SourceChunk
		}
	}

	out := make([]actionitem.ActionItem, len(merged))
	for i, item := range merged {
		item = item.Stamped(actionitem.StageReduce, actionitem.FieldTask)
		if item.SourceChunk == nil {
			if idx, ok := chunks[normalizeTask(item.Task)]; ok {
				item = item.WithSourceChunk(idx, actionitem.StageReduce)
			}
		}
		out[i] = item
	}
	return out
}

func normalizeTask(task string) string {
	return strings.Join(strings.Fields(strings.ToLower(task)), " ")
}
