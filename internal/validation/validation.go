// Package validation applies the deterministic rules that decide which
// items are kept, fills defaults, and annotates items needing review.
package validation

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/actiond/internal/actionitem"
	"github.com/fyrsmithlabs/actiond/internal/logging"
	"go.uber.org/zap"
)

// DeadlineMarker is appended to notes when a deadline is too vague.
const DeadlineMarker = " [DEADLINE NEEDS CLARIFICATION]"

// Rejection reasons that do not depend on the item.
const (
	ReasonEmptyTask = "Task is empty"
	ReasonVagueTask = "Task description is too vague"
)

var (
	// vagueTerms are matched case-insensitively anywhere in the task.
	vagueTerms = []string{"something", "stuff", "thing", "whatever", "etc"}

	// vagueDeadlines are matched case-sensitively anywhere in the deadline.
	vagueDeadlines = []string{"soon", "ASAP", "when possible", "this week"}
)

// Rejection is an item that failed validation and the reason why.
type Rejection struct {
	Item   actionitem.ActionItem `json:"item"`
	Reason string                `json:"reason"`
}

// Outcome is the result of running every validation step over a batch.
type Outcome struct {
	Accepted         []actionitem.ActionItem
	Rejected         []Rejection
	AmbiguousOwners  int
	DeadlinesFlagged int
}

// Validator holds the confidence threshold and applies the rules.
type Validator struct {
	threshold float64
	logger    *logging.Logger
}

// New creates a Validator. Items scoring exactly threshold are accepted.
func New(threshold float64, logger *logging.Logger) *Validator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Validator{threshold: threshold, logger: logger}
}

// Threshold returns the minimum accepted confidence.
func (v *Validator) Threshold() float64 { return v.threshold }

// Validate checks item against the rejection rules in order and returns
// the first failure. Accepted items get the reason "Valid".
func (v *Validator) Validate(ctx context.Context, item actionitem.ActionItem) (bool, string) {
	if item.Confidence < v.threshold {
		return false, fmt.Sprintf("Confidence too low (%v < %v)", item.Confidence, v.threshold)
	}
	if strings.TrimSpace(item.Task) == "" {
		return false, ReasonEmptyTask
	}
	lower := strings.ToLower(item.Task)
	for _, term := range vagueTerms {
		if strings.Contains(lower, term) {
			return false, ReasonVagueTask
		}
	}

	if item.Owner == actionitem.DefaultOwner && actionitem.Deref(item.Deadline) != "" {
		v.logger.Warn(ctx, "item without owner has deadline",
			zap.String("task", item.Task),
			zap.String("deadline", *item.Deadline),
		)
	}
	return true, "Valid"
}

// ValidateBatch splits items into accepted and rejected, preserving order.
func (v *Validator) ValidateBatch(ctx context.Context, items []actionitem.ActionItem) ([]actionitem.ActionItem, []Rejection) {
	accepted := make([]actionitem.ActionItem, 0, len(items))
	var rejected []Rejection
	for _, item := range items {
		ok, reason := v.Validate(ctx, item)
		if ok {
			accepted = append(accepted, item.Clone())
			continue
		}
		v.logger.Debug(ctx, "item rejected", zap.String("task", item.Task), zap.String("reason", reason))
		rejected = append(rejected, Rejection{Item: item.Clone(), Reason: reason})
	}

	v.logger.Info(ctx, "validated items",
		zap.Int("valid", len(accepted)),
		zap.Int("invalid", len(rejected)),
	)
	return accepted, rejected
}

// Backfill returns a copy of item with defaults for blank fields: owner
// becomes "Unassigned", deadline becomes "Not specified", and empty notes
// become absent.
func Backfill(item actionitem.ActionItem) actionitem.ActionItem {
	out := item.Clone()
	if strings.TrimSpace(out.Owner) == "" {
		out = out.WithOwner(actionitem.DefaultOwner, actionitem.StageValidation)
	}
	if out.Deadline == nil || strings.TrimSpace(*out.Deadline) == "" {
		out = out.WithDeadline(actionitem.String(actionitem.NoDeadline), actionitem.StageValidation)
	}
	if out.Notes != nil && *out.Notes == "" {
		out = out.WithNotes(nil, actionitem.StageValidation)
	}
	return out
}

// HandleEdgeCases backfills each item and then annotates it. Owners that
// look like several people are logged for review but left unchanged.
// Vague deadlines get DeadlineMarker appended to the notes.
func (v *Validator) HandleEdgeCases(ctx context.Context, items []actionitem.ActionItem) []actionitem.ActionItem {
	out, _, _ := v.handleEdgeCases(ctx, items)
	return out
}

func (v *Validator) handleEdgeCases(ctx context.Context, items []actionitem.ActionItem) (out []actionitem.ActionItem, ambiguous, flagged int) {
	out = make([]actionitem.ActionItem, 0, len(items))
	for _, item := range items {
		item = Backfill(item)

		if AmbiguousOwner(item.Owner) {
			ambiguous++
			v.logger.Warn(ctx, "item has multiple owners",
				zap.String("task", item.Task),
				zap.String("owner", item.Owner),
			)
		}

		if VagueDeadline(actionitem.Deref(item.Deadline)) {
			flagged++
			notes := actionitem.Deref(item.Notes) + DeadlineMarker
			item = item.WithNotes(&notes, actionitem.StageValidation)
		}

		out = append(out, item)
	}
	return out, ambiguous, flagged
}

// Process validates items, then backfills and annotates the accepted ones.
func (v *Validator) Process(ctx context.Context, items []actionitem.ActionItem) Outcome {
	accepted, rejected := v.ValidateBatch(ctx, items)
	reviewed, ambiguous, flagged := v.handleEdgeCases(ctx, accepted)
	return Outcome{
		Accepted:         reviewed,
		Rejected:         rejected,
		AmbiguousOwners:  ambiguous,
		DeadlinesFlagged: flagged,
	}
}

// AmbiguousOwner reports whether owner contains "and" in any case and no
// comma, e.g. "Alice and Bob".
func AmbiguousOwner(owner string) bool {
	return strings.Contains(strings.ToLower(owner), "and") && !strings.Contains(owner, ",")
}

// VagueDeadline reports whether deadline contains a vague term.
func VagueDeadline(deadline string) bool {
	for _, term := range vagueDeadlines {
		if strings.Contains(deadline, term) {
			return true
		}
	}
	return false
}
