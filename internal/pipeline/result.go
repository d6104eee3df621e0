package pipeline

import (
	"encoding/json"
	"time"

	"github.com/fyrsmithlabs/actiond/internal/actionitem"
	"github.com/fyrsmithlabs/actiond/internal/validation"
)

// Result is the outcome of one run.
type Result struct {
	RunID    string
	Source   string
	Items    []actionitem.ActionItem
	Rejected []validation.Rejection
	Stats    Stats
}

// Stats summarizes what each stage did.
type Stats struct {
	Chunks            int                      `json:"chunks"`
	Candidates        int                      `json:"candidates"`
	MapFailures       int                      `json:"map_failures"`
	Consolidated      int                      `json:"consolidated"`
	DuplicatesRemoved int                      `json:"duplicates_removed"`
	FieldsFilled      int                      `json:"fields_filled"`
	ReduceFellBack    bool                     `json:"reduce_fell_back"`
	ReduceNotes       string                   `json:"reduce_notes,omitempty"`
	Scored            int                      `json:"scored"`
	Accepted          int                      `json:"accepted"`
	Rejected          int                      `json:"rejected"`
	AmbiguousOwners   int                      `json:"ambiguous_owners"`
	DeadlinesFlagged  int                      `json:"deadlines_flagged"`
	StageDurations    map[string]time.Duration `json:"-"`
	Total             time.Duration            `json:"-"`
}

// MarshalJSON reports durations in seconds.
func (s Stats) MarshalJSON() ([]byte, error) {
	type plain Stats
	seconds := make(map[string]float64, len(s.StageDurations))
	for stage, d := range s.StageDurations {
		seconds[stage] = d.Seconds()
	}
	return json.Marshal(struct {
		plain
		StageSeconds map[string]float64 `json:"stage_seconds"`
		TotalSeconds float64            `json:"total_seconds"`
	}{plain(s), seconds, s.Total.Seconds()})
}

// Document is the persisted output of a run.
type Document struct {
	Source     string                  `json:"source"`
	TotalItems int                     `json:"total_items"`
	Items      []actionitem.ActionItem `json:"items"`
}

// Document returns the output document for the run.
func (r *Result) Document() Document {
	items := r.Items
	if items == nil {
		items = []actionitem.ActionItem{}
	}
	return Document{
		Source:     r.Source,
		TotalItems: len(items),
		Items:      items,
	}
}
