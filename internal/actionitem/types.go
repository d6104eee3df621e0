package actionitem

import "time"

// Defaults applied when the text generation service omits a field.
const (
	DefaultOwner      = "Unassigned"
	DefaultConfidence = 0.5
	NoDeadline        = "Not specified"
)

// ActionItem is a single extracted task.
//
// Optional fields are pointers so that absence serializes as JSON null.
type ActionItem struct {
	Task        string  `json:"task"`
	Owner       string  `json:"owner"`
	Deadline    *string `json:"deadline"`
	Confidence  float64 `json:"confidence"`
	SourceChunk *int    `json:"source_chunk"`
	Speaker     *string `json:"speaker"`
	Notes       *string `json:"notes"`

	// Trail records which stage last wrote which field.
	Trail []Stamp `json:"-"`
}

// Stamp attributes a field value to the stage that produced it.
type Stamp struct {
	Stage string
	Field string
}

// Stage names used in stamps.
const (
	StageMap        = "map"
	StageReduce     = "reduce"
	StageConfidence = "confidence"
	StageValidation = "validation"
)

// Field names used in stamps.
const (
	FieldTask        = "task"
	FieldOwner       = "owner"
	FieldDeadline    = "deadline"
	FieldConfidence  = "confidence"
	FieldSourceChunk = "source_chunk"
	FieldNotes       = "notes"
)

// Clone returns a deep copy of the item.
func (a ActionItem) Clone() ActionItem {
	out := a
	out.Deadline = cloneString(a.Deadline)
	out.Speaker = cloneString(a.Speaker)
	out.Notes = cloneString(a.Notes)
	if a.SourceChunk != nil {
		v := *a.SourceChunk
		out.SourceChunk = &v
	}
	if a.Trail != nil {
		out.Trail = append([]Stamp(nil), a.Trail...)
	}
	return out
}

// Stamped returns a copy with a stamp appended for field.
func (a ActionItem) Stamped(stage, field string) ActionItem {
	out := a.Clone()
	out.Trail = append(out.Trail, Stamp{Stage: stage, Field: field})
	return out
}

// WithConfidence returns a copy with confidence set by stage.
func (a ActionItem) WithConfidence(c float64, stage string) ActionItem {
	out := a.Stamped(stage, FieldConfidence)
	out.Confidence = c
	return out
}

// WithOwner returns a copy with owner set by stage.
func (a ActionItem) WithOwner(owner, stage string) ActionItem {
	out := a.Stamped(stage, FieldOwner)
	out.Owner = owner
	return out
}

// WithDeadline returns a copy with deadline set by stage.
func (a ActionItem) WithDeadline(deadline *string, stage string) ActionItem {
	out := a.Stamped(stage, FieldDeadline)
	out.Deadline = cloneString(deadline)
	return out
}

// WithNotes returns a copy with notes set by stage.
func (a ActionItem) WithNotes(notes *string, stage string) ActionItem {
	out := a.Stamped(stage, FieldNotes)
	out.Notes = cloneString(notes)
	return out
}

// WithSourceChunk returns a copy with source_chunk set by stage.
func (a ActionItem) WithSourceChunk(idx int, stage string) ActionItem {
	out := a.Stamped(stage, FieldSourceChunk)
	out.SourceChunk = &idx
	return out
}

// LastWriter returns the stage that most recently wrote field, or "".
func (a ActionItem) LastWriter(field string) string {
	for i := len(a.Trail) - 1; i >= 0; i-- {
		if a.Trail[i].Field == field {
			return a.Trail[i].Stage
		}
	}
	return ""
}

// String returns s as a pointer.
func String(s string) *string { return &s }

// Int returns i as a pointer.
func Int(i int) *int { return &i }

// Deref returns the pointed-to string, or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Line is one non-empty transcript line.
type Line struct {
	Raw     string `json:"raw"`
	Speaker string `json:"speaker"`
	Content string `json:"content"`
}

// Chunk is a contiguous, non-overlapping run of transcript lines.
type Chunk struct {
	Index    int    `json:"chunk_index"`
	Source   string `json:"source"`
	Strategy string `json:"strategy"`
	// Speaker is set by the speaker-turn strategy only.
	Speaker  string `json:"speaker,omitempty"`
	NumLines int    `json:"num_lines"`
	Lines    []Line `json:"-"`
	Text     string `json:"text"`
}

// MapPhaseOutput is the result of extracting items from one chunk.
type MapPhaseOutput struct {
	Items          []ActionItem  `json:"items"`
	ChunkIndex     int           `json:"chunk_index"`
	TotalChunks    int           `json:"total_chunks"`
	ProcessingTime time.Duration `json:"processing_time"`
	Error          string        `json:"error,omitempty"`

	// Unreachable is set when the service call itself failed.
	Unreachable bool `json:"-"`
}

// Failed reports whether the chunk produced an error.
func (m MapPhaseOutput) Failed() bool { return m.Error != "" }

// ReducePhaseOutput is the result of consolidating all candidate items.
type ReducePhaseOutput struct {
	Items               []ActionItem  `json:"items"`
	DuplicatesRemoved   int           `json:"duplicates_removed"`
	FieldsFilled        int           `json:"fields_filled"`
	TotalProcessingTime time.Duration `json:"total_processing_time"`
	Notes               string        `json:"notes,omitempty"`

	// FellBack is set when the input was returned unconsolidated.
	FellBack bool `json:"-"`
}
