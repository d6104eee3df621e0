package structured

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArray(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		kind    Kind
		wantLen int
	}{
		{"bare array", `[{"task":"a"},{"task":"b"}]`, Parsed, 2},
		{"wrapped in prose", "Here are the items:\n```json\n[{\"task\":\"a\"}]\n```\nLet me know.", Parsed, 1},
		{"empty array", `Nothing found: []`, Parsed, 0},
		{"no brackets", `I could not find any action items.`, Empty, 0},
		{"close before open", `] oops [`, Empty, 0},
		{"only open", `[ {"task": "a"}`, Empty, 0},
		{"broken json", `[{"task": "a",}]`, Malformed, 0},
		{"brackets in prose after array", `[{"task":"a"}] see [1]`, Malformed, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Array(tt.text)
			assert.Equal(t, tt.kind, res.Kind, res.Reason)
			if tt.kind == Parsed {
				assert.Len(t, res.Value, tt.wantLen)
				assert.NotNil(t, res.Value)
				assert.NoError(t, res.Err())
			} else {
				assert.NotEmpty(t, res.Reason)
				assert.Error(t, res.Err())
			}
		})
	}
}

func TestObject(t *testing.T) {
	res := Object("Sure!\n{\"items\": [], \"summary\": {\"duplicates_removed\": 2}}\nDone.")
	require.True(t, res.OK())
	assert.Contains(t, res.Value, "items")

	var summary map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(res.Value["summary"], &summary))
	assert.Equal(t, 2, Int(summary, "duplicates_removed", 0))
	assert.Equal(t, 0, Int(summary, "items_needing_review", 0))

	assert.Equal(t, Empty, Object("no braces here").Kind)
	assert.Equal(t, Malformed, Object("{not json}").Kind)
}

func TestNumber(t *testing.T) {
	tests := []struct {
		text string
		kind Kind
		want float64
	}{
		{"0.85", Parsed, 0.85},
		{"  0.3\n", Parsed, 0.3},
		{"1.7", Parsed, 1.7},
		{"-2", Parsed, -2},
		{"", Empty, 0},
		{"   ", Empty, 0},
		{"high", Malformed, 0},
		{"Confidence: 0.9", Malformed, 0},
		{"NaN", Malformed, 0},
		{"inf", Malformed, 0},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			res := Number(tt.text)
			assert.Equal(t, tt.kind, res.Kind)
			if tt.kind == Parsed {
				assert.InDelta(t, tt.want, res.Value, 1e-9)
			}
		})
	}
}

func TestInt_NonNumeric(t *testing.T) {
	obj := map[string]json.RawMessage{
		"a": json.RawMessage(`"three"`),
		"b": json.RawMessage(`null`),
		"c": json.RawMessage(`4`),
	}
	assert.Equal(t, 0, Int(obj, "a", 0))
	assert.Equal(t, 0, Int(obj, "b", 0))
	assert.Equal(t, 4, Int(obj, "c", 0))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "parsed", Parsed.String())
	assert.Equal(t, "empty", Empty.String())
	assert.Equal(t, "malformed", Malformed.String())
}
