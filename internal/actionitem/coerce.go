package actionitem

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrItemCoercion indicates a JSON element could not become an ActionItem.
var ErrItemCoercion = errors.New("item coercion failed")

// Coerce converts one JSON element into an ActionItem.
//
// The element must be an object with a string "task". Missing optional
// fields take their defaults; present fields must have the right type.
// Unknown keys are ignored. The returned error wraps ErrItemCoercion.
func Coerce(raw json.RawMessage) (ActionItem, error) {
	var fields map[string]json.RawMessage
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ActionItem{}, fmt.Errorf("%w: element is not an object", ErrItemCoercion)
	}
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return ActionItem{}, fmt.Errorf("%w: %v", ErrItemCoercion, err)
	}

	item := ActionItem{Owner: DefaultOwner, Confidence: DefaultConfidence}

	taskRaw, ok := fields["task"]
	if !ok {
		return ActionItem{}, fmt.Errorf("%w: task is required", ErrItemCoercion)
	}
	task, err := requiredString(taskRaw)
	if err != nil {
		return ActionItem{}, fmt.Errorf("%w: task: %v", ErrItemCoercion, err)
	}
	item.Task = task

	if v, ok := fields["owner"]; ok {
		owner, err := requiredString(v)
		if err != nil {
			return ActionItem{}, fmt.Errorf("%w: owner: %v", ErrItemCoercion, err)
		}
		item.Owner = owner
	}

	for key, dst := range map[string]**string{
		"deadline": &item.Deadline,
		"speaker":  &item.Speaker,
		"notes":    &item.Notes,
	} {
		v, ok := fields[key]
		if !ok {
			continue
		}
		s, err := optionalString(v)
		if err != nil {
			return ActionItem{}, fmt.Errorf("%w: %s: %v", ErrItemCoercion, key, err)
		}
		*dst = s
	}

	if v, ok := fields["confidence"]; ok && !isNull(v) {
		c, err := number(v)
		if err != nil {
			return ActionItem{}, fmt.Errorf("%w: confidence: %v", ErrItemCoercion, err)
		}
		if c < 0 || c > 1 {
			return ActionItem{}, fmt.Errorf("%w: confidence %v out of range [0,1]", ErrItemCoercion, c)
		}
		item.Confidence = c
	}

	if v, ok := fields["source_chunk"]; ok && !isNull(v) {
		f, err := number(v)
		if err != nil {
			return ActionItem{}, fmt.Errorf("%w: source_chunk: %v", ErrItemCoercion, err)
		}
		if f != math.Trunc(f) {
			return ActionItem{}, fmt.Errorf("%w: source_chunk %v is not an integer", ErrItemCoercion, f)
		}
		idx := int(f)
		item.SourceChunk = &idx
	}

	return item, nil
}

// CoerceAll coerces each element independently. Elements that fail are
// reported in errs, indexed by position, and left out of items.
func CoerceAll(elements []json.RawMessage) (items []ActionItem, errs map[int]error) {
	items = make([]ActionItem, 0, len(elements))
	for i, el := range elements {
		item, err := Coerce(el)
		if err != nil {
			if errs == nil {
				errs = make(map[int]error)
			}
			errs[i] = err
			continue
		}
		items = append(items, item)
	}
	return items, errs
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

func requiredString(raw json.RawMessage) (string, error) {
	var s string
	if isNull(raw) {
		return "", errors.New("must not be null")
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", errors.New("must be a string")
	}
	return s, nil
}

func optionalString(raw json.RawMessage) (*string, error) {
	if isNull(raw) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errors.New("must be a string or null")
	}
	return &s, nil
}

// number accepts a JSON number or a string holding one.
func number(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, errors.New("must be a number")
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	return f, nil
}
