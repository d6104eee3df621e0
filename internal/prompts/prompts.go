// Package prompts holds the instruction templates sent to the text
// generation service.
//
// Defaults are embedded. An override file uses the same YAML layout and
// may replace any subset of the keys:
//
//	map:
//	  system: ...
//	  user: ...        # {{ .TranscriptChunk }}
//	reduce:
//	  system: ...
//	  user: ...        # {{ .ItemsJSON }}
//	confidence: ...    # {{ .Task }} {{ .Owner }} {{ .Deadline }}
package prompts

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/fyrsmithlabs/actiond/internal/actionitem"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

//go:embed defaults.yaml
var defaultsYAML []byte

const maxOverrideSize = 256 * 1024

// Keys in the template file.
const (
	KeyMapSystem    = "map.system"
	KeyMapUser      = "map.user"
	KeyReduceSystem = "reduce.system"
	KeyReduceUser   = "reduce.user"
	KeyConfidence   = "confidence"
)

var requiredKeys = []string{KeyMapSystem, KeyMapUser, KeyReduceSystem, KeyReduceUser, KeyConfidence}

// Templates renders the prompts for each stage. Safe for concurrent use.
type Templates struct {
	mapSystem    *template.Template
	mapUser      *template.Template
	reduceSystem *template.Template
	reduceUser   *template.Template
	confidence   *template.Template
}

// Default returns the embedded templates.
func Default() *Templates {
	t, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("embedded prompt templates are invalid: %v", err))
	}
	return t
}

// Load parses the embedded defaults and, when path is non-empty, merges
// the override file at path on top of them.
func Load(path string) (*Templates, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(defaultsYAML), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load default prompts: %w", err)
	}

	if path != "" {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat prompt file: %w", err)
		}
		if info.Size() > maxOverrideSize {
			return nil, fmt.Errorf("prompt file too large: %d bytes (max %d)", info.Size(), maxOverrideSize)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read prompt file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse prompt file %s: %w", path, err)
		}
	}

	return fromKoanf(k)
}

func fromKoanf(k *koanf.Koanf) (*Templates, error) {
	parsed := make(map[string]*template.Template, len(requiredKeys))
	for _, key := range requiredKeys {
		text := k.String(key)
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("prompt %q is empty", key)
		}
		tmpl, err := template.New(key).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("prompt %q: %w", key, err)
		}
		parsed[key] = tmpl
	}

	return &Templates{
		mapSystem:    parsed[KeyMapSystem],
		mapUser:      parsed[KeyMapUser],
		reduceSystem: parsed[KeyReduceSystem],
		reduceUser:   parsed[KeyReduceUser],
		confidence:   parsed[KeyConfidence],
	}, nil
}

// Map renders the extraction prompt for one chunk: system instruction,
// blank line, user instruction.
func (t *Templates) Map(chunkText string) (string, error) {
	return joinSystemUser(t.mapSystem, t.mapUser, struct{ TranscriptChunk string }{chunkText})
}

// Reduce renders the consolidation prompt around a JSON array of items.
func (t *Templates) Reduce(itemsJSON string) (string, error) {
	return joinSystemUser(t.reduceSystem, t.reduceUser, struct{ ItemsJSON string }{itemsJSON})
}

// Confidence renders the scoring prompt for item. An absent deadline
// renders as "Not specified".
func (t *Templates) Confidence(item actionitem.ActionItem) (string, error) {
	deadline := actionitem.NoDeadline
	if item.Deadline != nil {
		deadline = *item.Deadline
	}
	return execute(t.confidence, struct{ Task, Owner, Deadline string }{item.Task, item.Owner, deadline})
}

func joinSystemUser(system, user *template.Template, data any) (string, error) {
	s, err := execute(system, data)
	if err != nil {
		return "", err
	}
	u, err := execute(user, data)
	if err != nil {
		return "", err
	}
	return s + "\n\n" + u, nil
}

func execute(tmpl *template.Template, data any) (string, error) {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("rendering prompt %q: %w", tmpl.Name(), err)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}
