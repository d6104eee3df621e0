// Package secrets redacts credentials from text before it leaves the
// process. Meeting transcripts routinely contain pasted tokens and keys;
// every prompt sent to the text generation service passes through a
// Redactor first.
package secrets

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// Finding describes one detected secret.
type Finding struct {
	RuleID string
	Line   int
	Secret string
}

// Result is the outcome of a redaction.
type Result struct {
	Content  string
	Findings []Finding
}

// Redactor detects secrets with the Gitleaks default rule set and replaces
// them with [REDACTED:<rule-id>] markers.
type Redactor struct {
	mu       sync.Mutex
	detector *detect.Detector
}

// NewRedactor loads the Gitleaks default configuration.
func NewRedactor() (*Redactor, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks config: %w", err)
	}
	return &Redactor{detector: d}, nil
}

// Redact returns content with every detected secret replaced.
func (r *Redactor) Redact(content string) Result {
	if strings.TrimSpace(content) == "" {
		return Result{Content: content}
	}

	r.mu.Lock()
	raw := r.detector.DetectString(content)
	r.mu.Unlock()

	if len(raw) == 0 {
		return Result{Content: content}
	}

	findings := make([]Finding, 0, len(raw))
	for _, f := range raw {
		if f.Secret == "" {
			continue
		}
		findings = append(findings, Finding{RuleID: f.RuleID, Line: f.StartLine, Secret: f.Secret})
	}

	// Longest first so a secret that contains another is replaced whole.
	ordered := append([]Finding(nil), findings...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return len(ordered[i].Secret) > len(ordered[j].Secret)
	})

	out := content
	for _, f := range ordered {
		out = strings.ReplaceAll(out, f.Secret, "[REDACTED:"+f.RuleID+"]")
	}
	return Result{Content: out, Findings: findings}
}
