package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/actiond/internal/config"
	"github.com/fyrsmithlabs/actiond/internal/llm"
	"github.com/fyrsmithlabs/actiond/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
llm:
  provider: openai
  model: test-model
  max_retries: 0
  rate_limit: 0
scrub:
  enabled: false
logging:
  level: error
`

const testTranscript = "Alice: Bob, please send the budget by Friday.\nBob: Will do.\n"

// fakeService answers each stage's prompt with a fixed response.
func fakeService() llm.Client {
	return llm.NewMock(func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "Rate your confidence"):
			return "0.9", nil
		case strings.Contains(prompt, "Action items:"):
			return `{"items": [{"task": "Send the budget", "owner": "Bob", "deadline": "Friday"}]}`, nil
		default:
			return `[{"task": "Send the budget", "owner": "Bob", "deadline": "Friday"}]`, nil
		}
	})
}

type harness struct {
	app    *app
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	dir    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(testConfig), 0o600))

	h := &harness{
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
		dir:    dir,
	}
	h.app = &app{
		stdout: h.stdout,
		stderr: h.stderr,
		newClients: func(cfg config.LLMConfig, redactor llm.Redactor) (*llm.StageClients, error) {
			svc := fakeService()
			return llm.Decorate(cfg, redactor, svc, svc, svc), nil
		},
	}
	h.app.configPath = cfgPath
	return h
}

func (h *harness) execute(args ...string) error {
	cmd := h.app.rootCmd()
	cmd.SetArgs(append(args, "--config", h.app.configPath))
	return cmd.ExecuteContext(context.Background())
}

func (h *harness) writeTranscript(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(h.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRun_PrintsDocument(t *testing.T) {
	h := newHarness(t)
	input := h.writeTranscript(t, "standup.txt", testTranscript)

	require.NoError(t, h.execute("run", input))

	var doc pipeline.Document
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &doc))
	assert.Equal(t, input, doc.Source)
	assert.Equal(t, 1, doc.TotalItems)
	require.Len(t, doc.Items, 1)
	assert.Equal(t, "Send the budget", doc.Items[0].Task)
	assert.Equal(t, "Bob", doc.Items[0].Owner)
	assert.InDelta(t, 0.9, doc.Items[0].Confidence, 1e-9)

	assert.Contains(t, h.stdout.String(), "\n  \"source\"", "document is indented with two spaces")
}

func TestRun_WritesOutputFile(t *testing.T) {
	h := newHarness(t)
	input := h.writeTranscript(t, "standup.txt", testTranscript)
	output := filepath.Join(h.dir, "out.json")

	require.NoError(t, h.execute("run", input, output))

	written, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSuffix(h.stdout.String(), "\n"), string(written))
}

func TestRun_Flags(t *testing.T) {
	t.Run("threshold above every score rejects all items", func(t *testing.T) {
		h := newHarness(t)
		input := h.writeTranscript(t, "standup.txt", testTranscript)

		require.NoError(t, h.execute("run", input, "--threshold", "0.95"))

		var doc pipeline.Document
		require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &doc))
		assert.Zero(t, doc.TotalItems)
		assert.NotNil(t, doc.Items)
	})

	t.Run("out of range threshold", func(t *testing.T) {
		h := newHarness(t)
		input := h.writeTranscript(t, "standup.txt", testTranscript)

		err := h.execute("run", input, "--threshold", "1.5")
		require.Error(t, err)
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
	})

	t.Run("stats go to stderr", func(t *testing.T) {
		h := newHarness(t)
		input := h.writeTranscript(t, "standup.txt", testTranscript)

		require.NoError(t, h.execute("run", input, "--stats", "--strategy", "time_based", "--chunk-minutes", "1"))

		assert.Contains(t, h.stderr.String(), `"candidates"`)
		assert.NotContains(t, h.stdout.String(), `"candidates"`)
	})
}

func TestRun_MissingArgument(t *testing.T) {
	h := newHarness(t)

	err := h.execute("run")
	require.Error(t, err)
	assert.Contains(t, h.stdout.String()+h.stderr.String(), "Usage:")
}

func TestRun_UnreadableInput(t *testing.T) {
	h := newHarness(t)

	err := h.execute("run", filepath.Join(h.dir, "missing.txt"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading transcript")
	assert.Empty(t, h.stdout.String())
}

func TestRun_EmptyTranscript(t *testing.T) {
	h := newHarness(t)
	input := h.writeTranscript(t, "empty.txt", "\n\n")

	require.NoError(t, h.execute("run", input))

	var doc pipeline.Document
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &doc))
	assert.Zero(t, doc.TotalItems)
}

func TestVersion(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.execute("version"))
	assert.Contains(t, h.stdout.String(), "actiond "+version)
}

func TestWatch_RequiresDirectory(t *testing.T) {
	h := newHarness(t)

	err := h.execute("watch", filepath.Join(h.dir, "nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inbox directory")
}
