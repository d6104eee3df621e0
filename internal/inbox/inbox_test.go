package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fyrsmithlabs/actiond/internal/actionitem"
	"github.com/fyrsmithlabs/actiond/internal/logging"
	"github.com/fyrsmithlabs/actiond/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

type fakeRunner struct {
	mu      sync.Mutex
	err     error
	sources []string
}

func (f *fakeRunner) Run(_ context.Context, transcript, source string) (*pipeline.Result, error) {
	f.mu.Lock()
	f.sources = append(f.sources, source)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &pipeline.Result{
		Source: source,
		Items: []actionitem.ActionItem{
			{Task: "Follow up on: " + transcript, Owner: "Alice", Confidence: 0.8},
		},
	}, nil
}

func (f *fakeRunner) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sources...)
}

func readDocument(t *testing.T, path string) pipeline.Document {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc pipeline.Document
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func TestIsTranscript(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"standup.txt", true},
		{"/tmp/inbox/planning.txt", true},
		{"standup.actions.json", false},
		{"notes.md", false},
		{".hidden.txt", false},
		{".actiond-123", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTranscript(tt.name))
		})
	}
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, "/in/standup.actions.json", OutputPath("/in/standup.txt"))
}

func TestNew(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing runner", func(t *testing.T) {
		_, err := New(dir, nil, nil, Options{})
		require.Error(t, err)
	})

	t.Run("missing directory", func(t *testing.T) {
		_, err := New(filepath.Join(dir, "nope"), &fakeRunner{}, nil, Options{})
		require.Error(t, err)
	})

	t.Run("file instead of directory", func(t *testing.T) {
		file := filepath.Join(dir, "a.txt")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := New(file, &fakeRunner{}, nil, Options{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a directory")
	})

	t.Run("defaults settle", func(t *testing.T) {
		w, err := New(dir, &fakeRunner{}, nil, Options{})
		require.NoError(t, err)
		assert.Equal(t, DefaultSettle, w.opts.Settle)
	})
}

func TestProcessFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "standup.txt")
	require.NoError(t, os.WriteFile(path, []byte("Alice: ship it"), 0o600))

	t.Run("writes the document beside the transcript", func(t *testing.T) {
		runner := &fakeRunner{}
		logger := logging.NewTestLogger()
		w, err := New(dir, runner, logger.Logger, Options{})
		require.NoError(t, err)

		dst, err := w.ProcessFile(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "standup.actions.json"), dst)
		assert.Equal(t, []string{"standup.txt"}, runner.calls())

		doc := readDocument(t, dst)
		assert.Equal(t, "standup.txt", doc.Source)
		assert.Equal(t, 1, doc.TotalItems)
		assert.Equal(t, "Follow up on: Alice: ship it", doc.Items[0].Task)
		logger.AssertLogged(t, zapcore.InfoLevel, "transcript processed")
	})

	t.Run("runner error leaves no output", func(t *testing.T) {
		other := filepath.Join(dir, "retro.txt")
		require.NoError(t, os.WriteFile(other, []byte("Bob: hi"), 0o600))

		w, err := New(dir, &fakeRunner{err: errors.New("unreachable")}, nil, Options{})
		require.NoError(t, err)

		_, err = w.ProcessFile(ctx, other)
		require.Error(t, err)
		assert.NoFileExists(t, OutputPath(other))
	})

	t.Run("unreadable transcript", func(t *testing.T) {
		w, err := New(dir, &fakeRunner{}, nil, Options{})
		require.NoError(t, err)

		_, err = w.ProcessFile(ctx, filepath.Join(dir, "missing.txt"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "reading transcript")
	})
}

func TestRun_ProcessesNewFiles(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{}
	w, err := New(dir, runner, nil, Options{Settle: 20 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "planning.txt")
	require.NoError(t, os.WriteFile(path, []byte("Carol: draft the plan"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("ignored"), 0o600))

	require.Eventually(t, func() bool {
		_, err := os.Stat(OutputPath(path))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-errCh)

	assert.Equal(t, []string{"planning.txt"}, runner.calls())
	assert.Equal(t, 1, readDocument(t, OutputPath(path)).TotalItems)
}

func TestRun_ProcessExisting(t *testing.T) {
	dir := t.TempDir()
	fresh := filepath.Join(dir, "fresh.txt")
	done := filepath.Join(dir, "done.txt")
	require.NoError(t, os.WriteFile(fresh, []byte("Alice: one"), 0o600))
	require.NoError(t, os.WriteFile(done, []byte("Alice: two"), 0o600))
	require.NoError(t, os.WriteFile(OutputPath(done), []byte("{}"), 0o600))

	runner := &fakeRunner{}
	w, err := New(dir, runner, nil, Options{Settle: 10 * time.Millisecond, ProcessExisting: true})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(OutputPath(fresh))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-errCh)
	assert.Equal(t, []string{"fresh.txt"}, runner.calls())
}
