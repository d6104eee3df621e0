// Package inbox watches a directory and runs the extraction pipeline on
// every transcript dropped into it.
//
// A transcript is any regular file ending in ".txt". Its results are
// written beside it as "<name>.actions.json" in the same document format
// the CLI prints.
package inbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/fyrsmithlabs/actiond/internal/logging"
	"github.com/fyrsmithlabs/actiond/internal/pipeline"
	"go.uber.org/zap"
)

const (
	transcriptExt = ".txt"
	outputExt     = ".actions.json"

	// DefaultSettle is how long a file must stay quiet before it is read.
	DefaultSettle = 500 * time.Millisecond
)

// ErrWatcherFailed is returned when the filesystem watcher cannot start.
var ErrWatcherFailed = errors.New("failed to start directory watcher")

// Runner runs the extraction pipeline over one transcript.
type Runner interface {
	Run(ctx context.Context, transcript, source string) (*pipeline.Result, error)
}

// Options tunes a Watcher.
type Options struct {
	// Settle is the quiet period after the last write before a file is
	// processed (default: DefaultSettle).
	Settle time.Duration

	// ProcessExisting processes transcripts already in the directory that
	// have no output file yet.
	ProcessExisting bool
}

// Watcher processes transcripts as they appear in a directory.
type Watcher struct {
	dir    string
	runner Runner
	logger *logging.Logger
	opts   Options

	mu      sync.Mutex
	pending map[string]*time.Timer
	ready   chan string
	done    chan struct{}
}

// New creates a Watcher for dir. The directory must exist.
func New(dir string, runner Runner, logger *logging.Logger, opts Options) (*Watcher, error) {
	if runner == nil {
		return nil, errors.New("runner is required")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("inbox directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("inbox directory: %s is not a directory", dir)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.Settle <= 0 {
		opts.Settle = DefaultSettle
	}
	return &Watcher{
		dir:     dir,
		runner:  runner,
		logger:  logger,
		opts:    opts,
		pending: make(map[string]*time.Timer),
		ready:   make(chan string, 16),
		done:    make(chan struct{}),
	}, nil
}

// Run watches the directory until ctx is cancelled. Files are processed
// one at a time in the order they settle. Run must not be called twice.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.done)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("%w: watching %s: %v", ErrWatcherFailed, w.dir, err)
	}
	w.logger.Info(ctx, "watching inbox", zap.String("dir", w.dir))

	if w.opts.ProcessExisting {
		w.scheduleExisting(ctx)
	}

	defer w.cancelPending()
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				if IsTranscript(event.Name) {
					w.schedule(event.Name)
				}
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn(ctx, "inbox watcher error", zap.Error(err))

		case path := <-w.ready:
			if _, err := w.ProcessFile(ctx, path); err != nil {
				w.logger.Error(ctx, "failed to process transcript",
					zap.String("path", path),
					zap.Error(err),
				)
			}
		}
	}
}

// schedule (re)starts the settle timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Reset(w.opts.Settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.opts.Settle, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		select {
		case w.ready <- path:
		case <-w.done:
		}
	})
}

func (w *Watcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) scheduleExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn(ctx, "failed to list inbox", zap.Error(err))
		return
	}
	for _, e := range entries {
		if e.IsDir() || !IsTranscript(e.Name()) {
			continue
		}
		path := filepath.Join(w.dir, e.Name())
		if _, err := os.Stat(OutputPath(path)); err == nil {
			continue
		}
		w.schedule(path)
	}
}

// ProcessFile runs the pipeline over the transcript at path and writes the
// document to OutputPath(path). It returns the output path.
func (w *Watcher) ProcessFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading transcript: %w", err)
	}

	source := filepath.Base(path)
	res, err := w.runner.Run(ctx, string(data), source)
	if err != nil {
		return "", fmt.Errorf("running pipeline on %s: %w", source, err)
	}

	out, err := json.MarshalIndent(res.Document(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding document: %w", err)
	}

	dst := OutputPath(path)
	if err := writeFileAtomic(dst, append(out, '\n')); err != nil {
		return "", err
	}

	w.logger.Info(ctx, "transcript processed",
		zap.String("source", source),
		zap.String("output", dst),
		zap.Int("items", len(res.Items)),
	)
	return dst, nil
}

// writeFileAtomic writes through a temp file so readers never see a
// partial document.
func writeFileAtomic(dst string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".actiond-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing output: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("renaming output: %w", err)
	}
	return nil
}

// IsTranscript reports whether name looks like an inbox transcript.
func IsTranscript(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, transcriptExt) && !strings.HasPrefix(base, ".")
}

// OutputPath returns where the document for the transcript at path goes.
func OutputPath(path string) string {
	return strings.TrimSuffix(path, transcriptExt) + outputExt
}
