// Package chunker splits transcripts into ordered, non-overlapping chunks.
//
// Two strategies are supported. Speaker turns start a new chunk whenever
// the speaker changes. Time-based chunking groups a fixed number of lines
// per chunk, estimated at roughly 30 lines per minute of conversation;
// it is a line-count approximation and does not read timestamps.
package chunker

import (
	"context"
	"strings"

	"github.com/fyrsmithlabs/actiond/internal/actionitem"
	"github.com/fyrsmithlabs/actiond/internal/logging"
	"go.uber.org/zap"
)

// Strategy names.
const (
	SpeakerTurns = "speaker_turns"
	TimeBased    = "time_based"
)

// UnknownSpeaker is assigned to lines without a "speaker:" prefix.
const UnknownSpeaker = "Unknown"

// linesPerMinute is an uncalibrated estimate of transcript density.
const linesPerMinute = 30

// Chunker splits transcripts with a fixed strategy.
type Chunker struct {
	strategy string
	minutes  int
	logger   *logging.Logger
}

// New creates a Chunker. Minutes below 1 are treated as 1 and only affect
// the time-based strategy. A nil logger discards output.
func New(strategy string, minutesPerChunk int, logger *logging.Logger) *Chunker {
	if logger == nil {
		logger = logging.NewNop()
	}
	if minutesPerChunk < 1 {
		minutesPerChunk = 1
	}
	return &Chunker{
		strategy: strategy,
		minutes:  minutesPerChunk,
		logger:   logger,
	}
}

// Chunk splits text into chunks numbered contiguously from 0. Concatenating
// the lines of every chunk in order yields the non-empty lines of text.
// An unknown strategy falls back to speaker turns with a warning.
func (c *Chunker) Chunk(ctx context.Context, text, source string) []actionitem.Chunk {
	lines := ParseLines(text)

	var chunks []actionitem.Chunk
	switch c.strategy {
	case SpeakerTurns:
		chunks = bySpeakerTurns(lines, source)
	case TimeBased:
		chunks = byLineCount(lines, source, BatchSize(len(lines), c.minutes))
	default:
		c.logger.Warn(ctx, "unknown chunk strategy, using speaker turns",
			zap.String("strategy", c.strategy),
			zap.String("fallback", SpeakerTurns),
		)
		chunks = bySpeakerTurns(lines, source)
	}

	c.logger.Debug(ctx, "chunked transcript",
		zap.Int("lines", len(lines)),
		zap.Int("chunks", len(chunks)),
	)
	return chunks
}

// ParseLines splits text on newlines, drops blank lines and separates the
// speaker from the content at the first colon.
func ParseLines(text string) []actionitem.Line {
	raw := strings.Split(text, "\n")
	lines := make([]actionitem.Line, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSuffix(r, "\r")
		if strings.TrimSpace(r) == "" {
			continue
		}
		line := actionitem.Line{Raw: r, Speaker: UnknownSpeaker, Content: r}
		if speaker, content, ok := strings.Cut(r, ":"); ok {
			line.Speaker = strings.TrimSpace(speaker)
			line.Content = strings.TrimSpace(content)
		}
		lines = append(lines, line)
	}
	return lines
}

// BatchSize returns the number of lines per time-based chunk for n lines.
func BatchSize(n, minutes int) int {
	if minutes < 1 {
		minutes = 1
	}
	return max(1, n/max(1, n/(minutes*linesPerMinute)))
}

func bySpeakerTurns(lines []actionitem.Line, source string) []actionitem.Chunk {
	var (
		chunks []actionitem.Chunk
		start  int
	)
	for i := 1; i <= len(lines); i++ {
		if i < len(lines) && lines[i].Speaker == lines[start].Speaker {
			continue
		}
		chunk := newChunk(len(chunks), source, SpeakerTurns, lines[start:i])
		chunk.Speaker = lines[start].Speaker
		chunks = append(chunks, chunk)
		start = i
	}
	return chunks
}

func byLineCount(lines []actionitem.Line, source string, size int) []actionitem.Chunk {
	var chunks []actionitem.Chunk
	for start := 0; start < len(lines); start += size {
		end := min(start+size, len(lines))
		chunks = append(chunks, newChunk(len(chunks), source, TimeBased, lines[start:end]))
	}
	return chunks
}

func newChunk(index int, source, strategy string, lines []actionitem.Line) actionitem.Chunk {
	raw := make([]string, len(lines))
	for i, l := range lines {
		raw[i] = l.Raw
	}
	return actionitem.Chunk{
		Index:    index,
		Source:   source,
		Strategy: strategy,
		NumLines: len(lines),
		Lines:    append([]actionitem.Line(nil), lines...),
		Text:     strings.Join(raw, "\n"),
	}
}
