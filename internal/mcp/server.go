// Package mcp exposes the extraction pipeline as an MCP tool over stdio.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/actiond/internal/actionitem"
	"github.com/fyrsmithlabs/actiond/internal/logging"
	"github.com/fyrsmithlabs/actiond/internal/pipeline"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// ToolExtract is the name of the extraction tool.
const ToolExtract = "extract_action_items"

// Runner runs the extraction pipeline over one transcript.
type Runner interface {
	Run(ctx context.Context, transcript, source string) (*pipeline.Result, error)
}

// Server is an MCP server backed by a pipeline Runner.
type Server struct {
	mcp     *mcp.Server
	runner  Runner
	metrics *Metrics
	logger  *logging.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "actiond")
	Name string

	// Version is the server version (default: "dev")
	Version string

	// Logger for structured logging
	Logger *logging.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "actiond",
		Version: "dev",
		Logger:  logging.NewNop(),
	}
}

// NewServer creates an MCP server with the extraction tool registered.
func NewServer(cfg *Config, runner Runner) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}

	s := &Server{
		mcp: mcp.NewServer(
			&mcp.Implementation{
				Name:    cfg.Name,
				Version: cfg.Version,
			},
			nil,
		),
		runner:  runner,
		metrics: NewMetrics(cfg.Logger),
		logger:  cfg.Logger,
	}
	s.registerTools()

	return s, nil
}

type extractInput struct {
	Source     string `json:"source,omitempty" jsonschema:"identifier of the transcript, e.g. a file name or meeting id"`
	Transcript string `json:"transcript" jsonschema:"meeting transcript, one 'Speaker: text' line per utterance"`
}

type extractOutput struct {
	RunID      string                  `json:"run_id"`
	Source     string                  `json:"source"`
	TotalItems int                     `json:"total_items"`
	Items      []actionitem.ActionItem `json:"items"`
	Chunks     int                     `json:"chunks"`
	Candidates int                     `json:"candidates"`
	Rejected   int                     `json:"rejected"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolExtract,
		Description: "Extract action items (task, owner, deadline, confidence) from a meeting transcript",
	}, s.handleExtract)
}

func (s *Server) handleExtract(ctx context.Context, _ *mcp.CallToolRequest, args extractInput) (*mcp.CallToolResult, extractOutput, error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, ToolExtract)
	var toolErr error
	defer func() {
		s.metrics.DecrementActive(ctx, ToolExtract)
		s.metrics.RecordInvocation(ctx, ToolExtract, time.Since(start), toolErr)
	}()

	if strings.TrimSpace(args.Transcript) == "" {
		toolErr = errors.New("invalid input: transcript is required")
		return nil, extractOutput{}, toolErr
	}
	source := args.Source
	if source == "" {
		source = "mcp"
	}

	res, err := s.runner.Run(ctx, args.Transcript, source)
	if err != nil {
		toolErr = fmt.Errorf("extraction failed: %w", err)
		s.logger.Warn(ctx, "mcp extraction failed", zap.Error(err))
		return nil, extractOutput{}, toolErr
	}

	doc := res.Document()
	out := extractOutput{
		RunID:      res.RunID,
		Source:     doc.Source,
		TotalItems: doc.TotalItems,
		Items:      doc.Items,
		Chunks:     res.Stats.Chunks,
		Candidates: res.Stats.Candidates,
		Rejected:   res.Stats.Rejected,
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: summarize(out)},
		},
	}, out, nil
}

func summarize(out extractOutput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d action item(s) in %s", out.TotalItems, out.Source)
	for _, item := range out.Items {
		fmt.Fprintf(&sb, "\n- %s (owner: %s", item.Task, item.Owner)
		if item.Deadline != nil {
			fmt.Fprintf(&sb, ", deadline: %s", *item.Deadline)
		}
		fmt.Fprintf(&sb, ", confidence: %.2f)", item.Confidence)
	}
	return sb.String()
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
