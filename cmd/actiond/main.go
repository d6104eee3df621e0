// Package main implements the actiond CLI: extract action items from
// meeting transcripts from the command line, over HTTP, over MCP stdio, or
// from a watched inbox directory.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fyrsmithlabs/actiond/internal/config"
	"github.com/fyrsmithlabs/actiond/internal/llm"
	"github.com/spf13/cobra"
)

// Set at build time via -ldflags.
var (
	version   = "dev"
	buildDate = "unknown"
)

// clientFactory builds the per-stage text generation clients.
type clientFactory func(cfg config.LLMConfig, redactor llm.Redactor) (*llm.StageClients, error)

// app carries state shared by every command.
type app struct {
	stdout     io.Writer
	stderr     io.Writer
	newClients clientFactory

	configPath string
	logLevel   string
	logFormat  string
}

func newApp() *app {
	return &app{
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		newClients: llm.NewStageClients,
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().rootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actiond",
		Short: "Extract action items from meeting transcripts",
		Long: `actiond turns a meeting transcript into a list of action items, each
with a task, an owner, an optional deadline and a confidence score.

Examples:
  # Extract from a file and print the document
  actiond run meeting.txt

  # Also write it to a file and print run statistics
  actiond run meeting.txt actions.json --stats

  # Serve the HTTP API
  actiond serve`,
		Version:       fmt.Sprintf("%s (built %s)", version, buildDate),
		SilenceUsage: true,
	}
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ~/.config/actiond/config.yaml)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "log format: json or console")

	cmd.AddCommand(
		a.runCmd(),
		a.serveCmd(),
		a.mcpCmd(),
		a.watchCmd(),
		a.versionCmd(),
	)

	return cmd
}

// usageArgs wraps an argument validator so a mistake prints usage before
// the error.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			_ = cmd.Usage()
			return err
		}
		return nil
	}
}
