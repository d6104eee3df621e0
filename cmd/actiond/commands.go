package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	nethttp "net/http"
	"os"
	"time"

	"github.com/fyrsmithlabs/actiond/internal/config"
	"github.com/fyrsmithlabs/actiond/internal/http"
	"github.com/fyrsmithlabs/actiond/internal/inbox"
	"github.com/fyrsmithlabs/actiond/internal/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func (a *app) runCmd() *cobra.Command {
	var (
		threshold    float64
		strategy     string
		chunkMinutes int
		provider     string
		model        string
		showStats    bool
	)

	cmd := &cobra.Command{
		Use:   "run <transcript_file> [output_file]",
		Short: "Extract action items from a transcript file",
		Long: `Extract action items from a transcript file and print the resulting
JSON document. When output_file is given the document is also written there.

Examples:
  actiond run standup.txt
  actiond run standup.txt standup.actions.json --threshold 0.6
  actiond run planning.txt --strategy time_based --chunk-minutes 5 --stats`,
		Args: usageArgs(cobra.RangeArgs(1, 2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			input := args[0]

			transcript, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("reading transcript: %w", err)
			}

			flags := cmd.Flags()
			d, err := a.setup(ctx, func(cfg *config.Config) {
				if flags.Changed("threshold") {
					cfg.Pipeline.ConfidenceThreshold = threshold
				}
				if flags.Changed("strategy") {
					cfg.Pipeline.ChunkStrategy = strategy
				}
				if flags.Changed("chunk-minutes") {
					cfg.Pipeline.ChunkSizeMinutes = chunkMinutes
				}
				if flags.Changed("provider") {
					cfg.LLM.Provider = provider
				}
				if flags.Changed("model") {
					cfg.LLM.Model = model
				}
			})
			if err != nil {
				return err
			}
			defer d.Close(context.WithoutCancel(ctx))

			res, err := d.pipeline.Run(ctx, string(transcript), input)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(res.Document(), "", "  ")
			if err != nil {
				return fmt.Errorf("encoding document: %w", err)
			}

			if len(args) == 2 {
				if err := os.WriteFile(args[1], out, 0o644); err != nil {
					return fmt.Errorf("writing output: %w", err)
				}
				d.logger.Info(ctx, "results saved", zap.String("path", args[1]))
			}

			fmt.Fprintln(a.stdout, string(out))

			if showStats {
				stats, err := json.MarshalIndent(res.Stats, "", "  ")
				if err != nil {
					return fmt.Errorf("encoding stats: %w", err)
				}
				fmt.Fprintln(a.stderr, string(stats))
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&threshold, "threshold", 0, "minimum confidence for an item to be kept (0-1)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "chunk strategy: speaker_turns or time_based")
	cmd.Flags().IntVar(&chunkMinutes, "chunk-minutes", 0, "approximate chunk length for time_based chunking")
	cmd.Flags().StringVar(&provider, "provider", "", "text generation provider: openai, anthropic or ollama")
	cmd.Flags().StringVar(&model, "model", "", "model name")
	cmd.Flags().BoolVar(&showStats, "stats", false, "print run statistics to stderr")

	return cmd
}

func (a *app) serveCmd() *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			flags := cmd.Flags()
			d, err := a.setup(ctx, func(cfg *config.Config) {
				if flags.Changed("host") {
					cfg.Server.Host = host
				}
				if flags.Changed("port") {
					cfg.Server.Port = port
				}
			})
			if err != nil {
				return err
			}
			defer d.Close(context.WithoutCancel(ctx))

			server, err := http.NewServer(d.pipeline, d.logger, &http.Config{
				Host: d.cfg.Server.Host,
				Port: d.cfg.Server.Port,
			})
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() {
				if err := server.Start(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.Server.ShutdownTimeout.Duration())
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("http server shutdown: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "listen host (default from config)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default from config)")
	return cmd
}

func (a *app) mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the extraction tool over MCP stdio",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			d, err := a.setup(ctx, nil)
			if err != nil {
				return err
			}
			defer d.Close(context.WithoutCancel(ctx))

			server, err := mcp.NewServer(&mcp.Config{
				Name:    "actiond",
				Version: version,
				Logger:  d.logger,
			}, d.pipeline)
			if err != nil {
				return err
			}
			if err := server.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}

func (a *app) watchCmd() *cobra.Command {
	var (
		settle   time.Duration
		existing bool
	)

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Process every transcript dropped into a directory",
		Long: `Watch a directory and run extraction on each new *.txt file, writing
<name>.actions.json beside it.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := a.setup(ctx, nil)
			if err != nil {
				return err
			}
			defer d.Close(context.WithoutCancel(ctx))

			w, err := inbox.New(args[0], d.pipeline, d.logger, inbox.Options{
				Settle:          settle,
				ProcessExisting: existing,
			})
			if err != nil {
				return err
			}
			return w.Run(ctx)
		},
	}

	cmd.Flags().DurationVar(&settle, "settle", inbox.DefaultSettle, "quiet period before a written file is processed")
	cmd.Flags().BoolVar(&existing, "existing", false, "also process transcripts already in the directory")
	return cmd
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  usageArgs(cobra.NoArgs),
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(a.stdout, "actiond %s\n", version)
			fmt.Fprintf(a.stdout, "  Build date: %s\n", buildDate)
		},
	}
}
