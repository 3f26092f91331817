package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/anatolykoptev/go-mcpserver"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/anatolykoptev/go_ytledger/internal/archive"
	"github.com/anatolykoptev/go_ytledger/internal/engine"
	"github.com/anatolykoptev/go_ytledger/internal/engine/sources"
	"github.com/anatolykoptev/go_ytledger/internal/enrich"
	"github.com/anatolykoptev/go_ytledger/internal/ledger"
	"github.com/anatolykoptev/go_ytledger/internal/ledgerserver"
	"github.com/anatolykoptev/go_ytledger/internal/logging"
	"github.com/anatolykoptev/go_ytledger/internal/pipeline"
)

const modePrompt = "Enter the action that you need to perform: "

// app carries state shared by every subcommand: the resolved configuration and
// the resources opened for it, released in reverse order by close.
type app struct {
	configPath string
	cfg        engine.Config
	closers    []io.Closer
}

func (a *app) load() error {
	cfg, err := engine.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	logCloser, err := logging.Setup(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, logCloser)
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			slog.Warn("shutdown: close failed", slog.Any("error", err))
		}
	}
	a.closers = nil
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "go_ytledger [mode]",
		Short:         "Scrape, store and enrich conference talk videos",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.load()
		},
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := ""
			if len(args) == 1 {
				mode = args[0]
			} else {
				var err error
				if mode, err = promptMode(cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
					return err
				}
			}
			return a.runFlow(cmd.Context(), mode, false)
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "TOML configuration file path")

	for _, mode := range pipeline.Modes {
		root.AddCommand(newFlowCommand(a, mode))
	}
	root.AddCommand(newServeCommand(a))
	root.AddCommand(newVersionCommand())
	return root
}

// promptMode reads one flow name from in.
func promptMode(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, modePrompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read mode: %w", err)
	}
	return strings.TrimSpace(line), nil
}

var flowDescriptions = map[string]string{
	pipeline.ModeGetPlaylistDetails: "Discover event videos and store metadata and transcripts",
	pipeline.ModeGenerateSummary:    "Enrich stored transcripts with model-extracted insights",
	pipeline.ModeUploadSummary:      "Archive title, transcript and summary documents",
	pipeline.ModeUpdateViewCount:    "Refresh view counts for the event year",
}

func newFlowCommand(a *app, mode string) *cobra.Command {
	var transcriptsOnly bool
	cmd := &cobra.Command{
		Use:   mode,
		Short: flowDescriptions[mode],
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runFlow(cmd.Context(), mode, transcriptsOnly)
		},
	}
	if mode == pipeline.ModeUploadSummary {
		cmd.Flags().BoolVar(&transcriptsOnly, "transcripts-only", false, "Write transcript-only documents under youtube_transcripts/")
	}
	return cmd
}

func (a *app) runFlow(ctx context.Context, mode string, transcriptsOnly bool) error {
	defer a.close()
	driver, err := a.buildDriver(ctx, mode)
	if err != nil {
		return err
	}
	driver.TranscriptsOnly = transcriptsOnly

	start := time.Now()
	rep, err := driver.Run(ctx, mode)
	slog.Info("run complete",
		slog.String("mode", mode),
		slog.Duration("elapsed", time.Since(start)),
		slog.Int("processed", rep.Processed),
		slog.Int("failed", rep.Failed))
	slog.Debug("metrics", slog.String("counters", engine.FormatMetrics()))
	return err
}

// buildDriver opens only the collaborators mode needs.
func (a *app) buildDriver(ctx context.Context, mode string) (*pipeline.Driver, error) {
	if !slices.Contains(pipeline.Modes, mode) {
		return nil, fmt.Errorf("%w: %q (want one of %s)", pipeline.ErrUnknownMode, mode, strings.Join(pipeline.Modes, ", "))
	}
	store, err := ledger.Open(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store)
	deps := pipeline.Deps{Store: store}

	switch mode {
	case pipeline.ModeGetPlaylistDetails, pipeline.ModeUpdateViewCount:
		cache := engine.NewPageCache(a.cfg.RedisURL, a.cfg.CacheTTL, a.cfg.CacheMaxEntries, a.cfg.CacheCleanupInterval)
		a.closers = append(a.closers, cache)
		yt := sources.NewYouTube(engine.NewFetcher(a.cfg.HTTPClient, cache, a.cfg.FetchTimeout))
		deps.Lister = sources.NewDiscoverer(yt, a.cfg.PageDelay, nil)
		deps.Details = sources.NewDetailFetcher(yt)
		deps.Transcripts = sources.NewTranscriptFetcher(yt)
	case pipeline.ModeGenerateSummary:
		inv, err := enrich.Open(ctx, a.cfg)
		if err != nil {
			return nil, err
		}
		deps.Enricher = inv
	case pipeline.ModeUploadSummary:
		arch, err := archive.Open(ctx, a.cfg)
		if err != nil {
			return nil, err
		}
		deps.Archiver = arch
	}
	return pipeline.New(deps, a.cfg), nil
}

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the ledger read-only over MCP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer a.close()
			store, err := ledger.Open(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			a.closers = append(a.closers, store)

			server := mcp.NewServer(&mcp.Implementation{Name: "go_ytledger", Version: version}, nil)
			ledgerserver.RegisterTools(server, store)
			slog.Info("starting go_ytledger MCP server",
				slog.String("port", a.cfg.MCPPort),
				slog.String("backend", a.cfg.LedgerBackend))

			return mcpserver.Run(server, mcpserver.Config{
				Name:         "go_ytledger",
				Version:      version,
				Port:         a.cfg.MCPPort,
				WriteTimeout: 120 * time.Second,
				Metrics:      engine.FormatMetrics,
			})
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
