package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/bookmark-summarizer/internal/api"
	"github.com/JakeFAU/bookmark-summarizer/internal/bookmarks"
	"github.com/JakeFAU/bookmark-summarizer/internal/config"
	"github.com/JakeFAU/bookmark-summarizer/internal/diagram"
	"github.com/JakeFAU/bookmark-summarizer/internal/fetcher"
	"github.com/JakeFAU/bookmark-summarizer/internal/logging"
	"github.com/JakeFAU/bookmark-summarizer/internal/pipeline"
	"github.com/JakeFAU/bookmark-summarizer/internal/policy/ratelimit"
	"github.com/JakeFAU/bookmark-summarizer/internal/progress"
	"github.com/JakeFAU/bookmark-summarizer/internal/progress/sinks"
	"github.com/JakeFAU/bookmark-summarizer/internal/summarizer"
	"github.com/JakeFAU/bookmark-summarizer/internal/writer"
)

type exportFlags struct {
	outputDir     string
	resume        bool
	checkError    bool
	progressFile  string
	dryRun        bool
	noDiagram     bool
	maxConcurrent int
	statusAddr    string
	reset         bool
}

// newExportCmd creates and configures the 'export' subcommand, which runs a
// full fetch-summarize-write pass over one bookmarks file.
func newExportCmd() *cobra.Command {
	var flags exportFlags
	cmd := &cobra.Command{
		Use:   "export <bookmarks.json>",
		Short: "Fetches, summarizes, and exports every bookmark",
		Long: `Parses a Chrome bookmarks JSON file and processes every bookmark in it:
the page is fetched, summarized through the configured LLM provider, and
written as a markdown file under the output directory. A progress file
records every outcome so --resume can pick up where a run stopped and
--check-error can retry only the bookmarks that failed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, args[0], flags)
		},
	}

	cmd.Flags().StringVar(&flags.outputDir, "output-dir", "", "output directory (overrides output.dir)")
	cmd.Flags().BoolVar(&flags.resume, "resume", false, "resume an interrupted run from the progress file")
	cmd.Flags().BoolVar(&flags.checkError, "check-error", false, "retry only bookmarks recorded as failed")
	cmd.Flags().StringVar(&flags.progressFile, "progress-file", "", "progress file path (default: <output-dir>/progress.json)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "parse and report decisions without fetching or writing")
	cmd.Flags().BoolVar(&flags.noDiagram, "no-diagram", false, "skip the Mermaid structure diagram")
	cmd.Flags().IntVar(&flags.maxConcurrent, "max-concurrent", 0, "maximum concurrent fetches (overrides fetch.max_concurrent)")
	cmd.Flags().StringVar(&flags.statusAddr, "status-addr", "", "serve progress and metrics over HTTP on this address")
	cmd.Flags().BoolVar(&flags.reset, "reset", false, "discard the progress file before starting")

	return cmd
}

func runExport(cmd *cobra.Command, bookmarksFile string, flags exportFlags) error {
	if flags.resume && flags.checkError {
		return errors.New("--resume and --check-error are mutually exclusive")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if flags.outputDir != "" {
		cfg.Output.Dir = flags.outputDir
	}
	if flags.maxConcurrent > 0 {
		cfg.Fetch.MaxConcurrent = flags.maxConcurrent
	}
	if flags.statusAddr != "" {
		cfg.Server.Addr = flags.statusAddr
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logger, err := logging.New(cfg.Logging.Development, level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root, err := bookmarks.NewParser(logger).ParseFile(bookmarksFile)
	if err != nil {
		return err
	}
	logger.Info("bookmarks parsed",
		zap.String("file", bookmarksFile),
		zap.Int("total", root.Count()))

	progressPath := flags.progressFile
	if progressPath == "" {
		progressPath = filepath.Join(cfg.Output.Dir, "progress.json")
	}
	store := progress.NewStore(progressPath, bookmarksFile, cfg.Fingerprint(), cfg.Output.SaveInterval, logger)
	if flags.reset {
		if err := store.Clear(); err != nil {
			return err
		}
	}

	mode := pipeline.ModeFresh
	if flags.resume {
		mode = pipeline.ModeResume
	}
	if flags.checkError {
		mode = pipeline.ModeCheckError
	}
	if mode != pipeline.ModeFresh {
		loaded, err := store.Load()
		if err != nil {
			return err
		}
		if !loaded && mode == pipeline.ModeCheckError {
			logger.Info("no usable progress file, nothing to recheck",
				zap.String("path", store.Path()))
			return nil
		}
	}

	fetchLimiter := ratelimit.New(ratelimit.Config{
		OnDelay: func(d time.Duration) { fetcher.RateLimitDelay.Observe(d.Seconds()) },
	})
	llmLimiter := ratelimit.New(ratelimit.Config{Limit: cfg.LLM.RateLimit})

	f := fetcher.New(fetcher.Config{
		Timeout:       cfg.FetchTimeout(),
		MaxConcurrent: cfg.Fetch.MaxConcurrent,
		MaxSizeBytes:  cfg.MaxSizeBytes(),
		RetryAttempts: cfg.Fetch.RetryAttempts,
		RetryDelay:    cfg.RetryDelay(),
		MaxRedirects:  cfg.Fetch.MaxRedirects,
		UserAgent:     cfg.Fetch.UserAgent,
	}, fetchLimiter, logger)

	sum, err := summarizer.New(cfg.LLM, llmLimiter, logger)
	if err != nil {
		return err
	}

	w, err := writer.New(cfg.Output, logger)
	if err != nil {
		return err
	}
	if !flags.dryRun {
		if err := w.EnsureFolders(root); err != nil {
			return err
		}
	}

	promSink, err := sinks.NewPrometheusSink(nil)
	if err != nil {
		return err
	}
	hub := progress.NewHub(progress.Config{Logger: logger}, sinks.NewLogSink(logger), promSink)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			logger.Warn("progress hub close", zap.Error(err))
		}
	}()

	if cfg.Server.Addr != "" {
		srv := api.NewServer(cfg.Server.Addr, store, nil, logger)
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("status server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutCtx); err != nil {
				logger.Warn("status server shutdown", zap.Error(err))
			}
		}()
	}

	p := pipeline.New(pipeline.Options{
		Mode:       mode,
		DryRun:     flags.dryRun,
		MaxWorkers: cfg.Fetch.MaxConcurrent,
	}, f, sum, w, store, hub, logger)

	result, runErr := p.Run(ctx, root)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}

	if !flags.dryRun && !flags.noDiagram && cfg.Output.GenerateDiagram {
		gen := diagram.NewGenerator(logger)
		diagramPath := filepath.Join(cfg.Output.Dir, "bookmarks_structure.md")
		if err := gen.Save(gen.Generate(root), diagramPath); err != nil {
			logger.Warn("diagram save failed", zap.Error(err))
		} else {
			logger.Info("diagram saved", zap.String("path", diagramPath))
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Processed: %d\n", result.Processed)
	fmt.Fprintf(out, "Failed:    %d\n", result.Failed)
	fmt.Fprintf(out, "Skipped:   %d\n", result.Skipped)
	if errors.Is(runErr, context.Canceled) {
		fmt.Fprintln(out, "Interrupted; progress saved. Re-run with --resume to continue.")
	}
	return nil
}
