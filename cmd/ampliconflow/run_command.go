package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"ampliconflow/internal/config"
	"ampliconflow/internal/ledger"
	"ampliconflow/internal/logging"
	"ampliconflow/internal/manifest"
	"ampliconflow/internal/output"
	"ampliconflow/internal/pipeline"
	"ampliconflow/internal/preflight"
	"ampliconflow/internal/services"
	"ampliconflow/internal/workspace"
)

type runOptions struct {
	manifestPath  string
	mode          string
	outDir        string
	keepWorkspace bool
	skipPreflight bool
	jsonOutput    bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Discover features for the samples of a manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeRun(cmd, ctx, opts)
		},
	}

	modes := make([]string, 0, 3)
	for _, m := range pipeline.Modes() {
		modes = append(modes, string(m))
	}
	cmd.Flags().StringVarP(&opts.manifestPath, "manifest", "m", "", "Manifest CSV (or directory containing MANIFEST)")
	cmd.Flags().StringVar(&opts.mode, "mode", string(pipeline.ModeDenoise), "Feature discovery mode: "+strings.Join(modes, ", "))
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "", "Results directory (default: <output_dir>/<run id>)")
	cmd.Flags().BoolVar(&opts.keepWorkspace, "keep-workspace", false, "Keep the run's scratch directory")
	cmd.Flags().BoolVar(&opts.skipPreflight, "skip-preflight", false, "Skip engine and directory checks")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print the run summary as JSON")
	_ = cmd.MarkFlagRequired("manifest")
	return cmd
}

func executeRun(cmd *cobra.Command, ctx *commandContext, opts runOptions) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}
	if opts.keepWorkspace {
		cfg.Paths.KeepWorkspace = true
	}

	mode, err := pipeline.ParseMode(opts.mode)
	if err != nil {
		return err
	}
	m, err := manifest.Load(opts.manifestPath)
	if err != nil {
		return err
	}
	if !opts.skipPreflight {
		if err := preflight.Err(preflight.RunAll(cmd.Context(), cfg)); err != nil {
			return err
		}
	}

	runID := uuid.NewString()
	outDir := strings.TrimSpace(opts.outDir)
	if outDir == "" {
		outDir = filepath.Join(cfg.Paths.OutputDir, runID)
	} else if outDir, err = config.ExpandPath(outDir); err != nil {
		return services.Wrap(services.ErrConfiguration, "run", "resolve output", opts.outDir, err)
	}

	return ctx.withLedger(func(cfg *config.Config, store *ledger.Store) error {
		runCtx := cmd.Context()
		if abandoned, err := store.MarkAbandoned(runCtx, time.Now().Add(-workspace.DefaultStaleAge)); err != nil {
			logger.Warn("failed to close out abandoned runs", logging.Error(err))
		} else if abandoned > 0 {
			logger.Info("closed out abandoned runs", logging.Int64("count", abandoned))
		}

		if err := store.Begin(runCtx, ledger.Start{
			ID:        runID,
			Mode:      string(mode),
			Backend:   cfg.Engine.Backend,
			Manifest:  m.Path,
			OutputDir: outDir,
			StartedAt: time.Now(),
		}); err != nil {
			return err
		}

		published, err := runAndPublish(runCtx, ctx, cfg, m, mode, runID, outDir)
		if err != nil {
			// The ledger write must survive a cancelled run context.
			if failErr := store.Fail(context.WithoutCancel(runCtx), runID, err); failErr != nil {
				logger.Warn("failed to record run failure", logging.Error(failErr))
			}
			return err
		}
		if err := store.Complete(runCtx, runID, published.completion); err != nil {
			return fmt.Errorf("record run: %w", err)
		}

		if opts.jsonOutput {
			return writeJSON(cmd, published.summary)
		}
		printRunSummary(cmd, published.summary, published.dir)
		return nil
	})
}

type publishedRun struct {
	dir        string
	summary    output.RunSummary
	completion ledger.Completion
}

func runAndPublish(ctx context.Context, cc *commandContext, cfg *config.Config, m *manifest.Manifest, mode pipeline.Mode, runID, outDir string) (publishedRun, error) {
	logger, err := cc.ensureLogger()
	if err != nil {
		return publishedRun{}, err
	}
	opts := []pipeline.Option{pipeline.WithLogger(logger)}
	if cc.executor != nil {
		opts = append(opts, pipeline.WithExecutor(cc.executor))
	}
	runner, err := pipeline.New(cfg, opts...)
	if err != nil {
		return publishedRun{}, err
	}
	out, err := runner.Run(ctx, pipeline.Request{Manifest: m, Mode: mode, RunID: runID})
	if err != nil {
		return publishedRun{}, err
	}
	published, err := output.Write(ctx, out, output.Options{
		Dir:          outDir,
		StagingDir:   cfg.Paths.WorkDir,
		ManifestPath: m.Path,
		Logger:       logger,
	})
	if err != nil {
		return publishedRun{}, err
	}
	return publishedRun{
		dir:        published.Dir,
		summary:    published.Summary,
		completion: ledger.CompletionFromOutputs(out),
	}, nil
}

func printRunSummary(cmd *cobra.Command, summary output.RunSummary, dir string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s (%s, %s)\n", summary.RunID, summary.Mode, summary.Backend)
	fmt.Fprintf(out, "Reads: %s total, %s unique, %s singletons\n",
		formatCount(summary.Summary.TotalReads),
		formatCount(summary.Summary.UniqueReads),
		formatCount(summary.Summary.Singletons),
	)
	fmt.Fprintf(out, "Features: %s %s, %s chimeric amplicons\n",
		formatCount(summary.Summary.Features),
		summary.Summary.FeatureLabel,
		formatCount(summary.Summary.Chimeras),
	)
	if summary.Summary.Reclustered > 0 {
		fmt.Fprintf(out, "Re-clustered: %s OTUs\n", formatCount(summary.Summary.Reclustered))
	}
	if len(summary.IdentifierPairs) > 0 {
		fmt.Fprintf(out, "Sample identifiers were replaced by %d engine-safe surrogates and restored\n", len(summary.IdentifierPairs))
	}
	fmt.Fprintf(out, "Results: %s\n", dir)
}
