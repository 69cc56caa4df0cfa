package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ampliconflow/internal/config"
	"ampliconflow/internal/ledger"
	"ampliconflow/internal/services"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded runs",
	}
	runsCmd.AddCommand(newRunsListCommand(ctx))
	runsCmd.AddCommand(newRunsShowCommand(ctx))
	return runsCmd
}

func newRunsListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var statusFlags []string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := make([]ledger.Status, 0, len(statusFlags))
			for _, s := range statusFlags {
				statuses = append(statuses, ledger.Status(strings.ToLower(strings.TrimSpace(s))))
			}
			return ctx.withLedger(func(_ *config.Config, store *ledger.Store) error {
				runs, err := store.List(cmd.Context(), limit, statuses...)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, runs)
				}
				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded")
					return nil
				}
				rows := make([][]string, 0, len(runs))
				for _, run := range runs {
					features := "-"
					if run.Summary != nil {
						features = formatCount(run.Summary.Features)
					}
					rows = append(rows, []string{
						run.ID,
						titleWord(string(run.Status)),
						run.Mode,
						run.Backend,
						run.StartedAt.Local().Format(time.DateTime),
						formatDuration(run),
						features,
					})
				}
				fmt.Fprintln(out, renderTable(out,
					[]column{textCol("ID"), textCol("Status"), textCol("Mode"), textCol("Engine"), textCol("Started"), numCol("Duration"), numCol("Features")},
					rows,
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to show (0 for all)")
	cmd.Flags().StringSliceVar(&statusFlags, "status", nil, "Filter by status (running, completed, failed, abandoned)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print runs as JSON")
	return cmd
}

func newRunsShowCommand(ctx *commandContext) *cobra.Command {
	var showLogs bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run's summary, per-sample statistics and engine logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withLedger(func(_ *config.Config, store *ledger.Store) error {
				run, err := store.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				if run == nil {
					return services.Wrap(services.ErrNotFound, "runs", "show", fmt.Sprintf("run %s not found", id), nil)
				}
				samples, err := store.Samples(cmd.Context(), id)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Run:      %s\n", run.ID)
				fmt.Fprintf(out, "Status:   %s\n", titleWord(string(run.Status)))
				fmt.Fprintf(out, "Mode:     %s (%s)\n", run.Mode, run.Backend)
				if run.Manifest != "" {
					fmt.Fprintf(out, "Manifest: %s\n", run.Manifest)
				}
				if run.OutputDir != "" {
					fmt.Fprintf(out, "Results:  %s\n", run.OutputDir)
				}
				fmt.Fprintf(out, "Started:  %s\n", run.StartedAt.Local().Format(time.DateTime))
				fmt.Fprintf(out, "Duration: %s\n", formatDuration(run))
				if run.ErrorMessage != "" {
					fmt.Fprintf(out, "Error:    [%s] %s\n", run.ErrorKind, run.ErrorMessage)
				}
				if run.Summary != nil {
					fmt.Fprintf(out, "Summary:  %s\n", run.Summary.String())
				}

				if len(samples) > 0 {
					rows := make([][]string, 0, len(samples))
					for _, s := range samples {
						rows = append(rows, []string{
							s.SampleID,
							formatCount(s.Initial),
							formatCount(s.Passed),
							formatCount(s.Mapped),
							formatPercent(s.Mapped, s.Initial),
							formatCount(s.Chimera),
						})
					}
					fmt.Fprintln(out, renderTable(out,
						[]column{textCol("Sample"), numCol("Input"), numCol("Passed"), numCol("Mapped"), numCol("Mapped %"), numCol("Chimeric")},
						rows,
					))
				}

				if !showLogs {
					return nil
				}
				logs, err := store.Logs(cmd.Context(), id)
				if err != nil {
					return err
				}
				for _, entry := range logs {
					fmt.Fprintf(out, "\n== %s (%s) ==\n$ %s\n", entry.Stage, entry.Duration.Round(time.Millisecond), entry.Command)
					if entry.Text != "" {
						fmt.Fprintln(out, strings.TrimRight(entry.Text, "\n"))
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&showLogs, "logs", false, "Print the recorded engine logs")
	return cmd
}

func formatDuration(run *ledger.Run) string {
	if run.FinishedAt.IsZero() || run.StartedAt.IsZero() {
		return "-"
	}
	return run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String()
}
