package main

import (
	"github.com/spf13/cobra"

	"ampliconflow/internal/engine"
)

func newRootCommand() *cobra.Command {
	return buildRootCommand(nil)
}

// buildRootCommand wires the command tree; a non-nil executor replaces the
// engine subprocess runner.
func buildRootCommand(executor engine.Executor) *cobra.Command {
	var configFlag string

	ctx := newCommandContext(&configFlag)
	ctx.executor = executor

	rootCmd := &cobra.Command{
		Use:           "ampliconflow",
		Short:         "Amplicon feature discovery with usearch or vsearch",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newRunsCommand(ctx))
	rootCmd.AddCommand(newDepsCommand(ctx))
	rootCmd.AddCommand(newLogsCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
