// Package cmd defines and implements the CLI commands for the
// bookmark-summarizer executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bookmark-summarizer",
		Short: "Exports Chrome bookmarks as summarized markdown files.",
		Long: `bookmark-summarizer reads a Chrome bookmarks JSON file, fetches every
bookmarked page, asks an LLM for a short summary, and writes the result
as a markdown tree mirroring the bookmark folders. Progress is
checkpointed so an interrupted run can be resumed.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML; env vars with prefix BOOKMARKS also apply)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug level logging")

	cmd.AddCommand(newExportCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
