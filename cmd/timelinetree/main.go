// Package main provides the entry point for the timelinetree CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/timelinetree/cmd/timelinetree/commands"
	"github.com/Sumatoshi-tech/timelinetree/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	rootCmd := &cobra.Command{
		Use:   "timelinetree",
		Short: "Token-provenance history store builder",
		Long: `timelinetree derives a token-granularity provenance history store
from a pre-tokenized syntax repository, incrementally and append-only.

Commands:
  build     Extend the history store to the syntax ref's head`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewBuildCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "timelinetree %s (commit: %s, built: %s)\n",
				version.Version, version.Commit, version.Date)
		},
	}
}
