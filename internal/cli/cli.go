// Package cli assembles the partitioncache command tree (§6 External
// Interfaces), the way pgtofu's internal/cli wired its own cobra commands:
// one root command, one subcommand per operational area, each resolving
// its own config/pool/backend rather than sharing global state.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/accented-ai/partitioncache/internal/errs"
)

type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

func Execute(ctx context.Context, info BuildInfo) error {
	rootCmd := newRootCommand()
	rootCmd.AddCommand(
		newSetupCommand(),
		newStatusCommand(),
		newCacheCommand(),
		newQueueCommand(),
		newMaintenanceCommand(),
		newProcessorCommand(),
		newServeCommand(),
		newVersionCommand(info),
	)

	return errs.Wrap("execute command", rootCmd.ExecuteContext(ctx))
}

func newRootCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "partitioncache",
		Short: "Fragment-level partition-key cache for analytical SQL",
		Long: `partitioncache memoizes, at fragment granularity, the partition-key value
sets that satisfy the conjuncts of repeated analytical queries, and rewrites
future matching queries to use those cached sets instead of re-scanning.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func newVersionCommand(info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("partitioncache %s\n", info.Version)
			fmt.Printf("  commit:     %s\n", info.Commit)
			fmt.Printf("  built:      %s\n", info.BuildTime)
		},
	}
}
