package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/accented-ai/partitioncache/internal/fillworker"
	"github.com/accented-ai/partitioncache/internal/management"
	"github.com/accented-ai/partitioncache/internal/sqlfrag"
)

func newMaintenanceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Run the fill worker and prune stale bookkeeping",
	}

	cmd.AddCommand(newMaintenanceRunCommand(), newMaintenancePruneCommand())

	return cmd
}

func newMaintenanceRunCommand() *cobra.Command {
	var concurrency int

	var statementTimeout time.Duration

	var maxResultRows int

	var followGraph bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the external fragment generator and executor pool until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := loadDeps(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			worker := fillworker.New(fillworker.Config{
				Concurrency:      concurrency,
				StatementTimeout: statementTimeout,
				MaxResultRows:    maxResultRows,
				SqlfragOptions:   sqlfrag.Options{FollowGraph: followGraph},
			}, d.queue, d.cache, d.pool)

			ctx := cmd.Context()

			errCh := make(chan error, 2)

			go func() { errCh <- worker.Run(ctx) }()
			go func() { errCh <- worker.RunExecutors(ctx) }()

			if err := <-errCh; err != nil {
				return err
			}

			return <-errCh
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "number of fragment executor goroutines")
	cmd.Flags().DurationVar(&statementTimeout, "statement-timeout", 30*time.Second, "per-fragment statement timeout")
	cmd.Flags().IntVar(&maxResultRows, "max-result-rows", 0, "tombstone a fragment whose result exceeds this many rows (0 disables)")
	cmd.Flags().BoolVar(&followGraph, "follow-graph", true, "fragment only over connected table subgraphs instead of every table combination")

	return cmd
}

func newMaintenancePruneCommand() *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "prune [partition-key]",
		Short: "Remove bookkeeping for fragments with no recorded query text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDeps(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			mgr := management.NewManager(d.cache)

			n, err := mgr.PruneOldQueries(cmd.Context(), args[0], maxAge)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d entries\n", n)

			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 30*24*time.Hour, "accepted but not used: prune removes every hash without recorded query text, whatever its age")

	return cmd
}
