package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/accented-ai/partitioncache/internal/cronworker"
	"github.com/accented-ai/partitioncache/internal/errs"
)

func newProcessorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "processor",
		Short: "Manage the in-DBMS pg_cron fill worker",
	}

	cmd.AddCommand(
		newProcessorEnableCommand(),
		newProcessorDisableCommand(),
		newProcessorStatusCommand(),
		newProcessorLogsCommand(),
		newProcessorManualCommand(),
	)

	return cmd
}

func newProcessorEnableCommand() *cobra.Command {
	var interval time.Duration

	var batchSize int

	var statementTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "enable [partition-key]",
		Short: "Enable the pg_cron-driven in-DBMS fill job for a partition key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDeps(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			if d.pool == nil {
				return errs.New("cli.processor.enable", errs.KindConfiguration, "the in-DBMS processor requires a Postgres connection")
			}

			mgr := cronworker.NewManager(d.pool, d.cfg.TablePrefix)
			if err := mgr.EnsureSchema(cmd.Context()); err != nil {
				return err
			}

			return mgr.Enable(cmd.Context(), cronworker.Config{
				PartitionKey:     args[0],
				IntervalSeconds:  int(interval.Seconds()),
				BatchSize:        batchSize,
				StatementTimeout: statementTimeout,
			})
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "pg_cron invocation interval")
	cmd.Flags().IntVar(&batchSize, "batch-size", 10, "fragments processed per invocation")
	cmd.Flags().DurationVar(&statementTimeout, "statement-timeout", 30*time.Second, "per-fragment statement timeout")

	return cmd
}

func newProcessorDisableCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disable [partition-key]",
		Short: "Disable the in-DBMS fill job for a partition key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDeps(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			mgr := cronworker.NewManager(d.pool, d.cfg.TablePrefix)

			return mgr.Disable(cmd.Context(), args[0])
		},
	}
}

func newProcessorStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show every partition key's in-DBMS processor configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := loadDeps(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			mgr := cronworker.NewManager(d.pool, d.cfg.TablePrefix)

			statuses, err := mgr.Status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, s := range statuses {
				fmt.Fprintf(out, "%s\tenabled=%v\tinterval=%ds\tbatch=%d\n", s.PartitionKey, s.Enabled, s.IntervalSeconds, s.BatchSize)
			}

			return nil
		},
	}
}

func newProcessorLogsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "logs [partition-key]",
		Short: "Show recent in-DBMS processor log entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDeps(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			mgr := cronworker.NewManager(d.pool, d.cfg.TablePrefix)

			entries, err := mgr.Logs(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintf(out, "%s\t%s\t%s\n", e.CreatedAt.Format(time.RFC3339), e.PartitionKey, e.Message)
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum log entries to return")

	return cmd
}

func newProcessorManualCommand() *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "manual-process [partition-key]",
		Short: "Record a manual in-DBMS processing request, outside the pg_cron schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDeps(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			mgr := cronworker.NewManager(d.pool, d.cfg.TablePrefix)

			n, err := mgr.ManualProcess(cmd.Context(), args[0], batchSize)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "requested manual batch of %d fragments\n", n)

			return nil
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", 10, "fragments to process in this batch")

	return cmd
}
