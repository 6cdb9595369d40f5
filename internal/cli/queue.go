package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newQueueCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the query/fragment queues",
	}

	cmd.AddCommand(newQueuePushCommand(), newQueueLengthCommand(), newQueueClearCommand())

	return cmd
}

func newQueuePushCommand() *cobra.Command {
	var partitionKey string

	var priority int

	cmd := &cobra.Command{
		Use:   "push [sql]",
		Short: "Enqueue an original query for fragmentation and fill",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDeps(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			return d.queue.PushQuery(cmd.Context(), queueJob(partitionKey, args[0], priority))
		},
	}

	cmd.Flags().StringVar(&partitionKey, "partition-key", "", "partition key this query targets")
	cmd.Flags().IntVar(&priority, "priority", 0, "queue priority")
	_ = cmd.MarkFlagRequired("partition-key")

	return cmd
}

func newQueueLengthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "length",
		Short: "Print current queue depths",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := loadDeps(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			queryLen, err := d.queue.QueryLength(cmd.Context())
			if err != nil {
				return err
			}

			fragLen, err := d.queue.FragmentLength(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "queries=%d fragments=%d\n", queryLen, fragLen)

			return nil
		},
	}
}

func newQueueClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop every pending job from both queues",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := loadDeps(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			if err := d.queue.ClearQueries(cmd.Context()); err != nil {
				return err
			}

			return d.queue.ClearFragments(cmd.Context())
		},
	}
}
