package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/accented-ai/partitioncache/internal/config"
	"github.com/accented-ai/partitioncache/internal/queue"
)

func newSetupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Create the Postgres queue tables (when the Postgres queue provider is configured)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := loadDeps(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			if d.cfg.QueueProvider == config.QueuePostgreSQL {
				if pgQueue, ok := d.queue.(*queue.PostgresProvider); ok {
					if err := pgQueue.EnsureSchema(cmd.Context()); err != nil {
						return err
					}
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), "setup complete")

			return nil
		},
	}
}
