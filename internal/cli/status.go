package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/accented-ai/partitioncache/internal/management"
	"github.com/accented-ai/partitioncache/internal/metrics"
)

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report per-partition-key cache size and queue depth",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := loadDeps(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			mgr := management.NewManager(d.cache)

			statuses, err := mgr.Status(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			for _, s := range statuses {
				fmt.Fprintf(out, "%s\t%s\tbitsize=%d\tentries=%d\n", s.Meta.Name, s.Meta.Datatype, s.Meta.Bitsize, s.EntryCount)
			}

			queryLen, err := d.queue.QueryLength(cmd.Context())
			if err != nil {
				return err
			}

			fragLen, err := d.queue.FragmentLength(cmd.Context())
			if err != nil {
				return err
			}

			metrics.QueueDepth.WithLabelValues("queries").Set(float64(queryLen))
			metrics.QueueDepth.WithLabelValues("fragments").Set(float64(fragLen))

			fmt.Fprintf(out, "queue: queries=%d fragments=%d\n", queryLen, fragLen)

			return nil
		},
	}
}
