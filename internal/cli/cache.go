package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/accented-ai/partitioncache/internal/errs"
	"github.com/accented-ai/partitioncache/internal/management"
	"github.com/accented-ai/partitioncache/internal/rewrite"
	"github.com/accented-ai/partitioncache/internal/schema"
	"github.com/accented-ai/partitioncache/internal/sqlfrag"
)

func newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage cached fragment entries",
	}

	cmd.AddCommand(
		newCacheRegisterCommand(),
		newCacheTeardownCommand(),
		newCacheEvictCommand(),
		newCacheCountCommand(),
		newCacheOverviewCommand(),
		newCacheExportCommand(),
		newCacheImportCommand(),
		newCacheDeleteCommand(),
		newCacheCopyCommand(),
		newCacheApplyCommand(),
	)

	return cmd
}

func newCacheRegisterCommand() *cobra.Command {
	var datatype string

	var bitsize int

	cmd := &cobra.Command{
		Use:   "register [partition-key]",
		Short: "Register a partition key's datatype",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDeps(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			dt := schema.Datatype(datatype)
			if !dt.Valid() {
				return errs.New("cli.cache.register", errs.KindConfiguration, "invalid datatype: "+datatype)
			}

			return d.cache.RegisterPartitionKey(cmd.Context(), args[0], dt, bitsize)
		},
	}

	cmd.Flags().StringVar(&datatype, "datatype", string(schema.DatatypeInteger), "partition key datatype")
	cmd.Flags().IntVar(&bitsize, "bitsize", 0, "fixed-width bitsize, for bitstring/bitmap backends")

	return cmd
}

func newCacheTeardownCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "teardown [partition-key]",
		Short: "Delete every cached entry for a partition key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDeps(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			mgr := management.NewManager(d.cache)

			return mgr.Teardown(cmd.Context(), args[0])
		},
	}
}

func newCacheEvictCommand() *cobra.Command {
	var strategy string

	var keep int

	cmd := &cobra.Command{
		Use:   "evict [partition-key]",
		Short: "Evict entries until at most --keep remain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDeps(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			mgr := management.NewManager(d.cache)

			n, err := mgr.Evict(cmd.Context(), args[0], management.EvictionStrategy(strategy), keep)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "evicted %d entries\n", n)

			return nil
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", string(management.EvictOldest), "eviction strategy: oldest or largest")
	cmd.Flags().IntVar(&keep, "keep", 0, "number of entries to retain")

	return cmd
}

func newCacheCountCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "count [partition-key]",
		Short: "Print the number of cached entries for a partition key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDeps(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			keys, err := d.cache.GetAllKeys(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), len(keys))

			return nil
		},
	}
}

func newCacheOverviewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "overview",
		Short: "List every registered partition key with its entry count and datatype",
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
				fmt.Fprintf(out, "%s\tdatatype=%s\tbitsize=%d\tentries=%d\n", s.Meta.Name, s.Meta.Datatype, s.Meta.Bitsize, s.EntryCount)
			}

			return nil
		},
	}
}

func newCacheExportCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "export [partition-key]",
		Short: "Write every cached entry for a partition key to a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDeps(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			mgr := management.NewManager(d.cache)

			entries, err := mgr.Export(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			f, err := os.Create(file)
			if err != nil {
				return errs.Wrap("cli.cache.export: create output file", err)
			}
			defer f.Close() //nolint:errcheck

			enc := json.NewEncoder(f)
			enc.SetIndent("", "  ")

			if err := enc.Encode(entries); err != nil {
				return errs.Wrap("cli.cache.export: encode entries", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "exported %d entries to %s\n", len(entries), file)

			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "output JSON file")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func newCacheImportCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "import [partition-key]",
		Short: "Load cached entries for a partition key from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDeps(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			f, err := os.Open(file)
			if err != nil {
				return errs.Wrap("cli.cache.import: open input file", err)
			}
			defer f.Close() //nolint:errcheck

			var entries []management.ExportedEntry
			if err := json.NewDecoder(f).Decode(&entries); err != nil {
				return errs.Wrap("cli.cache.import: decode entries", err)
			}

			mgr := management.NewManager(d.cache)

			if err := mgr.Import(cmd.Context(), args[0], entries); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "imported %d entries\n", len(entries))

			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "input JSON file")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func newCacheDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [partition-key] [hash]",
		Short: "Delete a single cached fragment entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDeps(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			return d.cache.Delete(cmd.Context(), args[0], args[1])
		},
	}
}

func newCacheApplyCommand() *cobra.Command {
	var (
		partitionKey string
		strategy     string
		p0Alias      string
		followGraph  bool
	)

	cmd := &cobra.Command{
		Use:   "apply [query]",
		Short: "Rewrite a query against already-cached fragment results (apply_cache)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDeps(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			rewritten, stats, err := rewrite.ApplyCache(cmd.Context(), d.cache, args[0], rewrite.ApplyOptions{
				Fragment: sqlfrag.Options{PartitionKey: partitionKey, FollowGraph: followGraph},
				Rewrite:  rewrite.Options{Strategy: rewrite.Strategy(strategy), P0Alias: p0Alias},
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), rewritten)
			fmt.Fprintf(cmd.ErrOrStderr(), "resolved=%d missing=%d keys=%d applied=%t\n",
				stats.FragmentsResolved, stats.FragmentsMissing, stats.KeyCount, stats.Applied)

			return nil
		},
	}

	cmd.Flags().StringVar(&partitionKey, "partition-key", "", "partition key name")
	cmd.Flags().StringVar(&strategy, "method", string(rewrite.StrategyIN), "splice method: in, values, tmp_table_in, tmp_table_join")
	cmd.Flags().StringVar(&p0Alias, "p0-alias", "", "alias to anchor the rewrite on; defaults to the resolved partition-key alias")
	cmd.Flags().BoolVar(&followGraph, "follow-graph", false, "enumerate connected-subgraph fragments instead of plain table combinations")
	_ = cmd.MarkFlagRequired("partition-key")

	return cmd
}

func newCacheCopyCommand() *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "copy",
		Short: "Copy every cached entry from one partition key to another",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := loadDeps(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			mgr := management.NewManager(d.cache)

			entries, err := mgr.Export(cmd.Context(), from)
			if err != nil {
				return err
			}

			if err := mgr.Import(cmd.Context(), to, entries); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "copied %d entries from %s to %s\n", len(entries), from, to)

			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "source partition key")
	cmd.Flags().StringVar(&to, "to", "", "destination partition key")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}
