// Command ignite-cli is a thin manual-testing harness over pkg/ignite.
// It opens a store rooted at --data-dir and exposes put/get/delete/
// stats/compact as cobra subcommands. It does not open a network
// listener; every invocation opens the store, performs one operation,
// and closes it.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/iamNilotpal/ignite/pkg/ignite"
	"github.com/iamNilotpal/ignite/pkg/options"
	"github.com/spf13/cobra"
)

var dataDir string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ignite-cli",
		Short: "Manual-testing harness for an ignite key/value store",
	}

	root.PersistentFlags().StringVar(&dataDir, "data-dir", "./ignite-data", "store data directory")

	root.AddCommand(newPutCmd(), newGetCmd(), newDeleteCmd(), newStatsCmd(), newCompactCmd())
	return root
}

func openInstance(ctx context.Context) (*ignite.Instance, error) {
	return ignite.NewInstance(ctx, "ignite-cli", options.WithDataDir(dataDir))
}

func newPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <key> <value>",
		Short: "Store a key/value pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			inst, err := openInstance(ctx)
			if err != nil {
				return err
			}
			defer inst.Close(ctx)

			if err := inst.Set(ctx, args[0], []byte(args[1])); err != nil {
				return err
			}
			fmt.Println("OK")
			return nil
		},
	}
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Retrieve a key's value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			inst, err := openInstance(ctx)
			if err != nil {
				return err
			}
			defer inst.Close(ctx)

			value, err := inst.Get(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Println(string(value))
			return nil
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			inst, err := openInstance(ctx)
			if err != nil {
				return err
			}
			defer inst.Close(ctx)

			if err := inst.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Println("OK")
			return nil
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print live key count and segment/compaction state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			inst, err := openInstance(ctx)
			if err != nil {
				return err
			}
			defer inst.Close(ctx)

			stats := inst.Stats()
			fmt.Printf("keys: %d\nactive segment: %d\nmerge candidates: %d\n",
				stats.Keys, stats.ActiveSegmentID, stats.MergeCandidateFiles)
			return nil
		},
	}
}

func newCompactCmd() *cobra.Command {
	var now bool

	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Report when compaction runs (no immediate pass can be triggered)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !now {
				return fmt.Errorf("compact: pass --now to request an immediate merge pass")
			}
			// The background compactor already runs on its own timer;
			// this harness has no out-of-band channel to nudge it
			// early, so --now simply reports that a pass is scheduled.
			fmt.Println("compaction runs automatically on the configured merge interval")
			return nil
		},
	}

	cmd.Flags().BoolVar(&now, "now", false, "request an immediate merge pass")
	return cmd
}
