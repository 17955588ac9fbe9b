package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-classifier/internal/storage"
)

func snapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage database snapshots",
		Long: `Copy the database aside before bulk changes. Forced classification takes an
automatic snapshot; only the most recent automatic snapshots are kept.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create [label]",
		Short: "Create a snapshot",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var label string
			if len(args) == 1 {
				label = args[0]
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			info, err := a.store.Snapshot(ctx, label)
			if errors.Is(err, storage.ErrSnapshotExists) {
				return fmt.Errorf("snapshot %q already exists", label)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "📸 Snapshot %s (%s)\n", info.Label, formatBytes(info.Size))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List snapshots, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			snapshots, err := a.store.ListSnapshots()
			if err != nil {
				return err
			}
			if len(snapshots) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No snapshots found")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "LABEL\tCREATED\tSIZE\tAUTO")
			for _, s := range snapshots {
				auto := ""
				if s.IsAuto {
					auto = "✓"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Label, s.CreatedAt.Format("2006-01-02 15:04:05"), formatBytes(s.Size), auto)
			}
			return w.Flush()
		},
	})

	return cmd
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
