package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-classifier/internal/model"
)

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "stats <category|account> <id>",
		Short:     "Show usage statistics for a sub-category or account",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{string(model.PoolCategory), string(model.PoolAccount)},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID(args[1], "target ID")
			if err != nil {
				return err
			}
			target, err := model.NewTarget(model.RulePool(args[0]), id)
			if err != nil {
				return err
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.engine.Statistics(ctx, target)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Target:\t%s %d\n", target.Pool(), target.ID())
			fmt.Fprintf(w, "Transactions:\t%d\n", stats.TransactionCount)
			fmt.Fprintf(w, "Total debit:\t%s\n", stats.TotalDebit.StringFixed(2))
			fmt.Fprintf(w, "Total credit:\t%s\n", stats.TotalCredit.StringFixed(2))
			fmt.Fprintf(w, "Manual:\t%d\n", stats.ManualCount)
			fmt.Fprintf(w, "Verified:\t%d\n", stats.VerifiedCount)
			fmt.Fprintf(w, "Rules:\t%d\n", stats.RuleCount)
			fmt.Fprintf(w, "Avg confidence:\t%.1f\n", stats.AverageConfidence)
			return w.Flush()
		},
	}
}
