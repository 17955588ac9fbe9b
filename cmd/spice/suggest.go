package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-classifier/internal/suggest"
)

func suggestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suggest [statement-id]",
		Short: "Propose rules from unmatched transactions",
		Long: `Mine keywords shared by unmatched transactions and propose them as rules,
ranked by how often they occur. Without a statement ID every statement is scanned.

Examples:
  spice suggest 12
  spice suggest --sort amount --limit 10`,
		Args: cobra.MaximumNArgs(1),
		RunE: runSuggest,
	}

	cmd.Flags().String("sort", "count", "Sort order (count, amount, frequency)")
	cmd.Flags().Int("min-frequency", 0, "Minimum group size (default from config)")
	cmd.Flags().Int("limit", 20, "Maximum number of suggestions (0 = all)")
	cmd.Flags().Bool("samples", false, "Show sample descriptions")

	return cmd
}

func runSuggest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sortFlag, _ := cmd.Flags().GetString("sort")
	minFrequency, _ := cmd.Flags().GetInt("min-frequency")
	limit, _ := cmd.Flags().GetInt("limit")
	samples, _ := cmd.Flags().GetBool("samples")

	sortBy, err := suggest.ParseSortBy(sortFlag)
	if err != nil {
		return err
	}

	var statementID int64
	if len(args) == 1 {
		if statementID, err = parseID(args[0], "statement ID"); err != nil {
			return err
		}
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	suggestions, err := a.miner.Analyze(ctx, statementID, suggest.Filters{
		SortBy:       sortBy,
		MinFrequency: minFrequency,
		Limit:        limit,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(suggestions) == 0 {
		fmt.Fprintln(out, "No suggestions: every recurring description is already covered.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEYWORD\tKIND\tCOUNT\tFREQUENCY\tTOTAL\tAVERAGE")
	for _, s := range suggestions {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			s.Keyword, s.Kind, s.Count, s.Frequency,
			s.TotalAmount.StringFixed(2), s.AverageAmount.StringFixed(2))
		if samples {
			fmt.Fprintf(w, "\t\t\t\t\t  e.g. %s\n", strings.Join(s.SampleDescriptions, "; "))
		}
	}
	return w.Flush()
}
