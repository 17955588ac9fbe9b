package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-classifier/internal/model"
)

func promoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "promote",
		Short: "Promote eligible suggested rules",
		Long: `Turn every pending suggested rule that meets the configured confidence and
occurrence thresholds into an active rule. With --list, only show the pending
suggestions. With --dismiss, retire one pending suggestion instead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			list, _ := cmd.Flags().GetBool("list")
			dismiss, _ := cmd.Flags().GetInt64("dismiss")
			if list && dismiss != 0 {
				return fmt.Errorf("--list and --dismiss cannot be combined")
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if dismiss != 0 {
				if err := a.feedback.DismissSuggestion(ctx, dismiss); err != nil {
					return err
				}
				fmt.Fprintf(out, "Dismissed suggestion %d\n", dismiss)
				return nil
			}
			if list {
				pending, err := a.store.ListSuggestedRules(ctx, model.SuggestionPending)
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					fmt.Fprintln(out, "No pending suggestions")
					return nil
				}
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tPATTERN\tTARGET\tCONFIDENCE\tSEEN\tELIGIBLE")
				for _, sr := range pending {
					eligible := ""
					if a.feedback.Eligible(sr) {
						eligible = "✓"
					}
					fmt.Fprintf(w, "%d\t%s\t%s %d\t%d\t%d\t%s\n",
						sr.ID, sr.Pattern, sr.Target.Pool(), sr.Target.ID(), sr.Confidence, sr.Occurrences, eligible)
				}
				return w.Flush()
			}

			result, err := a.feedback.PromoteSuggestions(ctx)
			if err != nil {
				return err
			}
			for _, r := range result.Promoted {
				fmt.Fprintf(out, "✓ Rule %d: %q -> %s %d (priority %d)\n",
					r.ID, r.Pattern, r.Target.Pool(), r.Target.ID(), r.Priority)
			}
			fmt.Fprintf(out, "Promoted %d, linked %d, pending %d, failed %d\n",
				len(result.Promoted), result.Linked, result.Pending, result.Failed)
			return nil
		},
	}

	cmd.Flags().Bool("list", false, "List pending suggestions without promoting")
	cmd.Flags().Int64("dismiss", 0, "Dismiss the pending suggestion with this ID")
	return cmd
}
