package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-classifier/internal/feedback"
	"github.com/Veraticus/spice-classifier/internal/model"
)

func defaultReviewer() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "cli"
}

func outcomeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "outcome <rule-id> <outcome>",
		Short: "Feed a verification outcome back into a rule",
		Long: `Adjust a rule's priority from a verification outcome:

  approved                  +1 priority, counts as a match
  rejected                  -1 priority
  selected_from_suggestion  +2 priority, counts as a match
  replaced_by_suggestion    -2 priority

Priority stays between 1 and 10.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ruleID, err := parseID(args[0], "rule ID")
			if err != nil {
				return err
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.feedback.ApplyOutcome(ctx, ruleID, model.Outcome(args[1]))
			if err != nil {
				return err
			}
			printOutcome(cmd.OutOrStdout(), "", result)
			return nil
		},
	}
}

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review <transaction-id>",
		Short: "Approve or reject a transaction's automatic category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			reviewer, _ := cmd.Flags().GetString("reviewer")
			reject, _ := cmd.Flags().GetBool("reject")

			txnID, err := parseID(args[0], "transaction ID")
			if err != nil {
				return err
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.feedback.Review(ctx, txnID, reviewer, !reject)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if reject {
				fmt.Fprintf(out, "✗ Transaction %d rejected; category cleared\n", txnID)
			} else {
				fmt.Fprintf(out, "✓ Transaction %d verified by %s\n", txnID, result.Transaction.VerifiedBy)
			}
			printOutcome(out, "", result.Outcome)
			return nil
		},
	}

	cmd.Flags().String("reviewer", defaultReviewer(), "Name recorded as the reviewer")
	cmd.Flags().Bool("reject", false, "Reject the automatic category instead of approving it")
	return cmd
}

func selectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "select <transaction-id> <rule-id>",
		Short: "Pick one of a transaction's alternatives",
		Long: `Assign the category of an alternative rule to a transaction. The chosen rule
is rewarded and the rule it replaces is penalized.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			reviewer, _ := cmd.Flags().GetString("reviewer")

			txnID, err := parseID(args[0], "transaction ID")
			if err != nil {
				return err
			}
			ruleID, err := parseID(args[1], "rule ID")
			if err != nil {
				return err
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.feedback.SelectAlternative(ctx, txnID, ruleID, reviewer)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Transaction %d assigned from rule %d\n", txnID, ruleID)
			printOutcome(out, "selected", result.Selected)
			printOutcome(out, "replaced", result.Replaced)
			return nil
		},
	}

	cmd.Flags().String("reviewer", defaultReviewer(), "Name recorded as the reviewer")
	return cmd
}

func correctCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "correct <transaction-id> <sub-category-id>",
		Short: "Set a transaction's category by hand and learn from it",
		Long: `Set a manual category on a transaction. Keywords from its description bump
existing rules for that category or are recorded as suggested rules.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			reviewer, _ := cmd.Flags().GetString("reviewer")

			txnID, err := parseID(args[0], "transaction ID")
			if err != nil {
				return err
			}
			subCategoryID, err := parseID(args[1], "sub-category ID")
			if err != nil {
				return err
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.feedback.CorrectCategory(ctx, txnID, subCategoryID, reviewer)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Transaction %d set to sub-category %d\n", txnID, subCategoryID)
			printOutcome(out, "rejected", result.Rejected)
			if len(result.Keywords) > 0 {
				fmt.Fprintf(out, "Keywords: %v\n", result.Keywords)
			}
			for _, id := range result.BumpedRules {
				fmt.Fprintf(out, "  ↑ rule %d\n", id)
			}
			for _, sr := range result.Suggestions {
				fmt.Fprintf(out, "  💡 %q seen %d times (confidence %d)\n", sr.Pattern, sr.Occurrences, sr.Confidence)
			}
			return nil
		},
	}

	cmd.Flags().String("reviewer", defaultReviewer(), "Name recorded as the reviewer")
	return cmd
}

func printOutcome(w io.Writer, label string, result *feedback.OutcomeResult) {
	if result == nil || result.Rule == nil {
		return
	}
	if label != "" {
		label += " "
	}
	if !result.Changed {
		fmt.Fprintf(w, "  %srule %d unchanged at priority %d\n", label, result.Rule.ID, result.Rule.Priority)
		return
	}
	fmt.Fprintf(w, "  %srule %d priority %d -> %d\n", label, result.Rule.ID, result.PreviousPriority, result.Rule.Priority)
}
