package main

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-classifier/internal/engine"
	"github.com/Veraticus/spice-classifier/internal/model"
)

func matchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match <transaction-id>",
		Short: "Match a single transaction and show the alternatives",
		Long: `Match one transaction against the rules and print the winning rule with its
confidence and the best alternatives. A transaction that already has an
assignment is left alone unless --force is given.`,
		Args: cobra.ExactArgs(1),
		RunE: runMatch,
	}

	cmd.Flags().Bool("account", false, "Match against the account rules instead of the category rules")
	cmd.Flags().Bool("force", false, "Re-match even if the transaction already has an assignment")
	cmd.Flags().Bool("explain", false, "Only show the alternatives recorded by the last attempt")

	return cmd
}

func runMatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	account, _ := cmd.Flags().GetBool("account")
	force, _ := cmd.Flags().GetBool("force")
	explain, _ := cmd.Flags().GetBool("explain")

	txnID, err := parseID(args[0], "transaction ID")
	if err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	pool := model.PoolCategory
	if account {
		pool = model.PoolAccount
	}
	out := cmd.OutOrStdout()

	if explain {
		alts, err := a.engine.Alternatives(ctx, txnID, pool, engine.DefaultAlternatives)
		if err != nil {
			return err
		}
		printAlternatives(cmd, alts)
		return nil
	}

	var outcome *engine.MatchOutcome
	if account {
		outcome, err = a.engine.MatchOneAccount(ctx, txnID, force)
	} else {
		outcome, err = a.engine.MatchOne(ctx, txnID, force)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Transaction %d: %s\n", outcome.Transaction.ID, outcome.Transaction.Description)
	switch {
	case outcome.Skipped:
		fmt.Fprintln(out, "Already assigned; use --force to re-match.")
		return nil
	case outcome.Best == nil:
		fmt.Fprintln(out, "No rule matched.")
		return nil
	}

	best := outcome.Best
	fmt.Fprintf(out, "✓ Rule %d %q (%s) -> %s %d, confidence %d\n",
		best.Rule.ID, best.Rule.Pattern, best.Rule.Kind, pool, best.Rule.Target.ID(), best.Score)
	if !outcome.AuditLogged {
		fmt.Fprintln(out, "⚠️  The matching log could not be written.")
	}
	printAlternatives(cmd, outcome.Alternatives)
	return nil
}

func printAlternatives(cmd *cobra.Command, alts model.Alternatives) {
	out := cmd.OutOrStdout()
	if len(alts) == 0 {
		fmt.Fprintln(out, "No alternatives.")
		return
	}

	fmt.Fprintln(out, "Alternatives:")
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  RULE\tTARGET\tSCORE\tPRIORITY\tMATCHED")
	for _, alt := range alts {
		target := "-"
		if alt.Target != nil {
			target = fmt.Sprintf("%s %d", alt.Target.Pool(), alt.Target.ID())
		}
		fmt.Fprintf(w, "  %d\t%s\t%d\t%d\t%s\n", alt.RuleID, target, alt.Score, alt.Priority, alt.MatchedText)
	}
	if err := w.Flush(); err != nil {
		slog.Warn("Failed to write alternatives", "error", err)
	}
}
