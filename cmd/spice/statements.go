package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-classifier/internal/model"
)

func statementsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "statements",
		Short: "Inspect imported statements",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List imported statements, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			statements, err := a.store.ListStatements(ctx)
			if err != nil {
				return err
			}
			if len(statements) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No statements imported. Use 'spice import' to add one.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tBANK\tACCOUNT\tPERIOD\tFILE")
			for _, s := range statements {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s - %s\t%s\n", s.ID, s.Bank, s.AccountNumber,
					s.PeriodStart.Format("2006-01-02"), s.PeriodEnd.Format("2006-01-02"), s.SourceFile)
			}
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <statement-id>",
		Short: "List a statement's transactions with their assignments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID(args[0], "statement ID")
			if err != nil {
				return err
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.store.GetStatement(ctx, id); err != nil {
				return err
			}
			txns, err := a.store.GetTransactionsForMatching(ctx, model.PoolCategory, id, true)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDATE\tDESCRIPTION\tAMOUNT\tSUB-CATEGORY\tCONF\tACCOUNT\tCONF\tVERIFIED")
			for _, t := range txns {
				amount := t.Amount().StringFixed(2)
				if t.IsDebit() {
					amount = "-" + amount
				}
				verified := ""
				if t.IsVerified {
					verified = "✓"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					t.ID, t.Date.Format("2006-01-02"), truncateString(t.Description, 40), amount,
					optionalID(t.Category.SubCategoryID), optionalInt(t.Category.Confidence),
					optionalID(t.Account.AccountID), optionalInt(t.Account.Confidence), verified)
			}
			return w.Flush()
		},
	})

	return cmd
}
