package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage the category tree",
		Long: `List and edit the three-level category tree (type > category > sub-category).
Category rules always point at a sub-category.`,
	}

	cmd.AddCommand(listCategoriesCmd())
	cmd.AddCommand(addCategoryTypeCmd())
	cmd.AddCommand(addCategoryCmd())
	cmd.AddCommand(addSubCategoryCmd())
	cmd.AddCommand(deleteSubCategoryCmd())

	return cmd
}

func listCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every sub-category with its path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			paths, err := a.store.ListSubCategories(ctx)
			if err != nil {
				return fmt.Errorf("failed to list categories: %w", err)
			}
			if len(paths) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No categories found. Use 'spice categories add-type' to start a tree.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tCATEGORY\tSUB-CATEGORY")
			for _, p := range paths {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", p.SubCategoryID, p.TypeName, p.CategoryName, p.SubCategoryName)
			}
			return w.Flush()
		},
	}
}

func addCategoryTypeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-type <name>",
		Short: "Add a category type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			ct, err := a.store.CreateCategoryType(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to create category type: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Created type %q (ID: %d)\n", ct.Name, ct.ID)
			return nil
		},
	}
}

func addCategoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-category <type-id> <name>",
		Short: "Add a category under a type",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			typeID, err := parseID(args[0], "type ID")
			if err != nil {
				return err
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.store.CreateCategory(ctx, typeID, args[1])
			if err != nil {
				return fmt.Errorf("failed to create category: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Created category %q (ID: %d)\n", c.Name, c.ID)
			return nil
		},
	}
}

func addSubCategoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "add <category-id> <name>",
		Aliases: []string{"add-sub"},
		Short:   "Add a sub-category under a category",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			categoryID, err := parseID(args[0], "category ID")
			if err != nil {
				return err
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			sub, err := a.store.CreateSubCategory(ctx, categoryID, args[1])
			if err != nil {
				return fmt.Errorf("failed to create sub-category: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Created sub-category %q (ID: %d)\n", sub.Name, sub.ID)
			return nil
		},
	}
}

func deleteSubCategoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <sub-category-id>",
		Short: "Delete a sub-category",
		Long: `Soft-delete a sub-category. Rules pointing at it stop winning matches and
fall through to the next candidate.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID(args[0], "sub-category ID")
			if err != nil {
				return err
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.DeleteSubCategory(ctx, id); err != nil {
				return fmt.Errorf("failed to delete sub-category: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted sub-category %d\n", id)
			return nil
		},
	}
}

func accountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage ledger accounts",
		Long:  `List and edit the ledger accounts that account rules assign.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List ledger accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			accounts, err := a.store.ListAccounts(ctx)
			if err != nil {
				return fmt.Errorf("failed to list accounts: %w", err)
			}
			if len(accounts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No accounts found. Use 'spice accounts add' to create one.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCODE\tNAME\tSTATUS")
			for _, acct := range accounts {
				status := "active"
				if !acct.IsActive {
					status = "inactive"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", acct.ID, acct.Code, acct.Name, status)
			}
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <code> <name>",
		Short: "Add a ledger account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			acct, err := a.store.CreateAccount(ctx, args[0], args[1])
			if err != nil {
				return fmt.Errorf("failed to create account: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Created account %s %q (ID: %d)\n", acct.Code, acct.Name, acct.ID)
			return nil
		},
	})

	cmd.AddCommand(accountSetActiveCmd("activate", true))
	cmd.AddCommand(accountSetActiveCmd("deactivate", false))

	return cmd
}

func accountSetActiveCmd(use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <account-id>",
		Short: "Mark an account as " + map[bool]string{true: "active", false: "inactive"}[active],
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID(args[0], "account ID")
			if err != nil {
				return err
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.SetAccountActive(ctx, id, active); err != nil {
				return fmt.Errorf("failed to update account: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Account %d %sd\n", id, use)
			return nil
		},
	}
}
