package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"gastos/internal/core"
	"gastos/internal/format"
	"gastos/internal/services"
	"gastos/internal/sheets"
	"gastos/internal/sheets/csvfile"

	"github.com/spf13/cobra"
)

func movementsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "movements",
		Aliases: []string{"mov", "m"},
		Short:   "Record, list and delete movements",
	}
	cmd.AddCommand(addMovementCmd(opts))
	cmd.AddCommand(listMovementsCmd(opts))
	cmd.AddCommand(deleteMovementCmd(opts))
	cmd.AddCommand(exportMovementsCmd(opts))
	return cmd
}

func addMovementCmd(opts *rootOptions) *cobra.Command {
	var (
		category  string
		kind      string
		timestamp string
	)
	cmd := &cobra.Command{
		Use:   "add <amount> <description>",
		Short: "Record an expense or income",
		Long: `Record a movement for the user. The category must be one of the user's
categories (see "gastos categories list"). The timestamp defaults to now.`,
		Example: `  gastos movements add --user felipe 15000 "Almuerzo" --category Comida
  gastos movements add --user felipe 800000 "Sueldo" --category Otros --kind income`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := core.ParseAmount(args[0])
			if err != nil {
				return fmt.Errorf("amount %q: %w", args[0], err)
			}

			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()
			user, err := s.resolveUser(opts)
			if err != nil {
				return err
			}

			m, err := s.Store.AddMovement(cmd.Context(), core.MovementInput{
				User:        user,
				Timestamp:   timestamp,
				Amount:      amount,
				Description: args[1],
				Category:    category,
				Kind:        core.Kind(kind),
			})
			if err != nil {
				return err
			}
			currency, err := format.NewCurrency(s.Config.DisplayLocale, s.Config.CurrencySymbol)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s %s %s (%s) id=%s\n",
				m.Kind, currency.Amount(m.Amount), m.Description, m.Category, m.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "category name (required)")
	cmd.Flags().StringVarP(&kind, "kind", "k", string(core.KindExpense), "expense or income")
	cmd.Flags().StringVar(&timestamp, "timestamp", "", "timestamp, e.g. \"2024-03-01 10:30\" (default now)")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func listMovementsCmd(opts *rootOptions) *cobra.Command {
	var (
		filter     core.MovementFilter
		kinds      []string
		showTotals bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the user's movements with totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()
			user, err := s.resolveUser(opts)
			if err != nil {
				return err
			}

			for _, k := range kinds {
				filter.Kinds = append(filter.Kinds, core.ParseKind(k))
			}
			ms, err := s.Store.FindMovements(cmd.Context(), user, filter)
			if err != nil {
				return err
			}
			currency, err := format.NewCurrency(s.Config.DisplayLocale, s.Config.CurrencySymbol)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(ms) == 0 {
				fmt.Fprintf(out, "No movements for %s.\n", user)
				return nil
			}
			printMovements(out, ms, currency)
			if showTotals {
				printTotals(out, ms, currency)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&filter.From, "from", "", "earliest timestamp, inclusive (e.g. 2024-01-01)")
	cmd.Flags().StringVar(&filter.To, "to", "", "latest timestamp or day, inclusive")
	cmd.Flags().StringSliceVarP(&filter.Categories, "category", "c", nil, "only these categories")
	cmd.Flags().StringSliceVarP(&kinds, "kind", "k", nil, "only these kinds (expense, income)")
	cmd.Flags().BoolVar(&showTotals, "totals", true, "print totals by kind and category")
	return cmd
}

func exportMovementsCmd(opts *rootOptions) *cobra.Command {
	var (
		filter core.MovementFilter
		kinds  []string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the user's movements as CSV",
		Long: `Write the user's movements, filtered like "list", as CSV in the ledger's
column order. The output goes to stdout unless --output names a file.`,
		Example: `  gastos movements export --user felipe --from 2024-01-01 -o movimientos_felipe.csv`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()
			user, err := s.resolveUser(opts)
			if err != nil {
				return err
			}

			for _, k := range kinds {
				filter.Kinds = append(filter.Kinds, core.ParseKind(k))
			}
			ms, err := s.Store.FindMovements(cmd.Context(), user, filter)
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				return csvfile.Export(cmd.OutOrStdout(), sheets.MovementsTable, services.MovementRows(ms))
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create export file: %w", err)
			}
			if err := csvfile.Export(f, sheets.MovementsTable, services.MovementRows(ms)); err != nil {
				f.Close()
				return fmt.Errorf("write %s: %w", output, err)
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close %s: %w", output, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d movements to %s\n", len(ms), output)
			return nil
		},
	}
	cmd.Flags().StringVar(&filter.From, "from", "", "earliest timestamp, inclusive (e.g. 2024-01-01)")
	cmd.Flags().StringVar(&filter.To, "to", "", "latest timestamp or day, inclusive")
	cmd.Flags().StringSliceVarP(&filter.Categories, "category", "c", nil, "only these categories")
	cmd.Flags().StringSliceVarP(&kinds, "kind", "k", nil, "only these kinds (expense, income)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write (default stdout)")
	return cmd
}

func deleteMovementCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a movement by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			removed, err := s.Store.DeleteMovement(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("movement %s not found", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted movement %s\n", args[0])
			return nil
		},
	}
}

func printMovements(out io.Writer, ms []core.Movement, currency *format.Currency) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "ID\tTIMESTAMP\tKIND\tAMOUNT\tCATEGORY\tDESCRIPTION")
	for _, m := range ms {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			m.ID, m.Timestamp, m.Kind, currency.Amount(m.Amount), m.Category, m.Description)
	}
}

func printTotals(out io.Writer, ms []core.Movement, currency *format.Currency) {
	sum := core.Summarize(ms)
	fmt.Fprintf(out, "\nIncome %s  Expense %s  Net %s  (%d movements)\n",
		currency.Amount(sum.Income), currency.Amount(sum.Expense), currency.Amount(sum.Net), sum.Count)

	totals := core.TotalsByCategory(ms, core.KindExpense)
	if len(totals) == 0 {
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "CATEGORY\tSPENT")
	for _, t := range totals {
		fmt.Fprintf(w, "%s\t%s\n", t.Name, currency.Amount(t.Amount))
	}
}
