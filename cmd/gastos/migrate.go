package main

import (
	"fmt"

	"gastos/internal/config"
	"gastos/internal/storage"

	"github.com/spf13/cobra"
)

func migrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Bring the stored tables up to the current schema",
		Long: `Create missing tables and add the kind column to legacy movement tables.
Running it again changes nothing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			if len(s.Applied) == 0 {
				fmt.Fprintln(out, "Schema is up to date.")
			}
			for _, m := range s.Applied {
				fmt.Fprintf(out, "applied %d %s\n", m.Version, m.Name)
			}

			if s.Config.DataBackend == config.BackendSQLite {
				version, dirty, err := storage.SchemaVersion(s.Config.SQLiteDBPath)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "sqlite schema version %d (dirty=%t)\n", version, dirty)
			}
			return nil
		},
	}
}
