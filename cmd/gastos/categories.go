package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func categoriesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "categories",
		Aliases: []string{"cat"},
		Short:   "Manage the user's categories",
		Long: `List, add and delete the categories a user can file movements under. A user
without categories gets the DEFAULT_CATEGORIES on first use.`,
	}
	cmd.AddCommand(listCategoriesCmd(opts))
	cmd.AddCommand(addCategoryCmd(opts))
	cmd.AddCommand(deleteCategoryCmd(opts))
	return cmd
}

func listCategoriesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the user's categories",
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

			cats, err := s.Store.ListCategories(cmd.Context(), user)
			if err != nil {
				return err
			}
			for _, c := range cats {
				fmt.Fprintln(cmd.OutOrStdout(), c)
			}
			return nil
		},
	}
}

func addCategoryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <name>",
		Short: "Add a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()
			user, err := s.resolveUser(opts)
			if err != nil {
				return err
			}

			name, err := s.Store.AddCategory(cmd.Context(), user, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added category %q\n", name)
			return nil
		},
	}
}

func deleteCategoryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a category",
		Long: `Delete the category with exactly this name. Movements filed under it keep
their category text. The last remaining category cannot be deleted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.Close()
			user, err := s.resolveUser(opts)
			if err != nil {
				return err
			}

			name := strings.TrimSpace(args[0])
			cats, err := s.Store.ListCategories(cmd.Context(), user)
			if err != nil {
				return err
			}
			if len(cats) == 1 && cats[0] == name {
				return fmt.Errorf("cannot delete %q: it is the last category of %s", name, user)
			}

			removed, err := s.Store.DeleteCategory(cmd.Context(), user, name)
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("category %q not found for %s", name, user)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted category %q\n", name)
			return nil
		},
	}
}
