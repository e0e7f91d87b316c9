package main

import (
	"fmt"
	"strconv"

	"github.com/Veraticus/billflow/internal/catalog"
	"github.com/Veraticus/billflow/internal/cli"
	"github.com/spf13/cobra"
)

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the recurring obligation catalog",
		Long: `The catalog lists every biller the household expects to pay. Catalog
entries take precedence over the classifier for vendor names, categories
and fixed amounts.`,
	}

	cmd.AddCommand(catalogImportCmd())
	cmd.AddCommand(catalogListCmd())
	cmd.AddCommand(catalogDeactivateCmd())

	return cmd
}

func catalogImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE.yaml",
		Short: "Create or update obligations and parties from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			store, err := initStorage(ctx, settings)
			if err != nil {
				return err
			}
			defer closeStore(store)

			result, err := catalog.ImportFile(ctx, store, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf(
				"Imported %d obligations (%d replaced existing), added %d parties (%d already present)",
				result.Obligations, result.Updated, result.PartiesAdded, result.PartiesExisted)))
			for _, vendor := range result.Duplicates {
				fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf(
					"%s is defined more than once, the later entry overwrote the earlier one", vendor)))
			}
			return nil
		},
	}
}

func catalogListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List catalog obligations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			store, err := initStorage(ctx, settings)
			if err != nil {
				return err
			}
			defer closeStore(store)

			obligations, err := store.ListObligations(ctx)
			if err != nil {
				return err
			}
			return cli.RenderObligations(cmd.OutOrStdout(), obligations)
		},
	}
}

func catalogDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate ID",
		Short: "Stop matching messages against an obligation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid obligation id %q", args[0])
			}

			ctx := cmd.Context()
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			store, err := initStorage(ctx, settings)
			if err != nil {
				return err
			}
			defer closeStore(store)

			if err := store.DeactivateObligation(ctx, id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Obligation %d deactivated", id)))
			return nil
		},
	}
}
