package main

import (
	"fmt"

	"github.com/Veraticus/billflow/internal/cli"
	"github.com/spf13/cobra"
)

func partiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parties",
		Short: "Manage the people bills are split between",
		Long: `Bills are split evenly between active parties when they are recorded.
With no active parties, the whole amount is assigned to the household.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add NAME",
		Short: "Add a responsible party",
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

			party, err := store.AddParty(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Added %s (%s)", party.Name, party.ID)))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List parties",
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

			parties, err := store.ListParties(ctx)
			if err != nil {
				return err
			}
			return cli.RenderParties(cmd.OutOrStdout(), parties)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove ID",
		Short: "Deactivate a party; existing allocations are kept",
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

			if err := store.RemoveParty(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Party removed"))
			return nil
		},
	})

	return cmd
}
