package main

import (
	"fmt"
	"time"

	"github.com/Veraticus/billflow/internal/cli"
	"github.com/Veraticus/billflow/internal/service"
	"github.com/spf13/cobra"
)

func processedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "processed",
		Short: "Inspect the processed message log",
		Long: `Every message reconcile handles is recorded here and never processed again.
Messages whose classification failed are recorded with the error; forget
them to have the next reconcile run retry them.`,
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List processed messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			failed, _ := cmd.Flags().GetBool("failed")
			since, _ := cmd.Flags().GetDuration("since")
			limit, _ := cmd.Flags().GetInt("limit")

			filter := service.ProcessedFilter{OnlyFailures: failed, Limit: limit}
			if since > 0 {
				from := time.Now().Add(-since)
				filter.Since = &from
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

			records, err := store.ListProcessed(ctx, filter)
			if err != nil {
				return err
			}
			return cli.RenderProcessed(cmd.OutOrStdout(), records)
		},
	}
	list.Flags().Bool("failed", false, "only messages whose classification failed")
	list.Flags().Duration("since", 0, "only messages processed within this duration (e.g. 72h)")
	list.Flags().Int("limit", 50, "maximum records to show")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "forget MESSAGE_ID",
		Short: "Remove a message from the log so it is processed again",
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

			if err := store.ForgetProcessed(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Message %s will be reprocessed", args[0])))
			return nil
		},
	})

	return cmd
}
