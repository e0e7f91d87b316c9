package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/billflow/internal/cli"
	"github.com/Veraticus/billflow/internal/model"
	"github.com/Veraticus/billflow/internal/service"
	"github.com/spf13/cobra"
)

func billsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bills",
		Short: "Inspect the bill ledger",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List bill instances with their split",
		Args:  cobra.NoArgs,
		RunE:  runBillsList,
	}
	list.Flags().String("period", "", "billing period (YYYY-MM)")
	list.Flags().String("status", "", "PENDING or PAID")
	list.Flags().Int("limit", 0, "maximum bills to show")
	cmd.AddCommand(list)

	return cmd
}

func runBillsList(cmd *cobra.Command, _ []string) error {
	period, _ := cmd.Flags().GetString("period")
	status, _ := cmd.Flags().GetString("status")
	limit, _ := cmd.Flags().GetInt("limit")

	filter := service.BillFilter{BillingPeriod: period, Limit: limit}
	if period != "" {
		if _, err := time.Parse(model.BillingPeriodLayout, period); err != nil {
			return fmt.Errorf("invalid period %q, expected YYYY-MM", period)
		}
	}
	if status != "" {
		s := model.BillStatus(strings.ToUpper(status))
		if s != model.BillPending && s != model.BillPaid {
			return fmt.Errorf("invalid status %q, expected PENDING or PAID", status)
		}
		filter.Status = &s
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

	bills, err := store.ListBillInstances(ctx, filter)
	if err != nil {
		return err
	}
	return cli.RenderBills(cmd.OutOrStdout(), bills)
}
