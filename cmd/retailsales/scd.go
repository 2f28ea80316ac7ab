package main

import (
	"context"
	"fmt"

	scddomain "github.com/smallbiznis/retailsales/internal/scd/domain"
	"github.com/spf13/cobra"
)

func newSCDCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scd",
		Short: "Maintain customer address versions",
	}
	cmd.AddCommand(newSCDApplyCmd(), newSCDSyncCmd())
	return cmd
}

func newSCDApplyCmd() *cobra.Command {
	var customer, address, date string
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Record a customer's address from a date on",
		RunE: func(cmd *cobra.Command, args []string) error {
			effective, err := parseStart(date)
			if err != nil {
				return fmt.Errorf("--date: %w", err)
			}

			var svc scddomain.Service
			return runTask(cmd.Context(), func(ctx context.Context) error {
				result, err := svc.ApplyAttributeChange(ctx, customer, address, effective)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			}, &svc)
		},
	}
	cmd.Flags().StringVar(&customer, "customer", "", "customer id")
	cmd.Flags().StringVar(&address, "address", "", "new address")
	cmd.Flags().StringVar(&date, "date", "", "effective date, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("customer")
	_ = cmd.MarkFlagRequired("address")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func newSCDSyncCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Apply the address changes observed in sales facts",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseStart(from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			last, err := parseEnd(to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}

			var svc scddomain.Service
			return runTask(cmd.Context(), func(ctx context.Context) error {
				result, err := svc.SyncFromFacts(ctx, start, last.AddDate(0, 0, 1))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			}, &svc)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last day, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
