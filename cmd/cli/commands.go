package main

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/watercoop/waterbill/internal/api/dto"
	"github.com/watercoop/waterbill/internal/service"
	"github.com/watercoop/waterbill/internal/types"
)

func init() {
	rootCmd.AddCommand(registerCmd, clientsCmd, billCmd, billsCmd, payCmd, paymentsCmd, statusCmd, sweepCmd)

	registerCmd.Flags().String("first-name", "", "Client first name")
	registerCmd.Flags().String("middle-name", "", "Client middle name")
	registerCmd.Flags().String("last-name", "", "Client last name")
	registerCmd.Flags().String("contact", "", "Contact number")
	registerCmd.Flags().String("email", "", "Email address")
	registerCmd.Flags().String("address", "", "Service address")
	registerCmd.Flags().String("meter", "", "Meter number")
	registerCmd.Flags().Int64("initial-reading", 0, "Meter reading at installation")
	_ = registerCmd.MarkFlagRequired("first-name")
	_ = registerCmd.MarkFlagRequired("last-name")

	clientsCmd.Flags().String("search", "", "Match account number prefix or name")
	clientsCmd.Flags().Int("limit", types.FILTER_DEFAULT_LIMIT, "Page size")
	clientsCmd.Flags().Int("offset", 0, "Page offset")

	billCmd.Flags().Int64("reading", 0, "Current meter reading")
	billCmd.Flags().Int64("previous", -1, "Override the previous reading, e.g. after a meter replacement")
	_ = billCmd.MarkFlagRequired("reading")

	billsCmd.Flags().String("client", "", "Only bills of this client")
	billsCmd.Flags().StringSlice("status", nil, "Payment statuses to include (unpaid, underpaid, paid, overpaid)")
	billsCmd.Flags().Int("limit", types.FILTER_DEFAULT_LIMIT, "Page size")
	billsCmd.Flags().Int("offset", 0, "Page offset")

	payCmd.Flags().String("amount", "", "Amount received")
	payCmd.Flags().String("expected", "", "Payment amount shown on the bill when the payment was taken")
	_ = payCmd.MarkFlagRequired("amount")
	_ = payCmd.MarkFlagRequired("expected")

	statusCmd.Flags().Bool("history", false, "Show every status change instead of the current one")

	sweepCmd.Flags().String("at", "", "Evaluate as of this RFC3339 instant instead of now")
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a client and issue its account number",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		req := dto.RegisterClientRequest{}
		req.FirstName, _ = f.GetString("first-name")
		req.MiddleName, _ = f.GetString("middle-name")
		req.LastName, _ = f.GetString("last-name")
		req.ContactNumber, _ = f.GetString("contact")
		req.Email, _ = f.GetString("email")
		req.Address, _ = f.GetString("address")
		req.MeterNumber, _ = f.GetString("meter")
		req.InitialMeterReading, _ = f.GetInt64("initial-reading")

		return run(cmd, func(ctx context.Context, billing service.BillingService) (any, error) {
			return billing.RegisterClient(ctx, req)
		})
	},
}

var clientsCmd = &cobra.Command{
	Use:   "clients",
	Short: "List clients",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := types.NewClientFilter()
		filter.Search, _ = cmd.Flags().GetString("search")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		filter.Limit = lo.ToPtr(limit)
		filter.Offset = lo.ToPtr(offset)

		return run(cmd, func(ctx context.Context, billing service.BillingService) (any, error) {
			return billing.ListClients(ctx, filter)
		})
	},
}

var billCmd = &cobra.Command{
	Use:   "bill CLIENT_ID",
	Short: "Record a meter reading and open a bill",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := dto.CreateBillRequest{ClientID: args[0]}
		req.CurrentReading, _ = cmd.Flags().GetInt64("reading")
		if cmd.Flags().Changed("previous") {
			previous, _ := cmd.Flags().GetInt64("previous")
			req.PreviousReading = lo.ToPtr(previous)
		}

		return run(cmd, func(ctx context.Context, billing service.BillingService) (any, error) {
			return billing.CreateBill(ctx, req)
		})
	},
}

var billsCmd = &cobra.Command{
	Use:   "bills",
	Short: "List bills",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := types.NewBillFilter()
		filter.ClientID, _ = cmd.Flags().GetString("client")
		statuses, _ := cmd.Flags().GetStringSlice("status")
		filter.PaymentStatuses = lo.Map(statuses, func(s string, _ int) types.BillPaymentStatus {
			return types.BillPaymentStatus(s)
		})
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		filter.Limit = lo.ToPtr(limit)
		filter.Offset = lo.ToPtr(offset)

		return run(cmd, func(ctx context.Context, billing service.BillingService) (any, error) {
			return billing.ListBills(ctx, filter)
		})
	},
}

var payCmd = &cobra.Command{
	Use:   "pay BILL_ID",
	Short: "Apply a payment to a bill",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rawAmount, _ := cmd.Flags().GetString("amount")
		rawExpected, _ := cmd.Flags().GetString("expected")

		amount, err := decimal.NewFromString(rawAmount)
		if err != nil {
			return fmt.Errorf("invalid --amount %q: %w", rawAmount, err)
		}
		expected, err := decimal.NewFromString(rawExpected)
		if err != nil {
			return fmt.Errorf("invalid --expected %q: %w", rawExpected, err)
		}

		req := dto.PayBillRequest{
			BillID:                args[0],
			Amount:                amount,
			ExpectedPaymentAmount: &expected,
		}
		return run(cmd, func(ctx context.Context, billing service.BillingService) (any, error) {
			return billing.PayBill(ctx, req)
		})
	},
}

var paymentsCmd = &cobra.Command{
	Use:   "payments BILL_ID",
	Short: "Show the installments paid against a bill",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(ctx context.Context, billing service.BillingService) (any, error) {
			return billing.ListPartialPayments(ctx, args[0])
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status CLIENT_ID",
	Short: "Show a client's connection status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		history, _ := cmd.Flags().GetBool("history")
		return run(cmd, func(ctx context.Context, billing service.BillingService) (any, error) {
			if history {
				return billing.ListConnectionStatusHistory(ctx, args[0])
			}
			return billing.GetClientStatus(ctx, args[0])
		})
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Age every client with an open bill",
	Long: `sweep applies the disconnection policy to every client that has an open
bill, appending a status record for each client whose status changed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var at time.Time
		if raw, _ := cmd.Flags().GetString("at"); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return fmt.Errorf("invalid --at %q: %w", raw, err)
			}
			at = parsed
		}

		return run(cmd, func(ctx context.Context, billing service.BillingService) (any, error) {
			return billing.EvaluateConnectionStatuses(ctx, at)
		})
	},
}
