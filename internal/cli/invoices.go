package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/sadopc/dwell/internal/billing"
	"github.com/sadopc/dwell/internal/invoice"
	"github.com/sadopc/dwell/internal/store"
	"github.com/sadopc/dwell/internal/tracker"
)

func newInvoicesCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoices",
		Short: "Work with detention invoices",
	}
	cmd.AddCommand(newInvoicesOverdueCmd(opts), newInvoicesSendCmd(opts))
	return cmd
}

func newInvoicesOverdueCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "overdue",
		Short: "List sent invoices past their due date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := opts.open()
			if err != nil {
				return err
			}
			defer env.Close()

			return printOverdue(cmd, invoice.NewService(env.store, nil, nil), time.Now())
		},
	}
}

func printOverdue(cmd *cobra.Command, svc *invoice.Service, now time.Time) error {
	invoices, err := svc.Overdue(cmd.Context())
	if err != nil {
		return err
	}
	if len(invoices) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No overdue invoices.")
		return nil
	}

	var total float64
	t := newTable("Number", "Recipient", "Due", "Days late", "Amount")
	for _, inv := range invoices {
		total += inv.TotalAmount
		t.Row(
			inv.Number,
			inv.RecipientEmail,
			inv.DueDate.Local().Format("2006-01-02"),
			strconv.Itoa(int(now.Sub(inv.DueDate).Hours()/24)),
			billing.FormatCurrency(inv.TotalAmount),
		)
	}
	fmt.Fprintln(cmd.OutOrStdout(), t.Render())
	fmt.Fprintf(cmd.OutOrStdout(), "%d overdue, %s outstanding\n", len(invoices), billing.FormatCurrency(total))
	return nil
}

func newInvoicesSendCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "send NUMBER",
		Short: "Email an invoice to its recipient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := opts.open()
			if err != nil {
				return err
			}
			defer env.Close()

			svc := invoice.NewService(env.store, invoice.NewMailer(env.cfg.SMTP), tracker.SystemClock{})
			inv, err := sendByNumber(cmd.Context(), env.store, svc, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent %s to %s\n", inv.Number, inv.RecipientEmail)
			return nil
		},
	}
}

func sendByNumber(ctx context.Context, s *store.Store, svc *invoice.Service, number string) (*store.Invoice, error) {
	inv, err := s.GetInvoiceByNumber(number)
	if err != nil {
		return nil, fmt.Errorf("invoice %s: %w", number, err)
	}
	if err := svc.Send(ctx, inv.ID); err != nil {
		return nil, err
	}
	return inv, nil
}
