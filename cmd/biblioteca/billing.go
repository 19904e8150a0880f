package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/AndresRodriguez-98/BibliotecaApi/domain/billing"
)

var billingCmd = &cobra.Command{
	Use:   "billing",
	Short: "Run billing jobs",
	Long: `Run the billing jobs that serve normally runs on its schedule.

  invoice   bill paid usage of the previous calendar month (once per month)
  evaluate  flag accounts holding invoices past their due date
  run       both, in that order

Examples:
  biblioteca billing run
  biblioteca billing periods`,
}

var billingRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Invoice the previous month, then flag delinquent accounts",
	RunE:  runBillingRun,
}

var billingInvoiceCmd = &cobra.Command{
	Use:   "invoice",
	Short: "Invoice the previous month",
	RunE:  runBillingInvoice,
}

var billingEvaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Flag accounts with overdue invoices",
	RunE:  runBillingEvaluate,
}

var billingPeriodsCmd = &cobra.Command{
	Use:   "periods",
	Short: "List invoiced periods",
	RunE:  runBillingPeriods,
}

func init() {
	rootCmd.AddCommand(billingCmd)

	billingCmd.AddCommand(billingRunCmd)
	billingCmd.AddCommand(billingInvoiceCmd)
	billingCmd.AddCommand(billingEvaluateCmd)
	billingCmd.AddCommand(billingPeriodsCmd)
}

func runBillingRun(cmd *cobra.Command, args []string) error {
	if err := runBillingInvoice(cmd, args); err != nil {
		return err
	}
	return runBillingEvaluate(cmd, args)
}

func runBillingInvoice(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Shutdown()

	result, err := app.Invoices.Run(context.Background())
	if err != nil {
		return fmt.Errorf("invoice run failed: %w", err)
	}
	printRunResult(result)
	return nil
}

func printRunResult(result billing.RunResult) {
	if result.Skipped {
		fmt.Printf("Period %s was already invoiced.\n", result.Period)
		return
	}
	fmt.Printf("%s Invoiced %s: %d invoices, total %s\n",
		checkMark, result.Period, len(result.Invoices), result.Total.StringFixed(2))
	if len(result.Invoices) == 0 {
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tACCOUNT\tREQUESTS\tAMOUNT\tDUE")
	for _, inv := range result.Invoices {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", inv.ID, inv.AccountID, inv.Count, inv.Amount.StringFixed(2), inv.DueAt.Format("2006-01-02"))
	}
	w.Flush()
}

func runBillingEvaluate(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Shutdown()

	flagged, err := app.Delinquency.Evaluate(context.Background())
	if err != nil {
		return fmt.Errorf("delinquency check failed: %w", err)
	}

	if len(flagged) == 0 {
		fmt.Println("No overdue invoices.")
		return nil
	}
	fmt.Printf("%s Flagged %d delinquent accounts:\n", checkMark, len(flagged))
	for _, id := range flagged {
		fmt.Printf("  %s\n", id)
	}
	return nil
}

func runBillingPeriods(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Shutdown()

	periods, err := app.Accounts.EmittedPeriods(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list periods: %w", err)
	}
	if len(periods) == 0 {
		fmt.Println("No periods invoiced yet.")
		return nil
	}
	for _, p := range periods {
		fmt.Println(p)
	}
	return nil
}

var invoicesCmd = &cobra.Command{
	Use:   "invoices",
	Short: "List and settle invoices",
	Long: `List and settle invoices.

Examples:
  biblioteca invoices list --account=acc_123
  biblioteca invoices pay <invoice-id>`,
}

var invoicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List invoices",
	RunE:  runInvoicesList,
}

var invoicesPayCmd = &cobra.Command{
	Use:   "pay <invoice-id>",
	Short: "Mark an invoice paid",
	Args:  cobra.ExactArgs(1),
	RunE:  runInvoicesPay,
}

var invoiceAccountID string

func init() {
	rootCmd.AddCommand(invoicesCmd)

	invoicesCmd.AddCommand(invoicesListCmd)
	invoicesCmd.AddCommand(invoicesPayCmd)

	invoicesListCmd.Flags().StringVar(&invoiceAccountID, "account", "", "filter by account ID")
}

func runInvoicesList(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Shutdown()

	ctx := context.Background()
	accountIDs := []string{invoiceAccountID}
	if invoiceAccountID == "" {
		accounts, err := app.Accounts.List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list accounts: %w", err)
		}
		accountIDs = accountIDs[:0]
		for _, a := range accounts {
			accountIDs = append(accountIDs, a.ID)
		}
	}

	var invoices []billing.Invoice
	for _, id := range accountIDs {
		list, err := app.Accounts.Invoices(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to list invoices: %w", err)
		}
		invoices = append(invoices, list...)
	}

	if len(invoices) == 0 {
		fmt.Println("No invoices found.")
		return nil
	}

	now := time.Now()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tACCOUNT\tPERIOD\tREQUESTS\tAMOUNT\tDUE\tSTATUS")
	fmt.Fprintln(w, "--\t-------\t------\t--------\t------\t---\t------")
	for _, inv := range invoices {
		status := "open"
		switch {
		case inv.Paid:
			status = "paid"
		case inv.IsOverdue(now):
			status = "overdue"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			inv.ID, inv.AccountID, inv.Period, inv.Count, inv.Amount.StringFixed(2), inv.DueAt.Format("2006-01-02"), status)
	}
	w.Flush()
	return nil
}

func runInvoicesPay(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Shutdown()

	result, err := app.Delinquency.MarkPaid(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to mark invoice paid: %w", err)
	}

	if result.AlreadySettled {
		fmt.Printf("Invoice %s was already paid.\n", args[0])
		return nil
	}
	fmt.Printf("%s Invoice %s paid (%s)\n", checkMark, result.Invoice.ID, result.Invoice.Amount.StringFixed(2))
	if result.DelinquencyCleared {
		fmt.Printf("  Account %s has no overdue invoices left.\n", result.Invoice.AccountID)
	}
	return nil
}
