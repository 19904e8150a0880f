package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Inspect accounts",
	Long: `Inspect accounts and their delinquency state.

Accounts are created with their first key.

Examples:
  biblioteca accounts list
  biblioteca accounts show acc_123`,
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	RunE:  runAccountsList,
}

var accountsShowCmd = &cobra.Command{
	Use:   "show <account-id>",
	Short: "Show one account",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountsShow,
}

func init() {
	rootCmd.AddCommand(accountsCmd)

	accountsCmd.AddCommand(accountsListCmd)
	accountsCmd.AddCommand(accountsShowCmd)
}

func runAccountsList(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Shutdown()

	accounts, err := app.Accounts.List(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	if len(accounts) == 0 {
		fmt.Println("No accounts found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDELINQUENT\tCREATED")
	fmt.Fprintln(w, "--\t----------\t-------")
	for _, a := range accounts {
		fmt.Fprintf(w, "%s\t%t\t%s\n", a.ID, a.Delinquent, a.CreatedAt.Format("2006-01-02"))
	}
	w.Flush()
	return nil
}

func runAccountsShow(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Shutdown()

	ctx := context.Background()
	a, err := app.Accounts.View(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to load account: %w", err)
	}
	keys, err := app.Keys.List(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}
	invoices, err := app.Accounts.Invoices(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to list invoices: %w", err)
	}

	unpaid := 0
	for _, inv := range invoices {
		if !inv.Paid {
			unpaid++
		}
	}

	fmt.Printf("Account:    %s\n", a.ID)
	fmt.Printf("Delinquent: %t\n", a.Delinquent)
	if !a.CreatedAt.IsZero() {
		fmt.Printf("Created:    %s\n", a.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("Keys:       %d\n", len(keys))
	fmt.Printf("Invoices:   %d (%d unpaid)\n", len(invoices), unpaid)
	return nil
}
