package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AndresRodriguez-98/BibliotecaApi/adapters/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue management API tokens",
	Long: `Issue bearer tokens for the management API (/api/...).

A token carries the account it acts for; requests made with it can only
see and change that account's keys and invoices.

Examples:
  biblioteca token secret
  biblioteca token issue --account=acc_123`,
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a token for an account",
	RunE:  runTokenIssue,
}

var tokenSecretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Generate a random signing secret for auth.jwt_secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := auth.GenerateSecret()
		if err != nil {
			return err
		}
		fmt.Println(secret)
		return nil
	},
}

var tokenAccountID string

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.AddCommand(tokenIssueCmd)
	tokenCmd.AddCommand(tokenSecretCmd)

	tokenIssueCmd.Flags().StringVar(&tokenAccountID, "account", "", "account ID (required)")
	tokenIssueCmd.MarkFlagRequired("account")
}

func runTokenIssue(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Shutdown()

	token, expires, err := app.Tokens.Generate(tokenAccountID)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}

	fmt.Println(token)
	fmt.Printf("\nExpires: %s\n", expires.Format("2006-01-02 15:04:05 MST"))
	return nil
}
