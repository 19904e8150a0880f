package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/AndresRodriguez-98/BibliotecaApi/domain/key"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys",
	Long: `Manage Biblioteca API keys.

An account may hold many paid keys and at most one active free key.
Free keys cannot be deleted, only deactivated.

Examples:
  biblioteca keys list
  biblioteca keys list --account=acc_123
  biblioteca keys create --account=acc_123 --tier=free
  biblioteca keys rotate <key-id>
  biblioteca keys deactivate <key-id>`,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys",
	RunE:  runKeysList,
}

var keysCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new API key",
	RunE:  runKeysCreate,
}

var keysRotateCmd = &cobra.Command{
	Use:   "rotate <key-id>",
	Short: "Replace a key's token",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysRotate,
}

var keysActivateCmd = &cobra.Command{
	Use:   "activate <key-id>",
	Short: "Activate a key",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setKeyActive(args[0], true) },
}

var keysDeactivateCmd = &cobra.Command{
	Use:   "deactivate <key-id>",
	Short: "Deactivate a key",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setKeyActive(args[0], false) },
}

var keysDeleteCmd = &cobra.Command{
	Use:   "delete <key-id>",
	Short: "Delete a paid key",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysDelete,
}

var (
	keyAccountID string
	keyTier      string
	keyShowToken bool
	keyYes       bool
)

func init() {
	rootCmd.AddCommand(keysCmd)

	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysCreateCmd)
	keysCmd.AddCommand(keysRotateCmd)
	keysCmd.AddCommand(keysActivateCmd)
	keysCmd.AddCommand(keysDeactivateCmd)
	keysCmd.AddCommand(keysDeleteCmd)

	keysListCmd.Flags().StringVar(&keyAccountID, "account", "", "filter by account ID")
	keysListCmd.Flags().BoolVar(&keyShowToken, "show-tokens", false, "print full tokens instead of masked ones")
	keysCreateCmd.Flags().StringVar(&keyAccountID, "account", "", "account ID (required)")
	keysCreateCmd.Flags().StringVar(&keyTier, "tier", "free", "key tier: free or paid")
	keysCreateCmd.MarkFlagRequired("account")
	keysDeleteCmd.Flags().BoolVarP(&keyYes, "yes", "y", false, "skip confirmation")
}

func runKeysList(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Shutdown()

	keys, err := app.Keys.List(context.Background(), keyAccountID)
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}

	if len(keys) == 0 {
		if keyAccountID != "" {
			fmt.Printf("No keys found for account %s.\n", keyAccountID)
		} else {
			fmt.Println("No API keys found.")
		}
		fmt.Println()
		fmt.Println("Create a key with: biblioteca keys create --account=<account-id>")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTOKEN\tACCOUNT\tTIER\tSTATUS\tCREATED")
	fmt.Fprintln(w, "--\t-----\t-------\t----\t------\t-------")

	for _, k := range keys {
		status := "active"
		if !k.Active {
			status = "inactive"
		}
		token := key.Mask(k.Token)
		if keyShowToken {
			token = k.Token
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", k.ID, token, k.AccountID, k.Tier, status, k.CreatedAt.Format("2006-01-02"))
	}

	w.Flush()
	return nil
}

func runKeysCreate(cmd *cobra.Command, args []string) error {
	tier, err := key.ParseTier(keyTier)
	if err != nil {
		return err
	}

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Shutdown()

	k, err := app.Keys.Create(context.Background(), keyAccountID, tier)
	if err != nil {
		return fmt.Errorf("failed to create key: %w", err)
	}

	fmt.Printf("%s Created %s key for account %s\n", checkMark, k.Tier, k.AccountID)
	fmt.Println()
	fmt.Println("API Key:")
	fmt.Printf("  %s\n", k.Token)
	fmt.Println()
	fmt.Printf("Key ID: %s\n", k.ID)
	return nil
}

func runKeysRotate(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Shutdown()

	k, err := app.Keys.Rotate(context.Background(), "", args[0])
	if err != nil {
		return fmt.Errorf("failed to rotate key: %w", err)
	}

	fmt.Printf("%s Rotated key %s\n", checkMark, k.ID)
	fmt.Printf("  New token: %s\n", k.Token)
	return nil
}

func setKeyActive(id string, active bool) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Shutdown()

	k, err := app.Keys.SetActive(context.Background(), "", id, active)
	if err != nil {
		return fmt.Errorf("failed to update key: %w", err)
	}

	state := "Deactivated"
	if k.Active {
		state = "Activated"
	}
	fmt.Printf("%s %s key: %s\n", checkMark, state, k.ID)
	return nil
}

func runKeysDelete(cmd *cobra.Command, args []string) error {
	keyID := args[0]

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Shutdown()

	ctx := context.Background()
	k, err := app.Keys.Get(ctx, "", keyID)
	if err != nil {
		return fmt.Errorf("key not found: %s", keyID)
	}
	if err := key.CanDelete(k); err != nil {
		return err
	}

	if !keyYes && !confirm(fmt.Sprintf("Delete key %s?", keyID)) {
		fmt.Println("Aborted.")
		return nil
	}

	if err := app.Keys.Delete(ctx, "", keyID); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}

	fmt.Printf("%s Deleted key: %s\n", checkMark, keyID)
	return nil
}
