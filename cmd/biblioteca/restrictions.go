package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var restrictionsCmd = &cobra.Command{
	Use:     "restrictions",
	Aliases: []string{"restrict"},
	Short:   "Manage key domain and IP restrictions",
	Long: `Restrict where a key may be used from.

A key without restrictions is accepted from anywhere. Once restricted, a
request must come from one of the key's domains (Origin or Referer) or
one of its IP addresses.

Examples:
  biblioteca restrictions list <key-id>
  biblioteca restrictions add-domain <key-id> books.example.com
  biblioteca restrictions add-ip <key-id> 203.0.113.7
  biblioteca restrictions remove-domain <restriction-id>`,
}

var restrictionsListCmd = &cobra.Command{
	Use:   "list <key-id>",
	Short: "List a key's restrictions",
	Args:  cobra.ExactArgs(1),
	RunE:  runRestrictionsList,
}

var restrictionsAddDomainCmd = &cobra.Command{
	Use:   "add-domain <key-id> <domain>",
	Short: "Allow a domain",
	Args:  cobra.ExactArgs(2),
	RunE:  runRestrictionsAddDomain,
}

var restrictionsAddIPCmd = &cobra.Command{
	Use:   "add-ip <key-id> <ip>",
	Short: "Allow an IP address",
	Args:  cobra.ExactArgs(2),
	RunE:  runRestrictionsAddIP,
}

var restrictionsRemoveDomainCmd = &cobra.Command{
	Use:   "remove-domain <restriction-id>",
	Short: "Remove a domain restriction",
	Args:  cobra.ExactArgs(1),
	RunE:  runRestrictionsRemoveDomain,
}

var restrictionsRemoveIPCmd = &cobra.Command{
	Use:   "remove-ip <restriction-id>",
	Short: "Remove an IP restriction",
	Args:  cobra.ExactArgs(1),
	RunE:  runRestrictionsRemoveIP,
}

func init() {
	rootCmd.AddCommand(restrictionsCmd)

	restrictionsCmd.AddCommand(restrictionsListCmd)
	restrictionsCmd.AddCommand(restrictionsAddDomainCmd)
	restrictionsCmd.AddCommand(restrictionsAddIPCmd)
	restrictionsCmd.AddCommand(restrictionsRemoveDomainCmd)
	restrictionsCmd.AddCommand(restrictionsRemoveIPCmd)
}

func runRestrictionsList(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Shutdown()

	rs, err := app.Restrictions.List(context.Background(), "", args[0])
	if err != nil {
		return fmt.Errorf("failed to list restrictions: %w", err)
	}

	if rs.Empty() {
		fmt.Printf("Key %s has no restrictions.\n", args[0])
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tVALUE")
	fmt.Fprintln(w, "--\t----\t-----")
	for _, d := range rs.Domains {
		fmt.Fprintf(w, "%s\tdomain\t%s\n", d.ID, d.Domain)
	}
	for _, ip := range rs.IPs {
		fmt.Fprintf(w, "%s\tip\t%s\n", ip.ID, ip.IP)
	}
	w.Flush()
	return nil
}

func runRestrictionsAddDomain(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Shutdown()

	d, err := app.Restrictions.AddDomain(context.Background(), "", args[0], args[1])
	if err != nil {
		return fmt.Errorf("failed to add domain: %w", err)
	}
	fmt.Printf("%s Key %s now accepts %s (id %s)\n", checkMark, d.KeyID, d.Domain, d.ID)
	return nil
}

func runRestrictionsAddIP(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Shutdown()

	ip, err := app.Restrictions.AddIP(context.Background(), "", args[0], args[1])
	if err != nil {
		return fmt.Errorf("failed to add ip: %w", err)
	}
	fmt.Printf("%s Key %s now accepts %s (id %s)\n", checkMark, ip.KeyID, ip.IP, ip.ID)
	return nil
}

func runRestrictionsRemoveDomain(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Shutdown()

	if err := app.Restrictions.RemoveDomain(context.Background(), "", args[0]); err != nil {
		return fmt.Errorf("failed to remove domain: %w", err)
	}
	fmt.Printf("%s Removed restriction %s\n", checkMark, args[0])
	return nil
}

func runRestrictionsRemoveIP(cmd *cobra.Command, args []string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Shutdown()

	if err := app.Restrictions.RemoveIP(context.Background(), "", args[0]); err != nil {
		return fmt.Errorf("failed to remove ip: %w", err)
	}
	fmt.Printf("%s Removed restriction %s\n", checkMark, args[0])
	return nil
}
