package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/AndresRodriguez-98/BibliotecaApi/bootstrap"
	"github.com/AndresRodriguez-98/BibliotecaApi/config"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)

var rootCmd = &cobra.Command{
	Use:   "biblioteca",
	Short: "API key admission and billing for the library catalog",
	Long: `Biblioteca gates the library catalog API behind API keys.

Free keys get a daily request allowance; paid keys are unlimited and
billed monthly per admitted request. Accounts with overdue invoices are
flagged delinquent.

Quick start:
  biblioteca token secret     # Generate a JWT secret for the config
  biblioteca serve            # Start the gate

Management:
  biblioteca keys             # Manage API keys
  biblioteca restrictions     # Manage key restrictions
  biblioteca billing          # Run invoicing and delinquency checks
  biblioteca invoices         # List and settle invoices
  biblioteca accounts         # Inspect accounts
  biblioteca validate         # Validate configuration`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", config.DefaultPath, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr while running commands")
}

// loadHolder loads the config file, or BIBLIOTECA_* variables when the
// file does not exist.
func loadHolder(logger zerolog.Logger) (*config.Holder, bool, error) {
	if _, err := os.Stat(cfgFile); err == nil {
		h, err := config.NewHolder(cfgFile, logger)
		return h, true, err
	}
	if !config.HasEnvConfig() {
		return nil, false, fmt.Errorf("no configuration found: create %s or set BIBLIOTECA_AUTH_JWT_SECRET", cfgFile)
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, false, err
	}
	return config.NewStaticHolder(cfg, logger), false, nil
}

// openApp builds the application for a one-shot CLI command.
func openApp() (*bootstrap.App, error) {
	holder, _, err := loadHolder(zerolog.Nop())
	if err != nil {
		return nil, err
	}

	var out io.Writer = io.Discard
	if verbose {
		out = os.Stderr
	}
	// one-shot commands never serve /metrics
	return bootstrap.New(holder, bootstrap.Options{
		Registerer: prometheus.NewRegistry(),
		LogOutput:  out,
	})
}

func confirm(message string) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("? %s [y/N]: ", message)
	input, _ := reader.ReadString('\n')
	input = strings.ToLower(strings.TrimSpace(input))
	return input == "y" || input == "yes"
}
