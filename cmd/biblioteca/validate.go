package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	apihttp "github.com/AndresRodriguez-98/BibliotecaApi/adapters/http"
	"github.com/AndresRodriguez-98/BibliotecaApi/adapters/postgres"
	"github.com/AndresRodriguez-98/BibliotecaApi/adapters/sqlite"
	"github.com/AndresRodriguez-98/BibliotecaApi/adapters/sqlstore"
	"github.com/AndresRodriguez-98/BibliotecaApi/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the Biblioteca configuration file.

Checks:
  - YAML syntax is valid
  - Required fields are present
  - Catalog upstream is reachable (optional)
  - Database is reachable (optional)

Examples:
  biblioteca validate
  biblioteca validate --config /etc/biblioteca/biblioteca.yaml --check-catalog`,
	RunE: runValidate,
}

var (
	validateCheckCatalog  bool
	validateCheckDatabase bool
)

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckCatalog, "check-catalog", false, "check if the catalog upstream is reachable")
	validateCmd.Flags().BoolVar(&validateCheckDatabase, "check-database", false, "check if the database is reachable")
}

func runValidate(cmd *cobra.Command, args []string) error {
	fmt.Printf("Validating %s...\n\n", cfgFile)

	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Printf("  %s Config file exists\n", crossMark)
		return fmt.Errorf("config file not found: %s", cfgFile)
	}
	fmt.Printf("  %s Config file exists\n", checkMark)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Printf("  %s Config valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Printf("  %s Config valid\n", checkMark)

	catalog := cfg.Catalog.UpstreamURL
	if catalog == "" {
		catalog = "(not configured)"
	}
	fmt.Printf("  %s Catalog: %s\n", checkMark, catalog)
	fmt.Printf("  %s Database: %s\n", checkMark, cfg.Database.Driver)
	fmt.Printf("  %s Free daily quota: %d\n", checkMark, cfg.Admission.FreeDailyQuota)
	fmt.Printf("  %s Paid rate: %s per request, due in %d days\n", checkMark, cfg.Billing.RateDecimal().String(), cfg.Billing.DueDays)
	fmt.Printf("  %s Quota serialization: %s\n", checkMark, cfg.Admission.Serialize)

	if validateCheckCatalog && cfg.Catalog.UpstreamURL != "" {
		if err := checkCatalogReachable(cfg.Catalog); err != nil {
			fmt.Printf("  %s Catalog reachable\n", crossMark)
			fmt.Printf("      Error: %v\n", err)
		} else {
			fmt.Printf("  %s Catalog reachable\n", checkMark)
		}
	}

	if validateCheckDatabase {
		if err := checkDatabase(cfg.Database); err != nil {
			fmt.Printf("  %s Database reachable\n", crossMark)
			fmt.Printf("      Error: %v\n", err)
		} else {
			fmt.Printf("  %s Database reachable\n", checkMark)
		}
	}

	fmt.Println()
	fmt.Println("Configuration is valid.")
	return nil
}

func checkCatalogReachable(cfg config.CatalogConfig) error {
	proxy, err := apihttp.NewCatalogProxy(apihttp.CatalogConfig{UpstreamURL: cfg.UpstreamURL}, nil, zerolog.Nop())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return proxy.HealthCheck(ctx)
}

func checkDatabase(cfg config.DatabaseConfig) error {
	var (
		db  *sqlstore.DB
		err error
	)
	if cfg.Driver == "postgres" {
		db, err = postgres.Open(cfg.DSN)
	} else {
		db, err = sqlite.Open(cfg.DSN)
	}
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}
