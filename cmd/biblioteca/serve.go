package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/AndresRodriguez-98/BibliotecaApi/bootstrap"
)

var hotReload bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gate",
	Long: `Start the Biblioteca HTTP server.

The server will:
  - Load configuration from biblioteca.yaml (or --config)
  - Or load configuration from BIBLIOTECA_* environment variables
  - Connect to the database and apply migrations
  - Admit catalog requests by API key and forward them upstream
  - Invoice paid usage monthly and flag delinquent accounts

Environment variables (for Docker deployments):
  BIBLIOTECA_AUTH_JWT_SECRET       - Management token secret (required)
  BIBLIOTECA_DATABASE_DRIVER       - sqlite or postgres
  BIBLIOTECA_DATABASE_DSN          - Database path or connection string
  BIBLIOTECA_CATALOG_UPSTREAM_URL  - Catalog service URL
  BIBLIOTECA_ADMISSION_FREE_QUOTA  - Free-tier daily limit
  BIBLIOTECA_LOG_LEVEL             - debug, info, warn, error

Examples:
  biblioteca serve
  biblioteca serve --config /etc/biblioteca/biblioteca.yaml
  biblioteca serve --hot-reload=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "reload the config file on change or SIGHUP")
}

func runServe(cmd *cobra.Command, args []string) error {
	bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	holder, fromFile, err := loadHolder(bootLogger)
	if err != nil {
		return err
	}

	app, err := bootstrap.New(holder, bootstrap.Options{Server: true})
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	if fromFile && hotReload {
		if err := holder.WatchFile(); err != nil {
			app.Logger.Warn().Err(err).Msg("config file watching disabled")
		}
		holder.WatchSignals()
	}

	return app.Run()
}
