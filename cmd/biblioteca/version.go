package main

import (
	"fmt"

	"github.com/spf13/cobra"

	apihttp "github.com/AndresRodriguez-98/BibliotecaApi/adapters/http"
)

var (
	// Set via ldflags at build time
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("biblioteca %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", buildDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	apihttp.BuildVersion = version
	apihttp.BuildCommit = commit
}
