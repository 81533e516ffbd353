package main

import (
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var configFile string

var rootCmd = &cobra.Command{
	Use:   "servermon",
	Short: "Endpoint monitoring daemon",
	Long: `servermon probes HTTP, TCP and TLS endpoints on per-endpoint
intervals, records results and status transitions, and sends email or
webhook notifications on failure and recovery.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yaml",
		"path to the configuration file")
}
