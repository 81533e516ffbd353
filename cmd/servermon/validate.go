package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"servermon/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	// Resolve every sink so an enabled but incomplete notification
	// block fails here instead of at start.
	for i := range cfg.Endpoints {
		ep := &cfg.Endpoints[i]
		if _, err := config.ResolveEmail(ep.Email, cfg.Global.Email); err != nil {
			return fmt.Errorf("endpoint %q: %w", ep.Name, err)
		}
		if _, err := config.ResolveWebhook(ep.Webhook, cfg.Global.Webhook); err != nil {
			return fmt.Errorf("endpoint %q: %w", ep.Name, err)
		}
	}
	enabled := 0
	for i := range cfg.Endpoints {
		if cfg.Endpoints[i].IsEnabled() {
			enabled++
		}
	}
	fmt.Printf("%s: ok (%d endpoints, %d enabled)\n", configFile, len(cfg.Endpoints), enabled)
	return nil
}
