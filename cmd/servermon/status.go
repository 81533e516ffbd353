package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"servermon/internal/config"
	"servermon/internal/monitor"
)

var statusAddress string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show status of a running daemon",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAddress, "address", "",
		"health listener address (default taken from the config file)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	base, token, err := healthTarget(statusAddress)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/status", nil)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", base, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}
	var snap monitor.StatusSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}

	fmt.Printf("daemon: running=%v monitors=%d endpoints=%d\n\n",
		snap.Daemon.Running, snap.Daemon.ActiveMonitors, snap.Daemon.TotalEndpoints)

	names := make([]string, 0, len(snap.Endpoints))
	for name := range snap.Endpoints {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tINTERVAL\tMONITOR\tSTATUS\tFAILURES\tUPDATED")
	for _, name := range names {
		ep := snap.Endpoints[name]
		mon := ep.Monitor
		if mon == "" {
			mon = "disabled"
		}
		status, failures, updated := "-", "-", "-"
		if ep.Status != nil {
			status = string(ep.Status.CurrentStatus)
			failures = fmt.Sprintf("%d", ep.Status.ConsecutiveFailures)
			updated = ep.Status.UpdatedAt.Local().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			name, ep.Type, ep.Interval, mon, status, failures, updated)
	}
	return w.Flush()
}

// healthTarget resolves the base URL and auth token of the daemon's
// health listener, reading the config file unless an address was given.
func healthTarget(address string) (string, string, error) {
	var token string
	if address == "" {
		cfg, err := config.Load(configFile)
		if err != nil {
			return "", "", err
		}
		address = cfg.Global.Health.Listen
		token = cfg.Global.Health.AuthToken
	}
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return "", "", fmt.Errorf("health address %q: %w", address, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port), token, nil
}
