package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"servermon/internal/config"
	"servermon/internal/httpapi"
	"servermon/internal/logging"
	"servermon/internal/metrics"
	"servermon/internal/monitor"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the monitoring daemon",
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Global)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	recorder := metrics.NewRecorder()
	d, err := monitor.NewDaemon(cmd.Context(), cfg, log, recorder)
	if err != nil {
		return err
	}
	d.Start()

	var (
		api     *httpapi.Server
		apiErrs = make(chan error, 1)
	)
	if cfg.Global.Health.Enabled != nil && *cfg.Global.Health.Enabled {
		api = httpapi.New(cfg.Global.Health, d, recorder, log.Named("httpapi"))
		go func() { apiErrs <- api.Start() }()
	}

	sigs := make(chan os.Signal, 3)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	// First signal drains gracefully, second cancels in-flight checks,
	// third gives up on cleanup entirely.
	var (
		listenerErr error
		stopping    bool
		signals     int
		stopped     = make(chan error, 1)
	)
	stop := func() {
		if stopping {
			return
		}
		stopping = true
		go func() { stopped <- teardown(d, api, log) }()
	}
	for {
		select {
		case sig := <-sigs:
			signals++
			switch signals {
			case 1:
				log.Info("shutdown_signal", zap.String("signal", sig.String()))
				stop()
			case 2:
				log.Warn("shutdown_signal_repeated", zap.String("signal", sig.String()))
				d.RequestShutdown(monitor.ShutdownForced)
			default:
				log.Error("shutdown_signal_final")
				os.Exit(130)
			}
		case err := <-apiErrs:
			if err != nil {
				log.Error("health_listener_failed", zap.Error(err))
				listenerErr = err
				stop()
			}
		case err := <-stopped:
			return multierr.Append(listenerErr, err)
		}
	}
}

func teardown(d *monitor.Daemon, api *httpapi.Server, log *zap.Logger) error {
	var errs error
	if api != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := api.Shutdown(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("stop health listener: %w", err))
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return multierr.Append(errs, d.Stop(ctx))
}
