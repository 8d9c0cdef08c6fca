package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/otbeat2mqtt/internal/config"
	"github.com/srg/otbeat2mqtt/internal/devicefactory"
	"github.com/srg/otbeat2mqtt/internal/mqtt"
	"github.com/srg/otbeat2mqtt/relay"
	"github.com/srg/otbeat2mqtt/scanner"
)

// mqttDisconnectTimeout bounds the final broker disconnect on shutdown.
const mqttDisconnectTimeout = 5 * time.Second

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the heart-rate relay",
	Long: `Run the relay daemon: scan for heart-rate monitors, stream their
measurements, and publish readings to the MQTT broker.

The relay rescans on an interval, so monitors that appear later (or come
back after a dropped connection) are picked up automatically. On shutdown
every active sensor receives a final 0 bpm reading so dashboards do not
freeze on the last value.

Configuration is read from a YAML file; every setting has a default, so
the relay runs with no config at all against a broker on localhost.`,
	RunE: runRelay,
}

var runConfigPath string

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "Config file path (default: search standard locations)")
}

func runRelay(cmd *cobra.Command, args []string) error {
	path, err := config.FindConfig(runConfigPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	logger, err := configureLogger(cmd, cfg.LogLevel)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	if path != "" {
		logger.WithField("path", path).Info("Loaded configuration")
	} else {
		logger.Info("No config file found, using defaults")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		logger.Info("Shutdown signal received, stopping relay...")
		cancel()
	}()

	pub, err := mqtt.Connect(ctx, cfg.MQTT, logger)
	if err != nil {
		return fmt.Errorf("failed to set up MQTT publisher: %w", err)
	}
	defer func() {
		// Runs after the supervisor has drained its sessions, so the
		// terminal zero readings are already out.
		closeCtx, closeCancel := context.WithTimeout(context.Background(), mqttDisconnectTimeout)
		defer closeCancel()
		if err := pub.Close(closeCtx); err != nil {
			logger.WithField("error", err).Warn("MQTT disconnect reported errors")
		}
	}()

	transport, err := devicefactory.NewTransport(logger)
	if err != nil {
		return fmt.Errorf("failed to initialize BLE transport: %w", err)
	}

	sv := relay.NewSupervisor(relayConfig(cfg), scanner.NewScanner(transport, logger), transport, pub, logger)

	if err := sv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Relay stopped")
	return nil
}

// relayConfig maps the file configuration onto the supervisor's knobs.
func relayConfig(cfg *config.Config) relay.Config {
	return relay.Config{
		ScanDuration:     cfg.Scan.Duration(),
		RescanInterval:   cfg.Scan.RescanInterval(),
		NameMarkers:      cfg.Scan.NameMarkers,
		ConnectTimeout:   cfg.Session.ConnectTimeout(),
		LivenessInterval: cfg.Session.LivenessInterval(),
		ShutdownGrace:    cfg.Session.ShutdownGrace(),
	}
}
