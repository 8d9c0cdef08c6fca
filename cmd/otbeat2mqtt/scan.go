package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/otbeat2mqtt/internal/config"
	"github.com/srg/otbeat2mqtt/internal/device"
	"github.com/srg/otbeat2mqtt/internal/devicefactory"
	"github.com/srg/otbeat2mqtt/relay"
	"github.com/srg/otbeat2mqtt/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for heart-rate monitors",
	Long: `Scan for and display Bluetooth Low Energy heart-rate monitors in range.

By default only devices the relay would pick up are shown: those whose
advertised name contains a marker (OTbeat, HR) or that advertise the
standard Heart Rate service. Use --all to list every BLE device in range,
which helps when a monitor advertises under an unexpected name.`,
	RunE: runScan,
}

var (
	scanDuration    time.Duration
	scanFormat      string
	scanServices    []string
	scanAllowList   []string
	scanBlockList   []string
	scanNoDuplicate bool
	scanWatch       bool
	scanShowAll     bool
	scanMarkers     []string
)

// Summary colors degrade to plain text when stdout is not a terminal.
var (
	matchColor   = color.New(color.FgGreen)
	noMatchColor = color.New(color.FgYellow)
)

type scanConfig struct {
	scanTimeout  time.Duration
	outputFormat string
	showAll      bool
	markers      []string
}

func defaultScanConfig() *scanConfig {
	return &scanConfig{
		scanTimeout:  10 * time.Second,
		outputFormat: "table",
		markers:      config.DefaultNameMarkers,
	}
}

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration (0 for indefinite)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().StringSliceVarP(&scanServices, "services", "s", nil, "Filter by service UUIDs")
	scanCmd.Flags().StringSliceVar(&scanAllowList, "allow", nil, "Only show devices with these addresses")
	scanCmd.Flags().StringSliceVar(&scanBlockList, "block", nil, "Hide devices with these addresses")
	scanCmd.Flags().BoolVar(&scanNoDuplicate, "no-duplicates", true, "Filter duplicate advertisements")
	scanCmd.Flags().BoolVarP(&scanWatch, "watch", "w", false, "Continuously scan and update results")
	scanCmd.Flags().BoolVar(&scanShowAll, "all", false, "Show all BLE devices, not just heart-rate monitors")
	scanCmd.Flags().StringSliceVar(&scanMarkers, "markers", nil, "Name substrings that mark a heart-rate monitor")
}

func runScan(cmd *cobra.Command, args []string) error {
	// Validate format parameter
	validFormats := []string{"table", "json"}
	isValidFormat := false
	for _, format := range validFormats {
		if scanFormat == format {
			isValidFormat = true
			break
		}
	}
	if !isValidFormat {
		return fmt.Errorf("invalid format '%s': must be one of %v", scanFormat, validFormats)
	}

	logger, err := configureLogger(cmd, "")
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	cfg := defaultScanConfig()
	cfg.outputFormat = scanFormat
	cfg.showAll = scanShowAll
	if scanDuration > 0 {
		cfg.scanTimeout = scanDuration
	}
	if len(scanMarkers) > 0 {
		cfg.markers = scanMarkers
	}

	// For watch mode, default to indefinite scan if no duration specified
	if scanWatch && scanDuration == 0 {
		cfg.scanTimeout = 0
	}

	transport, err := devicefactory.NewTransport(logger)
	if err != nil {
		return fmt.Errorf("failed to initialize BLE transport: %w", err)
	}
	s := scanner.NewScanner(transport, logger)

	// Validate and normalize service UUIDs if provided
	var serviceUUIDs []string
	if len(scanServices) > 0 {
		serviceUUIDs, err = device.ValidateUUID(scanServices...)
		if err != nil {
			return fmt.Errorf("invalid service UUID: %w", err)
		}
	}

	scanOpts := &scanner.ScanOptions{
		Duration:        cfg.scanTimeout,
		DuplicateFilter: scanNoDuplicate,
		ServiceUUIDs:    serviceUUIDs,
		AllowList:       scanAllowList,
		BlockList:       scanBlockList,
	}

	if scanWatch {
		return runWatchMode(s, scanOpts, cfg, logger)
	}

	return runSingleScan(s, scanOpts, cfg, logger)
}

func runSingleScan(s *scanner.Scanner, opts *scanner.ScanOptions, cfg *scanConfig, logger *logrus.Logger) error {
	if cfg == nil {
		cfg = defaultScanConfig()
	}

	baseCtx := context.Background()
	if cfg.scanTimeout > 0 {
		var cancel context.CancelFunc
		baseCtx, cancel = context.WithTimeout(baseCtx, cfg.scanTimeout)
		defer cancel()
	}

	// Cancellable context for signal handling
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nCtrl+C pressed, cancelling scan...")
		cancel()
	}()

	progress := NewCountdownPrinter("Scanning for heart-rate devices", "Scanning", cfg.scanTimeout, "Processing results")
	progress.Start()
	defer progress.Stop()

	peers, err := s.Scan(ctx, opts, progress.Callback())
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("scan failed")
		return err
	}
	return displayPeers(peers, cfg)
}

func runWatchMode(s *scanner.Scanner, opts *scanner.ScanOptions, cfg *scanConfig, logger *logrus.Logger) error {
	// Scan until interrupted by the user.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nCtrl+C pressed, cancelling scan...")
		cancel()
	}()

	// The view is built from the event stream alone; the scan's own result
	// map is never touched while the scan still runs.
	peers := make(map[string]device.PeerInfo)

	scanErrCh := make(chan error, 1)
	go func() {
		_, err := s.Scan(ctx, opts, nil)
		scanErrCh <- err
	}()

	redraw := func(err error) error {
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		clearScreen()
		return displayPeers(peers, cfg)
	}

	// The ticker both drives the periodic redraw and keeps ctx.Done from
	// starving when the events channel is busy.
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	tickCount := 0

	for {
		select {
		case <-ctx.Done():
			return redraw(ctx.Err())

		case err := <-scanErrCh:
			// A finished timed scan keeps the view open; a real failure ends
			// watch mode.
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				return redraw(err)
			}

		case <-ticker.C:
			select {
			case <-ctx.Done():
				return redraw(nil)
			default:
			}

			tickCount++
			if tickCount == 10 {
				_ = redraw(nil)
				tickCount = 0
			}

		case ev := <-s.Events():
			peers[ev.Peer.Address] = ev.Peer
		}
	}
}

// displayPeers renders the scan result. Unless showAll is set, only peers the
// relay would match are listed.
func displayPeers(peers map[string]device.PeerInfo, cfg *scanConfig) error {
	matches := 0
	list := make([]device.PeerInfo, 0, len(peers))
	for _, p := range peers {
		match := relay.IsHeartRateDevice(p, cfg.markers)
		if match {
			matches++
		}
		if match || cfg.showAll {
			list = append(list, p)
		}
	}

	// Heart-rate monitors first, then strongest signal first.
	sort.Slice(list, func(i, j int) bool {
		mi := relay.IsHeartRateDevice(list[i], cfg.markers)
		mj := relay.IsHeartRateDevice(list[j], cfg.markers)
		if mi != mj {
			return mi
		}
		if list[i].RSSI != list[j].RSSI {
			return list[i].RSSI > list[j].RSSI
		}
		return list[i].Address < list[j].Address
	})

	if cfg.outputFormat == "json" {
		return displayPeersJSON(list)
	}
	return displayPeersTable(list, matches, len(peers))
}

func displayPeersTable(list []device.PeerInfo, matches, seen int) error {
	if len(list) > 0 {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tSERVICES\tLAST SEEN")
		fmt.Fprintln(w, strings.Repeat("-", 80))

		for _, p := range list {
			name := p.DisplayName()
			if len(name) > 20 {
				name = name[:17] + "..."
			}

			services := strings.Join(p.Services, ",")
			if len(services) > 30 {
				services = services[:27] + "..."
			}

			lastSeen := time.Since(p.LastSeen).Truncate(time.Second)

			fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\t%s ago\n",
				name, p.Address, p.RSSI, services, lastSeen)
		}

		if err := w.Flush(); err != nil {
			return err
		}
	}

	switch {
	case matches > 0:
		matchColor.Fprintf(os.Stdout, "\n%d heart-rate monitor(s) in range (%d device(s) seen)\n", matches, seen)
	case seen > 0:
		noMatchColor.Fprintf(os.Stdout, "\nNo heart-rate monitors among %d device(s) seen - is the band awake? (--all lists everything)\n", seen)
	default:
		noMatchColor.Fprintln(os.Stdout, "\nNo devices discovered")
	}
	return nil
}

func displayPeersJSON(list []device.PeerInfo) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(list)
}

func clearScreen() {
	fmt.Print("\033[2J\033[H")
}
