package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/srg/otbeat2mqtt/internal/device"
)

func TestFormatVersion(t *testing.T) {
	// GOAL: Verify version strings get a 'v' prefix only when they start with a digit
	//
	// TEST SCENARIO: Format release, dev and prefixed versions → only bare numbers gain the prefix

	tests := []struct {
		name     string
		version  string
		expected string
	}{
		{"release version", "1.2.3", "v1.2.3"},
		{"already prefixed", "v1.2.3", "v1.2.3"},
		{"dev build", "dev", "dev"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatVersion(tt.version), "formatted version MUST match")
		})
	}
}

func TestFormatUserError(t *testing.T) {
	// GOAL: Verify sentinel errors map to operator-friendly messages
	//
	// TEST SCENARIO: Format wrapped sentinels and plain errors → hints for known sentinels, passthrough otherwise

	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "bluetooth off",
			err:      fmt.Errorf("%w: have=4 want=5", device.ErrBluetoothOff),
			expected: "Bluetooth is turned off or unavailable - turn it on and try again",
		},
		{
			name:     "deadline exceeded",
			err:      fmt.Errorf("dial: %w", context.DeadlineExceeded),
			expected: "operation timed out: dial: context deadline exceeded",
		},
		{
			name:     "plain error passes through",
			err:      errors.New("broker unreachable"),
			expected: "broker unreachable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatUserError(tt.err), "formatted message MUST match")
		})
	}
}

func TestRootCmdWiring(t *testing.T) {
	// GOAL: Verify the root command carries both subcommands and the log-level flag
	//
	// TEST SCENARIO: Inspect rootCmd → run and scan are registered, persistent --log-level exists

	names := make([]string, 0, len(rootCmd.Commands()))
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "run", "rootCmd MUST register the run command")
	assert.Contains(t, names, "scan", "rootCmd MUST register the scan command")

	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("log-level"), "rootCmd MUST define the persistent --log-level flag")
}
