package main

import (
	"context"
	"errors"

	"github.com/srg/otbeat2mqtt/internal/device"
)

// FormatUserError turns an internal error into the message printed to stderr.
// Sentinels with a clear operator remedy get a hint; everything else passes
// through with its wrapped detail intact.
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off or unavailable - turn it on and try again"
	case errors.Is(err, context.DeadlineExceeded):
		return "operation timed out: " + err.Error()
	default:
		return err.Error()
	}
}
