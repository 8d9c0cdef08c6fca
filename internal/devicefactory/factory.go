// Package devicefactory is the seam between transport consumers and the
// go-ble backed implementation. The factory variable keeps hardware out of
// tests: suites swap it for a fake transport and restore it afterwards.
package devicefactory

import (
	"github.com/sirupsen/logrus"

	"github.com/srg/otbeat2mqtt/internal/device"
	goble "github.com/srg/otbeat2mqtt/internal/device/go-ble"
)

// NewTransport creates the device.Transport used for scanning and connecting.
// This is a variable so that it can be overridden in tests.
var NewTransport = func(logger *logrus.Logger) (device.Transport, error) {
	return goble.NewTransport(logger)
}
