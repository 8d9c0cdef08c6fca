package goble

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/otbeat2mqtt/internal/device"
)

// Transport implements device.Transport on top of go-ble. A single Transport
// owns the platform BLE adapter and is safe to share between the scanner and
// concurrent connection attempts.
type Transport struct {
	dev    ble.Device
	logger *logrus.Logger
}

// NewTransport initializes the platform BLE adapter via DeviceFactory and
// installs it as the go-ble default device, which ble.Dial requires.
func NewTransport(logger *logrus.Logger) (*Transport, error) {
	if logger == nil {
		logger = logrus.New()
	}

	dev, err := DeviceFactory()
	if err != nil {
		logger.WithField("error", err).Error("Failed to create BLE device")
		return nil, fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	ble.SetDefaultDevice(dev)

	return &Transport{dev: dev, logger: logger}, nil
}

// Scan wraps the raw ble.Device.Scan to convert ble.Advertisement to the device.Advertisement
func (t *Transport) Scan(ctx context.Context, allowDuplicates bool, handler func(device.Advertisement)) error {
	// Adapter: convert a handler expecting a device.Advertisement to the one expecting ble.Advertisement
	bleHandler := func(adv ble.Advertisement) {
		handler(NewBLEAdvertisement(adv))
	}
	if err := t.dev.Scan(ctx, allowDuplicates, bleHandler); err != nil {
		return NormalizeError(err)
	}
	return nil
}

// Open dials the peripheral, discovers its full GATT profile and returns a
// live connection. The ctx bounds connection establishment only; the returned
// Conn outlives it and is released with Close.
func (t *Transport) Open(ctx context.Context, address string) (device.Conn, error) {
	if strings.TrimSpace(address) == "" {
		t.logger.Error("Connection attempt with empty address")
		return nil, fmt.Errorf("device address is empty")
	}

	t.logger.WithField("address", address).Info("Connecting to BLE device...")

	t.logger.WithField("address", address).Debug("Dialing BLE device...")
	client, err := ble.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		t.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", address, NormalizeError(err))
	}

	t.logger.WithField("address", address).Debug("Discovering services and characteristics...")
	profile, err := client.DiscoverProfile(true)
	if err != nil {
		t.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to discover profile")
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			t.logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection during profile discovery failure")
		}
		return nil, fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}

	conn := newConn(ctx, address, client, profile, t.logger)

	t.logger.WithFields(logrus.Fields{
		"address":  address,
		"services": len(profile.Services),
	}).Info("BLE device connected successfully")
	return conn, nil
}
