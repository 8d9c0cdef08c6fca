package goble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/otbeat2mqtt/internal/device"
	"github.com/srg/otbeat2mqtt/internal/groutine"
)

// Conn represents a live BLE connection (notifications, link liveness).
// The connection context is cancelled on link loss or Close; Done and Live
// expose it to callers.
type Conn struct {
	address string
	client  ble.Client
	profile *ble.Profile
	logger  *logrus.Logger

	ctx    context.Context
	cancel context.CancelCauseFunc

	mu         sync.Mutex
	subscribed []*ble.Characteristic

	closeOnce sync.Once
	closeErr  error
}

func newConn(parent context.Context, address string, client ble.Client, profile *ble.Profile, logger *logrus.Logger) *Conn {
	// Detach from the dial context: its deadline bounds connection
	// establishment, not the connection lifetime.
	// Use WithCancelCause to propagate link-loss errors to all waiters.
	ctx, cancel := context.WithCancelCause(context.WithoutCancel(parent))

	c := &Conn{
		address: address,
		client:  client,
		profile: profile,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}

	// Monitor go-ble client Disconnected() channel (Darwin-specific)
	// This detects when CoreBluetooth reports disconnection
	if darwinClient, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		groutine.Go(context.Background(), "ble-connection-monitor", func(context.Context) {
			select {
			case <-darwinClient.Disconnected():
				logger.WithField("address", address).Warn("CoreBluetooth reported disconnection, cancelling connection context")
				cancel(device.ErrNotConnected)
			case <-ctx.Done():
				// Connection already released, exit monitor
			}
		})
	} else {
		logger.Debug("Client does not support Disconnected() channel (non-Darwin platform?)")
	}

	return c
}

// Subscribe enables notifications on the characteristic identified by the
// service and characteristic UUIDs. Indicate-only characteristics are
// subscribed in indicate mode.
func (c *Conn) Subscribe(serviceUUID, charUUID string, handler device.NotificationHandler) error {
	if handler == nil {
		return fmt.Errorf("notification handler is required")
	}
	if !c.Live() {
		return device.ErrNotConnected
	}

	char, err := c.findCharacteristic(serviceUUID, charUUID)
	if err != nil {
		return err
	}

	if char.Property&(ble.CharNotify|ble.CharIndicate) == 0 {
		return fmt.Errorf("characteristic %q does not support notifications: %w", charUUID, device.ErrUnsupported)
	}
	indicate := char.Property&ble.CharNotify == 0

	err = c.client.Subscribe(char, indicate, func(data []byte) {
		// go-ble may reuse the buffer once the callback returns
		buf := make([]byte, len(data))
		copy(buf, data)
		handler(buf)
	})
	if err != nil {
		err = NormalizeError(err)
		c.logger.WithFields(logrus.Fields{
			"serviceUUID": serviceUUID,
			"charUUID":    charUUID,
			"error":       err,
		}).Error("Failed to subscribe to characteristic notifications")
		return fmt.Errorf("failed to subscribe to characteristic %q: %w", charUUID, err)
	}

	c.mu.Lock()
	c.subscribed = append(c.subscribed, char)
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"serviceUUID": serviceUUID,
		"charUUID":    charUUID,
		"indicate":    indicate,
	}).Info("Subscribed to characteristic notifications")
	return nil
}

// Live reports whether the connection context is still open.
func (c *Conn) Live() bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
		return true
	}
}

// Done is closed when the link is lost or the connection is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close unsubscribes from remote notifications, cancels the connection
// context and releases the BLE link. Safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.logger.WithField("address", c.address).Info("Disconnecting BLE device...")

		c.mu.Lock()
		subscribed := c.subscribed
		c.subscribed = nil
		c.mu.Unlock()

		// Unsubscribe from remote BLE notifications before cancelling the connection.
		// Best effort: the link may already be gone.
		var unsubscribeErrors []string
		for _, char := range subscribed {
			if err := c.tryUnsubscribe(char); err != nil {
				unsubscribeErrors = append(unsubscribeErrors, err.Error())
			}
		}
		if len(unsubscribeErrors) > 0 {
			c.logger.WithField("errors", strings.Join(unsubscribeErrors, "; ")).Warn("Failed to unsubscribe from some characteristics during disconnect")
		}

		c.cancel(nil) // normal close, no error cause

		if err := c.client.CancelConnection(); err != nil {
			c.closeErr = NormalizeError(err)
			c.logger.WithField("error", c.closeErr).Warn("BLE device disconnected with errors")
			return
		}
		c.logger.Info("BLE device disconnected successfully")
	})
	return c.closeErr
}

// tryUnsubscribe attempts to unsubscribe using both notify and indicate modes.
// Returns an error only if both modes fail.
func (c *Conn) tryUnsubscribe(char *ble.Characteristic) error {
	err1 := NormalizeError(c.client.Unsubscribe(char, false)) // notify
	err2 := NormalizeError(c.client.Unsubscribe(char, true))  // indicate

	if err1 != nil && err2 != nil {
		return fmt.Errorf("%s: notify=%v, indicate=%v", char.UUID.String(), err1, err2)
	}

	c.logger.WithField("charUUID", char.UUID.String()).Debug("Unsubscribed from characteristic notifications")
	return nil
}

// findCharacteristic resolves a characteristic from the discovered profile.
// Both UUIDs are matched in normalized form.
func (c *Conn) findCharacteristic(serviceUUID, charUUID string) (*ble.Characteristic, error) {
	targetSvc := device.NormalizeUUID(serviceUUID)
	targetChar := device.NormalizeUUID(charUUID)

	var svc *ble.Service
	for _, s := range c.profile.Services {
		if device.NormalizeUUID(s.UUID.String()) == targetSvc {
			svc = s
			break
		}
	}
	if svc == nil {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{serviceUUID}}
	}

	for _, ch := range svc.Characteristics {
		if device.NormalizeUUID(ch.UUID.String()) == targetChar {
			return ch, nil
		}
	}
	return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{serviceUUID, charUUID}}
}
