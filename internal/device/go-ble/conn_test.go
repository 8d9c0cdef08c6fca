package goble

// GOAL: Verify characteristic resolution and subscription preconditions
// against a discovered GATT profile, without touching BLE hardware.

import (
	"context"
	"errors"
	"testing"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/otbeat2mqtt/internal/device"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testProfile() *ble.Profile {
	return &ble.Profile{
		Services: []*ble.Service{
			{
				UUID: ble.MustParse("180d"),
				Characteristics: []*ble.Characteristic{
					{UUID: ble.MustParse("2a37"), Property: ble.CharNotify},
					{UUID: ble.MustParse("2a38"), Property: ble.CharRead},
				},
			},
		},
	}
}

func liveTestConn(t *testing.T) *Conn {
	t.Helper()
	ctx, cancel := context.WithCancelCause(context.Background())
	t.Cleanup(func() { cancel(nil) })
	return &Conn{
		address: "AA:BB:CC:DD:EE:FF",
		profile: testProfile(),
		logger:  quietLogger(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func TestFindCharacteristic_NormalizedLookup(t *testing.T) {
	// TEST SCENARIO: Short and full 128-bit SIG spellings resolve to the
	// same characteristic.
	c := liveTestConn(t)

	tests := []struct {
		name        string
		serviceUUID string
		charUUID    string
	}{
		{"short form", "180d", "2a37"},
		{"full SIG form", "0000180d-0000-1000-8000-00805f9b34fb", "00002a37-0000-1000-8000-00805F9B34FB"},
		{"mixed case short", "180D", "2A37"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			char, err := c.findCharacteristic(tt.serviceUUID, tt.charUUID)
			require.NoError(t, err, "lookup MUST succeed for %q/%q", tt.serviceUUID, tt.charUUID)
			assert.Equal(t, "2a37", device.NormalizeUUID(char.UUID.String()), "lookup MUST resolve the heart rate measurement characteristic")
		})
	}
}

func TestFindCharacteristic_NotFound(t *testing.T) {
	// TEST SCENARIO: Missing services and characteristics produce
	// NotFoundError naming the missing resource.
	c := liveTestConn(t)

	_, err := c.findCharacteristic("180f", "2a19")
	var notFound *device.NotFoundError
	require.ErrorAs(t, err, &notFound, "missing service MUST yield NotFoundError")
	assert.Equal(t, "service", notFound.Resource)

	_, err = c.findCharacteristic("180d", "2a39")
	require.ErrorAs(t, err, &notFound, "missing characteristic MUST yield NotFoundError")
	assert.Equal(t, "characteristic", notFound.Resource)
}

func TestSubscribe_RequiresHandler(t *testing.T) {
	// TEST SCENARIO: A nil notification handler is rejected before any
	// remote operation.
	c := liveTestConn(t)

	err := c.Subscribe("180d", "2a37", nil)
	require.Error(t, err, "Subscribe MUST reject a nil handler")
}

func TestSubscribe_DeadConnection(t *testing.T) {
	// TEST SCENARIO: Subscribing on a connection whose context is already
	// cancelled fails with ErrNotConnected.
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(nil)
	c := &Conn{
		profile: testProfile(),
		logger:  quietLogger(),
		ctx:     ctx,
		cancel:  cancel,
	}

	err := c.Subscribe("180d", "2a37", func([]byte) {})
	require.True(t, errors.Is(err, device.ErrNotConnected), "dead connection MUST yield ErrNotConnected, got: %v", err)
	assert.False(t, c.Live(), "connection MUST report not live")
}

func TestSubscribe_UnsupportedCharacteristic(t *testing.T) {
	// TEST SCENARIO: A characteristic without notify or indicate support
	// cannot be subscribed.
	c := liveTestConn(t)

	err := c.Subscribe("180d", "2a38", func([]byte) {})
	require.True(t, errors.Is(err, device.ErrUnsupported), "read-only characteristic MUST yield ErrUnsupported, got: %v", err)
}

func TestConnLiveness(t *testing.T) {
	// TEST SCENARIO: Done is closed and Live flips to false once the
	// connection context is cancelled.
	ctx, cancel := context.WithCancelCause(context.Background())
	c := &Conn{
		profile: testProfile(),
		logger:  quietLogger(),
		ctx:     ctx,
		cancel:  cancel,
	}

	require.True(t, c.Live(), "fresh connection MUST be live")
	select {
	case <-c.Done():
		t.Fatal("Done MUST NOT be closed while the connection is live")
	default:
	}

	cancel(device.ErrNotConnected)

	assert.False(t, c.Live(), "cancelled connection MUST NOT be live")
	select {
	case <-c.Done():
	default:
		t.Fatal("Done MUST be closed after cancellation")
	}
}
