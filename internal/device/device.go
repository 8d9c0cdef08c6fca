package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// NotFoundError represents an error when a BLE resource is not found
type NotFoundError struct {
	Resource string   // "service", "characteristic"
	UUIDs    []string // One or more UUIDs (e.g., [serviceUUID] or [serviceUUID, charUUID])
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	// Multiple UUIDs: the characteristic lives inside the service named first
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	NotInitialized   ConnectionState = "not_initialized"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrNotInitialized   = &ConnectionError{State: NotInitialized}
)

// ErrUnsupported indicates the remote characteristic lacks a required capability
// (e.g. subscribing to a characteristic without notify or indicate support).
var ErrUnsupported = errors.New("unsupported")

// ErrBluetoothOff indicates the local adapter is powered off or unavailable.
var ErrBluetoothOff = errors.New("bluetooth is turned off")

// NormalizeError maps known go-ble error strings to structured ConnectionError types.
// It ensures consistent handling even if the upstream library changes messages slightly.
// Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "device not connected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case containsIgnoreCase(msg, "device already connected"):
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, err)
	case containsIgnoreCase(msg, "connection is not initialized"):
		return fmt.Errorf("%w: %v", ErrNotInitialized, err)
	default:
		return err
	}
}

// containsIgnoreCase checks substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// Advertisement is the subset of a BLE advertisement the relay cares about.
type Advertisement interface {
	Addr() string
	LocalName() string
	RSSI() int
	Connectable() bool
	Services() []string
}

// NotificationHandler receives characteristic notification payloads.
// The payload slice belongs to the handler; transports hand over a private
// copy, so handlers may retain it without copying.
type NotificationHandler func(data []byte)

// Transport abstracts a BLE adapter: advertisement scanning plus outgoing
// connections. Implementations live in the go-ble subpackage; tests substitute
// their own.
type Transport interface {
	// Scan delivers advertisements to handler until ctx ends.
	Scan(ctx context.Context, allowDuplicates bool, handler func(Advertisement)) error

	// Open connects to the peer at address and discovers its GATT profile.
	Open(ctx context.Context, address string) (Conn, error)
}

// Conn is an established GATT connection to a single peer.
type Conn interface {
	// Subscribe enables notifications on the characteristic identified by the
	// service and characteristic UUIDs. UUIDs are matched in normalized form.
	Subscribe(serviceUUID, charUUID string, handler NotificationHandler) error

	// Live reports whether the link is still up.
	Live() bool

	// Done is closed once the link drops or Close is called.
	Done() <-chan struct{}

	// Close tears the connection down. Safe to call more than once.
	Close() error
}
