// Package relay connects BLE heart rate monitors to MQTT. A Supervisor
// periodically scans for matching devices and runs one Session per device;
// each session subscribes to heart rate notifications and republishes the
// readings as Home Assistant sensor states.
package relay

import (
	"context"
	"time"

	"github.com/srg/otbeat2mqtt/internal/device"
)

// Discoverer finds nearby peers. Implemented by scanner.Scanner.
type Discoverer interface {
	Discover(ctx context.Context, duration time.Duration) ([]device.PeerInfo, error)
}

// Opener establishes connections to peers. Implemented by the BLE transport.
type Opener interface {
	Open(ctx context.Context, address string) (device.Conn, error)
}

// Publisher delivers discovery configs and sensor readings to the broker.
// Implemented by mqtt.Publisher.
type Publisher interface {
	PublishDiscovery(ctx context.Context, address, name string) error
	PublishHeartRate(ctx context.Context, address string, bpm int) error
}

// Config holds the relay timing knobs and the device matching rules.
type Config struct {
	// ScanDuration bounds each discovery scan.
	ScanDuration time.Duration

	// RescanInterval is the pause between the end of one scan and the start
	// of the next.
	RescanInterval time.Duration

	// NameMarkers mark a peer as a heart rate monitor when its advertised
	// name contains any of them. Peers advertising the heart rate service
	// match regardless of name.
	NameMarkers []string

	// ConnectTimeout bounds connection establishment per session.
	ConnectTimeout time.Duration

	// LivenessInterval is how often an idle session probes the link.
	LivenessInterval time.Duration

	// ShutdownGrace bounds the wait for sessions to finish on shutdown.
	ShutdownGrace time.Duration
}

// DefaultConfig returns the relay defaults.
func DefaultConfig() Config {
	return Config{
		ScanDuration:     10 * time.Second,
		RescanInterval:   30 * time.Second,
		NameMarkers:      []string{"OTbeat", "HR"},
		ConnectTimeout:   30 * time.Second,
		LivenessInterval: time.Second,
		ShutdownGrace:    10 * time.Second,
	}
}

// normalize fills zero fields with defaults so a partially populated Config
// behaves sensibly.
func (c *Config) normalize() {
	d := DefaultConfig()
	if c.ScanDuration <= 0 {
		c.ScanDuration = d.ScanDuration
	}
	if c.RescanInterval <= 0 {
		c.RescanInterval = d.RescanInterval
	}
	if len(c.NameMarkers) == 0 {
		c.NameMarkers = d.NameMarkers
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.LivenessInterval <= 0 {
		c.LivenessInterval = d.LivenessInterval
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = d.ShutdownGrace
	}
}
