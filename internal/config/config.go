// Package config loads and validates the relay configuration.
//
// Configuration comes from a YAML file with environment variable expansion
// (${VAR} syntax). Every field has a default, so the relay runs with no
// config file at all. Durations are plain integer seconds in YAML to keep
// files simple.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcuadros/go-defaults"
	"gopkg.in/yaml.v3"
)

const appName = "otbeat2mqtt"

// DefaultNameMarkers are the advertised-name substrings that identify a
// heart-rate monitor when no service UUID is advertised.
var DefaultNameMarkers = []string{"OTbeat", "HR"}

// brokerSchemes lists URL schemes autopaho accepts.
var brokerSchemes = map[string]bool{
	"mqtt":  true,
	"tcp":   true,
	"mqtts": true,
	"ssl":   true,
	"ws":    true,
	"wss":   true,
}

// Config is the root relay configuration.
type Config struct {
	MQTT     MQTTConfig    `yaml:"mqtt"`
	Scan     ScanConfig    `yaml:"scan"`
	Session  SessionConfig `yaml:"session"`
	LogLevel string        `yaml:"log_level" default:"info"`
}

// MQTTConfig configures the broker connection and topic layout.
type MQTTConfig struct {
	Broker            string `yaml:"broker" default:"mqtt://127.0.0.1:1883"`
	Username          string `yaml:"username"`
	Password          string `yaml:"password"`
	ClientID          string `yaml:"client_id"`
	TopicPrefix       string `yaml:"topic_prefix" default:"homeassistant/sensor/otbeat"`
	PublishTimeoutSec int    `yaml:"publish_timeout_sec" default:"5"`
}

// PublishTimeout bounds a single MQTT publish.
func (c MQTTConfig) PublishTimeout() time.Duration {
	return time.Duration(c.PublishTimeoutSec) * time.Second
}

// ScanConfig configures the discovery loop.
type ScanConfig struct {
	DurationSec       int      `yaml:"duration_sec" default:"10"`
	RescanIntervalSec int      `yaml:"rescan_interval_sec" default:"30"`
	NameMarkers       []string `yaml:"name_markers"`
}

// Duration is the length of one scan window.
func (c ScanConfig) Duration() time.Duration {
	return time.Duration(c.DurationSec) * time.Second
}

// RescanInterval is the pause between scan windows.
func (c ScanConfig) RescanInterval() time.Duration {
	return time.Duration(c.RescanIntervalSec) * time.Second
}

// SessionConfig configures per-device session behavior.
type SessionConfig struct {
	ConnectTimeoutSec   int `yaml:"connect_timeout_sec" default:"30"`
	LivenessIntervalSec int `yaml:"liveness_interval_sec" default:"1"`
	ShutdownGraceSec    int `yaml:"shutdown_grace_sec" default:"10"`
}

// ConnectTimeout bounds a single connection attempt.
func (c SessionConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSec) * time.Second
}

// LivenessInterval is how often an active session verifies its link.
func (c SessionConfig) LivenessInterval() time.Duration {
	return time.Duration(c.LivenessIntervalSec) * time.Second
}

// ShutdownGrace bounds the wait for sessions to finish on shutdown.
func (c SessionConfig) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSec) * time.Second
}

// New returns a Config populated with defaults only.
func New() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	cfg.applyDynamicDefaults()
	return cfg
}

// DefaultSearchPaths lists config file locations in priority order.
func DefaultSearchPaths() []string {
	paths := []string{"./" + appName + ".yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", appName, "config.yaml"))
	}
	paths = append(paths, filepath.Join("/etc", appName, "config.yaml"))
	return paths
}

// FindConfig resolves which config file to load. An explicitly given path
// must exist. Otherwise the default search paths are probed and the first
// hit wins; "" means no file was found and defaults apply.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file %q: %w", explicit, err)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// Load reads, expands, parses and validates the config file at path. An
// empty path yields a validated default configuration.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	defaults.SetDefaults(cfg)

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
		expanded := os.ExpandEnv(string(raw))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	cfg.applyDynamicDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDynamicDefaults fills defaults that cannot live in struct tags.
func (c *Config) applyDynamicDefaults() {
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = appName + "-" + uuid.NewString()[:8]
	}
	if len(c.Scan.NameMarkers) == 0 {
		c.Scan.NameMarkers = append([]string(nil), DefaultNameMarkers...)
	}
}

// Validate checks the configuration for values the relay cannot run with.
func (c *Config) Validate() error {
	if err := c.MQTT.validate(); err != nil {
		return err
	}
	if err := c.Scan.validate(); err != nil {
		return err
	}
	if err := c.Session.validate(); err != nil {
		return err
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q (must be debug, info, warn, or error)", c.LogLevel)
	}
	return nil
}

func (c MQTTConfig) validate() error {
	u, err := url.Parse(c.Broker)
	if err != nil {
		return fmt.Errorf("invalid mqtt broker URL %q: %w", c.Broker, err)
	}
	if !brokerSchemes[u.Scheme] {
		return fmt.Errorf("unsupported mqtt broker scheme %q (use mqtt, tcp, mqtts, ssl, ws, or wss)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("mqtt broker URL %q has no host", c.Broker)
	}

	prefix := c.TopicPrefix
	if prefix == "" {
		return fmt.Errorf("mqtt topic_prefix must not be empty")
	}
	if strings.ContainsAny(prefix, "#+") {
		return fmt.Errorf("mqtt topic_prefix %q must not contain wildcard characters", prefix)
	}
	if strings.HasSuffix(prefix, "/") {
		return fmt.Errorf("mqtt topic_prefix %q must not end with a slash", prefix)
	}

	if c.PublishTimeoutSec <= 0 {
		return fmt.Errorf("mqtt publish_timeout_sec must be positive, got %d", c.PublishTimeoutSec)
	}
	return nil
}

func (c ScanConfig) validate() error {
	if c.DurationSec <= 0 {
		return fmt.Errorf("scan duration_sec must be positive, got %d", c.DurationSec)
	}
	if c.RescanIntervalSec <= 0 {
		return fmt.Errorf("scan rescan_interval_sec must be positive, got %d", c.RescanIntervalSec)
	}
	for i, marker := range c.NameMarkers {
		if strings.TrimSpace(marker) == "" {
			return fmt.Errorf("scan name_markers[%d] must not be blank", i)
		}
	}
	return nil
}

func (c SessionConfig) validate() error {
	if c.ConnectTimeoutSec <= 0 {
		return fmt.Errorf("session connect_timeout_sec must be positive, got %d", c.ConnectTimeoutSec)
	}
	if c.LivenessIntervalSec <= 0 {
		return fmt.Errorf("session liveness_interval_sec must be positive, got %d", c.LivenessIntervalSec)
	}
	if c.ShutdownGraceSec <= 0 {
		return fmt.Errorf("session shutdown_grace_sec must be positive, got %d", c.ShutdownGraceSec)
	}
	return nil
}
