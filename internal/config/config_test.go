package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "otbeat2mqtt.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNew_Defaults(t *testing.T) {
	// GOAL: Verify the zero-config defaults are complete and sane
	//
	// TEST SCENARIO: New() → every field populated → a relay could start from this alone

	cfg := New()

	assert.Equal(t, "mqtt://127.0.0.1:1883", cfg.MQTT.Broker)
	assert.Equal(t, "homeassistant/sensor/otbeat", cfg.MQTT.TopicPrefix)
	assert.Equal(t, 5*time.Second, cfg.MQTT.PublishTimeout())
	assert.Equal(t, 10*time.Second, cfg.Scan.Duration())
	assert.Equal(t, 30*time.Second, cfg.Scan.RescanInterval())
	assert.Equal(t, DefaultNameMarkers, cfg.Scan.NameMarkers)
	assert.Equal(t, 30*time.Second, cfg.Session.ConnectTimeout())
	assert.Equal(t, time.Second, cfg.Session.LivenessInterval())
	assert.Equal(t, 10*time.Second, cfg.Session.ShutdownGrace())
	assert.Equal(t, "info", cfg.LogLevel)

	assert.True(t, strings.HasPrefix(cfg.MQTT.ClientID, "otbeat2mqtt-"), "client id MUST carry the app prefix")
	assert.Len(t, cfg.MQTT.ClientID, len("otbeat2mqtt-")+8, "client id suffix MUST be eight characters")

	require.NoError(t, cfg.Validate(), "defaults MUST validate")
}

func TestNew_ClientIDUnique(t *testing.T) {
	// GOAL: Verify generated client ids do not collide between instances
	//
	// TEST SCENARIO: Two default configs → different client ids

	assert.NotEqual(t, New().MQTT.ClientID, New().MQTT.ClientID, "generated client ids MUST differ")
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	// GOAL: Verify YAML values override defaults while unset keys keep them
	//
	// TEST SCENARIO: Partial config file → set keys overridden, everything else defaulted

	path := writeConfigFile(t, `
mqtt:
  broker: mqtts://broker.example.com:8883
  username: relay
  password: secret
  topic_prefix: homeassistant/sensor/hr
scan:
  rescan_interval_sec: 60
  name_markers: ["Polar"]
log_level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mqtts://broker.example.com:8883", cfg.MQTT.Broker)
	assert.Equal(t, "relay", cfg.MQTT.Username)
	assert.Equal(t, "homeassistant/sensor/hr", cfg.MQTT.TopicPrefix)
	assert.Equal(t, 60*time.Second, cfg.Scan.RescanInterval())
	assert.Equal(t, []string{"Polar"}, cfg.Scan.NameMarkers, "explicit markers MUST replace defaults")
	assert.Equal(t, "debug", cfg.LogLevel)

	// Untouched keys keep their defaults
	assert.Equal(t, 10*time.Second, cfg.Scan.Duration())
	assert.Equal(t, 30*time.Second, cfg.Session.ConnectTimeout())
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	// GOAL: Verify the relay runs with no config file at all
	//
	// TEST SCENARIO: Load("") → default config, validated

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "mqtt://127.0.0.1:1883", cfg.MQTT.Broker)
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	// GOAL: Verify ${VAR} references resolve before parsing
	//
	// TEST SCENARIO: Password from environment → expanded value lands in the config

	t.Setenv("OTBEAT_TEST_MQTT_PASSWORD", "hunter2")
	path := writeConfigFile(t, `
mqtt:
  username: relay
  password: ${OTBEAT_TEST_MQTT_PASSWORD}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", cfg.MQTT.Password)
}

func TestLoad_Invalid(t *testing.T) {
	// GOAL: Verify malformed or out-of-range configs are rejected with clear messages
	//
	// TEST SCENARIO: Each bad input → Load fails → error names the offending key

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "bad broker scheme",
			yaml:    "mqtt:\n  broker: http://example.com\n",
			wantErr: "unsupported mqtt broker scheme",
		},
		{
			name:    "broker without host",
			yaml:    "mqtt:\n  broker: mqtt://\n",
			wantErr: "no host",
		},
		{
			name:    "wildcard in topic prefix",
			yaml:    "mqtt:\n  topic_prefix: homeassistant/+/otbeat\n",
			wantErr: "wildcard",
		},
		{
			name:    "trailing slash in topic prefix",
			yaml:    "mqtt:\n  topic_prefix: homeassistant/sensor/otbeat/\n",
			wantErr: "must not end with a slash",
		},
		{
			name:    "zero scan duration",
			yaml:    "scan:\n  duration_sec: 0\n",
			wantErr: "duration_sec must be positive",
		},
		{
			name:    "negative rescan interval",
			yaml:    "scan:\n  rescan_interval_sec: -5\n",
			wantErr: "rescan_interval_sec must be positive",
		},
		{
			name:    "blank name marker",
			yaml:    "scan:\n  name_markers: [\"OTbeat\", \"  \"]\n",
			wantErr: "name_markers[1]",
		},
		{
			name:    "zero connect timeout",
			yaml:    "session:\n  connect_timeout_sec: 0\n",
			wantErr: "connect_timeout_sec must be positive",
		},
		{
			name:    "bad log level",
			yaml:    "log_level: verbose\n",
			wantErr: "invalid log_level",
		},
		{
			name:    "not yaml",
			yaml:    "mqtt: [broker\n",
			wantErr: "parse config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.yaml)
			_, err := Load(path)
			require.Error(t, err, "invalid config MUST fail")
			assert.Contains(t, err.Error(), tt.wantErr, "error MUST name the problem")
		})
	}
}

func TestFindConfig(t *testing.T) {
	// GOAL: Verify explicit path resolution semantics
	//
	// TEST SCENARIO: Explicit existing path → returned; explicit missing path → error; nothing anywhere → ""

	existing := writeConfigFile(t, "log_level: info\n")

	path, err := FindConfig(existing)
	require.NoError(t, err)
	assert.Equal(t, existing, path)

	_, err = FindConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err, "explicitly named file MUST exist")

	// Probe from a directory without any config files; the cwd search path
	// must come up empty.
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	defer func() { _ = os.Chdir(wd) }()

	path, err = FindConfig("")
	require.NoError(t, err)
	assert.Equal(t, "", path, "no config anywhere MUST yield empty path")
}

func TestDefaultSearchPaths(t *testing.T) {
	// GOAL: Verify search order goes cwd, user config dir, then /etc
	//
	// TEST SCENARIO: Paths listed in priority order and all reference the app name

	paths := DefaultSearchPaths()
	require.NotEmpty(t, paths)
	assert.Equal(t, "./otbeat2mqtt.yaml", paths[0], "cwd MUST be probed first")
	assert.Equal(t, "/etc/otbeat2mqtt/config.yaml", paths[len(paths)-1], "/etc MUST be probed last")
	for _, p := range paths {
		assert.Contains(t, p, "otbeat2mqtt")
	}
}
