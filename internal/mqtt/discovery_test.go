package mqtt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/otbeat2mqtt/internal/testutils"
)

func TestNewSensorConfig_Payload(t *testing.T) {
	// GOAL: Verify the discovery payload matches the Home Assistant MQTT discovery schema
	//
	// TEST SCENARIO: Named peer → full payload with entity, topics, unit, icon and device registry block

	cfg := NewSensorConfig("homeassistant/sensor/otbeat", "AA:BB:CC:DD:EE:FF", "OTbeat-1234")

	payload, err := json.Marshal(cfg)
	require.NoError(t, err)

	testutils.NewJSONAsserter(t).Assert(string(payload), `{
		"name": "OTbeat HR (EEFF)",
		"state_topic": "homeassistant/sensor/otbeat_eeff/state",
		"unit_of_measurement": "bpm",
		"icon": "mdi:heart-pulse",
		"unique_id": "otbeat_eeff_hr",
		"device": {
			"identifiers": ["otbeat_eeff"],
			"name": "OTbeat-1234 (EEFF)",
			"model": "Heart Rate Monitor",
			"manufacturer": "Orangetheory"
		}
	}`)
}

func TestNewSensorConfig_AnonymousPeer(t *testing.T) {
	// GOAL: Verify anonymous peers get the generic fallback device name
	//
	// TEST SCENARIO: Empty advertised name → device name "OTbeat (SUFFIX)" while ids stay address-derived

	cfg := NewSensorConfig("homeassistant/sensor/otbeat", "11:22:33:44:55:66", "")

	assert.Equal(t, "OTbeat (5566)", cfg.Device.Name, "fallback name MUST be used")
	assert.Equal(t, "OTbeat HR (5566)", cfg.Name)
	assert.Equal(t, "otbeat_5566_hr", cfg.UniqueID)
	assert.Equal(t, []string{"otbeat_5566"}, cfg.Device.Identifiers)
}

func TestNewSensorConfig_IdentityFromAddressOnly(t *testing.T) {
	// GOAL: Verify entity identity ignores the advertised name
	//
	// TEST SCENARIO: Same address, different names → same unique_id and topics, different display names

	a := NewSensorConfig("prefix", "AA:BB:CC:DD:EE:FF", "OTbeat-1234")
	b := NewSensorConfig("prefix", "AA:BB:CC:DD:EE:FF", "Renamed-Strap")

	assert.Equal(t, a.UniqueID, b.UniqueID, "unique_id MUST depend on the address alone")
	assert.Equal(t, a.StateTopic, b.StateTopic, "state topic MUST depend on the address alone")
	assert.NotEqual(t, a.Device.Name, b.Device.Name, "display name MUST follow the advertisement")
}
