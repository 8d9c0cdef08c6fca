package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicSuffix(t *testing.T) {
	// GOAL: Verify suffix derivation is deterministic across address spellings
	//
	// TEST SCENARIO: MAC and UUID-style addresses → lowercase last-four-hex suffix

	tests := []struct {
		name     string
		address  string
		expected string
	}{
		{"colon mac", "AA:BB:CC:DD:EE:FF", "eeff"},
		{"lowercase mac", "aa:bb:cc:dd:ee:ff", "eeff"},
		{"dashed mac", "AA-BB-CC-DD-EE-FF", "eeff"},
		{"darwin uuid address", "5256E2EF-EE5D-4AEB-91E2-17B2E2C63B40", "3b40"},
		{"short address used whole", "ab12", "ab12"},
		{"tiny address used whole", "7", "7"},
		{"empty address", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TopicSuffix(tt.address), "suffix MUST match")
		})
	}
}

func TestTopicSuffix_Stable(t *testing.T) {
	// GOAL: Verify different spellings of one address land on the same topics
	//
	// TEST SCENARIO: Upper, lower and dashed forms → identical suffix

	want := TopicSuffix("AA:BB:CC:DD:EE:FF")
	assert.Equal(t, want, TopicSuffix("aa:bb:cc:dd:ee:ff"))
	assert.Equal(t, want, TopicSuffix("AA-BB-CC-DD-EE-FF"))
}

func TestDeviceAndUniqueIDs(t *testing.T) {
	// GOAL: Verify identifier derivation for the Home Assistant registry
	//
	// TEST SCENARIO: Address → otbeat_<suffix> device id and _hr entity id

	addr := "AA:BB:CC:DD:EE:FF"
	assert.Equal(t, "otbeat_eeff", DeviceID(addr))
	assert.Equal(t, "otbeat_eeff_hr", UniqueID(addr))
	assert.Equal(t, "EEFF", DisplaySuffix(addr))
}

func TestConfigAndStateTopics(t *testing.T) {
	// GOAL: Verify config and state topics share a base but differ in leaf
	//
	// TEST SCENARIO: Same prefix and address → sibling /config and /state topics

	prefix := "homeassistant/sensor/otbeat"
	addr := "AA:BB:CC:DD:EE:FF"

	cfgTopic := ConfigTopic(prefix, addr)
	stateTopic := StateTopic(prefix, addr)

	assert.Equal(t, "homeassistant/sensor/otbeat_eeff/config", cfgTopic)
	assert.Equal(t, "homeassistant/sensor/otbeat_eeff/state", stateTopic)
	assert.NotEqual(t, cfgTopic, stateTopic, "config and state topics MUST differ")
}

func TestTopics_DistinctPeers(t *testing.T) {
	// GOAL: Verify peers differing in their advertised tail get distinct topics
	//
	// TEST SCENARIO: Two addresses with different last four hex digits → disjoint topic pairs

	prefix := "homeassistant/sensor/otbeat"
	a := "AA:BB:CC:DD:EE:FF"
	b := "AA:BB:CC:DD:11:22"

	assert.NotEqual(t, StateTopic(prefix, a), StateTopic(prefix, b))
	assert.NotEqual(t, ConfigTopic(prefix, a), ConfigTopic(prefix, b))
}
