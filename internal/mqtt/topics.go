// Package mqtt publishes heart-rate readings and Home Assistant discovery
// configs over MQTT.
//
// Topic layout per peer, derived from the peer address:
//
//	<prefix>_<suffix>/config   retained discovery config (QoS 1)
//	<prefix>_<suffix>/state    heart-rate readings in bpm (QoS 0)
//
// where suffix is the last four hex digits of the address. The connection is
// managed by autopaho, which reconnects in the background; publishes are
// bounded by a per-call timeout.
package mqtt

import "strings"

// DeviceIDPrefix namespaces entity and device identifiers in Home Assistant.
const DeviceIDPrefix = "otbeat_"

// TopicSuffix derives the per-peer topic fragment from a peer address:
// lowercase, separators removed, last four characters. Short addresses are
// used whole. The same address always yields the same suffix, so topics are
// stable across restarts.
func TopicSuffix(address string) string {
	s := strings.ToLower(address)
	s = strings.ReplaceAll(s, ":", "")
	s = strings.ReplaceAll(s, "-", "")
	if len(s) > 4 {
		s = s[len(s)-4:]
	}
	return s
}

// DisplaySuffix is the uppercase form of TopicSuffix, used in human-facing
// names.
func DisplaySuffix(address string) string {
	return strings.ToUpper(TopicSuffix(address))
}

// DeviceID returns the Home Assistant device identifier for a peer.
func DeviceID(address string) string {
	return DeviceIDPrefix + TopicSuffix(address)
}

// UniqueID returns the Home Assistant unique entity id for a peer's
// heart-rate sensor.
func UniqueID(address string) string {
	return DeviceID(address) + "_hr"
}

// ConfigTopic returns the retained discovery config topic for a peer.
func ConfigTopic(prefix, address string) string {
	return prefix + "_" + TopicSuffix(address) + "/config"
}

// StateTopic returns the heart-rate state topic for a peer.
func StateTopic(prefix, address string) string {
	return prefix + "_" + TopicSuffix(address) + "/state"
}
