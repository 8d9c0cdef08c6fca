package mqtt

// Sensor presentation constants for the Home Assistant discovery config.
const (
	sensorUnit         = "bpm"
	sensorIcon         = "mdi:heart-pulse"
	deviceModel        = "Heart Rate Monitor"
	deviceManufacturer = "Orangetheory"
	fallbackDeviceName = "OTbeat"
)

// DeviceInfo groups sensor entities under one device in the Home Assistant
// registry.
type DeviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
}

// SensorConfig is the MQTT discovery payload for a heart-rate sensor entity.
// Field names follow the Home Assistant MQTT discovery schema.
type SensorConfig struct {
	Name              string     `json:"name"`
	StateTopic        string     `json:"state_topic"`
	UnitOfMeasurement string     `json:"unit_of_measurement"`
	Icon              string     `json:"icon"`
	UniqueID          string     `json:"unique_id"`
	Device            DeviceInfo `json:"device"`
}

// NewSensorConfig builds the discovery payload for a peer. The advertised
// name feeds the device registry entry; when the peer is anonymous a generic
// fallback is used. Entity identity comes from the address alone, so a peer
// keeps its Home Assistant history no matter what it advertises.
func NewSensorConfig(prefix, address, name string) SensorConfig {
	display := DisplaySuffix(address)
	if name == "" {
		name = fallbackDeviceName
	}

	return SensorConfig{
		Name:              fallbackDeviceName + " HR (" + display + ")",
		StateTopic:        StateTopic(prefix, address),
		UnitOfMeasurement: sensorUnit,
		Icon:              sensorIcon,
		UniqueID:          UniqueID(address),
		Device: DeviceInfo{
			Identifiers:  []string{DeviceID(address)},
			Name:         name + " (" + display + ")",
			Model:        deviceModel,
			Manufacturer: deviceManufacturer,
		},
	}
}
