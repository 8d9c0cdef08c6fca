// Package hrs implements the Bluetooth SIG Heart Rate Service wire format.
//
// Only the pieces the relay needs are covered: the assigned UUIDs and the
// Heart Rate Measurement characteristic decoder. Energy expended, RR
// intervals and sensor contact flags are carried in the same packet but are
// intentionally not decoded.
package hrs

import (
	"encoding/binary"
	"fmt"
)

// Assigned 16-bit UUIDs from the Bluetooth SIG registry.
const (
	// ServiceUUID is the Heart Rate Service.
	ServiceUUID = "180d"

	// MeasurementUUID is the Heart Rate Measurement characteristic.
	MeasurementUUID = "2a37"
)

// hrValue16 is the flags bit selecting the 16-bit heart-rate value format.
const hrValue16 = 0x01

// DecodeError reports a Heart Rate Measurement packet that is too short for
// the format its flags byte declares.
type DecodeError struct {
	Len   int  // actual packet length
	Need  int  // minimum length required
	Flags byte // flags byte, zero when the packet had none
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("heart rate measurement too short: got %d bytes, need at least %d (flags 0x%02x)", e.Len, e.Need, e.Flags)
}

// ParseMeasurement extracts the heart rate in beats per minute from a Heart
// Rate Measurement notification payload.
//
// The first byte carries flags; bit 0 selects the value format. When clear,
// the rate is a uint8 in byte 1. When set, the rate is a little-endian uint16
// in bytes 1-2. Trailing fields (energy expended, RR intervals) are ignored.
func ParseMeasurement(data []byte) (int, error) {
	if len(data) < 2 {
		return 0, &DecodeError{Len: len(data), Need: 2}
	}

	flags := data[0]
	if flags&hrValue16 != 0 {
		if len(data) < 3 {
			return 0, &DecodeError{Len: len(data), Need: 3, Flags: flags}
		}
		return int(binary.LittleEndian.Uint16(data[1:3])), nil
	}

	return int(data[1]), nil
}
