package device

import (
	"fmt"
	"strings"
)

// Bluetooth SIG base UUID tail after dash removal. A 128-bit UUID built on
// this base is equivalent to its embedded 16-bit short form.
const sigBaseTail = "00001000800000805f9b34fb"

// NormalizeUUID converts a UUID string to the internal BLE library format
// (lowercase, no dashes). Handles standard dashed form, already-normalized
// form, a 0x prefix, and surrounding braces. Full 128-bit UUIDs on the
// Bluetooth SIG base (0000xxxx-0000-1000-8000-00805f9b34fb) collapse to
// their 16-bit short form (xxxx); custom 128-bit UUIDs are kept whole.
func NormalizeUUID(uuid string) string {
	u := strings.ToLower(strings.TrimSpace(uuid))
	u = strings.TrimPrefix(u, "{")
	u = strings.TrimSuffix(u, "}")
	u = strings.TrimPrefix(u, "0x")
	u = strings.ReplaceAll(u, "-", "")

	if !isHex(u) {
		return ""
	}

	switch len(u) {
	case 32:
		if strings.HasPrefix(u, "0000") && strings.HasSuffix(u, sigBaseTail) {
			return u[4:8]
		}
	case 8:
		if strings.HasPrefix(u, "0000") {
			return u[4:]
		}
	}

	return u
}

// NormalizeUUIDs normalizes a slice of UUID strings to internal format.
func NormalizeUUIDs(uuids []string) []string {
	if uuids == nil {
		return nil
	}
	result := make([]string, len(uuids))
	for i, u := range uuids {
		result[i] = NormalizeUUID(u)
	}
	return result
}

// ShortenUUID returns a truncated version of a UUID for display purposes.
// Returns the first eight characters for long UUIDs and short UUIDs by themselves.
func ShortenUUID(uuid string) string {
	if len(uuid) > 8 {
		return uuid[:8]
	}
	return uuid
}

// ValidateUUID validates that UUID strings are non-empty and well-formed.
// Returns normalized UUID strings or an error.
// Accepts one or more UUIDs as variadic arguments.
func ValidateUUID(uuids ...string) ([]string, error) {
	if len(uuids) == 0 {
		return nil, fmt.Errorf("at least one UUID is required")
	}

	result := make([]string, 0, len(uuids))
	for i, uuid := range uuids {
		if uuid == "" {
			return nil, fmt.Errorf("UUID at index %d cannot be empty", i)
		}
		normalized := NormalizeUUID(uuid)
		if !validUUIDLength(len(normalized)) {
			return nil, fmt.Errorf("invalid UUID format at index %d: %s", i, uuid)
		}
		result = append(result, normalized)
	}
	return result, nil
}

// validUUIDLength accepts 16-bit, 32-bit and 128-bit forms.
func validUUIDLength(n int) bool {
	return n == 4 || n == 8 || n == 32
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return true
}
