package device

import (
	"sort"
	"time"
)

// PeerInfo is an immutable snapshot of a peer assembled from one or more
// advertisements during a scan window.
type PeerInfo struct {
	Address  string    `json:"address"`
	Name     string    `json:"name"`
	RSSI     int       `json:"rssi"`
	Services []string  `json:"services"`
	LastSeen time.Time `json:"lastSeen"`
}

// PeerInfoFromAdvertisement builds a snapshot from a single advertisement.
// Service UUIDs are stored normalized.
func PeerInfoFromAdvertisement(adv Advertisement) PeerInfo {
	return PeerInfo{
		Address:  adv.Addr(),
		Name:     adv.LocalName(),
		RSSI:     adv.RSSI(),
		Services: NormalizeUUIDs(adv.Services()),
		LastSeen: time.Now(),
	}
}

// Merge returns a copy of p refreshed with a later advertisement from the
// same peer. RSSI and LastSeen always update; the name sticks once known
// (scan responses often omit it); services accumulate as a normalized,
// sorted union.
func (p PeerInfo) Merge(adv Advertisement) PeerInfo {
	merged := p
	merged.RSSI = adv.RSSI()
	merged.LastSeen = time.Now()

	if name := adv.LocalName(); name != "" {
		merged.Name = name
	}

	if services := adv.Services(); len(services) > 0 {
		merged.Services = unionUUIDs(p.Services, services)
	}

	return merged
}

// DisplayName returns the advertised name, falling back to the address for
// anonymous peers.
func (p PeerInfo) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Address
}

// HasService reports whether the peer advertised the given service UUID,
// matching in normalized form.
func (p PeerInfo) HasService(uuid string) bool {
	target := NormalizeUUID(uuid)
	for _, svc := range p.Services {
		if NormalizeUUID(svc) == target {
			return true
		}
	}
	return false
}

func unionUUIDs(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	union := make([]string, 0, len(existing)+len(incoming))

	add := func(uuid string) {
		n := NormalizeUUID(uuid)
		if n == "" {
			return
		}
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		union = append(union, n)
	}

	for _, u := range existing {
		add(u)
	}
	for _, u := range incoming {
		add(u)
	}

	sort.Strings(union)
	return union
}
