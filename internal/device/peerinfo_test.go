package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// stubAdvertisement is a minimal Advertisement for exercising PeerInfo logic.
type stubAdvertisement struct {
	addr        string
	name        string
	rssi        int
	connectable bool
	services    []string
}

func (a stubAdvertisement) Addr() string       { return a.addr }
func (a stubAdvertisement) LocalName() string  { return a.name }
func (a stubAdvertisement) RSSI() int          { return a.rssi }
func (a stubAdvertisement) Connectable() bool  { return a.connectable }
func (a stubAdvertisement) Services() []string { return a.services }

func TestPeerInfoFromAdvertisement(t *testing.T) {
	// GOAL: Verify snapshot construction normalizes services and stamps LastSeen
	//
	// TEST SCENARIO: Advertisement with mixed UUID spellings → PeerInfo with normalized services and recent timestamp

	adv := stubAdvertisement{
		addr:     "AA:BB:CC:DD:EE:FF",
		name:     "OTbeat-1234",
		rssi:     -52,
		services: []string{"0000180D-0000-1000-8000-00805F9B34FB"},
	}

	before := time.Now()
	peer := PeerInfoFromAdvertisement(adv)

	assert.Equal(t, "AA:BB:CC:DD:EE:FF", peer.Address)
	assert.Equal(t, "OTbeat-1234", peer.Name)
	assert.Equal(t, -52, peer.RSSI)
	assert.Equal(t, []string{"180d"}, peer.Services, "services MUST be stored normalized")
	assert.False(t, peer.LastSeen.Before(before), "LastSeen MUST be stamped at construction")
}

func TestPeerInfo_Merge(t *testing.T) {
	// GOAL: Verify merge semantics across repeated advertisements
	//
	// TEST SCENARIO: Later advertisement → RSSI refreshes, name sticks once known, services accumulate sorted

	first := PeerInfoFromAdvertisement(stubAdvertisement{
		addr:     "AA:BB:CC:DD:EE:FF",
		name:     "OTbeat-1234",
		rssi:     -52,
		services: []string{"180d"},
	})

	// Scan response without a name must not erase the known one
	merged := first.Merge(stubAdvertisement{
		addr:     "AA:BB:CC:DD:EE:FF",
		rssi:     -60,
		services: []string{"180f", "180D"},
	})

	assert.Equal(t, "OTbeat-1234", merged.Name, "known name MUST survive anonymous updates")
	assert.Equal(t, -60, merged.RSSI, "RSSI MUST track the latest advertisement")
	assert.Equal(t, []string{"180d", "180f"}, merged.Services, "services MUST union, deduplicated and sorted")
	assert.False(t, merged.LastSeen.Before(first.LastSeen), "LastSeen MUST advance")

	// A later advertisement carrying a name updates it
	renamed := merged.Merge(stubAdvertisement{addr: "AA:BB:CC:DD:EE:FF", name: "OTbeat-5678", rssi: -48})
	assert.Equal(t, "OTbeat-5678", renamed.Name)
	assert.Equal(t, []string{"180d", "180f"}, renamed.Services, "empty service list MUST NOT clear accumulated services")
}

func TestPeerInfo_DisplayName(t *testing.T) {
	// GOAL: Verify display name falls back to the address for anonymous peers
	//
	// TEST SCENARIO: Named peer → name; unnamed peer → address

	named := PeerInfo{Address: "AA:BB:CC:DD:EE:FF", Name: "OTbeat-1234"}
	assert.Equal(t, "OTbeat-1234", named.DisplayName())

	anonymous := PeerInfo{Address: "11:22:33:44:55:66"}
	assert.Equal(t, "11:22:33:44:55:66", anonymous.DisplayName())
}

func TestPeerInfo_HasService(t *testing.T) {
	// GOAL: Verify service membership matches across UUID spellings
	//
	// TEST SCENARIO: Stored normalized services queried with long and short forms → both match

	peer := PeerInfo{Services: []string{"180d"}}

	assert.True(t, peer.HasService("180d"))
	assert.True(t, peer.HasService("0000180D-0000-1000-8000-00805F9B34FB"), "SIG long form MUST match the short form")
	assert.False(t, peer.HasService("180f"))
}
