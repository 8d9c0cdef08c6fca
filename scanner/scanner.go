package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/otbeat2mqtt/internal/device"
	"github.com/srg/otbeat2mqtt/internal/ringchan"
)

// eventBufferSize bounds the peer event channel; older events are dropped
// when consumers fall behind.
const eventBufferSize = 100

// ProgressCallback is called when the scan phase changes
type ProgressCallback func(phase string)

// PeerEventType marks if the peer was newly discovered or updated
type PeerEventType int

const (
	EventNew PeerEventType = iota
	EventUpdated
)

type PeerEvent struct {
	Type PeerEventType
	Peer device.PeerInfo
}

// trackedPeer accumulates advertisements for one address during a scan.
// Advertisement handlers may run concurrently, so updates are serialized.
type trackedPeer struct {
	mu   sync.Mutex
	info device.PeerInfo
}

func newTrackedPeer(adv device.Advertisement) *trackedPeer {
	return &trackedPeer{info: device.PeerInfoFromAdvertisement(adv)}
}

func (p *trackedPeer) update(adv device.Advertisement) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.info = p.info.Merge(adv)
}

func (p *trackedPeer) snapshot() device.PeerInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info
}

// Scanner handles BLE peer discovery
type Scanner struct {
	transport device.Transport
	peers     *hashmap.Map[string, *trackedPeer]
	events    *ringchan.RingChannel[PeerEvent]
	logger    *logrus.Logger

	scanOptions   *ScanOptions
	serviceFilter []string
}

// ScanOptions configures scanning behavior
type ScanOptions struct {
	Duration        time.Duration
	DuplicateFilter bool
	ServiceUUIDs    []string
	AllowList       []string
	BlockList       []string
}

// DefaultScanOptions returns default scanning options
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		Duration:        10 * time.Second,
		DuplicateFilter: true,
	}
}

// NewScanner creates a new BLE scanner on top of the given transport
func NewScanner(transport device.Transport, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}

	return &Scanner{
		transport: transport,
		events:    ringchan.New[PeerEvent](eventBufferSize),
		logger:    logger,
	}
}

// Scan performs BLE discovery with provided options. The scan runs until ctx
// ends; context cancellation and deadline expiry are normal termination.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions, progressCallback ProgressCallback) (map[string]device.PeerInfo, error) {
	s.peers = hashmap.New[string, *trackedPeer]()

	if opts == nil {
		opts = DefaultScanOptions()
	}
	if progressCallback == nil {
		progressCallback = func(string) {} // No-op callback
	}

	s.logger.WithField("duration", opts.Duration).Info("Starting BLE scan...")

	// Report scanning phase
	progressCallback("Scanning")

	s.scanOptions = opts
	s.serviceFilter = device.NormalizeUUIDs(opts.ServiceUUIDs)
	defer func() {
		s.scanOptions = nil
		s.serviceFilter = nil
	}()

	err := s.transport.Scan(ctx, opts.DuplicateFilter, s.handleAdvertisement)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	s.logger.WithField("peer_count", s.peers.Len()).Info("BLE scan completed")

	// Report processing phase
	progressCallback("Processing results")

	peers := make(map[string]device.PeerInfo, s.peers.Len())
	s.peers.Range(func(key string, value *trackedPeer) bool {
		peers[key] = value.snapshot()
		return true
	})

	return peers, nil
}

// Discover runs a single scan bounded by duration and returns the matching
// peers sorted by address.
func (s *Scanner) Discover(ctx context.Context, duration time.Duration) ([]device.PeerInfo, error) {
	opts := DefaultScanOptions()
	opts.Duration = duration
	return s.DiscoverWithOptions(ctx, opts, nil)
}

// DiscoverWithOptions is Discover with full control over scan options and
// progress reporting.
func (s *Scanner) DiscoverWithOptions(ctx context.Context, opts *ScanOptions, progressCallback ProgressCallback) ([]device.PeerInfo, error) {
	if opts == nil {
		opts = DefaultScanOptions()
	}

	// Zero duration means scan until ctx ends.
	scanCtx := ctx
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	peerMap, err := s.Scan(scanCtx, opts, progressCallback)
	if err != nil {
		return nil, err
	}

	peers := make([]device.PeerInfo, 0, len(peerMap))
	for _, p := range peerMap {
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool {
		return peers[i].Address < peers[j].Address
	})
	return peers, nil
}

// handleAdvertisement updates an existing or adds a new tracked peer
func (s *Scanner) handleAdvertisement(adv device.Advertisement) {
	address := adv.Addr()

	peer, existing := s.peers.Get(address)
	if !existing {
		if !s.shouldIncludePeer(adv) {
			return
		}
		peer, existing = s.peers.GetOrInsert(address, newTrackedPeer(adv))
	}

	event := PeerEvent{}
	if existing {
		peer.update(adv)
		event.Type = EventUpdated
	} else {
		info := peer.snapshot()
		s.logger.WithFields(logrus.Fields{
			"device":  info.DisplayName(),
			"address": info.Address,
			"rssi":    info.RSSI,
		}).Info("Discovered new device")
		event.Type = EventNew
	}
	event.Peer = peer.snapshot()

	s.events.ForceSend(event)
}

// shouldIncludePeer applies the allow/block/service filters
func (s *Scanner) shouldIncludePeer(adv device.Advertisement) bool {
	opts := s.scanOptions
	addr := adv.Addr()

	for _, blocked := range opts.BlockList {
		if addr == blocked {
			return false
		}
	}

	if len(opts.AllowList) > 0 {
		allowed := false
		for _, a := range opts.AllowList {
			if addr == a {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if len(s.serviceFilter) > 0 {
		hasRequired := false
		for _, required := range s.serviceFilter {
			for _, advUUID := range adv.Services() {
				if device.NormalizeUUID(advUUID) == required {
					hasRequired = true
					break
				}
			}
			if hasRequired {
				break
			}
		}
		if !hasRequired {
			return false
		}
	}

	return true
}

// Events returns a read-only channel of peer events
func (s *Scanner) Events() <-chan PeerEvent {
	return s.events.C()
}
