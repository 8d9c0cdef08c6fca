package testutils

import (
	"context"
	"sync"
)

// DiscoveryRecord captures one PublishDiscovery call.
type DiscoveryRecord struct {
	Address string
	Name    string
}

// HeartRateRecord captures one PublishHeartRate call.
type HeartRateRecord struct {
	Address string
	BPM     int
}

// FakePublisher records publishes for assertions. Errors can be injected to
// exercise failure paths.
type FakePublisher struct {
	mu           sync.Mutex
	discoveries  []DiscoveryRecord
	heartRates   []HeartRateRecord
	discoveryErr error
	heartRateErr error
}

func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// ScriptDiscoveryError makes PublishDiscovery fail with err.
func (fp *FakePublisher) ScriptDiscoveryError(err error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.discoveryErr = err
}

// ScriptHeartRateError makes PublishHeartRate fail with err.
func (fp *FakePublisher) ScriptHeartRateError(err error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.heartRateErr = err
}

func (fp *FakePublisher) PublishDiscovery(_ context.Context, address, name string) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	if fp.discoveryErr != nil {
		return fp.discoveryErr
	}
	fp.discoveries = append(fp.discoveries, DiscoveryRecord{Address: address, Name: name})
	return nil
}

func (fp *FakePublisher) PublishHeartRate(_ context.Context, address string, bpm int) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	if fp.heartRateErr != nil {
		return fp.heartRateErr
	}
	fp.heartRates = append(fp.heartRates, HeartRateRecord{Address: address, BPM: bpm})
	return nil
}

// Discoveries returns all recorded discovery publishes in call order.
func (fp *FakePublisher) Discoveries() []DiscoveryRecord {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return append([]DiscoveryRecord(nil), fp.discoveries...)
}

// HeartRates returns all recorded heart-rate publishes in call order.
func (fp *FakePublisher) HeartRates() []HeartRateRecord {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return append([]HeartRateRecord(nil), fp.heartRates...)
}

// HeartRatesFor returns the published readings for one address, in order.
func (fp *FakePublisher) HeartRatesFor(address string) []int {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	var out []int
	for _, hr := range fp.heartRates {
		if hr.Address == address {
			out = append(out, hr.BPM)
		}
	}
	return out
}

// LastHeartRate returns the most recent reading for an address.
func (fp *FakePublisher) LastHeartRate(address string) (int, bool) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	for i := len(fp.heartRates) - 1; i >= 0; i-- {
		if fp.heartRates[i].Address == address {
			return fp.heartRates[i].BPM, true
		}
	}
	return 0, false
}
