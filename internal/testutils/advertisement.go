package testutils

import (
	"github.com/srg/otbeat2mqtt/internal/device"
)

// FakeAdvertisement is a plain-struct device.Advertisement for tests.
type FakeAdvertisement struct {
	Address       string
	Name          string
	Rssi          int
	IsConnectable bool
	ServiceUUIDs  []string
}

func (a *FakeAdvertisement) Addr() string       { return a.Address }
func (a *FakeAdvertisement) LocalName() string  { return a.Name }
func (a *FakeAdvertisement) RSSI() int          { return a.Rssi }
func (a *FakeAdvertisement) Connectable() bool  { return a.IsConnectable }
func (a *FakeAdvertisement) Services() []string { return a.ServiceUUIDs }

// AdvertisementBuilder builds FakeAdvertisement values fluently.
type AdvertisementBuilder struct {
	adv FakeAdvertisement
}

func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{
		adv: FakeAdvertisement{
			Rssi:          -60,
			IsConnectable: true,
		},
	}
}

func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.adv.Name = name
	return b
}

func (b *AdvertisementBuilder) WithAddress(address string) *AdvertisementBuilder {
	b.adv.Address = address
	return b
}

func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.adv.Rssi = rssi
	return b
}

func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	b.adv.ServiceUUIDs = append(b.adv.ServiceUUIDs, uuids...)
	return b
}

func (b *AdvertisementBuilder) WithConnectable(connectable bool) *AdvertisementBuilder {
	b.adv.IsConnectable = connectable
	return b
}

// Build returns the advertisement. Each call returns the same underlying
// value, so build once per scripted advertisement.
func (b *AdvertisementBuilder) Build() device.Advertisement {
	return &b.adv
}
