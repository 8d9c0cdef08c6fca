// Package device defines the transport-neutral view of Bluetooth Low Energy
// peers used by the relay.
//
// It provides:
//   - Transport and Conn interfaces over a BLE adapter (scan, connect, notify)
//   - PeerInfo snapshots assembled from advertisements
//   - UUID normalization matching the BLE library's internal format
//   - Structured connection errors with errors.Is support
//
// The production implementation backed by go-ble lives in the go-ble
// subpackage; tests substitute in-memory fakes.
package device
