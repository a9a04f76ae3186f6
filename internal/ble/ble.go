// Package ble defines the radio-side collaborator interfaces consumed by the
// gateway core.
//
// The core never talks to a radio stack directly: discovery and device
// control are expressed as small interfaces so the fleet logic can be tested
// hermetically and the transport (BlueZ over D-Bus in production, fakes in
// tests) can be swapped without touching the orchestration layer.
package ble

import "context"

// Advertisement is a snapshot of one observed BLE advertisement, carrying
// only the fields the gateway needs for identity matching and classification.
type Advertisement struct {
	// Address is the hardware address as reported by the radio stack
	// (a MAC on Linux, an opaque UUID on macOS). Not normalised; callers
	// upper-case it for comparison.
	Address string

	// LocalName is the advertised name, if present.
	LocalName string

	// ManufacturerData maps company identifiers to raw payload bytes.
	ManufacturerData map[uint16][]byte
}

// Scanner is the scan-with-callback primitive.
//
// Scan delivers every observed advertisement to onAdvertisement until ctx is
// cancelled, then returns. The callback is invoked from the scanner's own
// goroutine; callbacks must be quick and must not call back into Scan.
// A nil error on return means the scan terminated because of ctx; transport
// failures are returned as errors.
type Scanner interface {
	Scan(ctx context.Context, onAdvertisement func(Advertisement)) error
}
