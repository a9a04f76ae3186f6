package snooz

import (
	"context"
	"errors"

	"github.com/nerrad567/snooz-gateway/internal/ble"
)

// Domain errors for the snooz package.
var (
	// ErrNotBound is returned when Start or Execute is called before a
	// successful Bind.
	ErrNotBound = errors.New("snooz: device not discovered/bound yet")
)

// Controller is the external per-device control session.
//
// It owns the wire-level connection, command encoding and GATT protocol;
// none of these are reimplemented by the gateway core. Implementations must be safe
// for concurrent use; the gateway serialises command execution fleet-wide,
// but connectivity queries and state reads may race with commands.
type Controller interface {
	// Connect establishes the control session.
	Connect(ctx context.Context) error

	// Disconnect tears the session down. Safe to call when not connected.
	Disconnect(ctx context.Context) error

	// Execute runs one device command and reports its outcome. A non-nil
	// error means the transport failed outright; a result with a
	// non-successful status means the operation completed but the device
	// reported failure.
	Execute(ctx context.Context, cmd Command) (CommandResult, error)

	// ReadState reads the device state. With useCached false the read must
	// hit the device rather than any transport-level cache.
	ReadState(ctx context.Context, useCached bool) (State, error)

	// Subscribe registers a state-change callback and returns a function
	// that unsubscribes it. Callbacks may fire in rapid bursts.
	Subscribe(fn func(State)) (unsubscribe func())

	// Connected reports whether the control session is currently usable.
	Connected() bool

	// ConnectionStatus returns a human-readable connection state name.
	ConnectionStatus() string
}

// ControllerFactory creates a Controller for a classified advertisement.
type ControllerFactory interface {
	NewController(adv ble.Advertisement, info AdvertisementInfo) (Controller, error)
}
