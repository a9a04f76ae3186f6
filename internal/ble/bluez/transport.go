package bluez

import (
	"fmt"

	"github.com/nerrad567/snooz-gateway/internal/ble"
	"github.com/nerrad567/snooz-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/snooz-gateway/internal/snooz"
)

// Transport is the BlueZ-backed radio transport.
//
// One Transport owns the system bus connection and satisfies both
// ble.Scanner and snooz.ControllerFactory, so the fleet manager can be wired
// with a single production collaborator.
type Transport struct {
	conn   *conn
	logger *logging.Logger
}

// NewTransport connects to the system bus and verifies BlueZ is reachable.
//
// Parameters:
//   - logger: Structured logger for transport diagnostics
//
// Returns:
//   - *Transport: Ready transport sharing one bus connection
//   - error: If the bus is unreachable or BlueZ is not running
func NewTransport(logger *logging.Logger) (*Transport, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	c, err := newConn()
	if err != nil {
		return nil, err
	}

	logger.Debug("bluez transport initialised", "adapter", string(c.adapter))
	return &Transport{conn: c, logger: logger}, nil
}

// Close releases the bus connection. Controllers created by this transport
// become unusable afterwards.
func (t *Transport) Close() error {
	return t.conn.close()
}

// NewController implements snooz.ControllerFactory.
//
// The advertisement supplies the hardware address; the classification result
// supplies the pairing secret the session authenticates with.
func (t *Transport) NewController(adv ble.Advertisement, info snooz.AdvertisementInfo) (snooz.Controller, error) {
	if adv.Address == "" {
		return nil, fmt.Errorf("advertisement carries no hardware address")
	}
	return newController(t.conn, t.logger, adv.Address, info.Password)
}
