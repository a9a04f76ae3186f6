// Package bluez is the production BLE transport, backed by the BlueZ D-Bus
// API on the Linux system bus.
//
// It implements both radio contracts the gateway core depends on: discovery
// (ble.Scanner) and per-device control sessions (snooz.Controller via
// snooz.ControllerFactory). A single Transport owns the bus connection and
// hands out controllers that share it.
//
// The package speaks three BlueZ interfaces: org.bluez.Adapter1 for
// discovery, org.bluez.Device1 for connection management, and
// org.bluez.GattCharacteristic1 for the device protocol (password
// authentication, command writes, state reads and notifications).
package bluez
