// Package mqtt provides an optional MQTT state mirror for the Snooz gateway.
//
// When enabled, every debounced device state change is published as a
// retained JSON message so home-automation consumers can follow device state
// without holding a WebSocket connection. The gateway is publish-only; it
// never subscribes, and commands arrive exclusively over the WebSocket
// protocol.
//
// This package manages:
//   - Connection lifecycle with auto-reconnect and exponential backoff
//   - Last Will and Testament (LWT) for offline detection
//   - Retained state publishing under snoozgw/state/<device_name>
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.PublishDeviceState("bedroom", snapshotJSON)
package mqtt
