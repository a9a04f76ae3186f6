// Package api provides the WebSocket gateway for the Snooz fleet.
//
// It exposes a single WebSocket endpoint speaking a correlated
// command/response protocol, plus a health endpoint for supervisors. Every
// connected client additionally receives debounced device_state events.
//
// The server follows the same lifecycle pattern as the other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
