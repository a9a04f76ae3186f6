// Package fleet orchestrates the device fleet: it holds the registry of
// configured identities, runs discovery and the background rescan loop,
// serialises all radio commands through a single capacity-1 gate, and fans
// debounced state-change events out to registered listeners.
//
// The underlying radio stack does not safely support overlapping
// transactions across independent logical devices, so every command that
// touches the radio acquires the shared Gate first, regardless of target
// device. This is a correctness invariant, not an optimisation.
package fleet
