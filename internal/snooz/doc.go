// Package snooz contains the device domain layer: runtime state types, the
// advertisement classifier, the command vocabulary, and the per-identity
// Session that owns a device's binding, cached state and debounced
// state-change notifications.
//
// A Session starts unbound. Discovery hands it a matching advertisement via
// Bind, which classifies the advertisement into a supported model/firmware
// pair and creates the external control session. Start then connects and
// performs one forced state read so a snapshot is available before any
// command has been issued.
//
// Raw state-change notifications may arrive in rapid bursts; the Session
// coalesces them with a cancel-and-restart debounce timer so listeners see at
// most one event per quiescent period, always reflecting the latest state.
package snooz
