// Package history persists debounced device state changes to SQLite.
//
// Every state-change event that reaches the broadcaster can be recorded as a
// JSON snapshot in the state_history table, giving operators a queryable
// record of what each machine was doing and when. Recording is best-effort:
// a failed insert is logged and never blocks event delivery.
package history
