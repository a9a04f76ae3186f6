// Package logging provides structured logging for the Snooz gateway.
//
// It wraps log/slog with configuration-driven level filtering, output format
// selection (JSON or text) and default fields identifying the service.
// Component packages obtain derived loggers via With, for example:
//
//	fleetLog := logger.With("component", "fleet")
package logging
