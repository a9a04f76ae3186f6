// Package database provides SQLite connectivity for the Snooz gateway.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Connection pooling and lifecycle management
//   - Health checks for readiness reporting
//
// The gateway uses a single small database for device state history, so the
// schema is created directly by the owning repository rather than through a
// migration framework.
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: "./data/snoozgw.db", WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
package database
