package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/snooz-gateway/internal/infrastructure/database"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 200
)

// Entry is one recorded state change.
type Entry struct {
	ID         int64           `json:"id"`
	DeviceName string          `json:"device_name"`
	State      json.RawMessage `json:"state"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Store records and queries device state history in SQLite.
//
// Snapshots are stored as JSON so the table never needs altering when the
// snapshot shape grows a field.
type Store struct {
	db *database.DB
}

// NewStore creates a state history store and ensures its schema exists.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - db: Open SQLite connection used for queries
//
// Returns:
//   - *Store: Store instance ready for use
//   - error: If schema creation fails
func NewStore(ctx context.Context, db *database.DB) (*Store, error) {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS state_history (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			device_name TEXT NOT NULL,
			state       TEXT NOT NULL,
			created_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		);
		CREATE INDEX IF NOT EXISTS idx_state_history_device
			ON state_history (device_name, created_at DESC);
	`)
	if err != nil {
		return nil, fmt.Errorf("creating state_history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// RecordStateChange inserts a new state history entry for a device.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceName: Configured device identity
//   - state: Snapshot to persist; marshalled to JSON
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (s *Store) RecordStateChange(ctx context.Context, deviceName string, state any) error {
	if deviceName == "" {
		return fmt.Errorf("device name is required")
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO state_history (device_name, state) VALUES (?, ?)",
		deviceName,
		string(stateJSON),
	)
	if err != nil {
		return fmt.Errorf("inserting state history: %w", err)
	}

	return nil
}

// Recent returns recent state history entries for a device, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceName: Configured device identity
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []Entry: History entries ordered by created_at DESC
//   - error: nil on success, otherwise the underlying query error
func (s *Store) Recent(ctx context.Context, deviceName string, limit int) ([]Entry, error) {
	if deviceName == "" {
		return nil, fmt.Errorf("device name is required")
	}
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, device_name, state, created_at
		 FROM state_history
		 WHERE device_name = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		deviceName,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var entry Entry
		var stateJSON string
		var createdAt string

		if err := rows.Scan(&entry.ID, &entry.DeviceName, &stateJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning state history: %w", err)
		}

		entry.State = json.RawMessage(stateJSON)

		timestamp, err := parseTimestamp(createdAt)
		if err != nil {
			return nil, err
		}
		entry.CreatedAt = timestamp

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state history: %w", err)
	}

	return entries, nil
}

// Prune deletes history entries older than the given duration.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - olderThan: Duration to retain (entries older than now-olderThan are deleted)
//
// Returns:
//   - int64: Number of rows deleted
//   - error: nil on success, otherwise the underlying database error
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM state_history WHERE created_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting state history: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected, nil
}

// parseTimestamp parses a timestamp stored in SQLite.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("created_at is empty")
	}

	timestamp, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return timestamp, nil
	}

	fallback, fallbackErr := time.Parse("2006-01-02T15:04:05Z", value)
	if fallbackErr == nil {
		return fallback, nil
	}

	return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
}
