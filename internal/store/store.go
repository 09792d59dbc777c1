// Package store persists serialized field state in SQLite.
//
// It is the persistence collaborator behind the watchdog's loader contract:
// the engine itself never touches I/O, it only awaits a StateLoader that
// this package produces. State is stored as one JSON snapshot per
// (user, field) pair, replaced on every save.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"pastewatch/internal/watchdog"
)

// Schema for the pastewatch state store.
const schema = `
CREATE TABLE IF NOT EXISTS field_states (
    user_id     TEXT NOT NULL,
    field_id    TEXT NOT NULL,
    updated_at  INTEGER NOT NULL,
    state       TEXT NOT NULL,
    PRIMARY KEY (user_id, field_id)
);

CREATE INDEX IF NOT EXISTS idx_field_states_user ON field_states(user_id);
`

// Store is the SQLite state store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at path and bootstraps the
// schema. The parent directory is created if missing.
func Open(path string, busyTimeoutMs int) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	if busyTimeoutMs <= 0 {
		busyTimeoutMs = 5000
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on", path, busyTimeoutMs)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveState replaces the persisted snapshot for (userID, fieldID).
func (s *Store) SaveState(ctx context.Context, userID, fieldID string, state watchdog.HandleState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO field_states (user_id, field_id, updated_at, state)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, field_id) DO UPDATE SET
			updated_at = excluded.updated_at,
			state = excluded.state`,
		userID, fieldID, time.Now().UnixNano(), string(data))
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// LoadState returns the persisted snapshot for (userID, fieldID), or
// (nil, nil) when none exists.
func (s *Store) LoadState(ctx context.Context, userID, fieldID string) (*watchdog.HandleState, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM field_states WHERE user_id = ? AND field_id = ?`,
		userID, fieldID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	var state watchdog.HandleState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &state, nil
}

// DeleteUser removes every snapshot for userID.
func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM field_states WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete user states: %w", err)
	}
	return nil
}

// Loader produces a watchdog.StateLoader bound to (userID, fieldID).
func (s *Store) Loader(userID, fieldID string) watchdog.StateLoader {
	return func(ctx context.Context) (*watchdog.HandleState, error) {
		return s.LoadState(ctx, userID, fieldID)
	}
}
