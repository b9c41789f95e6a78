package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrPreferenceNotFound is returned when a preference key has never been saved.
var ErrPreferenceNotFound = errors.New("database: preference not found")

// LoadPreference returns the raw value stored under key.
//
// Preferences are opaque blobs; callers own their encoding.
// Requires the preferences table from the embedded migrations.
func (db *DB) LoadPreference(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := db.QueryRowContext(ctx,
		"SELECT value FROM preferences WHERE key = ?", key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPreferenceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading preference %s: %w", key, err)
	}
	return value, nil
}

// SavePreference replaces the value stored under key.
func (db *DB) SavePreference(ctx context.Context, key string, value []byte) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("saving preference %s: %w", key, err)
	}
	return nil
}
