package state

import (
	"database/sql"
	"fmt"
	"time"
)

// Get reads one importer cursor value. The second return is false when the
// key has never been set.
func Get(db *sql.DB, importer string, key string) (string, bool, error) {
	var v string
	err := db.QueryRow(`SELECT value FROM importer_state WHERE importer = ? AND key = ?`, importer, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get importer state: %w", err)
	}
	return v, true, nil
}

// Set upserts one importer cursor value.
func Set(db *sql.DB, importer string, key string, value string) error {
	now := time.Now().Unix()
	_, err := db.Exec(`
		INSERT INTO importer_state (importer, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(importer, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, importer, key, value, now)
	if err != nil {
		return fmt.Errorf("failed to set importer state: %w", err)
	}
	return nil
}
