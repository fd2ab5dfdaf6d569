// ABOUTME: Database connection management and initialization
// ABOUTME: Opens the SQLite sync-state log with WAL mode
package db

import (
	"database/sql"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// OpenDatabase opens (and initializes) the sync-state database.
func OpenDatabase(path string) (*sql.DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		path += "?_journal_mode=WAL"
	}

	database, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// Single connection avoids database-locked errors with SQLite.
	database.SetMaxOpenConns(1)

	if err := initSchema(database); err != nil {
		_ = database.Close()
		return nil, err
	}

	return database, nil
}

func initSchema(database *sql.DB) error {
	_, err := database.Exec(`
		CREATE TABLE IF NOT EXISTS sync_state (
			service TEXT PRIMARY KEY,
			last_sync_time TIMESTAMP,
			status TEXT NOT NULL DEFAULT 'idle',
			error_message TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}
