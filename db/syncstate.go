// ABOUTME: Sync-state tracking for background refresh runs
// ABOUTME: Records per-service status, last sync time, and last error
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/openhouse/leadsync/models"
)

// UpdateSyncStatus upserts the status row for a service. A nil errMsg
// clears any previous error.
func UpdateSyncStatus(database *sql.DB, service, status string, errMsg *string) error {
	_, err := database.Exec(`
		INSERT INTO sync_state (service, status, error_message, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(service) DO UPDATE SET
			status = excluded.status,
			error_message = excluded.error_message,
			updated_at = CURRENT_TIMESTAMP
	`, service, status, errMsg)
	if err != nil {
		return fmt.Errorf("updating sync status: %w", err)
	}
	return nil
}

// MarkSyncCompleted records a successful refresh: status idle, error
// cleared, last sync time set to now.
func MarkSyncCompleted(database *sql.DB, service string) error {
	_, err := database.Exec(`
		INSERT INTO sync_state (service, status, error_message, last_sync_time, updated_at)
		VALUES (?, ?, NULL, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(service) DO UPDATE SET
			status = excluded.status,
			error_message = NULL,
			last_sync_time = CURRENT_TIMESTAMP,
			updated_at = CURRENT_TIMESTAMP
	`, service, models.SyncStatusIdle)
	if err != nil {
		return fmt.Errorf("marking sync completed: %w", err)
	}
	return nil
}

// GetSyncState returns the state row for a service, or nil when the
// service has never synced.
func GetSyncState(database *sql.DB, service string) (*models.SyncState, error) {
	row := database.QueryRow(`
		SELECT service, last_sync_time, status, error_message, created_at, updated_at
		FROM sync_state WHERE service = ?
	`, service)

	var state models.SyncState
	var lastSync sql.NullTime
	var errMsg sql.NullString
	err := row.Scan(&state.Service, &lastSync, &state.Status, &errMsg, &state.CreatedAt, &state.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading sync state: %w", err)
	}

	if lastSync.Valid {
		t := lastSync.Time
		state.LastSyncTime = &t
	}
	if errMsg.Valid {
		state.ErrorMessage = errMsg.String
	}
	return &state, nil
}

// StaleSince reports whether the service last synced before the cutoff
// (or never synced at all).
func StaleSince(database *sql.DB, service string, cutoff time.Time) (bool, error) {
	state, err := GetSyncState(database, service)
	if err != nil {
		return false, err
	}
	if state == nil || state.LastSyncTime == nil {
		return true, nil
	}
	return state.LastSyncTime.Before(cutoff), nil
}
