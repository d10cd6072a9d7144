package storage

import (
	"context"
	"fmt"
	"time"
)

const (
	markSyncSuccessSQL = `INSERT INTO sync_status (
        handler_name, last_sync, records_synced, status, error_message, updated_at
    ) VALUES ($1, $2, $3, 'success', NULL, now())
    ON CONFLICT (handler_name) DO UPDATE
    SET last_sync      = EXCLUDED.last_sync,
        records_synced = EXCLUDED.records_synced,
        status         = 'success',
        error_message  = NULL,
        updated_at     = now();`

	// A failed cycle never touches last_sync, so staleness stays
	// measurable against the prior success.
	markSyncErrorSQL = `INSERT INTO sync_status (
        handler_name, last_sync, records_synced, status, error_message, updated_at
    ) VALUES ($1, NULL, 0, 'error', $2, now())
    ON CONFLICT (handler_name) DO UPDATE
    SET status        = 'error',
        error_message = EXCLUDED.error_message,
        updated_at    = now();`

	markSyncDegradedSQL = `INSERT INTO sync_status (
        handler_name, last_sync, records_synced, status, error_message, updated_at
    ) VALUES ($1, NULL, 0, 'degraded', NULL, now())
    ON CONFLICT (handler_name) DO UPDATE
    SET status     = 'degraded',
        updated_at = now();`

	listSyncStatusSQL = `SELECT
        handler_name, last_sync, records_synced, status, error_message, updated_at
    FROM sync_status
    ORDER BY handler_name;`
)

// MarkSyncSuccess overwrites a handler's row after a successful cycle.
func (s *Store) MarkSyncSuccess(ctx context.Context, handler string, at time.Time, records int64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, markSyncSuccessSQL, handler, at, records); execErr != nil {
		return fmt.Errorf("mark sync success: %w", execErr)
	}
	return nil
}

// MarkSyncError records a failed cycle, preserving last_sync.
func (s *Store) MarkSyncError(ctx context.Context, handler string, errMsg string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, markSyncErrorSQL, handler, errMsg); execErr != nil {
		return fmt.Errorf("mark sync error: %w", execErr)
	}
	return nil
}

// MarkSyncDegraded escalates a handler after repeated consecutive failures.
func (s *Store) MarkSyncDegraded(ctx context.Context, handler string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, markSyncDegradedSQL, handler); execErr != nil {
		return fmt.Errorf("mark sync degraded: %w", execErr)
	}
	return nil
}

// ListSyncStatus returns the liveness rows for every handler.
func (s *Store) ListSyncStatus(ctx context.Context) ([]SyncStatus, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSyncStatusSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list sync status: %w", queryErr)
	}
	defer rows.Close()

	statuses := make([]SyncStatus, 0)
	for rows.Next() {
		var st SyncStatus
		if err := rows.Scan(
			&st.HandlerName,
			&st.LastSync,
			&st.RecordsSynced,
			&st.Status,
			&st.ErrorMessage,
			&st.UpdatedAt,
		); err != nil {
			return nil, err
		}
		statuses = append(statuses, st)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return statuses, nil
}
