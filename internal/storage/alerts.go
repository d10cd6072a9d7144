package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	insertAlertSQL = `INSERT INTO alerts (
        alert_type, symbol, severity, message, data, created_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    RETURNING id, alert_type, symbol, severity, message, data, created_at, acknowledged;`

	selectAlertColumns = `id, alert_type, symbol, severity, message, data, created_at, acknowledged`

	listRecentAlertsSQL = `SELECT ` + selectAlertColumns + `
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	listUnacknowledgedAlertsSQL = `SELECT ` + selectAlertColumns + `
    FROM alerts
    WHERE acknowledged = false
    ORDER BY created_at
    LIMIT $1;`

	acknowledgeAlertSQL = `UPDATE alerts SET acknowledged = true WHERE id = $1;`

	latestAlertsPerKeySQL = `SELECT DISTINCT ON (alert_type, symbol) ` + selectAlertColumns + `
    FROM alerts
    WHERE created_at >= $1
    ORDER BY alert_type, symbol, created_at DESC;`

	latestAlertTimeBySymbolSQL = `SELECT symbol, MAX(created_at)
    FROM alerts
    GROUP BY symbol;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE created_at < $1;`
)

// InsertAlert persists a newly fired alert and returns the stored row.
func (s *Store) InsertAlert(ctx context.Context, alert Alert) (Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return Alert{}, err
	}

	createdAt := alert.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var data interface{}
	if len(alert.Data) > 0 {
		data = []byte(alert.Data)
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.AlertType,
		alert.Symbol,
		alert.Severity,
		alert.Message,
		data,
		createdAt,
	)

	stored, scanErr := scanAlert(row)
	if scanErr != nil {
		return Alert{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return stored, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]Alert, error) {
	return s.queryAlerts(ctx, listRecentAlertsSQL, limit)
}

// ListUnacknowledgedAlerts is the downstream alert sink: oldest
// unacknowledged rows first so consumers drain in order.
func (s *Store) ListUnacknowledgedAlerts(ctx context.Context, limit int) ([]Alert, error) {
	return s.queryAlerts(ctx, listUnacknowledgedAlertsSQL, limit)
}

// AcknowledgeAlert flips the acknowledged flag on one alert.
func (s *Store) AcknowledgeAlert(ctx context.Context, id int64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, execErr := pool.Exec(ctx, acknowledgeAlertSQL, id)
	if execErr != nil {
		return fmt.Errorf("acknowledge alert: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// LatestAlertsPerKey returns the newest alert per (alert_type, symbol)
// created since the cutoff. Used to rebuild cooldown state on startup.
func (s *Store) LatestAlertsPerKey(ctx context.Context, since time.Time) ([]Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, latestAlertsPerKeySQL, since)
	if queryErr != nil {
		return nil, fmt.Errorf("latest alerts per key: %w", queryErr)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

// LatestAlertTimeBySymbol returns the newest alert timestamp per symbol.
func (s *Store) LatestAlertTimeBySymbol(ctx context.Context) (map[string]time.Time, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, latestAlertTimeBySymbolSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("latest alert time by symbol: %w", queryErr)
	}
	defer rows.Close()

	times := make(map[string]time.Time)
	for rows.Next() {
		var (
			symbol string
			at     time.Time
		)
		if err := rows.Scan(&symbol, &at); err != nil {
			return nil, err
		}
		times[symbol] = at
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return times, nil
}

// DeleteAlertsBefore deletes historical alerts.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

func (s *Store) queryAlerts(ctx context.Context, sql string, limit int) ([]Alert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, sql, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("query alerts: %w", queryErr)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

func collectAlerts(rows pgx.Rows) ([]Alert, error) {
	alerts := make([]Alert, 0)
	for rows.Next() {
		alert, scanErr := scanAlert(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		alerts = append(alerts, alert)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

func scanAlert(row pgx.Row) (Alert, error) {
	var (
		alert Alert
		data  []byte
	)
	if err := row.Scan(
		&alert.ID,
		&alert.AlertType,
		&alert.Symbol,
		&alert.Severity,
		&alert.Message,
		&data,
		&alert.CreatedAt,
		&alert.Acknowledged,
	); err != nil {
		return Alert{}, err
	}
	alert.Data = data
	return alert, nil
}
