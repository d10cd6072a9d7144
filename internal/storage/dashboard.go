package storage

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	deleteDashboardSQL = `DELETE FROM market_dashboard;`

	insertDashboardRowSQL = `INSERT INTO market_dashboard (
        symbol, current_price, price_change_24h, volume_24h, market_cap,
        whale_tx_24h, whale_volume_24h, avg_sentiment, last_alert_time, refreshed_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
    );`

	listDashboardSQL = `SELECT
        symbol, current_price, price_change_24h, volume_24h, market_cap,
        whale_tx_24h, whale_volume_24h, avg_sentiment, last_alert_time, refreshed_at
    FROM market_dashboard
    ORDER BY market_cap DESC;`
)

// ReplaceDashboard swaps in a freshly computed summary inside one
// transaction. Symbols missing from rows drop off the dashboard.
func (s *Store) ReplaceDashboard(ctx context.Context, rows []DashboardRow) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin dashboard refresh: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, execErr := tx.Exec(ctx, deleteDashboardSQL); execErr != nil {
		return fmt.Errorf("clear dashboard: %w", execErr)
	}

	for _, row := range rows {
		if _, execErr := tx.Exec(ctx, insertDashboardRowSQL,
			row.Symbol,
			row.CurrentPrice.String(),
			row.PriceChange24h,
			row.Volume24h.String(),
			row.MarketCap.String(),
			row.WhaleTx24h,
			row.WhaleVolume24h.String(),
			row.AvgSentiment,
			row.LastAlertTime,
			row.RefreshedAt,
		); execErr != nil {
			return fmt.Errorf("insert dashboard row %s: %w", row.Symbol, execErr)
		}
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		return fmt.Errorf("commit dashboard refresh: %w", commitErr)
	}
	return nil
}

// ListDashboard returns the current summary, largest market cap first.
func (s *Store) ListDashboard(ctx context.Context) ([]DashboardRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listDashboardSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list dashboard: %w", queryErr)
	}
	defer rows.Close()

	result := make([]DashboardRow, 0)
	for rows.Next() {
		var (
			row                                   DashboardRow
			priceStr, volStr, capStr, whaleVolStr string
		)
		if err := rows.Scan(
			&row.Symbol,
			&priceStr,
			&row.PriceChange24h,
			&volStr,
			&capStr,
			&row.WhaleTx24h,
			&whaleVolStr,
			&row.AvgSentiment,
			&row.LastAlertTime,
			&row.RefreshedAt,
		); err != nil {
			return nil, err
		}

		fields := []struct {
			dst *decimal.Decimal
			src string
			tag string
		}{
			{&row.CurrentPrice, priceStr, "current_price"},
			{&row.Volume24h, volStr, "volume_24h"},
			{&row.MarketCap, capStr, "market_cap"},
			{&row.WhaleVolume24h, whaleVolStr, "whale_volume_24h"},
		}
		for _, f := range fields {
			value, convErr := decimal.NewFromString(f.src)
			if convErr != nil {
				return nil, fmt.Errorf("parse %s: %w", f.tag, convErr)
			}
			*f.dst = value
		}
		result = append(result, row)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return result, nil
}
