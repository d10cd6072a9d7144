package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const (
	upsertPricePointSQL = `INSERT INTO price_points (
        ts, symbol, open, high, low, close, volume, market_cap, price_change_24h
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    )
    ON CONFLICT (ts, symbol) DO UPDATE
    SET
        open             = EXCLUDED.open,
        high             = EXCLUDED.high,
        low              = EXCLUDED.low,
        close            = EXCLUDED.close,
        volume           = EXCLUDED.volume,
        market_cap       = EXCLUDED.market_cap,
        price_change_24h = EXCLUDED.price_change_24h;`

	selectPricePointColumns = `ts, symbol, open, high, low, close, volume, market_cap,
        price_change_24h, price_change_1h, volume_change_1h, anomaly_score`

	listPricePointsSQL = `SELECT ` + selectPricePointColumns + `
    FROM price_points
    WHERE symbol = $1 AND ts >= $2 AND ts < $3
    ORDER BY ts;`

	recentPricePointsSQL = `SELECT ` + selectPricePointColumns + `
    FROM price_points
    WHERE symbol = $1
    ORDER BY ts DESC
    LIMIT $2;`

	latestPricePointsSQL = `SELECT DISTINCT ON (symbol) ` + selectPricePointColumns + `
    FROM price_points
    ORDER BY symbol, ts DESC;`

	updateDerivedMetricsSQL = `UPDATE price_points
    SET price_change_1h = $3, volume_change_1h = $4, anomaly_score = $5
    WHERE ts = $1 AND symbol = $2;`

	deletePricePointsBeforeSQL = `DELETE FROM price_points WHERE ts < $1;`
)

// UpsertPricePoints writes price points with latest-wins semantics on
// the (ts, symbol) key. Each row is its own atomic statement so
// readers never observe a partially written record.
func (s *Store) UpsertPricePoints(ctx context.Context, points []PricePoint) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var written int64
	for _, p := range points {
		tag, execErr := pool.Exec(ctx, upsertPricePointSQL,
			p.Timestamp,
			p.Symbol,
			p.Open.String(),
			p.High.String(),
			p.Low.String(),
			p.Close.String(),
			p.Volume.String(),
			p.MarketCap.String(),
			p.PriceChange24h,
		)
		if execErr != nil {
			return written, fmt.Errorf("upsert price point %s@%s: %w", p.Symbol, p.Timestamp, execErr)
		}
		written += tag.RowsAffected()
	}
	return written, nil
}

// ListPricePoints returns a symbol's points within [from, to) ordered by time.
func (s *Store) ListPricePoints(ctx context.Context, symbol string, from, to time.Time) ([]PricePoint, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listPricePointsSQL, symbol, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list price points: %w", queryErr)
	}
	defer rows.Close()

	return collectPricePoints(rows)
}

// RecentPricePoints returns the newest points for a symbol, newest first.
func (s *Store) RecentPricePoints(ctx context.Context, symbol string, limit int) ([]PricePoint, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, recentPricePointsSQL, symbol, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("recent price points: %w", queryErr)
	}
	defer rows.Close()

	return collectPricePoints(rows)
}

// LatestPricePoints returns the most recent point per symbol.
func (s *Store) LatestPricePoints(ctx context.Context) ([]PricePoint, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, latestPricePointsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("latest price points: %w", queryErr)
	}
	defer rows.Close()

	return collectPricePoints(rows)
}

// UpdateDerivedMetrics writes the derived columns of one price point.
// Nil values clear the column, matching the "missing previous" case.
func (s *Store) UpdateDerivedMetrics(ctx context.Context, ts time.Time, symbol string, priceChange1h, volumeChange1h, anomalyScore *float64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tag, execErr := pool.Exec(ctx, updateDerivedMetricsSQL, ts, symbol, priceChange1h, volumeChange1h, anomalyScore)
	if execErr != nil {
		return fmt.Errorf("update derived metrics: %w", execErr)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// DeletePricePointsBefore prunes points past the retention horizon.
func (s *Store) DeletePricePointsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deletePricePointsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete price points before: %w", execErr)
	}
	return nil
}

func collectPricePoints(rows pgx.Rows) ([]PricePoint, error) {
	points := make([]PricePoint, 0)
	for rows.Next() {
		point, scanErr := scanPricePoint(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		points = append(points, point)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return points, nil
}

func scanPricePoint(rows pgx.Rows) (PricePoint, error) {
	var (
		p                                 PricePoint
		openStr, highStr, lowStr          string
		closeStr, volumeStr, marketCapStr string
	)

	if err := rows.Scan(
		&p.Timestamp,
		&p.Symbol,
		&openStr,
		&highStr,
		&lowStr,
		&closeStr,
		&volumeStr,
		&marketCapStr,
		&p.PriceChange24h,
		&p.PriceChange1h,
		&p.VolumeChange1h,
		&p.AnomalyScore,
	); err != nil {
		return PricePoint{}, err
	}

	fields := []struct {
		dst *decimal.Decimal
		src string
		tag string
	}{
		{&p.Open, openStr, "open"},
		{&p.High, highStr, "high"},
		{&p.Low, lowStr, "low"},
		{&p.Close, closeStr, "close"},
		{&p.Volume, volumeStr, "volume"},
		{&p.MarketCap, marketCapStr, "market_cap"},
	}
	for _, f := range fields {
		value, err := decimal.NewFromString(f.src)
		if err != nil {
			return PricePoint{}, fmt.Errorf("parse %s: %w", f.tag, err)
		}
		*f.dst = value
	}

	return p, nil
}
