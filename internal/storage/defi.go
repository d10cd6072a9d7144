package storage

import (
	"context"
	"fmt"
	"time"
)

const (
	insertDefiYieldSQL = `INSERT INTO defi_yield_samples (
        ts, protocol, chain, pool, apy, tvl_usd, risk_score
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    ON CONFLICT (ts, protocol, chain, pool) DO NOTHING;`

	deleteDefiYieldBeforeSQL = `DELETE FROM defi_yield_samples WHERE ts < $1;`
)

// InsertDefiYieldSamples appends yield samples, skipping replayed keys.
func (s *Store) InsertDefiYieldSamples(ctx context.Context, samples []DefiYieldSample) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var written int64
	for _, sample := range samples {
		tag, execErr := pool.Exec(ctx, insertDefiYieldSQL,
			sample.Timestamp,
			sample.Protocol,
			sample.Chain,
			sample.Pool,
			sample.APY,
			sample.TVLUSD.String(),
			sample.RiskScore,
		)
		if execErr != nil {
			return written, fmt.Errorf("insert defi yield %s/%s: %w", sample.Protocol, sample.Pool, execErr)
		}
		written += tag.RowsAffected()
	}
	return written, nil
}

// DeleteDefiYieldSamplesBefore prunes samples past the retention horizon.
func (s *Store) DeleteDefiYieldSamplesBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteDefiYieldBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete defi yield samples before: %w", execErr)
	}
	return nil
}
