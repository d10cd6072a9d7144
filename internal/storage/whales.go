package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const (
	insertWhaleTxSQL = `INSERT INTO whale_transactions (
        tx_hash, ts, blockchain, from_address, to_address, symbol,
        amount, amount_usd, from_type, to_type, transaction_type
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
    )
    ON CONFLICT (tx_hash) DO NOTHING;`

	whaleFlowSinceSQL = `SELECT
        COUNT(*),
        COALESCE(SUM(amount_usd), 0),
        COALESCE(SUM(amount_usd) FILTER (WHERE transaction_type = 'exchange_inflow'), 0),
        COALESCE(SUM(amount_usd) FILTER (WHERE transaction_type = 'exchange_outflow'), 0)
    FROM whale_transactions
    WHERE symbol = $1 AND ts >= $2;`

	whaleFlowsSinceSQL = `SELECT
        symbol,
        COUNT(*),
        COALESCE(SUM(amount_usd), 0),
        COALESCE(SUM(amount_usd) FILTER (WHERE transaction_type = 'exchange_inflow'), 0),
        COALESCE(SUM(amount_usd) FILTER (WHERE transaction_type = 'exchange_outflow'), 0)
    FROM whale_transactions
    WHERE ts >= $1
    GROUP BY symbol;`

	deleteWhaleTxBeforeSQL = `DELETE FROM whale_transactions WHERE ts < $1;`
)

// InsertWhaleTransactions writes transactions with insert-once
// semantics keyed by tx_hash; duplicates are silently skipped. The
// returned count excludes skipped rows.
func (s *Store) InsertWhaleTransactions(ctx context.Context, txs []WhaleTransaction) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var written int64
	for _, tx := range txs {
		tag, execErr := pool.Exec(ctx, insertWhaleTxSQL,
			tx.TxHash,
			tx.Timestamp,
			tx.Blockchain,
			tx.FromAddress,
			tx.ToAddress,
			tx.Symbol,
			tx.Amount.String(),
			tx.AmountUSD.String(),
			tx.FromType,
			tx.ToType,
			tx.TransactionType,
		)
		if execErr != nil {
			return written, fmt.Errorf("insert whale tx %s: %w", tx.TxHash, execErr)
		}
		written += tag.RowsAffected()
	}
	return written, nil
}

// WhaleFlowSince returns the rollup of whale activity for one symbol.
func (s *Store) WhaleFlowSince(ctx context.Context, symbol string, since time.Time) (WhaleFlow, error) {
	pool, err := s.getPool()
	if err != nil {
		return WhaleFlow{}, err
	}

	flow, scanErr := scanWhaleFlow(pool.QueryRow(ctx, whaleFlowSinceSQL, symbol, since))
	if scanErr != nil {
		return WhaleFlow{}, fmt.Errorf("whale flow since: %w", scanErr)
	}
	flow.Symbol = symbol
	return flow, nil
}

// WhaleFlowsSince returns per-symbol whale rollups in one pass.
func (s *Store) WhaleFlowsSince(ctx context.Context, since time.Time) (map[string]WhaleFlow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, whaleFlowsSinceSQL, since)
	if queryErr != nil {
		return nil, fmt.Errorf("whale flows since: %w", queryErr)
	}
	defer rows.Close()

	flows := make(map[string]WhaleFlow)
	for rows.Next() {
		var (
			flow                            WhaleFlow
			totalStr, inflowStr, outflowStr string
		)
		if err := rows.Scan(&flow.Symbol, &flow.TxCount, &totalStr, &inflowStr, &outflowStr); err != nil {
			return nil, err
		}
		if flow.TotalUSD, err = decimal.NewFromString(totalStr); err != nil {
			return nil, fmt.Errorf("parse total usd: %w", err)
		}
		if flow.InflowUSD, err = decimal.NewFromString(inflowStr); err != nil {
			return nil, fmt.Errorf("parse inflow usd: %w", err)
		}
		if flow.OutflowUSD, err = decimal.NewFromString(outflowStr); err != nil {
			return nil, fmt.Errorf("parse outflow usd: %w", err)
		}
		flows[flow.Symbol] = flow
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return flows, nil
}

// DeleteWhaleTransactionsBefore prunes transactions past the retention horizon.
func (s *Store) DeleteWhaleTransactionsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteWhaleTxBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete whale transactions before: %w", execErr)
	}
	return nil
}

func scanWhaleFlow(row pgx.Row) (WhaleFlow, error) {
	var (
		flow                            WhaleFlow
		totalStr, inflowStr, outflowStr string
	)
	if err := row.Scan(&flow.TxCount, &totalStr, &inflowStr, &outflowStr); err != nil {
		return WhaleFlow{}, err
	}

	var err error
	if flow.TotalUSD, err = decimal.NewFromString(totalStr); err != nil {
		return WhaleFlow{}, fmt.Errorf("parse total usd: %w", err)
	}
	if flow.InflowUSD, err = decimal.NewFromString(inflowStr); err != nil {
		return WhaleFlow{}, fmt.Errorf("parse inflow usd: %w", err)
	}
	if flow.OutflowUSD, err = decimal.NewFromString(outflowStr); err != nil {
		return WhaleFlow{}, fmt.Errorf("parse outflow usd: %w", err)
	}
	return flow, nil
}
