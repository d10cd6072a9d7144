package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	insertCrossChainQuoteSQL = `INSERT INTO cross_chain_quotes (
        ts, token, source_chain, target_chain, source_price, target_price,
        source_liquidity, target_liquidity, bridge_fee_usd, gas_cost_usd,
        arbitrage_profit_usd, success_probability
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
    );`

	listCrossChainQuotesSinceSQL = `SELECT
        id, ts, token, source_chain, target_chain, source_price, target_price,
        source_liquidity, target_liquidity, bridge_fee_usd, gas_cost_usd,
        arbitrage_profit_usd, success_probability
    FROM cross_chain_quotes
    WHERE ts >= $1
    ORDER BY ts DESC;`

	deleteCrossChainQuotesBeforeSQL = `DELETE FROM cross_chain_quotes WHERE ts < $1;`
)

// InsertCrossChainQuotes appends bridge-quote observations.
func (s *Store) InsertCrossChainQuotes(ctx context.Context, quotes []CrossChainQuote) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var written int64
	for _, q := range quotes {
		tag, execErr := pool.Exec(ctx, insertCrossChainQuoteSQL,
			q.Timestamp,
			q.Token,
			q.SourceChain,
			q.TargetChain,
			q.SourcePrice.String(),
			q.TargetPrice.String(),
			q.SourceLiquidity.String(),
			q.TargetLiquidity.String(),
			q.BridgeFeeUSD.String(),
			q.GasCostUSD.String(),
			q.ArbitrageProfitUSD.String(),
			q.SuccessProbability,
		)
		if execErr != nil {
			return written, fmt.Errorf("insert cross-chain quote %s: %w", q.Token, execErr)
		}
		written += tag.RowsAffected()
	}
	return written, nil
}

// ListCrossChainQuotesSince lists quotes observed since the cutoff, newest first.
func (s *Store) ListCrossChainQuotesSince(ctx context.Context, since time.Time) ([]CrossChainQuote, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listCrossChainQuotesSinceSQL, since)
	if queryErr != nil {
		return nil, fmt.Errorf("list cross-chain quotes since: %w", queryErr)
	}
	defer rows.Close()

	quotes := make([]CrossChainQuote, 0)
	for rows.Next() {
		var (
			q       CrossChainQuote
			numeric [7]string
		)
		if err := rows.Scan(
			&q.ID,
			&q.Timestamp,
			&q.Token,
			&q.SourceChain,
			&q.TargetChain,
			&numeric[0],
			&numeric[1],
			&numeric[2],
			&numeric[3],
			&numeric[4],
			&numeric[5],
			&numeric[6],
			&q.SuccessProbability,
		); err != nil {
			return nil, err
		}

		dsts := []*decimal.Decimal{
			&q.SourcePrice, &q.TargetPrice, &q.SourceLiquidity, &q.TargetLiquidity,
			&q.BridgeFeeUSD, &q.GasCostUSD, &q.ArbitrageProfitUSD,
		}
		for i, dst := range dsts {
			value, convErr := decimal.NewFromString(numeric[i])
			if convErr != nil {
				return nil, fmt.Errorf("parse cross-chain numeric: %w", convErr)
			}
			*dst = value
		}
		quotes = append(quotes, q)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return quotes, nil
}

// DeleteCrossChainQuotesBefore prunes quotes past the retention horizon.
func (s *Store) DeleteCrossChainQuotesBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteCrossChainQuotesBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete cross-chain quotes before: %w", execErr)
	}
	return nil
}
