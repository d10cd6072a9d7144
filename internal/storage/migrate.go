package storage

import (
	"context"
	"fmt"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS price_points (
        ts               TIMESTAMPTZ NOT NULL,
        symbol           TEXT        NOT NULL,
        open             NUMERIC     NOT NULL,
        high             NUMERIC     NOT NULL,
        low              NUMERIC     NOT NULL,
        close            NUMERIC     NOT NULL,
        volume           NUMERIC     NOT NULL,
        market_cap       NUMERIC     NOT NULL,
        price_change_24h DOUBLE PRECISION NOT NULL DEFAULT 0,
        price_change_1h  DOUBLE PRECISION,
        volume_change_1h DOUBLE PRECISION,
        anomaly_score    DOUBLE PRECISION,
        PRIMARY KEY (ts, symbol)
    );`,
	`CREATE INDEX IF NOT EXISTS idx_price_points_symbol_ts ON price_points (symbol, ts DESC);`,
	`CREATE TABLE IF NOT EXISTS whale_transactions (
        tx_hash          TEXT        PRIMARY KEY,
        ts               TIMESTAMPTZ NOT NULL,
        blockchain       TEXT        NOT NULL,
        from_address     TEXT        NOT NULL,
        to_address       TEXT        NOT NULL,
        symbol           TEXT        NOT NULL,
        amount           NUMERIC     NOT NULL,
        amount_usd       NUMERIC     NOT NULL,
        from_type        TEXT        NOT NULL,
        to_type          TEXT        NOT NULL,
        transaction_type TEXT        NOT NULL
    );`,
	`CREATE INDEX IF NOT EXISTS idx_whale_tx_symbol_ts ON whale_transactions (symbol, ts DESC);`,
	`CREATE TABLE IF NOT EXISTS sentiment_samples (
        ts                TIMESTAMPTZ NOT NULL,
        platform          TEXT        NOT NULL,
        symbol            TEXT        NOT NULL,
        sentiment_score   DOUBLE PRECISION NOT NULL,
        mention_count     BIGINT      NOT NULL DEFAULT 0,
        positive_mentions BIGINT      NOT NULL DEFAULT 0,
        negative_mentions BIGINT      NOT NULL DEFAULT 0,
        neutral_mentions  BIGINT      NOT NULL DEFAULT 0,
        PRIMARY KEY (ts, platform, symbol)
    );`,
	`CREATE TABLE IF NOT EXISTS defi_yield_samples (
        ts         TIMESTAMPTZ NOT NULL,
        protocol   TEXT        NOT NULL,
        chain      TEXT        NOT NULL,
        pool       TEXT        NOT NULL,
        apy        DOUBLE PRECISION NOT NULL,
        tvl_usd    NUMERIC     NOT NULL,
        risk_score DOUBLE PRECISION NOT NULL DEFAULT 0,
        PRIMARY KEY (ts, protocol, chain, pool)
    );`,
	`CREATE TABLE IF NOT EXISTS cross_chain_quotes (
        id                  BIGSERIAL   PRIMARY KEY,
        ts                  TIMESTAMPTZ NOT NULL,
        token               TEXT        NOT NULL,
        source_chain        TEXT        NOT NULL,
        target_chain        TEXT        NOT NULL,
        source_price        NUMERIC     NOT NULL,
        target_price        NUMERIC     NOT NULL,
        source_liquidity    NUMERIC     NOT NULL,
        target_liquidity    NUMERIC     NOT NULL,
        bridge_fee_usd      NUMERIC     NOT NULL,
        gas_cost_usd        NUMERIC     NOT NULL,
        arbitrage_profit_usd NUMERIC    NOT NULL,
        success_probability DOUBLE PRECISION NOT NULL
    );`,
	`CREATE INDEX IF NOT EXISTS idx_cross_chain_quotes_ts ON cross_chain_quotes (ts DESC);`,
	`CREATE TABLE IF NOT EXISTS sync_status (
        handler_name   TEXT        PRIMARY KEY,
        last_sync      TIMESTAMPTZ,
        records_synced BIGINT      NOT NULL DEFAULT 0,
        status         TEXT        NOT NULL,
        error_message  TEXT,
        updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
    );`,
	`CREATE TABLE IF NOT EXISTS alerts (
        id           BIGSERIAL   PRIMARY KEY,
        alert_type   TEXT        NOT NULL,
        symbol       TEXT        NOT NULL,
        severity     TEXT        NOT NULL,
        message      TEXT        NOT NULL,
        data         JSONB,
        created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
        acknowledged BOOLEAN     NOT NULL DEFAULT false
    );`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_key_created ON alerts (alert_type, symbol, created_at DESC);`,
	`CREATE TABLE IF NOT EXISTS market_dashboard (
        symbol           TEXT        PRIMARY KEY,
        current_price    NUMERIC     NOT NULL,
        price_change_24h DOUBLE PRECISION NOT NULL,
        volume_24h       NUMERIC     NOT NULL,
        market_cap       NUMERIC     NOT NULL,
        whale_tx_24h     BIGINT      NOT NULL DEFAULT 0,
        whale_volume_24h NUMERIC     NOT NULL DEFAULT 0,
        avg_sentiment    DOUBLE PRECISION,
        last_alert_time  TIMESTAMPTZ,
        refreshed_at     TIMESTAMPTZ NOT NULL
    );`,
}

// Migrate creates the canonical tables when they do not yet exist.
func (s *Store) Migrate(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	for _, stmt := range migrationStatements {
		if _, execErr := pool.Exec(ctx, stmt); execErr != nil {
			return fmt.Errorf("apply migration: %w", execErr)
		}
	}
	return nil
}
