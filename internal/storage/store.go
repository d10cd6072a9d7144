package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"marketpulse/internal/config"
)

// ErrNotConfigured indicates the storage pool was not initialised.
var ErrNotConfigured = errors.New("storage: pool not configured")

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// PriceStore defines persistence for price points and their derived columns.
type PriceStore interface {
	UpsertPricePoints(ctx context.Context, points []PricePoint) (int64, error)
	ListPricePoints(ctx context.Context, symbol string, from, to time.Time) ([]PricePoint, error)
	RecentPricePoints(ctx context.Context, symbol string, limit int) ([]PricePoint, error)
	LatestPricePoints(ctx context.Context) ([]PricePoint, error)
	UpdateDerivedMetrics(ctx context.Context, ts time.Time, symbol string, priceChange1h, volumeChange1h, anomalyScore *float64) error
	DeletePricePointsBefore(ctx context.Context, olderThan time.Time) error
}

// WhaleStore defines persistence for whale transactions.
type WhaleStore interface {
	InsertWhaleTransactions(ctx context.Context, txs []WhaleTransaction) (int64, error)
	WhaleFlowSince(ctx context.Context, symbol string, since time.Time) (WhaleFlow, error)
	WhaleFlowsSince(ctx context.Context, since time.Time) (map[string]WhaleFlow, error)
	DeleteWhaleTransactionsBefore(ctx context.Context, olderThan time.Time) error
}

// SentimentStore defines persistence for sentiment samples.
type SentimentStore interface {
	InsertSentimentSamples(ctx context.Context, samples []SentimentSample) (int64, error)
	AvgSentimentSince(ctx context.Context, symbol string, since time.Time) (*float64, error)
	MentionVolumeSince(ctx context.Context, symbol string, since time.Time) (int64, error)
	DeleteSentimentSamplesBefore(ctx context.Context, olderThan time.Time) error
}

// DefiStore defines persistence for DeFi yield samples.
type DefiStore interface {
	InsertDefiYieldSamples(ctx context.Context, samples []DefiYieldSample) (int64, error)
	DeleteDefiYieldSamplesBefore(ctx context.Context, olderThan time.Time) error
}

// CrossChainStore defines persistence for cross-chain quotes.
type CrossChainStore interface {
	InsertCrossChainQuotes(ctx context.Context, quotes []CrossChainQuote) (int64, error)
	ListCrossChainQuotesSince(ctx context.Context, since time.Time) ([]CrossChainQuote, error)
	DeleteCrossChainQuotesBefore(ctx context.Context, olderThan time.Time) error
}

// SyncStatusStore tracks per-handler liveness.
type SyncStatusStore interface {
	MarkSyncSuccess(ctx context.Context, handler string, at time.Time, records int64) error
	MarkSyncError(ctx context.Context, handler string, errMsg string) error
	MarkSyncDegraded(ctx context.Context, handler string) error
	ListSyncStatus(ctx context.Context) ([]SyncStatus, error)
}

// AlertStore persists and serves emitted alerts.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert Alert) (Alert, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]Alert, error)
	ListUnacknowledgedAlerts(ctx context.Context, limit int) ([]Alert, error)
	AcknowledgeAlert(ctx context.Context, id int64) error
	LatestAlertsPerKey(ctx context.Context, since time.Time) ([]Alert, error)
	LatestAlertTimeBySymbol(ctx context.Context) (map[string]time.Time, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// DashboardStore holds the materialized per-symbol summary.
type DashboardStore interface {
	ReplaceDashboard(ctx context.Context, rows []DashboardRow) error
	ListDashboard(ctx context.Context) ([]DashboardRow, error)
}

// Store aggregates access to every canonical table.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

var (
	_ PriceStore      = (*Store)(nil)
	_ WhaleStore      = (*Store)(nil)
	_ SentimentStore  = (*Store)(nil)
	_ DefiStore       = (*Store)(nil)
	_ CrossChainStore = (*Store)(nil)
	_ SyncStatusStore = (*Store)(nil)
	_ AlertStore      = (*Store)(nil)
	_ DashboardStore  = (*Store)(nil)
)
