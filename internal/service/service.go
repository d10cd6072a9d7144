package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"marketpulse/internal/alerting"
	"marketpulse/internal/config"
	"marketpulse/internal/dashboard"
	"marketpulse/internal/deriver"
	"marketpulse/internal/fetcher"
	"marketpulse/internal/scheduler"
	"marketpulse/internal/storage"
)

// Job names as they appear in the sync_status table.
const (
	JobSyncPrices       = "sync_prices"
	JobSyncWhales       = "sync_whales"
	JobSyncOnchain      = "sync_onchain"
	JobSyncSentiment    = "sync_sentiment"
	JobSyncDefi         = "sync_defi"
	JobSyncCrossChain   = "sync_crosschain"
	JobDeriveMetrics    = "derive_metrics"
	JobEvaluateAlerts   = "evaluate_alerts"
	JobRefreshDashboard = "refresh_dashboard"
	JobPrune            = "prune"
)

// Stores bundles the persistence interfaces the service depends on.
type Stores struct {
	Prices     storage.PriceStore
	Whales     storage.WhaleStore
	Sentiment  storage.SentimentStore
	Defi       storage.DefiStore
	CrossChain storage.CrossChainStore
	Sync       storage.SyncStatusStore
	Alerts     storage.AlertStore
	Dashboard  storage.DashboardStore
}

// Fetchers bundles the source adapters. A nil adapter disables the
// corresponding sync job.
type Fetchers struct {
	Prices     fetcher.PriceFetcher
	Whales     fetcher.TransactionFetcher
	Onchain    fetcher.TransactionFetcher
	Sentiment  fetcher.SentimentSource
	Defi       fetcher.PoolFetcher
	CrossChain fetcher.QuoteFetcher
}

// Service orchestrates fetching, persistence, derivation, alerting,
// and the dashboard refresh on the shared scheduler.
type Service struct {
	cfg       *config.Config
	scheduler *scheduler.Scheduler
	stores    Stores
	fetchers  Fetchers
	deriver   *deriver.Deriver
	evaluator *alerting.Evaluator
	board     *dashboard.Aggregator
	logger    zerolog.Logger
}

// New constructs the pipeline service.
func New(
	cfg *config.Config,
	sched *scheduler.Scheduler,
	stores Stores,
	fetchers Fetchers,
	der *deriver.Deriver,
	evaluator *alerting.Evaluator,
	board *dashboard.Aggregator,
	logger zerolog.Logger,
) *Service {
	return &Service{
		cfg:       cfg,
		scheduler: sched,
		stores:    stores,
		fetchers:  fetchers,
		deriver:   der,
		evaluator: evaluator,
		board:     board,
		logger:    logger.With().Str("component", "service").Logger(),
	}
}

// Run registers every enabled job and blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	s.registerJobs()
	return s.scheduler.Run(ctx)
}

func (s *Service) registerJobs() {
	jobs := s.cfg.Jobs

	if s.fetchers.Prices != nil {
		s.scheduler.Register(JobSyncPrices, jobs.SyncPrices, s.syncPrices)
	}
	if s.fetchers.Whales != nil {
		s.scheduler.Register(JobSyncWhales, jobs.SyncWhales, s.syncWhales)
	}
	if s.fetchers.Onchain != nil {
		s.scheduler.Register(JobSyncOnchain, jobs.SyncOnchain, s.syncOnchain)
	}
	if s.fetchers.Sentiment != nil {
		s.scheduler.Register(JobSyncSentiment, jobs.SyncSentiment, s.syncSentiment)
	}
	if s.fetchers.Defi != nil {
		s.scheduler.Register(JobSyncDefi, jobs.SyncDefi, s.syncDefi)
	}
	if s.fetchers.CrossChain != nil {
		s.scheduler.Register(JobSyncCrossChain, jobs.SyncCrossChain, s.syncCrossChain)
	}

	s.scheduler.Register(JobDeriveMetrics, jobs.DeriveMetrics, s.deriveMetrics)
	if s.cfg.Alerting.Enabled && s.evaluator != nil {
		s.scheduler.Register(JobEvaluateAlerts, jobs.EvaluateAlerts, s.evaluateAlerts)
	}
	if s.board != nil {
		s.scheduler.Register(JobRefreshDashboard, jobs.RefreshDashboard, s.refreshDashboard)
	}
	s.scheduler.Register(JobPrune, jobs.Prune, s.prune)
}

// runSync is the shared sync-job shape: fetch, persist, and record the
// outcome. LastSync only moves on success; a failed pass records the
// error and leaves the previous watermark intact.
func (s *Service) runSync(ctx context.Context, job string, sync func(ctx context.Context) (int64, error)) error {
	records, err := sync(ctx)
	if err != nil {
		if markErr := s.stores.Sync.MarkSyncError(ctx, job, err.Error()); markErr != nil {
			s.logger.Error().Err(markErr).Str("job", job).Msg("failed to record sync error")
		}
		return err
	}

	if markErr := s.stores.Sync.MarkSyncSuccess(ctx, job, time.Now().UTC(), records); markErr != nil {
		s.logger.Error().Err(markErr).Str("job", job).Msg("failed to record sync success")
	}

	s.logger.Info().Str("job", job).Int64("records", records).Msg("sync completed")
	return nil
}

func (s *Service) syncPrices(ctx context.Context, _ time.Time) error {
	return s.runSync(ctx, JobSyncPrices, func(ctx context.Context) (int64, error) {
		points, err := s.fetchers.Prices.FetchPrices(ctx)
		if err != nil {
			return 0, fmt.Errorf("fetch prices: %w", err)
		}
		return s.stores.Prices.UpsertPricePoints(ctx, points)
	})
}

func (s *Service) syncWhales(ctx context.Context, _ time.Time) error {
	return s.runSync(ctx, JobSyncWhales, func(ctx context.Context) (int64, error) {
		txs, err := s.fetchers.Whales.FetchTransactions(ctx)
		if err != nil {
			return 0, fmt.Errorf("fetch whale transactions: %w", err)
		}
		return s.stores.Whales.InsertWhaleTransactions(ctx, txs)
	})
}

func (s *Service) syncOnchain(ctx context.Context, _ time.Time) error {
	return s.runSync(ctx, JobSyncOnchain, func(ctx context.Context) (int64, error) {
		txs, err := s.fetchers.Onchain.FetchTransactions(ctx)
		if err != nil {
			return 0, fmt.Errorf("scan chain: %w", err)
		}
		return s.stores.Whales.InsertWhaleTransactions(ctx, txs)
	})
}

func (s *Service) syncSentiment(ctx context.Context, _ time.Time) error {
	return s.runSync(ctx, JobSyncSentiment, func(ctx context.Context) (int64, error) {
		samples, err := s.fetchers.Sentiment.FetchSentiment(ctx)
		if err != nil {
			return 0, fmt.Errorf("fetch sentiment: %w", err)
		}
		return s.stores.Sentiment.InsertSentimentSamples(ctx, samples)
	})
}

func (s *Service) syncDefi(ctx context.Context, _ time.Time) error {
	return s.runSync(ctx, JobSyncDefi, func(ctx context.Context) (int64, error) {
		samples, err := s.fetchers.Defi.FetchPools(ctx)
		if err != nil {
			return 0, fmt.Errorf("fetch defi pools: %w", err)
		}
		return s.stores.Defi.InsertDefiYieldSamples(ctx, samples)
	})
}

func (s *Service) syncCrossChain(ctx context.Context, _ time.Time) error {
	return s.runSync(ctx, JobSyncCrossChain, func(ctx context.Context) (int64, error) {
		quotes, err := s.fetchers.CrossChain.FetchQuotes(ctx)
		if err != nil {
			return 0, fmt.Errorf("fetch cross-chain quotes: %w", err)
		}
		return s.stores.CrossChain.InsertCrossChainQuotes(ctx, quotes)
	})
}

func (s *Service) deriveMetrics(ctx context.Context, bucket time.Time) error {
	return s.runSync(ctx, JobDeriveMetrics, func(ctx context.Context) (int64, error) {
		if err := s.deriver.DeriveAll(ctx, s.cfg.Sources.Symbols, bucket); err != nil {
			return 0, err
		}
		return int64(len(s.cfg.Sources.Symbols)), nil
	})
}

func (s *Service) evaluateAlerts(ctx context.Context, bucket time.Time) error {
	return s.runSync(ctx, JobEvaluateAlerts, func(ctx context.Context) (int64, error) {
		if err := s.evaluator.EvaluateAll(ctx, bucket); err != nil {
			return 0, err
		}
		return 0, nil
	})
}

func (s *Service) refreshDashboard(ctx context.Context, bucket time.Time) error {
	return s.runSync(ctx, JobRefreshDashboard, func(ctx context.Context) (int64, error) {
		if err := s.board.Refresh(ctx, bucket); err != nil {
			return 0, err
		}
		return 0, nil
	})
}

// prune removes canonical records past the retention horizon. Partial
// failures continue on to the remaining tables.
func (s *Service) prune(ctx context.Context, bucket time.Time) error {
	recordCutoff := bucket.Add(-s.cfg.Retention.Records)
	alertCutoff := bucket.Add(-s.cfg.Retention.Alerts)

	var firstErr error
	steps := []struct {
		name string
		run  func() error
	}{
		{"price_points", func() error { return s.stores.Prices.DeletePricePointsBefore(ctx, recordCutoff) }},
		{"whale_transactions", func() error { return s.stores.Whales.DeleteWhaleTransactionsBefore(ctx, recordCutoff) }},
		{"sentiment_samples", func() error { return s.stores.Sentiment.DeleteSentimentSamplesBefore(ctx, recordCutoff) }},
		{"defi_yield_samples", func() error { return s.stores.Defi.DeleteDefiYieldSamplesBefore(ctx, recordCutoff) }},
		{"cross_chain_quotes", func() error { return s.stores.CrossChain.DeleteCrossChainQuotesBefore(ctx, recordCutoff) }},
		{"alerts", func() error { return s.stores.Alerts.DeleteAlertsBefore(ctx, alertCutoff) }},
	}

	for _, step := range steps {
		if err := step.run(); err != nil {
			s.logger.Error().Err(err).Str("table", step.name).Msg("prune step failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("prune %s: %w", step.name, err)
			}
		}
	}

	if firstErr != nil {
		if markErr := s.stores.Sync.MarkSyncError(ctx, JobPrune, firstErr.Error()); markErr != nil {
			s.logger.Error().Err(markErr).Msg("failed to record prune error")
		}
		return firstErr
	}

	if markErr := s.stores.Sync.MarkSyncSuccess(ctx, JobPrune, time.Now().UTC(), 0); markErr != nil {
		s.logger.Error().Err(markErr).Msg("failed to record prune success")
	}
	return nil
}

// StatusRecorder bridges scheduler outcomes into the sync_status
// table. Successes are recorded by the jobs themselves with record
// counts; the recorder only escalates failure streaks.
type StatusRecorder struct {
	store  storage.SyncStatusStore
	logger zerolog.Logger
}

// NewStatusRecorder wires the scheduler outcome hook onto storage.
func NewStatusRecorder(store storage.SyncStatusStore, logger zerolog.Logger) *StatusRecorder {
	return &StatusRecorder{store: store, logger: logger.With().Str("component", "status_recorder").Logger()}
}

func (r *StatusRecorder) RecordSuccess(context.Context, string, time.Time) {}

func (r *StatusRecorder) RecordFailure(ctx context.Context, job string, err error) {
	if markErr := r.store.MarkSyncError(ctx, job, err.Error()); markErr != nil {
		r.logger.Error().Err(markErr).Str("job", job).Msg("failed to mark job error")
	}
}

func (r *StatusRecorder) RecordDegraded(ctx context.Context, job string) {
	if err := r.store.MarkSyncDegraded(ctx, job); err != nil {
		r.logger.Error().Err(err).Str("job", job).Msg("failed to mark job degraded")
	}
}

var _ scheduler.StatusRecorder = (*StatusRecorder)(nil)
