package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"marketpulse/internal/alerting"
	"marketpulse/internal/config"
	"marketpulse/internal/dashboard"
	"marketpulse/internal/deriver"
	"marketpulse/internal/fetcher"
	"marketpulse/internal/scheduler"
	"marketpulse/internal/service"
	"marketpulse/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newFetchers(store *storage.Store) service.Fetchers {
	src := a.Config.Sources

	fetchers := service.Fetchers{
		Prices: fetcher.NewMarket(fetcher.MarketOptions{
			BaseURL:   src.Market.BaseURL,
			APIKey:    src.Market.APIKey,
			Symbols:   src.Symbols,
			Timeout:   src.Market.RequestTimeout,
			UserAgent: src.Market.UserAgent,
		}, a.Logger),
		Sentiment: fetcher.NewSentiment(fetcher.SentimentOptions{
			BaseURL:   src.Sentiment.BaseURL,
			APIKey:    src.Sentiment.APIKey,
			Symbols:   src.Symbols,
			Platforms: src.Sentiment.Platforms,
			Timeout:   src.Sentiment.RequestTimeout,
		}, a.Logger),
		Defi: fetcher.NewDefi(fetcher.DefiOptions{
			BaseURL:  src.Defi.BaseURL,
			MaxPools: src.Defi.MaxPools,
			Timeout:  src.Defi.RequestTimeout,
		}, a.Logger),
		CrossChain: fetcher.NewCrossChain(fetcher.CrossChainOptions{
			BaseURL:      src.CrossChain.BaseURL,
			Tokens:       src.CrossChain.Tokens,
			TradeSizeUSD: src.CrossChain.TradeSizeUSD,
			Timeout:      src.CrossChain.RequestTimeout,
		}, a.Logger),
	}

	if src.Whale.APIKey != "" {
		fetchers.Whales = fetcher.NewWhale(fetcher.WhaleOptions{
			BaseURL:     src.Whale.BaseURL,
			APIKey:      src.Whale.APIKey,
			MinValueUSD: src.Whale.MinValueUSD,
			MaxResults:  src.Whale.MaxResults,
			Timeout:     src.Whale.RequestTimeout,
		}, a.Logger)
	}

	if src.Chain.RPCURL != "" && store != nil {
		fetchers.Onchain = fetcher.NewChainWatcher(fetcher.ChainOptions{
			RPCURL:            src.Chain.RPCURL,
			Blockchain:        src.Chain.Blockchain,
			NativeSymbol:      src.Chain.NativeSymbol,
			BlocksPerScan:     src.Chain.BlocksPerScan,
			MinValueUSD:       src.Chain.MinValueUSD,
			ExchangeAddresses: src.Chain.ExchangeAddresses,
			Timeout:           src.Chain.RequestTimeout,
		}, a.nativePriceFunc(store, src.Chain.NativeSymbol), a.Logger)
	}

	return fetchers
}

// nativePriceFunc resolves the chain's native asset price from the
// most recent stored point so the watcher can apply its USD threshold.
func (a *App) nativePriceFunc(store storage.PriceStore, symbol string) fetcher.PriceOfFunc {
	return func(ctx context.Context) (decimal.Decimal, error) {
		points, err := store.RecentPricePoints(ctx, symbol, 1)
		if err != nil {
			return decimal.Zero, err
		}
		if len(points) == 0 {
			return decimal.Zero, errors.New("no stored price for native symbol")
		}
		return points[0].Close, nil
	}
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) weights() deriver.Weights {
	d := a.Config.Deriver
	w := deriver.Weights{
		Price:          d.PriceWeight,
		Volume:         d.VolumeWeight,
		Whale:          d.WhaleWeight,
		Social:         d.SocialWeight,
		PriceScalePct:  d.PriceScalePct,
		VolumeScalePct: d.VolumeScalePct,
		WhaleScaleTx:   d.WhaleScaleTx,
		SocialScale:    d.SocialScale,
	}
	if w.Price+w.Volume+w.Whale+w.Social <= 0 {
		return deriver.DefaultWeights()
	}
	return w
}

func (a *App) thresholds() alerting.Thresholds {
	c := a.Config.Alerting
	return alerting.Thresholds{
		AnomalyScore:       c.AnomalyThreshold,
		PriceChangePct:     c.PriceChangePct,
		WhaleProbability:   c.WhaleProbability,
		ArbitrageProfitUSD: c.ArbitrageProfitUSD,
		ArbitrageSuccess:   c.ArbitrageSuccess,
	}
}

func (a *App) windows() alerting.Windows {
	c := a.Config.Alerting
	return alerting.Windows{
		Anomaly:   c.AnomalyCooldown,
		Price:     c.PriceCooldown,
		Whale:     c.WhaleCooldown,
		Arbitrage: c.ArbitrageCooldown,
	}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running pipeline service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn is required to run the pipeline")
	}
	defer closeStore()

	if err := store.Migrate(ctx); err != nil {
		return err
	}

	recorder := service.NewStatusRecorder(store, a.Logger)
	sched := scheduler.New(scheduler.Options{
		AlignToBucket: a.Config.Jobs.AlignToBucket,
		StartupDelay:  a.Config.Jobs.StartupDelay,
	}, recorder, a.Logger)

	stores := service.Stores{
		Prices:     store,
		Whales:     store,
		Sentiment:  store,
		Defi:       store,
		CrossChain: store,
		Sync:       store,
		Alerts:     store,
		Dashboard:  store,
	}
	fetchers := a.newFetchers(store)

	der := deriver.New(store, store, store, a.weights(), a.Logger)
	evaluator := alerting.NewEvaluator(store, store, store, store, a.newNotifier(), a.thresholds(), a.windows(), a.Logger)
	board := dashboard.NewAggregator(store, store, store, store, store, a.Logger)

	svc := service.New(a.Config, sched, stores, fetchers, der, evaluator, board, a.Logger)

	a.Logger.Info().Msg("starting pipeline service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("pipeline service stopped")
	return nil
}

// ExportOptions hold parameters for exporting historical price points.
type ExportOptions struct {
	Symbol    string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	From   time.Time
	To     time.Time
	DryRun bool
}
