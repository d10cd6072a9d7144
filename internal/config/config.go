package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"marketpulse/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Deriver   DeriverConfig   `mapstructure:"deriver"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Retention RetentionConfig `mapstructure:"retention"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// JobsConfig holds per-job cadences. Every job runs on its own timer;
// a zero interval disables that job.
type JobsConfig struct {
	SyncPrices       time.Duration `mapstructure:"sync_prices"`
	SyncWhales       time.Duration `mapstructure:"sync_whales"`
	SyncOnchain      time.Duration `mapstructure:"sync_onchain"`
	SyncSentiment    time.Duration `mapstructure:"sync_sentiment"`
	SyncDefi         time.Duration `mapstructure:"sync_defi"`
	SyncCrossChain   time.Duration `mapstructure:"sync_crosschain"`
	DeriveMetrics    time.Duration `mapstructure:"derive_metrics"`
	EvaluateAlerts   time.Duration `mapstructure:"evaluate_alerts"`
	RefreshDashboard time.Duration `mapstructure:"refresh_dashboard"`
	Prune            time.Duration `mapstructure:"prune"`
	AlignToBucket    bool          `mapstructure:"align_to_bucket"`
	StartupDelay     time.Duration `mapstructure:"startup_delay"`
}

// SourcesConfig groups the per-source adapter settings.
type SourcesConfig struct {
	Symbols    []string         `mapstructure:"symbols"`
	Market     MarketConfig     `mapstructure:"market"`
	Whale      WhaleConfig      `mapstructure:"whale"`
	Chain      ChainConfig      `mapstructure:"chain"`
	Sentiment  SentimentConfig  `mapstructure:"sentiment"`
	Defi       DefiConfig       `mapstructure:"defi"`
	CrossChain CrossChainConfig `mapstructure:"crosschain"`
}

// MarketConfig captures market-quote API connectivity.
type MarketConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// WhaleConfig captures whale-transaction API connectivity.
type WhaleConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	MinValueUSD    float64       `mapstructure:"min_value_usd"`
	MaxResults     int           `mapstructure:"max_results"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ChainConfig covers on-chain whale watching via Ethereum RPC.
type ChainConfig struct {
	RPCURL            string        `mapstructure:"rpc_url"`
	Blockchain        string        `mapstructure:"blockchain"`
	NativeSymbol      string        `mapstructure:"native_symbol"`
	BlocksPerScan     int           `mapstructure:"blocks_per_scan"`
	MinValueUSD       float64       `mapstructure:"min_value_usd"`
	ExchangeAddresses []string      `mapstructure:"exchange_addresses"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
}

// SentimentConfig captures social-sentiment API connectivity.
type SentimentConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Platforms      []string      `mapstructure:"platforms"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// DefiConfig captures DeFi yield API connectivity.
type DefiConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	MaxPools       int           `mapstructure:"max_pools"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// CrossChainConfig captures bridge-quote API connectivity.
type CrossChainConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Tokens         []string      `mapstructure:"tokens"`
	TradeSizeUSD   float64       `mapstructure:"trade_size_usd"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// DeriverConfig exposes the anomaly-score policy. The weighting is
// configuration because the upstream definition came from a model
// output, not a fixed formula.
type DeriverConfig struct {
	PriceWeight  float64 `mapstructure:"price_weight"`
	VolumeWeight float64 `mapstructure:"volume_weight"`
	WhaleWeight  float64 `mapstructure:"whale_weight"`
	SocialWeight float64 `mapstructure:"social_weight"`

	PriceScalePct  float64 `mapstructure:"price_scale_pct"`
	VolumeScalePct float64 `mapstructure:"volume_scale_pct"`
	WhaleScaleTx   float64 `mapstructure:"whale_scale_tx"`
	SocialScale    float64 `mapstructure:"social_scale"`
}

// AlertingConfig defines alert thresholds, dedup windows, and routing.
type AlertingConfig struct {
	Enabled            bool           `mapstructure:"enabled"`
	AnomalyThreshold   float64        `mapstructure:"anomaly_threshold"`
	PriceChangePct     float64        `mapstructure:"price_change_pct"`
	WhaleProbability   float64        `mapstructure:"whale_probability"`
	ArbitrageProfitUSD float64        `mapstructure:"arbitrage_profit_usd"`
	ArbitrageSuccess   float64        `mapstructure:"arbitrage_success"`
	AnomalyCooldown    time.Duration  `mapstructure:"anomaly_cooldown"`
	PriceCooldown      time.Duration  `mapstructure:"price_cooldown"`
	WhaleCooldown      time.Duration  `mapstructure:"whale_cooldown"`
	ArbitrageCooldown  time.Duration  `mapstructure:"arbitrage_cooldown"`
	Telegram           TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes Telegram delivery parameters.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// RetentionConfig bounds how long canonical records are kept.
type RetentionConfig struct {
	Records time.Duration `mapstructure:"records"`
	Alerts  time.Duration `mapstructure:"alerts"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MARKETPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "marketpulse")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("jobs.sync_prices", "5m")
	v.SetDefault("jobs.sync_whales", "10m")
	v.SetDefault("jobs.sync_onchain", "0s")
	v.SetDefault("jobs.sync_sentiment", "15m")
	v.SetDefault("jobs.sync_defi", "30m")
	v.SetDefault("jobs.sync_crosschain", "15m")
	v.SetDefault("jobs.derive_metrics", "15m")
	v.SetDefault("jobs.evaluate_alerts", "5m")
	v.SetDefault("jobs.refresh_dashboard", "15m")
	v.SetDefault("jobs.prune", "24h")
	v.SetDefault("jobs.align_to_bucket", true)
	v.SetDefault("jobs.startup_delay", "0s")

	v.SetDefault("sources.symbols", []string{"BTC", "ETH", "SOL", "BNB", "XRP", "ADA"})

	v.SetDefault("sources.market.base_url", "https://pro-api.coinmarketcap.com/v1")
	v.SetDefault("sources.market.request_timeout", "10s")
	v.SetDefault("sources.market.user_agent", "marketpulse/1.0")

	v.SetDefault("sources.whale.base_url", "https://api.whale-alert.io/v1")
	v.SetDefault("sources.whale.min_value_usd", 1000000.0)
	v.SetDefault("sources.whale.max_results", 100)
	v.SetDefault("sources.whale.request_timeout", "10s")

	v.SetDefault("sources.chain.blockchain", "ethereum")
	v.SetDefault("sources.chain.native_symbol", "ETH")
	v.SetDefault("sources.chain.blocks_per_scan", 10)
	v.SetDefault("sources.chain.min_value_usd", 1000000.0)
	v.SetDefault("sources.chain.request_timeout", "15s")

	v.SetDefault("sources.sentiment.base_url", "https://api.social-metrics.example/v2")
	v.SetDefault("sources.sentiment.platforms", []string{"twitter", "reddit"})
	v.SetDefault("sources.sentiment.request_timeout", "10s")

	v.SetDefault("sources.defi.base_url", "https://yields.llama.fi")
	v.SetDefault("sources.defi.max_pools", 200)
	v.SetDefault("sources.defi.request_timeout", "15s")

	v.SetDefault("sources.crosschain.tokens", []string{"USDC", "USDT", "WETH"})
	v.SetDefault("sources.crosschain.trade_size_usd", 10000.0)
	v.SetDefault("sources.crosschain.request_timeout", "10s")

	v.SetDefault("deriver.price_weight", 0.40)
	v.SetDefault("deriver.volume_weight", 0.20)
	v.SetDefault("deriver.whale_weight", 0.25)
	v.SetDefault("deriver.social_weight", 0.15)
	v.SetDefault("deriver.price_scale_pct", 20.0)
	v.SetDefault("deriver.volume_scale_pct", 100.0)
	v.SetDefault("deriver.whale_scale_tx", 10.0)
	v.SetDefault("deriver.social_scale", 1000.0)

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.anomaly_threshold", 0.7)
	v.SetDefault("alerting.price_change_pct", 5.0)
	v.SetDefault("alerting.whale_probability", 0.7)
	v.SetDefault("alerting.arbitrage_profit_usd", 100.0)
	v.SetDefault("alerting.arbitrage_success", 0.8)
	v.SetDefault("alerting.anomaly_cooldown", "1h")
	v.SetDefault("alerting.price_cooldown", "1h")
	v.SetDefault("alerting.whale_cooldown", "2h")
	v.SetDefault("alerting.arbitrage_cooldown", "30m")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("retention.records", "8760h")
	v.SetDefault("retention.alerts", "2160h")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if len(c.Sources.Symbols) == 0 {
		return fmt.Errorf("sources.symbols must not be empty")
	}
	if c.Jobs.SyncPrices < 0 || c.Jobs.EvaluateAlerts < 0 {
		return fmt.Errorf("job intervals cannot be negative")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.AnomalyThreshold <= 0 || c.Alerting.AnomalyThreshold > 1 {
		return fmt.Errorf("alerting.anomaly_threshold must be in (0,1]")
	}
	if c.Alerting.WhaleProbability <= 0 || c.Alerting.WhaleProbability > 1 {
		return fmt.Errorf("alerting.whale_probability must be in (0,1]")
	}
	if c.Alerting.PriceChangePct < 0 {
		return fmt.Errorf("alerting.price_change_pct cannot be negative")
	}
	if sum := c.Deriver.PriceWeight + c.Deriver.VolumeWeight + c.Deriver.WhaleWeight + c.Deriver.SocialWeight; sum <= 0 {
		return fmt.Errorf("deriver weights must sum to a positive value")
	}
	if c.Retention.Records <= 0 {
		return fmt.Errorf("retention.records must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
