package storage

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Sync status values written to the sync_status table.
const (
	SyncOK       = "success"
	SyncError    = "error"
	SyncDegraded = "degraded"
)

// PricePoint is one normalized market observation for a symbol.
// Unique per (Timestamp, Symbol); re-synced rows overwrite in place.
// The three pointer fields are derived after the fact and stay nil
// until the deriver has a preceding point to compare against.
type PricePoint struct {
	Timestamp      time.Time
	Symbol         string
	Open           decimal.Decimal
	High           decimal.Decimal
	Low            decimal.Decimal
	Close          decimal.Decimal
	Volume         decimal.Decimal
	MarketCap      decimal.Decimal
	PriceChange24h float64

	PriceChange1h  *float64
	VolumeChange1h *float64
	AnomalyScore   *float64
}

// WhaleTransaction is a single observed large transfer, deduplicated
// globally by TxHash.
type WhaleTransaction struct {
	Timestamp       time.Time
	Blockchain      string
	TxHash          string
	FromAddress     string
	ToAddress       string
	Symbol          string
	Amount          decimal.Decimal
	AmountUSD       decimal.Decimal
	FromType        string
	ToType          string
	TransactionType string
}

// SentimentSample is an append-only per-platform mention aggregate.
type SentimentSample struct {
	Timestamp        time.Time
	Platform         string
	Symbol           string
	SentimentScore   float64
	MentionCount     int64
	PositiveMentions int64
	NegativeMentions int64
	NeutralMentions  int64
}

// DefiYieldSample is an append-only pool yield observation.
type DefiYieldSample struct {
	Timestamp time.Time
	Protocol  string
	Chain     string
	Pool      string
	APY       float64
	TVLUSD    decimal.Decimal
	RiskScore float64
}

// CrossChainQuote captures one bridge-quote comparison between two
// chains for the same token.
type CrossChainQuote struct {
	ID                 int64
	Timestamp          time.Time
	Token              string
	SourceChain        string
	TargetChain        string
	SourcePrice        decimal.Decimal
	TargetPrice        decimal.Decimal
	SourceLiquidity    decimal.Decimal
	TargetLiquidity    decimal.Decimal
	BridgeFeeUSD       decimal.Decimal
	GasCostUSD         decimal.Decimal
	ArbitrageProfitUSD decimal.Decimal
	SuccessProbability float64
}

// SyncStatus is the liveness row for one source handler. LastSync only
// advances on success, so staleness is always detectable.
type SyncStatus struct {
	HandlerName   string
	LastSync      *time.Time
	RecordsSynced int64
	Status        string
	ErrorMessage  *string
	UpdatedAt     time.Time
}

// Alert is an emitted, severity-tagged pipeline alert. Immutable after
// creation except for the acknowledged flag.
type Alert struct {
	ID           int64
	AlertType    string
	Symbol       string
	Severity     string
	Message      string
	Data         json.RawMessage
	CreatedAt    time.Time
	Acknowledged bool
}

// DashboardRow is the denormalized per-symbol summary. The whole table
// is replaced on every refresh.
type DashboardRow struct {
	Symbol         string
	CurrentPrice   decimal.Decimal
	PriceChange24h float64
	Volume24h      decimal.Decimal
	MarketCap      decimal.Decimal
	WhaleTx24h     int64
	WhaleVolume24h decimal.Decimal
	AvgSentiment   *float64
	LastAlertTime  *time.Time
	RefreshedAt    time.Time
}

// WhaleFlow is the 24h exchange-flow rollup for one symbol.
type WhaleFlow struct {
	Symbol     string
	TxCount    int64
	TotalUSD   decimal.Decimal
	InflowUSD  decimal.Decimal
	OutflowUSD decimal.Decimal
}
