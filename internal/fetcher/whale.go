package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"marketpulse/internal/storage"
)

const whaleTransactionsPath = "/transactions"

// WhaleOptions parameterise the whale-transaction fetcher.
type WhaleOptions struct {
	BaseURL     string
	APIKey      string
	MinValueUSD float64
	MaxResults  int
	Timeout     time.Duration
}

// Whale fetches large transactions from a Whale-Alert-compatible feed.
// The pagination cursor carries over between invocations so each tick
// resumes where the previous one stopped.
type Whale struct {
	opts    WhaleOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string

	mu     sync.Mutex
	cursor string
}

// NewWhale constructs a whale-transaction fetcher.
func NewWhale(opts WhaleOptions, logger zerolog.Logger) *Whale {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.whale-alert.io/v1"
	}

	return &Whale{
		opts:    opts,
		logger:  logger.With().Str("component", "whale_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchTransactions retrieves at most MaxResults transactions above the
// configured USD floor. One request per invocation.
func (w *Whale) FetchTransactions(ctx context.Context) ([]storage.WhaleTransaction, error) {
	params := url.Values{}
	if w.opts.APIKey != "" {
		params.Set("api_key", w.opts.APIKey)
	}
	params.Set("min_value", fmt.Sprintf("%.0f", w.opts.MinValueUSD))
	limit := w.opts.MaxResults
	if limit <= 0 {
		limit = 100
	}
	params.Set("limit", fmt.Sprintf("%d", limit))

	w.mu.Lock()
	if w.cursor != "" {
		params.Set("cursor", w.cursor)
	} else {
		params.Set("start", fmt.Sprintf("%d", time.Now().Add(-time.Hour).Unix()))
	}
	w.mu.Unlock()

	endpoint := w.baseURL + whaleTransactionsPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, unavailable("whale transactions", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, unavailable("whale transactions", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("whale transactions", resp.StatusCode, payload)
	}

	var body whaleResponse
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, malformed("whale transactions", err)
	}

	txs := make([]storage.WhaleTransaction, 0, len(body.Transactions))
	for _, raw := range body.Transactions {
		if raw.Hash == "" {
			continue
		}
		txs = append(txs, storage.WhaleTransaction{
			Timestamp:       time.Unix(raw.Timestamp, 0).UTC(),
			Blockchain:      raw.Blockchain,
			TxHash:          raw.Hash,
			FromAddress:     raw.From.Address,
			ToAddress:       raw.To.Address,
			Symbol:          strings.ToUpper(raw.Symbol),
			Amount:          decimal.NewFromFloat(raw.Amount),
			AmountUSD:       decimal.NewFromFloat(raw.AmountUSD),
			FromType:        ownerType(raw.From.OwnerType),
			ToType:          ownerType(raw.To.OwnerType),
			TransactionType: classifyFlow(raw.From.OwnerType, raw.To.OwnerType),
		})
	}

	if body.Cursor != "" {
		w.mu.Lock()
		w.cursor = body.Cursor
		w.mu.Unlock()
	}

	return txs, nil
}

func ownerType(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

// classifyFlow tags a transfer by which side touches an exchange.
// Exchange inflows precede selling pressure, outflows accumulation.
func classifyFlow(fromType, toType string) string {
	fromExchange := fromType == "exchange"
	toExchange := toType == "exchange"

	switch {
	case fromExchange && toExchange:
		return "exchange_to_exchange"
	case toExchange:
		return "exchange_inflow"
	case fromExchange:
		return "exchange_outflow"
	default:
		return "wallet_to_wallet"
	}
}

type whaleResponse struct {
	Result       string    `json:"result"`
	Cursor       string    `json:"cursor"`
	Count        int       `json:"count"`
	Transactions []whaleTx `json:"transactions"`
}

type whaleTx struct {
	Blockchain string    `json:"blockchain"`
	Symbol     string    `json:"symbol"`
	Hash       string    `json:"hash"`
	Amount     float64   `json:"amount"`
	AmountUSD  float64   `json:"amount_usd"`
	Timestamp  int64     `json:"timestamp"`
	From       whaleAddr `json:"from"`
	To         whaleAddr `json:"to"`
}

type whaleAddr struct {
	Address   string `json:"address"`
	Owner     string `json:"owner"`
	OwnerType string `json:"owner_type"`
}

var _ TransactionFetcher = (*Whale)(nil)
