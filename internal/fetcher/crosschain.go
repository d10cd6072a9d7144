package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"marketpulse/internal/storage"
)

const crossChainQuotesPath = "/quotes"

// CrossChainOptions parameterise the bridge-quote fetcher.
type CrossChainOptions struct {
	BaseURL      string
	Tokens       []string
	TradeSizeUSD float64
	Timeout      time.Duration
}

// CrossChain fetches per-token price/liquidity pairs across chains and
// derives the arbitrage economics for each quote.
type CrossChain struct {
	opts    CrossChainOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewCrossChain constructs a bridge-quote fetcher.
func NewCrossChain(opts CrossChainOptions, logger zerolog.Logger) *CrossChain {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &CrossChain{
		opts:    opts,
		logger:  logger.With().Str("component", "crosschain_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

// FetchQuotes retrieves quotes for all configured tokens in one request.
func (c *CrossChain) FetchQuotes(ctx context.Context) ([]storage.CrossChainQuote, error) {
	if c.baseURL == "" {
		return nil, errors.New("crosschain base url not configured")
	}
	if len(c.opts.Tokens) == 0 {
		return nil, errors.New("no tokens configured")
	}

	params := url.Values{}
	params.Set("tokens", strings.Join(c.opts.Tokens, ","))

	endpoint := c.baseURL + crossChainQuotesPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, unavailable("crosschain quotes", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, unavailable("crosschain quotes", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("crosschain quotes", resp.StatusCode, payload)
	}

	var body struct {
		Quotes []struct {
			Token           string  `json:"token"`
			SourceChain     string  `json:"source_chain"`
			TargetChain     string  `json:"target_chain"`
			SourcePrice     float64 `json:"source_price"`
			TargetPrice     float64 `json:"target_price"`
			SourceLiquidity float64 `json:"source_liquidity"`
			TargetLiquidity float64 `json:"target_liquidity"`
			BridgeFeeUSD    float64 `json:"bridge_fee_usd"`
			GasCostUSD      float64 `json:"gas_cost_usd"`
		} `json:"quotes"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, malformed("crosschain quotes", err)
	}

	now := time.Now().UTC()
	quotes := make([]storage.CrossChainQuote, 0, len(body.Quotes))
	for _, raw := range body.Quotes {
		if raw.SourcePrice <= 0 || raw.TargetPrice <= 0 {
			continue
		}

		quote := storage.CrossChainQuote{
			Timestamp:       now,
			Token:           strings.ToUpper(raw.Token),
			SourceChain:     raw.SourceChain,
			TargetChain:     raw.TargetChain,
			SourcePrice:     decimal.NewFromFloat(raw.SourcePrice),
			TargetPrice:     decimal.NewFromFloat(raw.TargetPrice),
			SourceLiquidity: decimal.NewFromFloat(raw.SourceLiquidity),
			TargetLiquidity: decimal.NewFromFloat(raw.TargetLiquidity),
			BridgeFeeUSD:    decimal.NewFromFloat(raw.BridgeFeeUSD),
			GasCostUSD:      decimal.NewFromFloat(raw.GasCostUSD),
		}
		quote.ArbitrageProfitUSD = arbitrageProfit(quote, c.tradeSize())
		quote.SuccessProbability = successProbability(quote, c.tradeSize())
		quotes = append(quotes, quote)
	}

	return quotes, nil
}

func (c *CrossChain) tradeSize() decimal.Decimal {
	if c.opts.TradeSizeUSD > 0 {
		return decimal.NewFromFloat(c.opts.TradeSizeUSD)
	}
	return decimal.NewFromInt(10000)
}

// arbitrageProfit is the net USD outcome of buying tradeUSD on the
// source chain, bridging, and selling on the target chain.
func arbitrageProfit(q storage.CrossChainQuote, tradeUSD decimal.Decimal) decimal.Decimal {
	size := boundedTradeSize(q, tradeUSD)
	if size.IsZero() {
		return decimal.Zero
	}

	units := size.Div(q.SourcePrice)
	gross := q.TargetPrice.Sub(q.SourcePrice).Mul(units)
	return gross.Sub(q.BridgeFeeUSD).Sub(q.GasCostUSD)
}

// successProbability grows with liquidity headroom over the trade
// size: shallow pools make the quoted prices unlikely to survive the
// bridge latency.
func successProbability(q storage.CrossChainQuote, tradeUSD decimal.Decimal) float64 {
	size := boundedTradeSize(q, tradeUSD)
	if size.IsZero() {
		return 0
	}

	minLiquidity := q.SourceLiquidity
	if q.TargetLiquidity.LessThan(minLiquidity) {
		minLiquidity = q.TargetLiquidity
	}

	headroom, _ := minLiquidity.Div(size).Float64()
	p := headroom / (headroom + 10)
	if p > 0.99 {
		p = 0.99
	}
	return p
}

func boundedTradeSize(q storage.CrossChainQuote, tradeUSD decimal.Decimal) decimal.Decimal {
	size := tradeUSD
	if q.SourceLiquidity.LessThan(size) {
		size = q.SourceLiquidity
	}
	if q.TargetLiquidity.LessThan(size) {
		size = q.TargetLiquidity
	}
	if size.Sign() <= 0 {
		return decimal.Zero
	}
	return size
}

var _ QuoteFetcher = (*CrossChain)(nil)
