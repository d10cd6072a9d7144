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

const (
	marketQuotesPath     = "/cryptocurrency/quotes/latest"
	marketHistoricalPath = "/cryptocurrency/ohlcv/historical"
)

// MarketOptions parameterise the market-quote fetcher.
type MarketOptions struct {
	BaseURL   string
	APIKey    string
	Symbols   []string
	Timeout   time.Duration
	UserAgent string
}

// Market fetches latest quotes from a CoinMarketCap-compatible API.
type Market struct {
	opts    MarketOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewMarket constructs a market fetcher.
func NewMarket(opts MarketOptions, logger zerolog.Logger) *Market {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://pro-api.coinmarketcap.com/v1"
	}

	return &Market{
		opts:    opts,
		logger:  logger.With().Str("component", "market_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchPrices retrieves one quote per configured symbol. The request
// covers every symbol in a single call, which keeps request volume
// bounded regardless of symbol count.
func (m *Market) FetchPrices(ctx context.Context) ([]storage.PricePoint, error) {
	if len(m.opts.Symbols) == 0 {
		return nil, errors.New("no symbols configured")
	}

	endpoint := m.baseURL + marketQuotesPath + "?symbol=" + url.QueryEscape(strings.Join(m.opts.Symbols, ","))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if m.opts.APIKey != "" {
		req.Header.Set("X-CMC_PRO_API_KEY", m.opts.APIKey)
	}
	if ua := strings.TrimSpace(m.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, unavailable("market quotes", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, unavailable("market quotes", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("market quotes", resp.StatusCode, payload)
	}

	var body quotesResponse
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, malformed("market quotes", err)
	}

	points := make([]storage.PricePoint, 0, len(body.Data))
	for symbol, entry := range body.Data {
		quote, ok := entry.Quote["USD"]
		if !ok {
			m.logger.Warn().Str("symbol", symbol).Msg("quote missing USD leg")
			continue
		}

		ts := quote.LastUpdated
		if ts.IsZero() {
			ts = time.Now().UTC()
		}

		price := decimal.NewFromFloat(quote.Price)
		points = append(points, storage.PricePoint{
			Timestamp:      ts.UTC().Truncate(time.Minute),
			Symbol:         symbol,
			Open:           price,
			High:           price,
			Low:            price,
			Close:          price,
			Volume:         decimal.NewFromFloat(quote.Volume24h),
			MarketCap:      decimal.NewFromFloat(quote.MarketCap),
			PriceChange24h: quote.PercentChange24h,
		})
	}

	if len(points) == 0 {
		return nil, malformed("market quotes", errors.New("no usable quotes in response"))
	}

	return points, nil
}

// FetchHistorical retrieves hourly OHLCV candles for one symbol over a
// closed time range, for backfilling gaps in the price history.
func (m *Market) FetchHistorical(ctx context.Context, symbol string, from, to time.Time) ([]storage.PricePoint, error) {
	if symbol == "" {
		return nil, errors.New("symbol is required")
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("time_start", from.UTC().Format(time.RFC3339))
	params.Set("time_end", to.UTC().Format(time.RFC3339))
	params.Set("interval", "1h")

	endpoint := m.baseURL + marketHistoricalPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if m.opts.APIKey != "" {
		req.Header.Set("X-CMC_PRO_API_KEY", m.opts.APIKey)
	}
	if ua := strings.TrimSpace(m.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, unavailable("market historical", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, unavailable("market historical", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("market historical", resp.StatusCode, payload)
	}

	var body historicalResponse
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, malformed("market historical", err)
	}

	points := make([]storage.PricePoint, 0, len(body.Data.Quotes))
	for _, candle := range body.Data.Quotes {
		quote, ok := candle.Quote["USD"]
		if !ok {
			continue
		}
		points = append(points, storage.PricePoint{
			Timestamp: candle.TimeOpen.UTC().Truncate(time.Minute),
			Symbol:    symbol,
			Open:      decimal.NewFromFloat(quote.Open),
			High:      decimal.NewFromFloat(quote.High),
			Low:       decimal.NewFromFloat(quote.Low),
			Close:     decimal.NewFromFloat(quote.Close),
			Volume:    decimal.NewFromFloat(quote.Volume),
			MarketCap: decimal.NewFromFloat(quote.MarketCap),
		})
	}

	return points, nil
}

type quotesResponse struct {
	Data map[string]struct {
		Quote map[string]struct {
			Price            float64   `json:"price"`
			Volume24h        float64   `json:"volume_24h"`
			MarketCap        float64   `json:"market_cap"`
			PercentChange24h float64   `json:"percent_change_24h"`
			LastUpdated      time.Time `json:"last_updated"`
		} `json:"quote"`
	} `json:"data"`
}

type historicalResponse struct {
	Data struct {
		Quotes []struct {
			TimeOpen time.Time `json:"time_open"`
			Quote    map[string]struct {
				Open      float64 `json:"open"`
				High      float64 `json:"high"`
				Low       float64 `json:"low"`
				Close     float64 `json:"close"`
				Volume    float64 `json:"volume"`
				MarketCap float64 `json:"market_cap"`
			} `json:"quote"`
		} `json:"quotes"`
	} `json:"data"`
}

var _ PriceFetcher = (*Market)(nil)
