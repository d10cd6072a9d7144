package fetcher

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"marketpulse/internal/storage"
)

const defiPoolsPath = "/pools"

// DefiOptions parameterise the DeFi yield fetcher.
type DefiOptions struct {
	BaseURL  string
	MaxPools int
	Timeout  time.Duration
}

// Defi fetches pool yields from a DefiLlama-compatible API.
type Defi struct {
	opts    DefiOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewDefi constructs a DeFi yield fetcher.
func NewDefi(opts DefiOptions, logger zerolog.Logger) *Defi {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://yields.llama.fi"
	}

	return &Defi{
		opts:    opts,
		logger:  logger.With().Str("component", "defi_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchPools retrieves the top pools by TVL, bounded by MaxPools.
func (d *Defi) FetchPools(ctx context.Context) ([]storage.DefiYieldSample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+defiPoolsPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, unavailable("defi pools", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, unavailable("defi pools", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus("defi pools", resp.StatusCode, payload)
	}

	var body struct {
		Data []struct {
			Pool    string  `json:"pool"`
			Project string  `json:"project"`
			Chain   string  `json:"chain"`
			APY     float64 `json:"apy"`
			TVLUSD  float64 `json:"tvlUsd"`
			ILRisk  string  `json:"ilRisk"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, malformed("defi pools", err)
	}

	limit := d.opts.MaxPools
	if limit <= 0 || limit > len(body.Data) {
		limit = len(body.Data)
	}

	now := time.Now().UTC().Truncate(time.Minute)
	samples := make([]storage.DefiYieldSample, 0, limit)
	for _, raw := range body.Data[:limit] {
		if raw.Pool == "" {
			continue
		}
		samples = append(samples, storage.DefiYieldSample{
			Timestamp: now,
			Protocol:  raw.Project,
			Chain:     raw.Chain,
			Pool:      raw.Pool,
			APY:       raw.APY,
			TVLUSD:    decimal.NewFromFloat(raw.TVLUSD),
			RiskScore: poolRiskScore(raw.APY, raw.ILRisk),
		})
	}

	return samples, nil
}

// poolRiskScore is a coarse 0-1 heuristic: outsized APY and
// impermanent-loss exposure both push the score up.
func poolRiskScore(apy float64, ilRisk string) float64 {
	score := apy / 200
	if score > 0.7 {
		score = 0.7
	}
	if strings.EqualFold(ilRisk, "yes") {
		score += 0.3
	}
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

var _ PoolFetcher = (*Defi)(nil)
