package deriver

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"marketpulse/internal/storage"
)

// Deriver computes windowed metrics from committed canonical records.
// It holds no per-symbol state: every run re-derives from ordered
// store queries, so it is restartable and safe to run concurrently
// with in-flight syncs.
type Deriver struct {
	prices    storage.PriceStore
	whales    storage.WhaleStore
	sentiment storage.SentimentStore
	weights   Weights
	logger    zerolog.Logger
}

// New constructs a Deriver.
func New(prices storage.PriceStore, whales storage.WhaleStore, sentiment storage.SentimentStore, weights Weights, logger zerolog.Logger) *Deriver {
	return &Deriver{
		prices:    prices,
		whales:    whales,
		sentiment: sentiment,
		weights:   weights,
		logger:    logger.With().Str("component", "deriver").Logger(),
	}
}

// DeriveAll recomputes derived metrics for every symbol. A failing
// symbol is logged and skipped; the others still derive.
func (d *Deriver) DeriveAll(ctx context.Context, symbols []string, now time.Time) error {
	var failed int
	for _, symbol := range symbols {
		if err := d.deriveSymbol(ctx, symbol, now); err != nil {
			failed++
			d.logger.Error().Err(err).Str("symbol", symbol).Msg("derivation failed")
		}
	}
	if failed > 0 {
		return fmt.Errorf("derivation failed for %d of %d symbols", failed, len(symbols))
	}
	return nil
}

func (d *Deriver) deriveSymbol(ctx context.Context, symbol string, now time.Time) error {
	points, err := d.prices.RecentPricePoints(ctx, symbol, 2)
	if err != nil {
		return fmt.Errorf("load recent points: %w", err)
	}
	if len(points) == 0 {
		return nil
	}

	latest := points[0]

	var priceChange, volumeChange *float64
	if len(points) > 1 {
		previous := points[1]
		priceChange = ChangePct(latest.Close, previous.Close)
		volumeChange = ChangePct(latest.Volume, previous.Volume)
	}

	since := now.Add(-24 * time.Hour)
	flow, err := d.whales.WhaleFlowSince(ctx, symbol, since)
	if err != nil {
		return fmt.Errorf("load whale flow: %w", err)
	}

	mentions, err := d.sentiment.MentionVolumeSince(ctx, symbol, since)
	if err != nil {
		return fmt.Errorf("load mention volume: %w", err)
	}

	score := AnomalyScore(AnomalyInputs{
		PriceChange1h:  priceChange,
		VolumeChange1h: volumeChange,
		WhaleTx24h:     flow.TxCount,
		Mentions24h:    mentions,
	}, d.weights)

	if err := d.prices.UpdateDerivedMetrics(ctx, latest.Timestamp, symbol, priceChange, volumeChange, &score); err != nil {
		return fmt.Errorf("store derived metrics: %w", err)
	}

	d.logger.Debug().
		Str("symbol", symbol).
		Float64("anomaly_score", score).
		Msg("derived metrics updated")
	return nil
}
