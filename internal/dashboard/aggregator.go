package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"marketpulse/internal/storage"
)

// Aggregator rebuilds the denormalized per-symbol dashboard from the
// canonical tables. Every refresh replaces the table wholesale, so a
// symbol with no recent price point simply disappears from the view.
type Aggregator struct {
	prices    storage.PriceStore
	whales    storage.WhaleStore
	sentiment storage.SentimentStore
	alerts    storage.AlertStore
	board     storage.DashboardStore
	logger    zerolog.Logger
}

// NewAggregator wires the aggregator onto the canonical stores.
func NewAggregator(
	prices storage.PriceStore,
	whales storage.WhaleStore,
	sentiment storage.SentimentStore,
	alerts storage.AlertStore,
	board storage.DashboardStore,
	logger zerolog.Logger,
) *Aggregator {
	return &Aggregator{
		prices:    prices,
		whales:    whales,
		sentiment: sentiment,
		alerts:    alerts,
		board:     board,
		logger:    logger.With().Str("component", "dashboard").Logger(),
	}
}

// Refresh assembles one row per symbol holding a recent price point and
// swaps the dashboard table to the new set in a single transaction.
func (a *Aggregator) Refresh(ctx context.Context, now time.Time) error {
	points, err := a.prices.LatestPricePoints(ctx)
	if err != nil {
		return fmt.Errorf("load latest price points: %w", err)
	}

	since := now.Add(-24 * time.Hour)

	flows, err := a.whales.WhaleFlowsSince(ctx, since)
	if err != nil {
		return fmt.Errorf("load whale flows: %w", err)
	}

	lastAlerts, err := a.alerts.LatestAlertTimeBySymbol(ctx)
	if err != nil {
		return fmt.Errorf("load latest alert times: %w", err)
	}

	rows := make([]storage.DashboardRow, 0, len(points))
	for _, p := range points {
		row := storage.DashboardRow{
			Symbol:         p.Symbol,
			CurrentPrice:   p.Close,
			PriceChange24h: p.PriceChange24h,
			Volume24h:      p.Volume,
			MarketCap:      p.MarketCap,
			RefreshedAt:    now,
		}

		if flow, ok := flows[p.Symbol]; ok {
			row.WhaleTx24h = flow.TxCount
			row.WhaleVolume24h = flow.TotalUSD
		}

		avg, err := a.sentiment.AvgSentimentSince(ctx, p.Symbol, since)
		if err != nil {
			return fmt.Errorf("load sentiment for %s: %w", p.Symbol, err)
		}
		row.AvgSentiment = avg

		if ts, ok := lastAlerts[p.Symbol]; ok {
			t := ts
			row.LastAlertTime = &t
		}

		rows = append(rows, row)
	}

	if err := a.board.ReplaceDashboard(ctx, rows); err != nil {
		return fmt.Errorf("replace dashboard: %w", err)
	}

	a.logger.Info().Int("symbols", len(rows)).Msg("dashboard refreshed")
	return nil
}
