package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketpulse/internal/fetcher"
	"marketpulse/internal/storage"
)

// backfillChunk bounds a single historical request so very wide ranges
// stay within upstream response limits.
const backfillChunk = 7 * 24 * time.Hour

// Backfill pulls historical hourly candles for every configured symbol
// over [from, to) and upserts them. Re-running over an already-filled
// range is a no-op thanks to the upsert semantics.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	from := opts.From.UTC().Truncate(time.Hour)
	to := opts.To.UTC()
	if !from.Before(to) {
		return errors.New("backfill range is empty; check --from/--to")
	}

	market := fetcher.NewMarket(fetcher.MarketOptions{
		BaseURL:   a.Config.Sources.Market.BaseURL,
		APIKey:    a.Config.Sources.Market.APIKey,
		Symbols:   a.Config.Sources.Symbols,
		Timeout:   a.Config.Sources.Market.RequestTimeout,
		UserAgent: a.Config.Sources.Market.UserAgent,
	}, a.Logger)

	var upsert func(ctx context.Context, points []storage.PricePoint) (int64, error)
	if opts.DryRun {
		a.Logger.Warn().Msg("backfill dry-run: nothing will be written")
		upsert = func(_ context.Context, points []storage.PricePoint) (int64, error) {
			return int64(len(points)), nil
		}
	} else {
		store, closeStore, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("database.dsn not configured; cannot backfill")
		}
		defer closeStore()
		upsert = store.UpsertPricePoints
	}

	var total int64
	var failed int
	for _, symbol := range a.Config.Sources.Symbols {
		for chunkStart := from; chunkStart.Before(to); chunkStart = chunkStart.Add(backfillChunk) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			chunkEnd := chunkStart.Add(backfillChunk)
			if chunkEnd.After(to) {
				chunkEnd = to
			}

			points, err := market.FetchHistorical(ctx, symbol, chunkStart, chunkEnd)
			if err != nil {
				failed++
				a.Logger.Error().Err(err).
					Str("symbol", symbol).
					Time("chunk_start", chunkStart).
					Msg("backfill chunk failed")
				continue
			}
			if len(points) == 0 {
				continue
			}

			written, err := upsert(ctx, points)
			if err != nil {
				failed++
				a.Logger.Error().Err(err).
					Str("symbol", symbol).
					Time("chunk_start", chunkStart).
					Msg("backfill upsert failed")
				continue
			}
			total += written
		}
	}

	a.Logger.Info().Int64("records", total).Int("failed_chunks", failed).Msg("backfill complete")
	if failed > 0 {
		return fmt.Errorf("%d backfill chunk(s) failed; see logs", failed)
	}
	return nil
}
