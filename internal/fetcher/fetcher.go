package fetcher

import (
	"context"

	"marketpulse/internal/storage"
)

// PriceFetcher retrieves normalized market quotes for the configured symbols.
type PriceFetcher interface {
	FetchPrices(ctx context.Context) ([]storage.PricePoint, error)
}

// TransactionFetcher retrieves normalized large transactions.
type TransactionFetcher interface {
	FetchTransactions(ctx context.Context) ([]storage.WhaleTransaction, error)
}

// SentimentSource retrieves per-platform social mention aggregates.
type SentimentSource interface {
	FetchSentiment(ctx context.Context) ([]storage.SentimentSample, error)
}

// PoolFetcher retrieves DeFi pool yield observations.
type PoolFetcher interface {
	FetchPools(ctx context.Context) ([]storage.DefiYieldSample, error)
}

// QuoteFetcher retrieves cross-chain bridge quotes.
type QuoteFetcher interface {
	FetchQuotes(ctx context.Context) ([]storage.CrossChainQuote, error)
}
