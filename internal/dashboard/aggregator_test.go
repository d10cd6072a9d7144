package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketpulse/internal/storage"
)

type fakePriceStore struct {
	latest []storage.PricePoint
}

func (f *fakePriceStore) UpsertPricePoints(context.Context, []storage.PricePoint) (int64, error) {
	return 0, nil
}
func (f *fakePriceStore) ListPricePoints(context.Context, string, time.Time, time.Time) ([]storage.PricePoint, error) {
	return nil, nil
}
func (f *fakePriceStore) RecentPricePoints(context.Context, string, int) ([]storage.PricePoint, error) {
	return nil, nil
}
func (f *fakePriceStore) LatestPricePoints(context.Context) ([]storage.PricePoint, error) {
	return f.latest, nil
}
func (f *fakePriceStore) UpdateDerivedMetrics(context.Context, time.Time, string, *float64, *float64, *float64) error {
	return nil
}
func (f *fakePriceStore) DeletePricePointsBefore(context.Context, time.Time) error { return nil }

type fakeWhaleStore struct {
	flows map[string]storage.WhaleFlow
}

func (f *fakeWhaleStore) InsertWhaleTransactions(context.Context, []storage.WhaleTransaction) (int64, error) {
	return 0, nil
}
func (f *fakeWhaleStore) WhaleFlowSince(context.Context, string, time.Time) (storage.WhaleFlow, error) {
	return storage.WhaleFlow{}, nil
}
func (f *fakeWhaleStore) WhaleFlowsSince(context.Context, time.Time) (map[string]storage.WhaleFlow, error) {
	return f.flows, nil
}
func (f *fakeWhaleStore) DeleteWhaleTransactionsBefore(context.Context, time.Time) error { return nil }

type fakeSentimentStore struct {
	avg map[string]*float64
}

func (f *fakeSentimentStore) InsertSentimentSamples(context.Context, []storage.SentimentSample) (int64, error) {
	return 0, nil
}
func (f *fakeSentimentStore) AvgSentimentSince(_ context.Context, symbol string, _ time.Time) (*float64, error) {
	return f.avg[symbol], nil
}
func (f *fakeSentimentStore) MentionVolumeSince(context.Context, string, time.Time) (int64, error) {
	return 0, nil
}
func (f *fakeSentimentStore) DeleteSentimentSamplesBefore(context.Context, time.Time) error {
	return nil
}

type fakeAlertStore struct {
	lastBySymbol map[string]time.Time
}

func (f *fakeAlertStore) InsertAlert(_ context.Context, alert storage.Alert) (storage.Alert, error) {
	return alert, nil
}
func (f *fakeAlertStore) ListRecentAlerts(context.Context, int) ([]storage.Alert, error) {
	return nil, nil
}
func (f *fakeAlertStore) ListUnacknowledgedAlerts(context.Context, int) ([]storage.Alert, error) {
	return nil, nil
}
func (f *fakeAlertStore) AcknowledgeAlert(context.Context, int64) error { return nil }
func (f *fakeAlertStore) LatestAlertsPerKey(context.Context, time.Time) ([]storage.Alert, error) {
	return nil, nil
}
func (f *fakeAlertStore) LatestAlertTimeBySymbol(context.Context) (map[string]time.Time, error) {
	return f.lastBySymbol, nil
}
func (f *fakeAlertStore) DeleteAlertsBefore(context.Context, time.Time) error { return nil }

type fakeDashboardStore struct {
	replaced   [][]storage.DashboardRow
	replaceErr error
}

func (f *fakeDashboardStore) ReplaceDashboard(_ context.Context, rows []storage.DashboardRow) error {
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.replaced = append(f.replaced, rows)
	return nil
}
func (f *fakeDashboardStore) ListDashboard(context.Context) ([]storage.DashboardRow, error) {
	if len(f.replaced) == 0 {
		return nil, nil
	}
	return f.replaced[len(f.replaced)-1], nil
}

func point(symbol string, close int64, change float64) storage.PricePoint {
	return storage.PricePoint{
		Timestamp:      time.Now().Truncate(time.Minute),
		Symbol:         symbol,
		Close:          decimal.NewFromInt(close),
		Volume:         decimal.NewFromInt(close * 10),
		MarketCap:      decimal.NewFromInt(close * 1000),
		PriceChange24h: change,
	}
}

func TestRefreshJoinsAllSources(t *testing.T) {
	now := time.Now()
	alertTime := now.Add(-2 * time.Hour)
	sentiment := 0.42

	board := &fakeDashboardStore{}
	agg := NewAggregator(
		&fakePriceStore{latest: []storage.PricePoint{point("BTC", 50000, 3.1), point("ETH", 3000, -1.2)}},
		&fakeWhaleStore{flows: map[string]storage.WhaleFlow{
			"BTC": {Symbol: "BTC", TxCount: 7, TotalUSD: decimal.NewFromInt(42_000_000)},
		}},
		&fakeSentimentStore{avg: map[string]*float64{"BTC": &sentiment}},
		&fakeAlertStore{lastBySymbol: map[string]time.Time{"BTC": alertTime}},
		board,
		zerolog.Nop(),
	)

	require.NoError(t, agg.Refresh(context.Background(), now))
	require.Len(t, board.replaced, 1)

	rows := board.replaced[0]
	require.Len(t, rows, 2)

	byTicker := make(map[string]storage.DashboardRow)
	for _, r := range rows {
		byTicker[r.Symbol] = r
	}

	btc := byTicker["BTC"]
	assert.Equal(t, int64(7), btc.WhaleTx24h)
	assert.True(t, btc.WhaleVolume24h.Equal(decimal.NewFromInt(42_000_000)))
	require.NotNil(t, btc.AvgSentiment)
	assert.InDelta(t, 0.42, *btc.AvgSentiment, 1e-9)
	require.NotNil(t, btc.LastAlertTime)
	assert.True(t, btc.LastAlertTime.Equal(alertTime))
	assert.True(t, btc.RefreshedAt.Equal(now))

	// ETH has no whale, sentiment, or alert data; the row still exists
	// with zero values and nil optionals.
	eth := byTicker["ETH"]
	assert.Zero(t, eth.WhaleTx24h)
	assert.Nil(t, eth.AvgSentiment)
	assert.Nil(t, eth.LastAlertTime)
}

func TestRefreshReplacesPriorRows(t *testing.T) {
	board := &fakeDashboardStore{}
	prices := &fakePriceStore{latest: []storage.PricePoint{point("BTC", 50000, 0), point("DOGE", 1, 0)}}
	agg := NewAggregator(prices, &fakeWhaleStore{}, &fakeSentimentStore{}, &fakeAlertStore{}, board, zerolog.Nop())

	require.NoError(t, agg.Refresh(context.Background(), time.Now()))

	// DOGE drops out of the latest set; the next refresh must not carry
	// the stale row forward.
	prices.latest = []storage.PricePoint{point("BTC", 51000, 2)}
	require.NoError(t, agg.Refresh(context.Background(), time.Now()))

	current, err := board.ListDashboard(context.Background())
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, "BTC", current[0].Symbol)
}

func TestRefreshPropagatesReplaceFailure(t *testing.T) {
	board := &fakeDashboardStore{replaceErr: errors.New("tx aborted")}
	agg := NewAggregator(
		&fakePriceStore{latest: []storage.PricePoint{point("BTC", 50000, 0)}},
		&fakeWhaleStore{},
		&fakeSentimentStore{},
		&fakeAlertStore{},
		board,
		zerolog.Nop(),
	)

	err := agg.Refresh(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "replace dashboard")
}
