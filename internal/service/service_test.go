package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketpulse/internal/config"
	"marketpulse/internal/storage"
)

type fakeSyncStatus struct {
	successes map[string]int64
	lastSync  map[string]time.Time
	errors    map[string]string
	degraded  map[string]bool
}

func newFakeSyncStatus() *fakeSyncStatus {
	return &fakeSyncStatus{
		successes: make(map[string]int64),
		lastSync:  make(map[string]time.Time),
		errors:    make(map[string]string),
		degraded:  make(map[string]bool),
	}
}

// Mirrors the sync_status table: only a success moves the last_sync
// watermark, an error row leaves it where it was.
func (f *fakeSyncStatus) MarkSyncSuccess(_ context.Context, handler string, at time.Time, records int64) error {
	f.successes[handler] = records
	f.lastSync[handler] = at
	return nil
}
func (f *fakeSyncStatus) MarkSyncError(_ context.Context, handler string, msg string) error {
	f.errors[handler] = msg
	return nil
}
func (f *fakeSyncStatus) MarkSyncDegraded(_ context.Context, handler string) error {
	f.degraded[handler] = true
	return nil
}
func (f *fakeSyncStatus) ListSyncStatus(context.Context) ([]storage.SyncStatus, error) {
	return nil, nil
}

type fakePrices struct {
	points    []storage.PricePoint
	fetchErr  error
	upserted  int64
	deleteErr error
	deleted   []time.Time
}

func (f *fakePrices) FetchPrices(context.Context) ([]storage.PricePoint, error) {
	return f.points, f.fetchErr
}
func (f *fakePrices) UpsertPricePoints(_ context.Context, points []storage.PricePoint) (int64, error) {
	f.upserted += int64(len(points))
	return int64(len(points)), nil
}
func (f *fakePrices) ListPricePoints(context.Context, string, time.Time, time.Time) ([]storage.PricePoint, error) {
	return nil, nil
}
func (f *fakePrices) RecentPricePoints(context.Context, string, int) ([]storage.PricePoint, error) {
	return nil, nil
}
func (f *fakePrices) LatestPricePoints(context.Context) ([]storage.PricePoint, error) {
	return nil, nil
}
func (f *fakePrices) UpdateDerivedMetrics(context.Context, time.Time, string, *float64, *float64, *float64) error {
	return nil
}
func (f *fakePrices) DeletePricePointsBefore(_ context.Context, cutoff time.Time) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, cutoff)
	return nil
}

type fakeWhales struct{ deleted bool }

func (f *fakeWhales) InsertWhaleTransactions(context.Context, []storage.WhaleTransaction) (int64, error) {
	return 0, nil
}
func (f *fakeWhales) WhaleFlowSince(context.Context, string, time.Time) (storage.WhaleFlow, error) {
	return storage.WhaleFlow{}, nil
}
func (f *fakeWhales) WhaleFlowsSince(context.Context, time.Time) (map[string]storage.WhaleFlow, error) {
	return nil, nil
}
func (f *fakeWhales) DeleteWhaleTransactionsBefore(context.Context, time.Time) error {
	f.deleted = true
	return nil
}

type fakeSentiment struct{ deleted bool }

func (f *fakeSentiment) InsertSentimentSamples(context.Context, []storage.SentimentSample) (int64, error) {
	return 0, nil
}
func (f *fakeSentiment) AvgSentimentSince(context.Context, string, time.Time) (*float64, error) {
	return nil, nil
}
func (f *fakeSentiment) MentionVolumeSince(context.Context, string, time.Time) (int64, error) {
	return 0, nil
}
func (f *fakeSentiment) DeleteSentimentSamplesBefore(context.Context, time.Time) error {
	f.deleted = true
	return nil
}

type fakeDefi struct{ deleted bool }

func (f *fakeDefi) InsertDefiYieldSamples(context.Context, []storage.DefiYieldSample) (int64, error) {
	return 0, nil
}
func (f *fakeDefi) DeleteDefiYieldSamplesBefore(context.Context, time.Time) error {
	f.deleted = true
	return nil
}

type fakeCrossChain struct{ deleted bool }

func (f *fakeCrossChain) InsertCrossChainQuotes(context.Context, []storage.CrossChainQuote) (int64, error) {
	return 0, nil
}
func (f *fakeCrossChain) ListCrossChainQuotesSince(context.Context, time.Time) ([]storage.CrossChainQuote, error) {
	return nil, nil
}
func (f *fakeCrossChain) DeleteCrossChainQuotesBefore(context.Context, time.Time) error {
	f.deleted = true
	return nil
}

type fakeAlerts struct{ deleted bool }

func (f *fakeAlerts) InsertAlert(_ context.Context, alert storage.Alert) (storage.Alert, error) {
	return alert, nil
}
func (f *fakeAlerts) ListRecentAlerts(context.Context, int) ([]storage.Alert, error) { return nil, nil }
func (f *fakeAlerts) ListUnacknowledgedAlerts(context.Context, int) ([]storage.Alert, error) {
	return nil, nil
}
func (f *fakeAlerts) AcknowledgeAlert(context.Context, int64) error { return nil }
func (f *fakeAlerts) LatestAlertsPerKey(context.Context, time.Time) ([]storage.Alert, error) {
	return nil, nil
}
func (f *fakeAlerts) LatestAlertTimeBySymbol(context.Context) (map[string]time.Time, error) {
	return nil, nil
}
func (f *fakeAlerts) DeleteAlertsBefore(context.Context, time.Time) error {
	f.deleted = true
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Sources: config.SourcesConfig{Symbols: []string{"BTC", "ETH"}},
		Retention: config.RetentionConfig{
			Records: 365 * 24 * time.Hour,
			Alerts:  90 * 24 * time.Hour,
		},
	}
}

func newTestService(status *fakeSyncStatus, prices *fakePrices, whales *fakeWhales, sentiment *fakeSentiment, defi *fakeDefi, cross *fakeCrossChain, alerts *fakeAlerts) *Service {
	stores := Stores{
		Prices:     prices,
		Whales:     whales,
		Sentiment:  sentiment,
		Defi:       defi,
		CrossChain: cross,
		Sync:       status,
		Alerts:     alerts,
	}
	fetchers := Fetchers{Prices: prices}
	return New(testConfig(), nil, stores, fetchers, nil, nil, nil, zerolog.Nop())
}

func TestSyncPricesRecordsSuccessWithCount(t *testing.T) {
	status := newFakeSyncStatus()
	prices := &fakePrices{points: []storage.PricePoint{{Symbol: "BTC"}, {Symbol: "ETH"}}}
	svc := newTestService(status, prices, &fakeWhales{}, &fakeSentiment{}, &fakeDefi{}, &fakeCrossChain{}, &fakeAlerts{})

	require.NoError(t, svc.syncPrices(context.Background(), time.Now()))

	assert.Equal(t, int64(2), prices.upserted)
	assert.Equal(t, int64(2), status.successes[JobSyncPrices])
	assert.Empty(t, status.errors)
}

func TestSyncPricesRecordsErrorOnFetchFailure(t *testing.T) {
	status := newFakeSyncStatus()
	prices := &fakePrices{fetchErr: errors.New("api unreachable")}
	svc := newTestService(status, prices, &fakeWhales{}, &fakeSentiment{}, &fakeDefi{}, &fakeCrossChain{}, &fakeAlerts{})

	err := svc.syncPrices(context.Background(), time.Now())
	require.Error(t, err)

	// Only the error state is recorded; the success watermark is
	// untouched so staleness remains visible.
	assert.NotContains(t, status.successes, JobSyncPrices)
	assert.Contains(t, status.errors[JobSyncPrices], "api unreachable")
	assert.Zero(t, prices.upserted)
}

func TestFailedSyncPreservesLastSyncWatermark(t *testing.T) {
	status := newFakeSyncStatus()
	prices := &fakePrices{points: []storage.PricePoint{{Symbol: "BTC"}}}
	svc := newTestService(status, prices, &fakeWhales{}, &fakeSentiment{}, &fakeDefi{}, &fakeCrossChain{}, &fakeAlerts{})

	require.NoError(t, svc.syncPrices(context.Background(), time.Now()))
	watermark, ok := status.lastSync[JobSyncPrices]
	require.True(t, ok)

	prices.fetchErr = errors.New("upstream 503")
	require.Error(t, svc.syncPrices(context.Background(), time.Now()))

	// Staleness stays measurable: the failed cycle records its error
	// but the last successful sync time does not move.
	assert.Equal(t, watermark, status.lastSync[JobSyncPrices])
	assert.Contains(t, status.errors[JobSyncPrices], "upstream 503")
}

func TestPruneAppliesRetentionCutoffs(t *testing.T) {
	status := newFakeSyncStatus()
	prices := &fakePrices{}
	whales := &fakeWhales{}
	sentiment := &fakeSentiment{}
	defi := &fakeDefi{}
	cross := &fakeCrossChain{}
	alerts := &fakeAlerts{}
	svc := newTestService(status, prices, whales, sentiment, defi, cross, alerts)

	now := time.Now()
	require.NoError(t, svc.prune(context.Background(), now))

	require.Len(t, prices.deleted, 1)
	assert.WithinDuration(t, now.Add(-365*24*time.Hour), prices.deleted[0], time.Second)
	assert.True(t, whales.deleted)
	assert.True(t, sentiment.deleted)
	assert.True(t, defi.deleted)
	assert.True(t, cross.deleted)
	assert.True(t, alerts.deleted)
	assert.Contains(t, status.successes, JobPrune)
}

func TestPrunePartialFailureContinues(t *testing.T) {
	status := newFakeSyncStatus()
	prices := &fakePrices{deleteErr: errors.New("lock timeout")}
	whales := &fakeWhales{}
	alerts := &fakeAlerts{}
	svc := newTestService(status, prices, whales, &fakeSentiment{}, &fakeDefi{}, &fakeCrossChain{}, alerts)

	err := svc.prune(context.Background(), time.Now())
	require.Error(t, err)

	// The failing table does not block the rest of the sweep.
	assert.True(t, whales.deleted)
	assert.True(t, alerts.deleted)
	assert.Contains(t, status.errors[JobPrune], "price_points")
}

func TestStatusRecorderEscalation(t *testing.T) {
	status := newFakeSyncStatus()
	recorder := NewStatusRecorder(status, zerolog.Nop())

	recorder.RecordFailure(context.Background(), JobSyncWhales, errors.New("feed down"))
	assert.Equal(t, "feed down", status.errors[JobSyncWhales])

	recorder.RecordDegraded(context.Background(), JobSyncWhales)
	assert.True(t, status.degraded[JobSyncWhales])
}
