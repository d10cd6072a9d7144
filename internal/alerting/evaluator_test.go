package alerting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketpulse/internal/storage"
)

type fakePriceStore struct {
	latest []storage.PricePoint
	err    error
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
	return f.latest, f.err
}
func (f *fakePriceStore) UpdateDerivedMetrics(context.Context, time.Time, string, *float64, *float64, *float64) error {
	return nil
}
func (f *fakePriceStore) DeletePricePointsBefore(context.Context, time.Time) error { return nil }

type fakeWhaleStore struct {
	flows map[string]storage.WhaleFlow
	err   error
}

func (f *fakeWhaleStore) InsertWhaleTransactions(context.Context, []storage.WhaleTransaction) (int64, error) {
	return 0, nil
}
func (f *fakeWhaleStore) WhaleFlowSince(context.Context, string, time.Time) (storage.WhaleFlow, error) {
	return storage.WhaleFlow{}, nil
}
func (f *fakeWhaleStore) WhaleFlowsSince(context.Context, time.Time) (map[string]storage.WhaleFlow, error) {
	return f.flows, f.err
}
func (f *fakeWhaleStore) DeleteWhaleTransactionsBefore(context.Context, time.Time) error { return nil }

type fakeCrossChainStore struct {
	quotes []storage.CrossChainQuote
	err    error
}

func (f *fakeCrossChainStore) InsertCrossChainQuotes(context.Context, []storage.CrossChainQuote) (int64, error) {
	return 0, nil
}
func (f *fakeCrossChainStore) ListCrossChainQuotesSince(context.Context, time.Time) ([]storage.CrossChainQuote, error) {
	return f.quotes, f.err
}
func (f *fakeCrossChainStore) DeleteCrossChainQuotesBefore(context.Context, time.Time) error {
	return nil
}

type fakeAlertStore struct {
	inserted  []storage.Alert
	persisted []storage.Alert
	insertErr error
	nextID    int64
}

func (f *fakeAlertStore) InsertAlert(_ context.Context, alert storage.Alert) (storage.Alert, error) {
	if f.insertErr != nil {
		return storage.Alert{}, f.insertErr
	}
	f.nextID++
	alert.ID = f.nextID
	f.inserted = append(f.inserted, alert)
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
	return f.persisted, nil
}
func (f *fakeAlertStore) LatestAlertTimeBySymbol(context.Context) (map[string]time.Time, error) {
	return nil, nil
}
func (f *fakeAlertStore) DeleteAlertsBefore(context.Context, time.Time) error { return nil }

func defaultThresholds() Thresholds {
	return Thresholds{
		AnomalyScore:       0.7,
		PriceChangePct:     5,
		WhaleProbability:   0.7,
		ArbitrageProfitUSD: 100,
		ArbitrageSuccess:   0.8,
	}
}

func defaultWindows() Windows {
	return Windows{
		Anomaly:   time.Hour,
		Price:     time.Hour,
		Whale:     2 * time.Hour,
		Arbitrage: 30 * time.Minute,
	}
}

func newTestEvaluator(prices *fakePriceStore, whales *fakeWhaleStore, quotes *fakeCrossChainStore, alerts *fakeAlertStore) *Evaluator {
	return NewEvaluator(prices, whales, quotes, alerts, nil, defaultThresholds(), defaultWindows(), testLogger())
}

func floatPtr(v float64) *float64 { return &v }

func anomalousPoint(symbol string, score float64) storage.PricePoint {
	return storage.PricePoint{
		Timestamp:    time.Now().Truncate(time.Minute),
		Symbol:       symbol,
		Close:        decimal.NewFromInt(50000),
		AnomalyScore: floatPtr(score),
	}
}

func TestEvaluateAllAnomalyFires(t *testing.T) {
	alerts := &fakeAlertStore{}
	evaluator := newTestEvaluator(
		&fakePriceStore{latest: []storage.PricePoint{anomalousPoint("BTC", 0.85)}},
		&fakeWhaleStore{},
		&fakeCrossChainStore{},
		alerts,
	)

	require.NoError(t, evaluator.EvaluateAll(context.Background(), time.Now()))
	require.Len(t, alerts.inserted, 1)
	assert.Equal(t, TypeAnomaly, alerts.inserted[0].AlertType)
	assert.Equal(t, "BTC", alerts.inserted[0].Symbol)
	assert.Equal(t, string(SeverityHigh), alerts.inserted[0].Severity)
}

func TestEvaluateAllBelowThresholdStaysQuiet(t *testing.T) {
	alerts := &fakeAlertStore{}
	evaluator := newTestEvaluator(
		&fakePriceStore{latest: []storage.PricePoint{anomalousPoint("BTC", 0.65)}},
		&fakeWhaleStore{},
		&fakeCrossChainStore{},
		alerts,
	)

	require.NoError(t, evaluator.EvaluateAll(context.Background(), time.Now()))
	assert.Empty(t, alerts.inserted)
}

func TestDedupWindowSuppressesRepeats(t *testing.T) {
	// A condition that holds for two hours with a one-hour window
	// yields exactly two alerts: one at the start, one after expiry.
	alerts := &fakeAlertStore{}
	evaluator := newTestEvaluator(
		&fakePriceStore{latest: []storage.PricePoint{anomalousPoint("BTC", 0.85)}},
		&fakeWhaleStore{},
		&fakeCrossChainStore{},
		alerts,
	)

	start := time.Now()
	for i := 0; i < 24; i++ {
		now := start.Add(time.Duration(i) * 5 * time.Minute)
		require.NoError(t, evaluator.EvaluateAll(context.Background(), now))
	}

	require.Len(t, alerts.inserted, 2)
	gap := alerts.inserted[1].CreatedAt.Sub(alerts.inserted[0].CreatedAt)
	assert.GreaterOrEqual(t, gap, time.Hour)
}

func TestCooldownSeedingSurvivesRestart(t *testing.T) {
	now := time.Now()
	persisted := []storage.Alert{{
		AlertType: TypeAnomaly,
		Symbol:    "BTC",
		Severity:  string(SeverityHigh),
		CreatedAt: now.Add(-30 * time.Minute),
	}}

	alerts := &fakeAlertStore{persisted: persisted}
	evaluator := newTestEvaluator(
		&fakePriceStore{latest: []storage.PricePoint{anomalousPoint("BTC", 0.85)}},
		&fakeWhaleStore{},
		&fakeCrossChainStore{},
		alerts,
	)

	// Alert fired 30m ago with a 1h window: still cooling.
	require.NoError(t, evaluator.EvaluateAll(context.Background(), now))
	assert.Empty(t, alerts.inserted)

	// Past expiry the key is quiet again.
	require.NoError(t, evaluator.EvaluateAll(context.Background(), now.Add(45*time.Minute)))
	assert.Len(t, alerts.inserted, 1)
}

func TestPriceMovementMagnitudeAndSeverity(t *testing.T) {
	cases := []struct {
		name     string
		change   float64
		fires    bool
		severity Severity
	}{
		{"small move stays quiet", 4.0, false, SeverityLow},
		{"medium move", 7.5, true, SeverityMedium},
		{"high move", 12.0, true, SeverityHigh},
		{"critical move", 25.0, true, SeverityCritical},
		{"negative move uses magnitude", -25.0, true, SeverityCritical},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			alerts := &fakeAlertStore{}
			point := storage.PricePoint{
				Timestamp:      time.Now(),
				Symbol:         "ETH",
				Close:          decimal.NewFromInt(3000),
				PriceChange24h: tc.change,
			}
			evaluator := newTestEvaluator(
				&fakePriceStore{latest: []storage.PricePoint{point}},
				&fakeWhaleStore{},
				&fakeCrossChainStore{},
				alerts,
			)

			require.NoError(t, evaluator.EvaluateAll(context.Background(), time.Now()))
			if !tc.fires {
				assert.Empty(t, alerts.inserted)
				return
			}
			require.Len(t, alerts.inserted, 1)
			assert.Equal(t, TypePriceMovement, alerts.inserted[0].AlertType)
			assert.Equal(t, string(tc.severity), alerts.inserted[0].Severity)
		})
	}
}

func TestWhaleRuleFiresOnDominantInflow(t *testing.T) {
	flow := storage.WhaleFlow{
		Symbol:     "BTC",
		TxCount:    12,
		TotalUSD:   decimal.NewFromInt(50_000_000),
		InflowUSD:  decimal.NewFromInt(45_000_000),
		OutflowUSD: decimal.NewFromInt(5_000_000),
	}

	alerts := &fakeAlertStore{}
	evaluator := newTestEvaluator(
		&fakePriceStore{},
		&fakeWhaleStore{flows: map[string]storage.WhaleFlow{"BTC": flow}},
		&fakeCrossChainStore{},
		alerts,
	)

	require.NoError(t, evaluator.EvaluateAll(context.Background(), time.Now()))
	require.Len(t, alerts.inserted, 1)
	assert.Equal(t, TypeWhaleMovement, alerts.inserted[0].AlertType)
	assert.Contains(t, alerts.inserted[0].Message, ActionMassiveSell)
}

func TestPredictWhaleAction(t *testing.T) {
	t.Run("zero volume predicts nothing", func(t *testing.T) {
		action, probability := PredictWhaleAction(storage.WhaleFlow{})
		assert.Empty(t, action)
		assert.Zero(t, probability)
	})

	t.Run("pure inflow of a large book is an exit", func(t *testing.T) {
		action, probability := PredictWhaleAction(storage.WhaleFlow{
			TotalUSD:  decimal.NewFromInt(100_000_000),
			InflowUSD: decimal.NewFromInt(100_000_000),
		})
		assert.Equal(t, ActionExit, action)
		assert.Greater(t, probability, 0.9)
	})

	t.Run("outflow dominant predicts accumulation", func(t *testing.T) {
		action, _ := PredictWhaleAction(storage.WhaleFlow{
			TotalUSD:   decimal.NewFromInt(20_000_000),
			InflowUSD:  decimal.NewFromInt(2_000_000),
			OutflowUSD: decimal.NewFromInt(18_000_000),
		})
		assert.Equal(t, ActionMassiveBuy, action)
	})

	t.Run("probability grows with volume at fixed imbalance", func(t *testing.T) {
		small := storage.WhaleFlow{
			TotalUSD:   decimal.NewFromInt(1_000_000),
			InflowUSD:  decimal.NewFromInt(900_000),
			OutflowUSD: decimal.NewFromInt(100_000),
		}
		large := storage.WhaleFlow{
			TotalUSD:   decimal.NewFromInt(100_000_000),
			InflowUSD:  decimal.NewFromInt(90_000_000),
			OutflowUSD: decimal.NewFromInt(10_000_000),
		}
		_, pSmall := PredictWhaleAction(small)
		_, pLarge := PredictWhaleAction(large)
		assert.Greater(t, pLarge, pSmall)
	})
}

func TestArbitrageRuleRequiresProfitAndConfidence(t *testing.T) {
	quote := func(profit float64, success float64) storage.CrossChainQuote {
		return storage.CrossChainQuote{
			Timestamp:          time.Now(),
			Token:              "USDC",
			SourceChain:        "ethereum",
			TargetChain:        "arbitrum",
			ArbitrageProfitUSD: decimal.NewFromFloat(profit),
			SuccessProbability: success,
		}
	}

	cases := []struct {
		name     string
		quote    storage.CrossChainQuote
		fires    bool
		severity Severity
	}{
		{"profitable and confident", quote(450, 0.9), true, SeverityLow},
		{"high profit", quote(750, 0.9), true, SeverityHigh},
		{"critical profit", quote(1500, 0.9), true, SeverityCritical},
		{"profitable but uncertain", quote(450, 0.5), false, SeverityLow},
		{"confident but thin", quote(50, 0.95), false, SeverityLow},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			alerts := &fakeAlertStore{}
			evaluator := newTestEvaluator(
				&fakePriceStore{},
				&fakeWhaleStore{},
				&fakeCrossChainStore{quotes: []storage.CrossChainQuote{tc.quote}},
				alerts,
			)

			require.NoError(t, evaluator.EvaluateAll(context.Background(), time.Now()))
			if !tc.fires {
				assert.Empty(t, alerts.inserted)
				return
			}
			require.Len(t, alerts.inserted, 1)
			assert.Equal(t, TypeArbitrage, alerts.inserted[0].AlertType)
			assert.Equal(t, string(tc.severity), alerts.inserted[0].Severity)
		})
	}
}

func TestEvaluateAllPartialFailureStillRuns(t *testing.T) {
	alerts := &fakeAlertStore{}
	evaluator := newTestEvaluator(
		&fakePriceStore{err: errors.New("db down")},
		&fakeWhaleStore{flows: map[string]storage.WhaleFlow{"BTC": {
			Symbol:    "BTC",
			TxCount:   5,
			TotalUSD:  decimal.NewFromInt(80_000_000),
			InflowUSD: decimal.NewFromInt(80_000_000),
		}}},
		&fakeCrossChainStore{},
		alerts,
	)

	require.NoError(t, evaluator.EvaluateAll(context.Background(), time.Now()))
	assert.Len(t, alerts.inserted, 1)
	assert.Equal(t, int64(1), evaluator.Runs())
}

func TestEvaluateAllFailsWhenEveryRuleFails(t *testing.T) {
	boom := errors.New("db down")
	evaluator := newTestEvaluator(
		&fakePriceStore{err: boom},
		&fakeWhaleStore{err: boom},
		&fakeCrossChainStore{err: boom},
		&fakeAlertStore{},
	)

	require.Error(t, evaluator.EvaluateAll(context.Background(), time.Now()))
	assert.Zero(t, evaluator.Runs())
}

func TestFailedInsertDoesNotArmCooldown(t *testing.T) {
	alerts := &fakeAlertStore{insertErr: errors.New("insert failed")}
	prices := &fakePriceStore{latest: []storage.PricePoint{anomalousPoint("BTC", 0.85)}}
	evaluator := newTestEvaluator(prices, &fakeWhaleStore{}, &fakeCrossChainStore{}, alerts)

	now := time.Now()
	require.NoError(t, evaluator.EvaluateAll(context.Background(), now))
	assert.Empty(t, alerts.inserted)

	// Storage recovers; the same condition fires on the next pass.
	alerts.insertErr = nil
	require.NoError(t, evaluator.EvaluateAll(context.Background(), now.Add(time.Minute)))
	assert.Len(t, alerts.inserted, 1)
}

func TestSeverityTiers(t *testing.T) {
	assert.Equal(t, SeverityCritical, SeverityForChange(20.5))
	assert.Equal(t, SeverityHigh, SeverityForChange(10.5))
	assert.Equal(t, SeverityMedium, SeverityForChange(5.5))
	assert.Equal(t, SeverityLow, SeverityForChange(5.0))

	assert.Equal(t, SeverityCritical, SeverityForScore(0.91))
	assert.Equal(t, SeverityHigh, SeverityForScore(0.81))
	assert.Equal(t, SeverityMedium, SeverityForScore(0.71))
	assert.Equal(t, SeverityLow, SeverityForScore(0.7))

	assert.Equal(t, SeverityCritical, SeverityForProfit(1001))
	assert.Equal(t, SeverityHigh, SeverityForProfit(501))
	assert.Equal(t, SeverityLow, SeverityForProfit(500))

	assert.Greater(t, SeverityCritical.Rank(), SeverityHigh.Rank())
	assert.Greater(t, SeverityHigh.Rank(), SeverityMedium.Rank())
	assert.Greater(t, SeverityMedium.Rank(), SeverityLow.Rank())
}
