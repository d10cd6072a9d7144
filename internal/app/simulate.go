package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"marketpulse/internal/alerting"
	"marketpulse/internal/deriver"
	"marketpulse/internal/storage"
)

// SimulateOptions describe the synthetic observation pair.
type SimulateOptions struct {
	Symbol        string
	PreviousPrice decimal.Decimal
	CurrentPrice  decimal.Decimal
	WhaleTx24h    int64
	Mentions24h   int64
}

// Simulate pushes a synthetic consecutive price pair through the
// derivation math and the alert rules without touching a database,
// then prints the resulting decision. Useful for tuning thresholds.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	if opts.Symbol == "" {
		return fmt.Errorf("--symbol is required")
	}
	if opts.PreviousPrice.IsZero() || opts.CurrentPrice.IsZero() {
		return fmt.Errorf("--previous and --current must be non-zero prices")
	}

	change1h := deriver.ChangePct(opts.CurrentPrice, opts.PreviousPrice)
	score := deriver.AnomalyScore(deriver.AnomalyInputs{
		PriceChange1h: change1h,
		WhaleTx24h:    opts.WhaleTx24h,
		Mentions24h:   opts.Mentions24h,
	}, a.weights())

	change24h := 0.0
	if change1h != nil {
		change24h = *change1h
	}

	now := time.Now().UTC().Truncate(time.Minute)
	point := storage.PricePoint{
		Timestamp:      now,
		Symbol:         opts.Symbol,
		Open:           opts.PreviousPrice,
		High:           opts.CurrentPrice,
		Low:            opts.PreviousPrice,
		Close:          opts.CurrentPrice,
		PriceChange24h: change24h,
		PriceChange1h:  change1h,
		AnomalyScore:   &score,
	}

	sink := &memoryAlertSink{}
	evaluator := alerting.NewEvaluator(
		&staticPriceSource{latest: []storage.PricePoint{point}},
		&staticWhaleSource{},
		&staticQuoteSource{},
		sink,
		nil,
		a.thresholds(),
		a.windows(),
		a.Logger,
	)

	if err := evaluator.EvaluateAll(ctx, now); err != nil {
		return err
	}

	if change1h != nil {
		fmt.Fprintf(os.Stdout, "price_change_1h: %.2f%%\n", *change1h)
	}
	fmt.Fprintf(os.Stdout, "anomaly_score: %.3f\n", score)

	if len(sink.alerts) == 0 {
		fmt.Fprintln(os.Stdout, "decision: no alert")
		return nil
	}
	for _, alert := range sink.alerts {
		fmt.Fprintf(os.Stdout, "decision: %s alert (%s): %s\n", alert.AlertType, alert.Severity, alert.Message)
	}
	return nil
}

type staticPriceSource struct {
	latest []storage.PricePoint
}

func (s *staticPriceSource) UpsertPricePoints(context.Context, []storage.PricePoint) (int64, error) {
	return 0, nil
}
func (s *staticPriceSource) ListPricePoints(context.Context, string, time.Time, time.Time) ([]storage.PricePoint, error) {
	return nil, nil
}
func (s *staticPriceSource) RecentPricePoints(context.Context, string, int) ([]storage.PricePoint, error) {
	return nil, nil
}
func (s *staticPriceSource) LatestPricePoints(context.Context) ([]storage.PricePoint, error) {
	return s.latest, nil
}
func (s *staticPriceSource) UpdateDerivedMetrics(context.Context, time.Time, string, *float64, *float64, *float64) error {
	return nil
}
func (s *staticPriceSource) DeletePricePointsBefore(context.Context, time.Time) error { return nil }

type staticWhaleSource struct{}

func (s *staticWhaleSource) InsertWhaleTransactions(context.Context, []storage.WhaleTransaction) (int64, error) {
	return 0, nil
}
func (s *staticWhaleSource) WhaleFlowSince(context.Context, string, time.Time) (storage.WhaleFlow, error) {
	return storage.WhaleFlow{}, nil
}
func (s *staticWhaleSource) WhaleFlowsSince(context.Context, time.Time) (map[string]storage.WhaleFlow, error) {
	return nil, nil
}
func (s *staticWhaleSource) DeleteWhaleTransactionsBefore(context.Context, time.Time) error {
	return nil
}

type staticQuoteSource struct{}

func (s *staticQuoteSource) InsertCrossChainQuotes(context.Context, []storage.CrossChainQuote) (int64, error) {
	return 0, nil
}
func (s *staticQuoteSource) ListCrossChainQuotesSince(context.Context, time.Time) ([]storage.CrossChainQuote, error) {
	return nil, nil
}
func (s *staticQuoteSource) DeleteCrossChainQuotesBefore(context.Context, time.Time) error {
	return nil
}

type memoryAlertSink struct {
	alerts []storage.Alert
}

func (m *memoryAlertSink) InsertAlert(_ context.Context, alert storage.Alert) (storage.Alert, error) {
	alert.ID = int64(len(m.alerts) + 1)
	m.alerts = append(m.alerts, alert)
	return alert, nil
}
func (m *memoryAlertSink) ListRecentAlerts(context.Context, int) ([]storage.Alert, error) {
	return m.alerts, nil
}
func (m *memoryAlertSink) ListUnacknowledgedAlerts(context.Context, int) ([]storage.Alert, error) {
	return m.alerts, nil
}
func (m *memoryAlertSink) AcknowledgeAlert(context.Context, int64) error { return nil }
func (m *memoryAlertSink) LatestAlertsPerKey(context.Context, time.Time) ([]storage.Alert, error) {
	return nil, nil
}
func (m *memoryAlertSink) LatestAlertTimeBySymbol(context.Context) (map[string]time.Time, error) {
	return nil, nil
}
func (m *memoryAlertSink) DeleteAlertsBefore(context.Context, time.Time) error { return nil }

var (
	_ storage.PriceStore      = (*staticPriceSource)(nil)
	_ storage.WhaleStore      = (*staticWhaleSource)(nil)
	_ storage.CrossChainStore = (*staticQuoteSource)(nil)
	_ storage.AlertStore      = (*memoryAlertSink)(nil)
)
