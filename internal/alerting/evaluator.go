package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"marketpulse/internal/storage"
)

// Alert type identifiers written to the alerts table.
const (
	TypeAnomaly       = "anomaly"
	TypePriceMovement = "price_movement"
	TypeWhaleMovement = "whale_movement"
	TypeArbitrage     = "cross_chain_arbitrage"
)

// Whale next-action labels that fire the whale rule.
const (
	ActionMassiveSell = "massive_sell"
	ActionMassiveBuy  = "massive_buy"
	ActionExit        = "exit"
)

// Thresholds define when each rule's condition holds.
type Thresholds struct {
	AnomalyScore       float64
	PriceChangePct     float64
	WhaleProbability   float64
	ArbitrageProfitUSD float64
	ArbitrageSuccess   float64
}

// Windows define the per-class dedup cooldown.
type Windows struct {
	Anomaly   time.Duration
	Price     time.Duration
	Whale     time.Duration
	Arbitrage time.Duration
}

type alertKey struct {
	Type   string
	Symbol string
}

// Evaluator applies the alert rules against committed canonical
// records. Per (alert_type, symbol) it runs a quiet→firing→cooling
// state machine: the first trigger writes an Alert row and arms a
// cooldown; repeated triggers inside the window are suppressed.
// Cooldowns are seeded from persisted alerts on the first run so the
// dedup window survives restarts.
type Evaluator struct {
	prices     storage.PriceStore
	whales     storage.WhaleStore
	quotes     storage.CrossChainStore
	alerts     storage.AlertStore
	notifier   Notifier
	thresholds Thresholds
	windows    Windows
	logger     zerolog.Logger

	mu        sync.Mutex
	cooldowns map[alertKey]time.Time
	seeded    bool
	runs      int64
}

// NewEvaluator constructs an Evaluator. notifier may be nil.
func NewEvaluator(
	prices storage.PriceStore,
	whales storage.WhaleStore,
	quotes storage.CrossChainStore,
	alerts storage.AlertStore,
	notifier Notifier,
	thresholds Thresholds,
	windows Windows,
	logger zerolog.Logger,
) *Evaluator {
	return &Evaluator{
		prices:     prices,
		whales:     whales,
		quotes:     quotes,
		alerts:     alerts,
		notifier:   notifier,
		thresholds: thresholds,
		windows:    windows,
		logger:     logger.With().Str("component", "alert_evaluator").Logger(),
		cooldowns:  make(map[alertKey]time.Time),
	}
}

// Runs reports how many evaluation passes completed. A zero count
// distinguishes "never evaluated" from a genuinely quiet market.
func (e *Evaluator) Runs() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runs
}

// EvaluateAll runs every rule once. A rule that cannot load its inputs
// is skipped for this pass; the remaining rules still run. The pass
// fails only when no rule could be evaluated at all.
func (e *Evaluator) EvaluateAll(ctx context.Context, now time.Time) error {
	if err := e.seedCooldowns(ctx, now); err != nil {
		e.logger.Warn().Err(err).Msg("cooldown seeding failed; dedup starts cold")
	}

	var failures int

	if err := e.evaluatePriceRules(ctx, now); err != nil {
		failures++
		e.logger.Error().Err(err).Msg("price rules skipped this cycle")
	}
	if err := e.evaluateWhaleRule(ctx, now); err != nil {
		failures++
		e.logger.Error().Err(err).Msg("whale rule skipped this cycle")
	}
	if err := e.evaluateArbitrageRule(ctx, now); err != nil {
		failures++
		e.logger.Error().Err(err).Msg("arbitrage rule skipped this cycle")
	}

	if failures == 3 {
		return fmt.Errorf("all alert rules failed")
	}

	e.mu.Lock()
	e.runs++
	e.mu.Unlock()
	return nil
}

// evaluatePriceRules covers both the anomaly rule and the 24h price
// movement rule; they read the same latest points.
func (e *Evaluator) evaluatePriceRules(ctx context.Context, now time.Time) error {
	points, err := e.prices.LatestPricePoints(ctx)
	if err != nil {
		return fmt.Errorf("load latest price points: %w", err)
	}

	for _, p := range points {
		if p.AnomalyScore != nil && *p.AnomalyScore > e.thresholds.AnomalyScore {
			score := *p.AnomalyScore
			e.fire(ctx, now, firing{
				alertType: TypeAnomaly,
				symbol:    p.Symbol,
				severity:  SeverityForScore(score),
				window:    e.windows.Anomaly,
				message:   fmt.Sprintf("Anomaly score %.2f for %s", score, p.Symbol),
				data: map[string]any{
					"anomaly_score":   score,
					"price_change_1h": p.PriceChange1h,
					"close":           p.Close.String(),
				},
			})
		}

		if magnitude := math.Abs(p.PriceChange24h); magnitude > e.thresholds.PriceChangePct {
			e.fire(ctx, now, firing{
				alertType: TypePriceMovement,
				symbol:    p.Symbol,
				severity:  SeverityForChange(magnitude),
				window:    e.windows.Price,
				message:   fmt.Sprintf("%s moved %.1f%% in 24h", p.Symbol, p.PriceChange24h),
				data: map[string]any{
					"price_change_24h": p.PriceChange24h,
					"close":            p.Close.String(),
				},
			})
		}
	}
	return nil
}

func (e *Evaluator) evaluateWhaleRule(ctx context.Context, now time.Time) error {
	flows, err := e.whales.WhaleFlowsSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return fmt.Errorf("load whale flows: %w", err)
	}

	for symbol, flow := range flows {
		action, probability := PredictWhaleAction(flow)
		if action == "" || probability <= e.thresholds.WhaleProbability {
			continue
		}

		e.fire(ctx, now, firing{
			alertType: TypeWhaleMovement,
			symbol:    symbol,
			severity:  SeverityForScore(probability),
			window:    e.windows.Whale,
			message:   fmt.Sprintf("Whale flow predicts %s for %s (p=%.2f)", action, symbol, probability),
			data: map[string]any{
				"next_action": action,
				"probability": probability,
				"tx_count":    flow.TxCount,
				"total_usd":   flow.TotalUSD.String(),
				"inflow_usd":  flow.InflowUSD.String(),
				"outflow_usd": flow.OutflowUSD.String(),
			},
		})
	}
	return nil
}

func (e *Evaluator) evaluateArbitrageRule(ctx context.Context, now time.Time) error {
	lookback := e.windows.Arbitrage
	if lookback <= 0 {
		lookback = 30 * time.Minute
	}

	quotes, err := e.quotes.ListCrossChainQuotesSince(ctx, now.Add(-lookback))
	if err != nil {
		return fmt.Errorf("load cross-chain quotes: %w", err)
	}

	for _, q := range quotes {
		profit, _ := q.ArbitrageProfitUSD.Float64()
		if profit <= e.thresholds.ArbitrageProfitUSD || q.SuccessProbability <= e.thresholds.ArbitrageSuccess {
			continue
		}

		e.fire(ctx, now, firing{
			alertType: TypeArbitrage,
			symbol:    q.Token,
			severity:  SeverityForProfit(profit),
			window:    e.windows.Arbitrage,
			message: fmt.Sprintf("%s arbitrage %s→%s: $%.0f at p=%.2f",
				q.Token, q.SourceChain, q.TargetChain, profit, q.SuccessProbability),
			data: map[string]any{
				"arbitrage_profit_usd": profit,
				"success_probability":  q.SuccessProbability,
				"source_chain":         q.SourceChain,
				"target_chain":         q.TargetChain,
			},
		})
	}
	return nil
}

type firing struct {
	alertType string
	symbol    string
	severity  Severity
	window    time.Duration
	message   string
	data      map[string]any
}

// fire transitions a key from quiet to firing unless it is cooling.
func (e *Evaluator) fire(ctx context.Context, now time.Time, f firing) {
	key := alertKey{Type: f.alertType, Symbol: f.symbol}

	e.mu.Lock()
	if expiry, cooling := e.cooldowns[key]; cooling && now.Before(expiry) {
		e.mu.Unlock()
		e.logger.Debug().
			Str("alert_type", f.alertType).
			Str("symbol", f.symbol).
			Time("cooldown_until", expiry).
			Msg("alert suppressed by dedup window")
		return
	}
	e.cooldowns[key] = now.Add(f.window)
	e.mu.Unlock()

	payload, err := json.Marshal(f.data)
	if err != nil {
		payload = nil
	}

	alert := storage.Alert{
		AlertType: f.alertType,
		Symbol:    f.symbol,
		Severity:  string(f.severity),
		Message:   f.message,
		Data:      payload,
		CreatedAt: now,
	}

	stored, err := e.alerts.InsertAlert(ctx, alert)
	if err != nil {
		// Re-arm as quiet so the condition can fire again next pass.
		e.mu.Lock()
		delete(e.cooldowns, key)
		e.mu.Unlock()
		e.logger.Error().Err(err).
			Str("alert_type", f.alertType).
			Str("symbol", f.symbol).
			Msg("failed to persist alert")
		return
	}

	e.logger.Info().
		Str("alert_type", stored.AlertType).
		Str("symbol", stored.Symbol).
		Str("severity", stored.Severity).
		Msg("alert fired")

	if e.notifier != nil {
		if err := e.notifier.Notify(ctx, stored); err != nil {
			e.logger.Error().Err(err).Int64("alert_id", stored.ID).Msg("failed to dispatch alert")
		}
	}
}

// seedCooldowns rebuilds cooldown expiries from persisted alerts once
// per process lifetime.
func (e *Evaluator) seedCooldowns(ctx context.Context, now time.Time) error {
	e.mu.Lock()
	if e.seeded {
		e.mu.Unlock()
		return nil
	}
	e.seeded = true
	e.mu.Unlock()

	lookback := e.windows.Anomaly
	for _, w := range []time.Duration{e.windows.Price, e.windows.Whale, e.windows.Arbitrage} {
		if w > lookback {
			lookback = w
		}
	}
	if lookback <= 0 {
		return nil
	}

	recent, err := e.alerts.LatestAlertsPerKey(ctx, now.Add(-lookback))
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, alert := range recent {
		expiry := alert.CreatedAt.Add(e.windowFor(alert.AlertType))
		if expiry.After(now) {
			e.cooldowns[alertKey{Type: alert.AlertType, Symbol: alert.Symbol}] = expiry
		}
	}
	return nil
}

func (e *Evaluator) windowFor(alertType string) time.Duration {
	switch alertType {
	case TypeAnomaly:
		return e.windows.Anomaly
	case TypePriceMovement:
		return e.windows.Price
	case TypeWhaleMovement:
		return e.windows.Whale
	case TypeArbitrage:
		return e.windows.Arbitrage
	default:
		return 0
	}
}

// PredictWhaleAction turns a 24h exchange-flow rollup into a predicted
// next action. Inflow-dominant flow precedes selling, outflow-dominant
// accumulation; near-total inflow of a large book reads as an exit.
// The probability is monotonic in the flow imbalance and in total
// volume.
func PredictWhaleAction(flow storage.WhaleFlow) (string, float64) {
	total, _ := flow.TotalUSD.Float64()
	if total <= 0 {
		return "", 0
	}

	inflow, _ := flow.InflowUSD.Float64()
	outflow, _ := flow.OutflowUSD.Float64()
	imbalance := (inflow - outflow) / total

	volumeFactor := total / (total + 10_000_000)
	probability := math.Abs(imbalance)*0.6 + volumeFactor*0.4

	switch {
	case imbalance > 0.95:
		return ActionExit, probability
	case imbalance > 0:
		return ActionMassiveSell, probability
	case imbalance < 0:
		return ActionMassiveBuy, probability
	default:
		return "", 0
	}
}
