package deriver

import (
	"math"

	"github.com/shopspring/decimal"
)

// Weights define the anomaly-score policy: the relative weight of each
// signal and the magnitude at which it saturates. The composite is
// monotonic in every input and clamped to [0,1].
type Weights struct {
	Price  float64
	Volume float64
	Whale  float64
	Social float64

	PriceScalePct  float64
	VolumeScalePct float64
	WhaleScaleTx   float64
	SocialScale    float64
}

// DefaultWeights mirror the configuration defaults.
func DefaultWeights() Weights {
	return Weights{
		Price:          0.40,
		Volume:         0.20,
		Whale:          0.25,
		Social:         0.15,
		PriceScalePct:  20,
		VolumeScalePct: 100,
		WhaleScaleTx:   10,
		SocialScale:    1000,
	}
}

// AnomalyInputs collect one symbol's recent signals.
type AnomalyInputs struct {
	PriceChange1h  *float64
	VolumeChange1h *float64
	WhaleTx24h     int64
	Mentions24h    int64
}

// ChangePct computes (current − previous) / previous × 100. A missing
// or zero previous value yields nil: a derivation gap, not an error.
func ChangePct(current, previous decimal.Decimal) *float64 {
	if previous.IsZero() {
		return nil
	}
	pct, _ := current.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100)).Float64()
	return &pct
}

// AnomalyScore folds the inputs into a bounded composite. Each signal
// saturates at its configured scale so a single extreme input cannot
// drown out the rest.
func AnomalyScore(in AnomalyInputs, w Weights) float64 {
	total := w.Price + w.Volume + w.Whale + w.Social
	if total <= 0 {
		return 0
	}

	var score float64
	if in.PriceChange1h != nil {
		score += w.Price * saturate(math.Abs(*in.PriceChange1h), w.PriceScalePct)
	}
	if in.VolumeChange1h != nil {
		score += w.Volume * saturate(math.Abs(*in.VolumeChange1h), w.VolumeScalePct)
	}
	score += w.Whale * saturate(float64(in.WhaleTx24h), w.WhaleScaleTx)
	score += w.Social * saturate(float64(in.Mentions24h), w.SocialScale)

	return clamp01(score / total)
}

func saturate(value, scale float64) float64 {
	if scale <= 0 {
		return 0
	}
	return clamp01(value / scale)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
