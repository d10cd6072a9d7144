package deriver

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangePct(t *testing.T) {
	got := ChangePct(decimal.NewFromInt(96), decimal.NewFromInt(100))
	require.NotNil(t, got)
	assert.InDelta(t, -4.0, *got, 1e-9)

	got = ChangePct(decimal.NewFromInt(70), decimal.NewFromInt(100))
	require.NotNil(t, got)
	assert.InDelta(t, -30.0, *got, 1e-9)
}

func TestChangePctZeroPrevious(t *testing.T) {
	assert.Nil(t, ChangePct(decimal.NewFromInt(10), decimal.Zero))
}

func TestAnomalyScoreBounds(t *testing.T) {
	huge := 10000.0
	score := AnomalyScore(AnomalyInputs{
		PriceChange1h:  &huge,
		VolumeChange1h: &huge,
		WhaleTx24h:     1 << 40,
		Mentions24h:    1 << 40,
	}, DefaultWeights())
	assert.Equal(t, 1.0, score)

	assert.Equal(t, 0.0, AnomalyScore(AnomalyInputs{}, DefaultWeights()))
}

func TestAnomalyScoreMonotonicPerInput(t *testing.T) {
	w := DefaultWeights()

	small, large := 2.0, 15.0
	base := AnomalyScore(AnomalyInputs{PriceChange1h: &small}, w)
	bumped := AnomalyScore(AnomalyInputs{PriceChange1h: &large}, w)
	assert.Greater(t, bumped, base, "price change")

	base = AnomalyScore(AnomalyInputs{WhaleTx24h: 1}, w)
	bumped = AnomalyScore(AnomalyInputs{WhaleTx24h: 8}, w)
	assert.Greater(t, bumped, base, "whale count")

	base = AnomalyScore(AnomalyInputs{Mentions24h: 50}, w)
	bumped = AnomalyScore(AnomalyInputs{Mentions24h: 900}, w)
	assert.Greater(t, bumped, base, "mention volume")
}

func TestAnomalyScoreNegativeChangeUsesMagnitude(t *testing.T) {
	w := DefaultWeights()
	down, up := -12.0, 12.0
	assert.Equal(t,
		AnomalyScore(AnomalyInputs{PriceChange1h: &down}, w),
		AnomalyScore(AnomalyInputs{PriceChange1h: &up}, w),
	)
}

func TestAnomalyScoreGapContributesNothing(t *testing.T) {
	w := DefaultWeights()
	withGap := AnomalyScore(AnomalyInputs{WhaleTx24h: 5}, w)
	zero := 0.0
	withZero := AnomalyScore(AnomalyInputs{PriceChange1h: &zero, VolumeChange1h: &zero, WhaleTx24h: 5}, w)
	assert.Equal(t, withZero, withGap)
}
