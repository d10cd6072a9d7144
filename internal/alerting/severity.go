package alerting

// Severity is the ordinal urgency classification of an alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities low < medium < high < critical.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// SeverityForChange tiers a percentage-change magnitude.
func SeverityForChange(magnitude float64) Severity {
	switch {
	case magnitude > 20:
		return SeverityCritical
	case magnitude > 10:
		return SeverityHigh
	case magnitude > 5:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// SeverityForScore tiers a bounded score such as an anomaly score or a
// predicted-action probability.
func SeverityForScore(score float64) Severity {
	switch {
	case score > 0.9:
		return SeverityCritical
	case score > 0.8:
		return SeverityHigh
	case score > 0.7:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// SeverityForProfit tiers an arbitrage profit in USD. There is no
// medium tier for profit: anything at or under 500 is low.
func SeverityForProfit(profitUSD float64) Severity {
	switch {
	case profitUSD > 1000:
		return SeverityCritical
	case profitUSD > 500:
		return SeverityHigh
	default:
		return SeverityLow
	}
}
