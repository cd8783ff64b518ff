// Package usage models token consumption reports for external providers.
package usage

// Period is the aggregation granularity.
type Period string

// Aggregation period constants.
const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
)

// ParsePeriod maps a query value to a Period. Empty means day.
func ParsePeriod(s string) (Period, bool) {
	switch Period(s) {
	case "", PeriodDay:
		return PeriodDay, true
	case PeriodMonth:
		return PeriodMonth, true
	default:
		return "", false
	}
}

// Scope names a budgeted provider, e.g. "embedding" or "oracle".
type Scope string

// Known scopes.
const (
	ScopeEmbedding Scope = "embedding"
	ScopeOracle    Scope = "oracle"
)

// Budget is a point-in-time budget state. Limit 0 means unlimited.
type Budget struct {
	TokensLimit     int64
	TokensRemaining int64
	Exhausted       bool
	ResetsAt        int64 // unix millis
}

// Report is the usage of one scope over one period.
type Report struct {
	Scope            Scope
	Period           Period
	PeriodStart      int64 // unix millis
	PeriodEnd        int64 // unix millis
	Tokens           int64
	CostMillidollars int64
	Budget           Budget
}

// CostMillidollars converts tokens at a per-million price (USD) into 1/1000 USD.
func CostMillidollars(tokens int64, perMillion float64) int64 {
	if tokens <= 0 || perMillion <= 0 {
		return 0
	}
	return int64(float64(tokens) * perMillion / 1000)
}
