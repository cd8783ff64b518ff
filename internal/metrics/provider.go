package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Scopes of external provider calls. They match the usage report scopes.
const (
	ScopeEmbedding = "embedding"
	ScopeOracle    = "oracle"
)

// Outcomes recorded on ProviderCallsTotal.
const (
	OutcomeSuccess           = "success"
	OutcomeAPIError          = "api_error"
	OutcomeEmptyResponse     = "empty_response"
	OutcomeDimensionMismatch = "dimension_mismatch"
	OutcomeRateLimited       = "rate_limited"
)

// PurposeQueryVector labels embedding calls; oracle calls use the reasoning purpose.
const PurposeQueryVector = "query_vector"

// Provider Prometheus metrics, shared by the embedder and the reasoning oracle.
var (
	ProviderCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agrirag",
			Name:      "provider_calls_total",
			Help:      "External provider calls by scope, purpose and outcome",
		},
		[]string{"scope", "model", "purpose", "outcome"},
	)

	ProviderCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agrirag",
			Name:      "provider_call_duration_seconds",
			Help:      "Duration of provider calls that reached the network",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"scope", "model"},
	)

	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agrirag",
			Name:      "provider_tokens_total",
			Help:      "Provider tokens consumed",
		},
		[]string{"scope", "model", "kind"}, // "prompt" / "total"
	)

	BudgetTokensRemaining = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "agrirag",
			Name:      "budget_tokens_remaining",
			Help:      "Remaining token budget per scope",
		},
		[]string{"scope", "period"},
	)

	// EmbeddingCacheTotal counts query vector cache lookups.
	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agrirag",
			Name:      "query_vector_cache_total",
			Help:      "Query vector cache hits and misses",
		},
		[]string{"result"},
	)
)

// ProviderCall records one finished call. A zero duration means the call
// never reached the provider and is left out of the latency histogram.
func ProviderCall(scope, model, purpose, outcome string, d time.Duration) {
	if purpose == "" {
		purpose = "unknown"
	}
	ProviderCallsTotal.WithLabelValues(scope, model, purpose, outcome).Inc()
	if d > 0 {
		ProviderCallDuration.WithLabelValues(scope, model).Observe(d.Seconds())
	}
}

// ProviderTokens records consumed tokens. Providers that do not report
// usage send zero totals, which are skipped.
func ProviderTokens(scope, model string, prompt, total int) {
	if total <= 0 {
		return
	}
	ProviderTokensTotal.WithLabelValues(scope, model, "prompt").Add(float64(prompt))
	ProviderTokensTotal.WithLabelValues(scope, model, "total").Add(float64(total))
}

// BudgetRemaining publishes the daily and monthly remainders of a scope.
func BudgetRemaining(scope string, daily, monthly int64) {
	BudgetTokensRemaining.WithLabelValues(scope, "daily").Set(float64(daily))
	BudgetTokensRemaining.WithLabelValues(scope, "monthly").Set(float64(monthly))
}

var registerOnce sync.Once

// Register registers provider and retrieval metrics on the default registry.
// Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			ProviderCallsTotal,
			ProviderCallDuration,
			ProviderTokensTotal,
			BudgetTokensRemaining,
			EmbeddingCacheTotal,
			HopStopsTotal,
			HopsPerRun,
			RecoveryQueriesTotal,
			CompletenessDecisionsTotal,
			RetrievedHits,
			RouteDecisionsTotal,
			AnswerPoliciesTotal,
		)
	})
}
