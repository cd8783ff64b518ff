package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval pipeline Prometheus metrics.
var (
	HopStopsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agrirag",
			Name:      "hop_stops_total",
			Help:      "Multi-hop loop terminations by stop reason",
		},
		[]string{"reason"},
	)

	HopsPerRun = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "agrirag",
			Name:      "hops_per_run",
			Help:      "Number of hop records per retrieval run",
			Buckets:   []float64{1, 2, 3, 4, 5},
		},
	)

	RecoveryQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agrirag",
			Name:      "recovery_queries_total",
			Help:      "No-hit recovery queries by family and outcome",
		},
		[]string{"family", "outcome"}, // "accepted" / "rejected_no_tags"
	)

	CompletenessDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agrirag",
			Name:      "completeness_decisions_total",
			Help:      "Completeness pipeline decisions by stage",
		},
		[]string{"stage", "decision"},
	)

	RetrievedHits = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agrirag",
			Name:      "retrieved_hits",
			Help:      "Hits in the final context per run",
			Buckets:   []float64{0, 1, 5, 10, 20, 30, 40},
		},
		[]string{"mode"},
	)

	RouteDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agrirag",
			Name:      "route_decisions_total",
			Help:      "Catalog versus general knowledge routing by rule",
		},
		[]string{"route", "reason"},
	)

	AnswerPoliciesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agrirag",
			Name:      "answer_policies_total",
			Help:      "Answer policies chosen for retrieved evidence",
		},
		[]string{"intent", "gated"},
	)
)
