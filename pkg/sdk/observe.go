package agrirag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes of an SDK call. Failures are split by the sentinel a caller
// would branch on.
const (
	outcomeOK       = "ok"
	outcomeNoData   = "no_data"
	outcomeInvalid  = "invalid_query"
	outcomeQuota    = "quota_exceeded"
	outcomeProvider = "provider_error"
	outcomeDisabled = "disabled"
	outcomeCanceled = "canceled"
	outcomeError    = "error"
)

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, ErrInvalidQuery):
		return outcomeInvalid
	case errors.Is(err, ErrEmbeddingQuotaExceeded), errors.Is(err, ErrOracleQuotaExceeded):
		return outcomeQuota
	case errors.Is(err, ErrEmbeddingProviderError), errors.Is(err, ErrOracleError), errors.Is(err, ErrRateLimited):
		return outcomeProvider
	case errors.Is(err, ErrNotImplemented):
		return outcomeDisabled
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return outcomeCanceled
	default:
		return outcomeError
	}
}

type sdkMetrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	evidence *prometheus.HistogramVec
}

func newSDKMetrics(reg prometheus.Registerer) (*sdkMetrics, error) {
	m := &sdkMetrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agrirag",
			Subsystem: "sdk",
			Name:      "calls_total",
			Help:      "SDK calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agrirag",
			Subsystem: "sdk",
			Name:      "call_duration_seconds",
			Help:      "SDK call duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),
		evidence: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agrirag",
			Subsystem: "sdk",
			Name:      "evidence_hits",
			Help:      "Hits returned by RetrieveAndVerify per route.",
			Buckets:   []float64{0, 1, 5, 10, 20, 30, 40},
		}, []string{"route"}),
	}
	if err := registerOrReuse(reg, &m.calls); err != nil {
		return nil, err
	}
	for _, h := range []**prometheus.HistogramVec{&m.duration, &m.evidence} {
		if err := registerOrReuse(reg, h); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// registerOrReuse registers c, or points it at the collector a previous
// client already registered on reg.
func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	err := reg.Register(*c)
	if err == nil {
		return nil
	}
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return fmt.Errorf("agrirag: register metric: %w", err)
	}
	existing, ok := are.ExistingCollector.(T)
	if !ok {
		return fmt.Errorf("agrirag: metric already registered as %T", are.ExistingCollector)
	}
	*c = existing
	return nil
}

// observer logs and counts SDK calls. A nil observer is a no-op.
type observer struct {
	logger  *slog.Logger
	metrics *sdkMetrics
}

func newObserver(logger *slog.Logger, reg prometheus.Registerer) (*observer, error) {
	o := &observer{logger: logger}
	if reg != nil {
		m, err := newSDKMetrics(reg)
		if err != nil {
			return nil, err
		}
		o.metrics = m
	}
	return o, nil
}

func (o *observer) observe(op string, start time.Time, err error) {
	o.record(op, outcomeOf(err), time.Since(start), err)
}

// observeRetrieve also records how much evidence the run produced and
// whether it ended without data.
func (o *observer) observeRetrieve(start time.Time, res *Result, err error) {
	if o == nil {
		return
	}
	outcome := outcomeOf(err)
	if err == nil && res.NoData {
		outcome = outcomeNoData
	}
	if err == nil && o.metrics != nil {
		route := res.Route
		if route == "" {
			route = "rag"
		}
		o.metrics.evidence.WithLabelValues(route).Observe(float64(len(res.Hits)))
	}
	o.record("retrieve", outcome, time.Since(start), err,
		slog.Int("hits", len(res.Hits)), slog.String("route", res.Route))
}

func (o *observer) record(op, outcome string, dur time.Duration, err error, attrs ...slog.Attr) {
	if o == nil {
		return
	}
	if o.metrics != nil {
		o.metrics.calls.WithLabelValues(op, outcome).Inc()
		o.metrics.duration.WithLabelValues(op).Observe(dur.Seconds())
	}
	if o.logger == nil {
		return
	}
	args := []any{"op", op, "outcome", outcome, "duration", dur}
	for _, a := range attrs {
		args = append(args, a)
	}
	if err != nil {
		o.logger.Warn("agrirag call failed", append(args, "error", err)...)
		return
	}
	o.logger.Debug("agrirag call completed", args...)
}
