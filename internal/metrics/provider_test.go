package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestProviderCall_CountsAndTimes(t *testing.T) {
	calls := ProviderCallsTotal.WithLabelValues(ScopeOracle, "m-call", "hop_plan", OutcomeSuccess)
	before := testutil.ToFloat64(calls)
	durBefore := testutil.CollectAndCount(ProviderCallDuration)

	ProviderCall(ScopeOracle, "m-call", "hop_plan", OutcomeSuccess, 120*time.Millisecond)

	if got := testutil.ToFloat64(calls) - before; got != 1 {
		t.Errorf("calls delta = %v, want 1", got)
	}
	if testutil.CollectAndCount(ProviderCallDuration) <= durBefore {
		t.Error("expected a new duration series")
	}
}

func TestProviderCall_RejectedBeforeNetworkSkipsLatency(t *testing.T) {
	durBefore := testutil.CollectAndCount(ProviderCallDuration)

	ProviderCall(ScopeOracle, "m-limited", "", OutcomeRateLimited, 0)

	if got := testutil.ToFloat64(ProviderCallsTotal.WithLabelValues(ScopeOracle, "m-limited", "unknown", OutcomeRateLimited)); got != 1 {
		t.Errorf("rate limited calls = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(ProviderCallDuration); got != durBefore {
		t.Errorf("duration series = %d, want %d", got, durBefore)
	}
}

func TestProviderTokens(t *testing.T) {
	total := ProviderTokensTotal.WithLabelValues(ScopeEmbedding, "m-tok", "total")
	prompt := ProviderTokensTotal.WithLabelValues(ScopeEmbedding, "m-tok", "prompt")

	ProviderTokens(ScopeEmbedding, "m-tok", 7, 9)
	ProviderTokens(ScopeEmbedding, "m-tok", 0, 0)

	if got := testutil.ToFloat64(total); got != 9 {
		t.Errorf("total = %v, want 9", got)
	}
	if got := testutil.ToFloat64(prompt); got != 7 {
		t.Errorf("prompt = %v, want 7", got)
	}
}

func TestBudgetRemaining(t *testing.T) {
	BudgetRemaining(ScopeOracle, 40, 900)

	if got := testutil.ToFloat64(BudgetTokensRemaining.WithLabelValues(ScopeOracle, "daily")); got != 40 {
		t.Errorf("daily = %v", got)
	}
	if got := testutil.ToFloat64(BudgetTokensRemaining.WithLabelValues(ScopeOracle, "monthly")); got != 900 {
		t.Errorf("monthly = %v", got)
	}
}

func TestRegister_Idempotent(t *testing.T) {
	Register()
	Register()
}
