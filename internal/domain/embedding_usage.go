package domain

import (
	"context"
	"sync"
)

type usageKey struct{}

// RequestUsage collects external-call usage for a single request.
// The handler puts a pointer into the context before calling the pipeline;
// transports write to it; the handler reads it for response headers.
// Recovery families call the oracle concurrently, so writes are locked.
type RequestUsage struct {
	mu              sync.Mutex
	embeddingTokens int
	embeddingCalls  int
	oracleTokens    int
	oracleCalls     int
	oracleRejection error
}

// NewContextWithUsage returns a context with an embedded usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *RequestUsage) {
	u := &RequestUsage{}
	return context.WithValue(ctx, usageKey{}, u), u
}

// UsageFromContext extracts the usage collector from context. Returns nil if not set.
func UsageFromContext(ctx context.Context) *RequestUsage {
	u, _ := ctx.Value(usageKey{}).(*RequestUsage)
	return u
}

// AddEmbedding records one embedding call, even on a cache hit with 0 tokens.
func (u *RequestUsage) AddEmbedding(tokens int) {
	if u == nil {
		return
	}
	u.mu.Lock()
	u.embeddingTokens += tokens
	u.embeddingCalls++
	u.mu.Unlock()
}

// AddOracle records one oracle call.
func (u *RequestUsage) AddOracle(tokens int) {
	if u == nil {
		return
	}
	u.mu.Lock()
	u.oracleTokens += tokens
	u.oracleCalls++
	u.mu.Unlock()
}

// RejectOracle records that the oracle budget refused a call. Call sites
// degrade to their defaults, so the pipeline reads this to fail the request.
// The first rejection wins.
func (u *RequestUsage) RejectOracle(err error) {
	if u == nil || err == nil {
		return
	}
	u.mu.Lock()
	if u.oracleRejection == nil {
		u.oracleRejection = err
	}
	u.mu.Unlock()
}

// OracleRejection returns the recorded budget rejection, if any.
func (u *RequestUsage) OracleRejection() error {
	if u == nil {
		return nil
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.oracleRejection
}

// UsageSnapshot is a point-in-time copy of RequestUsage.
type UsageSnapshot struct {
	EmbeddingTokens int
	EmbeddingCalls  int
	OracleTokens    int
	OracleCalls     int
}

// Snapshot returns the current counters.
func (u *RequestUsage) Snapshot() UsageSnapshot {
	if u == nil {
		return UsageSnapshot{}
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	return UsageSnapshot{
		EmbeddingTokens: u.embeddingTokens,
		EmbeddingCalls:  u.embeddingCalls,
		OracleTokens:    u.oracleTokens,
		OracleCalls:     u.oracleCalls,
	}
}
