package reasoning

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/agrirag/internal/domain"
	"github.com/kailas-cloud/agrirag/internal/metrics"
)

// BudgetChecker is the local interface for oracle budget enforcement.
type BudgetChecker interface {
	Check(ctx context.Context) error
	Record(tokens int64)
	RemainingDaily() int64
	RemainingMonthly() int64
}

// BudgetedOracle enforces the oracle token budget in front of a transport.
type BudgetedOracle struct {
	inner    domain.Oracle
	provider string
	budget   BudgetChecker
	logger   *zap.Logger
}

// NewBudgetedOracle wraps an oracle with budget enforcement.
func NewBudgetedOracle(inner domain.Oracle, provider string, budget BudgetChecker, logger *zap.Logger) *BudgetedOracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BudgetedOracle{inner: inner, provider: provider, budget: budget, logger: logger}
}

// Complete checks the budget, delegates, and records consumed tokens.
func (o *BudgetedOracle) Complete(ctx context.Context, req domain.OracleRequest) (domain.OracleResponse, error) {
	if o.budget != nil {
		if err := o.budget.Check(ctx); err != nil {
			o.logger.Warn("Oracle budget exceeded",
				zap.String("provider", o.provider),
				zap.String("purpose", req.Purpose),
				zap.Error(err),
			)
			err = fmt.Errorf("budget check: %w", err)
			domain.UsageFromContext(ctx).RejectOracle(err)
			return domain.OracleResponse{}, err
		}
	}

	resp, err := o.inner.Complete(ctx, req)
	if err != nil {
		return domain.OracleResponse{}, fmt.Errorf("complete %s: %w", req.Purpose, err)
	}

	if o.budget != nil && resp.TotalTokens > 0 {
		o.budget.Record(int64(resp.TotalTokens))
		metrics.BudgetRemaining(metrics.ScopeOracle, o.budget.RemainingDaily(), o.budget.RemainingMonthly())
	}
	return resp, nil
}

// HealthCheck forwards to the inner oracle when it supports health checks.
func (o *BudgetedOracle) HealthCheck(ctx context.Context) error {
	if hc, ok := o.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}
