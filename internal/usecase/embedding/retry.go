package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/agrirag/internal/domain"
	"github.com/kailas-cloud/agrirag/internal/logger"
)

// DefaultRetryDelay is the pause before the single retry.
const DefaultRetryDelay = 200 * time.Millisecond

// RetryEmbedder retries a failed embedding exactly once.
// Budget rejections and cancelled contexts are not retried.
type RetryEmbedder struct {
	inner domain.Embedder
	delay time.Duration
}

// NewRetryEmbedder wraps inner with one retry after delay.
func NewRetryEmbedder(inner domain.Embedder, delay time.Duration) *RetryEmbedder {
	if delay < 0 {
		delay = 0
	}
	return &RetryEmbedder{inner: inner, delay: delay}
}

// Embed calls inner, retrying once on a retryable failure.
func (r *RetryEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := r.inner.Embed(ctx, text)
	if err == nil || !retryable(ctx, err) {
		return res, err //nolint:wrapcheck // transparent decorator
	}

	logger.FromContext(ctx).Warn("embedding failed, retrying once", zap.Error(err))

	if r.delay > 0 {
		t := time.NewTimer(r.delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return domain.EmbeddingResult{}, fmt.Errorf("embedding retry: %w", ctx.Err())
		case <-t.C:
		}
	}

	res, err = r.inner.Embed(ctx, text)
	if err != nil {
		if errors.Is(err, domain.ErrEmbeddingProviderError) || errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
			return domain.EmbeddingResult{}, fmt.Errorf("embedding retry: %w", err)
		}
		return domain.EmbeddingResult{}, fmt.Errorf("embedding retry: %w: %w", domain.ErrEmbeddingProviderError, err)
	}
	return res, nil
}

// HealthCheck forwards to the inner embedder when it supports health checks.
func (r *RetryEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := r.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, domain.ErrEmbeddingQuotaExceeded)
}
