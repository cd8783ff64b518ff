package domain

import "errors"

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrInvalidQuery signals an empty or oversized user query.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingQuotaExceeded signals an exhausted embedding budget.
	ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrOracleError signals a reasoning oracle failure.
	ErrOracleError = errors.New("oracle error")
	// ErrOracleQuotaExceeded signals an exhausted oracle token budget.
	ErrOracleQuotaExceeded = errors.New("oracle quota exceeded")
	// ErrKnowledgeBaseInvalid signals a malformed knowledge base snapshot.
	ErrKnowledgeBaseInvalid = errors.New("invalid knowledge base")
	// ErrDimensionMismatch signals a query vector that does not match the knowledge base.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrNotImplemented signals an unimplemented feature.
	ErrNotImplemented = errors.New("not implemented")
)
