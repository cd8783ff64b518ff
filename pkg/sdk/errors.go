package agrirag

import "github.com/kailas-cloud/agrirag/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNotFound               = domain.ErrNotFound
	ErrInvalidQuery           = domain.ErrInvalidQuery
	ErrRateLimited            = domain.ErrRateLimited
	ErrEmbeddingQuotaExceeded = domain.ErrEmbeddingQuotaExceeded
	ErrEmbeddingProviderError = domain.ErrEmbeddingProviderError
	ErrOracleError            = domain.ErrOracleError
	ErrOracleQuotaExceeded    = domain.ErrOracleQuotaExceeded
	ErrKnowledgeBaseInvalid   = domain.ErrKnowledgeBaseInvalid
	ErrDimensionMismatch      = domain.ErrDimensionMismatch
	ErrNotImplemented         = domain.ErrNotImplemented
)
