package memory

import (
	"context"

	"github.com/kailas-cloud/agrirag/internal/domain/memory"
	"github.com/kailas-cloud/agrirag/internal/usecase/reasoning"
)

// Store persists facts keyed by user id.
type Store interface {
	Facts(ctx context.Context, userID string) ([]memory.Fact, error)
	Add(ctx context.Context, userID string, facts []memory.Fact) error
	Clear(ctx context.Context, userID string) error
}

// Vectorizer embeds text.
type Vectorizer interface {
	Vector(ctx context.Context, text string) ([]float32, error)
}

// Summarizer distills facts from a transcript.
type Summarizer interface {
	SummarizeFacts(ctx context.Context, transcript string) ([]reasoning.Fact, error)
}
