package completeness

import (
	"context"

	"github.com/kailas-cloud/agrirag/internal/domain/hit"
	"github.com/kailas-cloud/agrirag/internal/domain/slot"
	"github.com/kailas-cloud/agrirag/internal/domain/tag"
)

// GapDetector judges whether a draft answer is actionable.
type GapDetector interface {
	GapCheck(ctx context.Context, query, draft string) (slot.Report, error)
}

// KnowledgeSource synthesizes background knowledge when the KB falls short.
type KnowledgeSource interface {
	Knowledge(ctx context.Context, query string, missing []slot.Slot, excerpt string) (string, error)
}

// Retriever embeds a query and runs staged retrieval.
type Retriever interface {
	Retrieve(ctx context.Context, query string, tags tag.Set, topK int) ([]hit.Hit, error)
}

// Tagger extracts tags from intent queries.
type Tagger interface {
	Extract(query string) tag.Set
}

// Ranker orders hits for the context.
type Ranker interface {
	Rank(hits []hit.Hit, supplementFirst bool) []hit.Hit
}
