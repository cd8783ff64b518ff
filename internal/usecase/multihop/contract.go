package multihop

import (
	"context"

	"github.com/kailas-cloud/agrirag/internal/domain/hit"
	"github.com/kailas-cloud/agrirag/internal/domain/hop"
	"github.com/kailas-cloud/agrirag/internal/domain/tag"
	"github.com/kailas-cloud/agrirag/internal/usecase/reasoning"
)

// Retriever embeds a query and runs staged retrieval.
type Retriever interface {
	Retrieve(ctx context.Context, query string, tags tag.Set, topK int) ([]hit.Hit, error)
}

// Decider is the oracle side of the loop.
type Decider interface {
	NextHop(ctx context.Context, query string, hits []hit.Hit, hopIndex int) (reasoning.HopDecision, error)
	Intent(ctx context.Context, query string) (hop.IntentHint, error)
}

// Recoverer produces evidence when the anchored first hop cannot.
type Recoverer interface {
	Recover(ctx context.Context, query string, tags tag.Set) ([]hit.Hit, error)
}
