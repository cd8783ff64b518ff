package recovery

import (
	"context"

	"github.com/kailas-cloud/agrirag/internal/domain/hit"
	"github.com/kailas-cloud/agrirag/internal/domain/tag"
	"github.com/kailas-cloud/agrirag/internal/usecase/reasoning"
)

// QueryGenerator asks the oracle for alternative queries of one family.
type QueryGenerator interface {
	RecoveryQueries(ctx context.Context, family reasoning.Family, query string, n int) ([]string, error)
}

// Tagger extracts tags from a generated query.
type Tagger interface {
	Extract(query string) tag.Set
}

// Retriever embeds a query and runs staged retrieval.
type Retriever interface {
	Retrieve(ctx context.Context, query string, tags tag.Set, topK int) ([]hit.Hit, error)
}
