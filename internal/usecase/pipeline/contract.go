package pipeline

import (
	"context"

	"github.com/kailas-cloud/agrirag/internal/domain/hit"
	"github.com/kailas-cloud/agrirag/internal/domain/knowledge"
	"github.com/kailas-cloud/agrirag/internal/domain/memory"
	"github.com/kailas-cloud/agrirag/internal/domain/tag"
	"github.com/kailas-cloud/agrirag/internal/usecase/completeness"
	"github.com/kailas-cloud/agrirag/internal/usecase/conversation"
	"github.com/kailas-cloud/agrirag/internal/usecase/multihop"
	"github.com/kailas-cloud/agrirag/internal/usecase/policy"
	"github.com/kailas-cloud/agrirag/internal/usecase/routing"
	"github.com/kailas-cloud/agrirag/internal/usecase/scoring"
	"github.com/kailas-cloud/agrirag/internal/usecase/tagging"
)

// Tagger analyzes query text.
type Tagger interface {
	Analyze(query string) tagging.Result
	HasFormulaTrigger(query string) bool
}

// Retriever is the subset of retrieval used by formula mode.
type Retriever interface {
	Vector(ctx context.Context, text string) ([]float32, error)
	StrictWithVector(ctx context.Context, query string, vec []float32, tags tag.Set, topK int) ([]hit.Hit, error)
	RetrieveSimilar(ctx context.Context, query string, vec []float32, topK int) ([]hit.Hit, error)
}

// Hopper runs multi-hop retrieval.
type Hopper interface {
	Run(ctx context.Context, query string, tags tag.Set) (multihop.Result, error)
}

// Completer runs the L3 -> T4 -> T5 stages.
type Completer interface {
	Run(ctx context.Context, in completeness.Input) (completeness.Output, error)
}

// Ranker orders hits and profiles the ranking.
type Ranker interface {
	Rank(hits []hit.Hit, supplementFirst bool) []hit.Hit
	Profile(hits []hit.Hit) scoring.Profile
}

// Conversations resolves follow-ups and records user turns.
type Conversations interface {
	Resolve(ctx context.Context, userID, query string) conversation.Resolution
	AppendUser(ctx context.Context, userID, content string) error
}

// Normalizer cleans up spelling and casing of a query.
type Normalizer interface {
	Normalize(ctx context.Context, query string) (string, error)
}

// Router picks the knowledge base or general knowledge for a query.
type Router interface {
	Decide(query string, formulaIntent bool, analysis tagging.Result) routing.Decision
}

// PolicyDecider shapes the answer from the query and the top document.
type PolicyDecider interface {
	Decide(query string, primary *knowledge.Document, isListing bool) policy.Policy
}

// Recaller returns remembered facts relevant to a query.
type Recaller interface {
	Recall(ctx context.Context, userID, query string) []memory.Fact
}

// Stages are the optional stages around retrieval. A nil stage is skipped.
type Stages struct {
	Normalizer Normalizer
	Router     Router
	Policy     PolicyDecider
	Memory     Recaller
}
