package retrieval

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/agrirag/internal/domain"
	"github.com/kailas-cloud/agrirag/internal/domain/hit"
	"github.com/kailas-cloud/agrirag/internal/domain/tag"
)

// Embedder vectorizes query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Service embeds query text and runs it through the Searcher.
// Every returned hit carries the query it came from.
type Service struct {
	embed    Embedder
	searcher *Searcher
}

// NewService creates a retrieval service.
func NewService(embed Embedder, searcher *Searcher) *Service {
	return &Service{embed: embed, searcher: searcher}
}

// Vector embeds text and records token usage on the request.
func (s *Service) Vector(ctx context.Context, text string) ([]float32, error) {
	res, err := s.embed.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}
	domain.UsageFromContext(ctx).AddEmbedding(res.TotalTokens)
	return res.Embedding, nil
}

// Retrieve runs staged retrieval (strict, then relaxed fill) for query.
func (s *Service) Retrieve(ctx context.Context, query string, tags tag.Set, topK int) ([]hit.Hit, error) {
	vec, err := s.Vector(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := s.searcher.Search(ctx, vec, tags, topK)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return withOrigin(hits, query), nil
}

// RetrieveStrict runs only the STRICT stage for query.
func (s *Service) RetrieveStrict(ctx context.Context, query string, tags tag.Set, topK int) ([]hit.Hit, error) {
	vec, err := s.Vector(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := s.searcher.SearchStrict(ctx, vec, tags, topK)
	if err != nil {
		return nil, fmt.Errorf("search strict: %w", err)
	}
	return withOrigin(hits, query), nil
}

// RetrieveSimilar ranks documents by similarity to an already embedded query.
func (s *Service) RetrieveSimilar(ctx context.Context, query string, vec []float32, topK int) ([]hit.Hit, error) {
	hits, err := s.searcher.SearchSimilarity(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("search similarity: %w", err)
	}
	return withOrigin(hits, query), nil
}

// StrictWithVector runs the STRICT stage with an already embedded query.
func (s *Service) StrictWithVector(
	ctx context.Context, query string, vec []float32, tags tag.Set, topK int,
) ([]hit.Hit, error) {
	hits, err := s.searcher.SearchStrict(ctx, vec, tags, topK)
	if err != nil {
		return nil, fmt.Errorf("search strict: %w", err)
	}
	return withOrigin(hits, query), nil
}

func withOrigin(hits []hit.Hit, query string) []hit.Hit {
	for i := range hits {
		hits[i].OriginQuery = query
	}
	return hits
}
