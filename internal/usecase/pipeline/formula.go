package pipeline

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/agrirag/internal/domain/hit"
	"github.com/kailas-cloud/agrirag/internal/domain/tag"
)

// formulaSearch gathers evidence for every required tag of a combination
// query: the budget is split evenly across tags, each searched strictly,
// then a similarity search fills what is left.
func (s *Service) formulaSearch(ctx context.Context, query string, tags tag.Set, budget int) ([]hit.Hit, error) {
	vec, err := s.retriever.Vector(ctx, query)
	if err != nil {
		return nil, err
	}

	var out []hit.Hit
	pos := make(map[string]int)
	if n := len(tags.RequiredAny); n > 0 {
		perTag := max(1, budget/n)
		for _, t := range tags.RequiredAny {
			hits, err := s.retriever.StrictWithVector(ctx, query, vec, tag.Set{RequiredAny: []string{t}}, perTag)
			if err != nil {
				return nil, fmt.Errorf("formula tag %s: %w", t, err)
			}
			for _, h := range hits {
				h.Stage = hit.StageFormula
				if i, ok := pos[h.ID()]; ok {
					if h.Similarity > out[i].Similarity {
						out[i] = h
					}
					continue
				}
				pos[h.ID()] = len(out)
				out = append(out, h)
			}
		}
	}

	if len(out) < budget {
		free, err := s.retriever.RetrieveSimilar(ctx, query, vec, budget)
		if err != nil {
			return nil, fmt.Errorf("formula fill: %w", err)
		}
		for _, h := range hit.NewSeen(out).Dedupe(free) {
			if len(out) == budget {
				break
			}
			out = append(out, h)
		}
	}
	if len(out) > budget {
		out = out[:budget]
	}
	return out, nil
}
