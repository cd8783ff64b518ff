package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kailas-cloud/agrirag/internal/domain"
	"github.com/kailas-cloud/agrirag/internal/domain/hit"
	"github.com/kailas-cloud/agrirag/internal/domain/knowledge"
	"github.com/kailas-cloud/agrirag/internal/domain/tag"
)

// Tag score weights.
const (
	requiredWeight = 3
	anyWeight      = 1
)

// Searcher runs staged brute-force retrieval over the in-memory knowledge base.
type Searcher struct {
	kb             *knowledge.Base
	similarityOnly bool
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithSimilarityOnly enables the FALLBACK2_SIMILARITY_ONLY stage.
func WithSimilarityOnly(enabled bool) Option {
	return func(s *Searcher) { s.similarityOnly = enabled }
}

// New creates a Searcher over kb.
func New(kb *knowledge.Base, opts ...Option) *Searcher {
	s := &Searcher{kb: kb}
	for _, o := range opts {
		o(s)
	}
	return s
}

type candidate struct {
	doc         *knowledge.Document
	sim         float64
	matchedReq  []string
	matchedAny  []string
	tagScore    int
	passStrict  bool
	passDropAny bool
}

// Search ranks documents by tag constraints and similarity with staged relaxation.
// Strict results come first; later stages only fill up to topK with new documents.
func (s *Searcher) Search(ctx context.Context, vec []float32, tags tag.Set, topK int) ([]hit.Hit, error) {
	cands, err := s.score(ctx, vec, tags)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}

	out := pick(cands, topK, hit.StageStrict, func(c *candidate) bool { return c.passStrict })

	if len(out) < topK && len(tags.Any) > 0 {
		fb := pick(cands, topK, hit.StageDropAny, func(c *candidate) bool { return c.passDropAny })
		out = mergeFill(out, fb, topK)
	}
	if s.similarityOnly && len(out) < topK {
		fb := pick(cands, topK, hit.StageSimilarityOnly, func(*candidate) bool { return true })
		out = mergeFill(out, fb, topK)
	}
	return out, nil
}

// SearchStrict runs the STRICT stage only.
func (s *Searcher) SearchStrict(ctx context.Context, vec []float32, tags tag.Set, topK int) ([]hit.Hit, error) {
	cands, err := s.score(ctx, vec, tags)
	if err != nil {
		return nil, err
	}
	return pick(cands, topK, hit.StageStrict, func(c *candidate) bool { return c.passStrict }), nil
}

// SearchSimilarity ranks every document by similarity alone.
func (s *Searcher) SearchSimilarity(ctx context.Context, vec []float32, topK int) ([]hit.Hit, error) {
	cands, err := s.score(ctx, vec, tag.Set{})
	if err != nil {
		return nil, err
	}
	return pick(cands, topK, hit.StageSimilarityOnly, func(*candidate) bool { return true }), nil
}

func (s *Searcher) score(ctx context.Context, vec []float32, tags tag.Set) ([]candidate, error) {
	if dim := s.kb.Dimension(); dim > 0 && len(vec) != dim {
		return nil, fmt.Errorf("query has %d dimensions, knowledge base %d: %w",
			len(vec), dim, domain.ErrDimensionMismatch)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	qNorm := knowledge.VectorNorm(vec)
	cands := make([]candidate, s.kb.Len())
	for i := range cands {
		doc := s.kb.At(i)
		c := candidate{doc: doc}
		if len(doc.Embedding()) > 0 {
			c.sim = doc.Cosine(vec, qNorm)
		}
		for _, t := range tags.RequiredAny {
			if doc.HasTag(t) {
				c.matchedReq = append(c.matchedReq, t)
			}
		}
		for _, t := range tags.Any {
			if doc.HasTag(t) {
				c.matchedAny = append(c.matchedAny, t)
			}
		}
		c.tagScore = requiredWeight*len(c.matchedReq) + anyWeight*len(c.matchedAny)
		reqOK := len(tags.RequiredAny) == 0 || len(c.matchedReq) > 0
		anyOK := len(tags.Any) == 0 || len(c.matchedAny) > 0
		c.passDropAny = reqOK
		c.passStrict = reqOK && anyOK
		cands[i] = c
	}
	return cands, nil
}

// pick keeps passing candidates ranked by (tagScore, similarity) descending,
// ties resolved by load order.
func pick(cands []candidate, topK int, stage hit.Stage, pass func(*candidate) bool) []hit.Hit {
	if topK <= 0 {
		return nil
	}
	passed := make([]*candidate, 0, len(cands))
	for i := range cands {
		if pass(&cands[i]) {
			passed = append(passed, &cands[i])
		}
	}
	sort.SliceStable(passed, func(i, j int) bool {
		a, b := passed[i], passed[j]
		if a.tagScore != b.tagScore {
			return a.tagScore > b.tagScore
		}
		return a.sim > b.sim
	})
	if len(passed) > topK {
		passed = passed[:topK]
	}

	out := make([]hit.Hit, len(passed))
	for i, c := range passed {
		out[i] = hit.Hit{
			Doc:        c.doc,
			Similarity: c.sim,
			TagScore:   c.tagScore,
			Stage:      stage,
			Reason:     reason(c),
		}
	}
	return out
}

func reason(c *candidate) string {
	var parts []string
	if len(c.matchedReq) > 0 {
		parts = append(parts, "must="+strings.Join(c.matchedReq, ","))
	}
	if len(c.matchedAny) > 0 {
		parts = append(parts, "any="+strings.Join(c.matchedAny, ","))
	}
	if len(parts) == 0 {
		return "similarity"
	}
	return strings.Join(parts, " ")
}

// mergeFill appends secondary hits not already in primary until topK is reached.
func mergeFill(primary, secondary []hit.Hit, topK int) []hit.Hit {
	seen := hit.NewSeen(primary)
	out := primary
	for _, h := range secondary {
		if len(out) >= topK {
			break
		}
		if seen.Has(h.ID()) {
			continue
		}
		seen[h.ID()] = struct{}{}
		out = append(out, h)
	}
	return out
}
