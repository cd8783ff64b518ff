package hit

import "github.com/kailas-cloud/agrirag/internal/domain/knowledge"

// Stage names the retrieval stage that admitted a hit.
type Stage string

// Retrieval stages, most specific first.
const (
	StageStrict         Stage = "STRICT"
	StageDropAny        Stage = "FALLBACK1_DROP_ANY"
	StageSimilarityOnly Stage = "FALLBACK2_SIMILARITY_ONLY"
	StageFormula        Stage = "FORMULA"
)

// Hit is a scored reference to a knowledge base document.
// Provenance fields are for dedupe and audit, never for scoring.
type Hit struct {
	Doc        *knowledge.Document
	Similarity float64
	TagScore   int
	FusedScore float64
	Stage      Stage
	Reason     string

	OriginQuery  string
	HopIndex     int
	RecoveryMode string
	SolutionSlot string
}

// ID returns the underlying document id.
func (h Hit) ID() string { return h.Doc.ID() }

// IsSupplement reports whether the hit was added by solution completion.
func (h Hit) IsSupplement() bool { return h.SolutionSlot != "" }

// Seen tracks document ids already in a result set.
type Seen map[string]struct{}

// NewSeen builds a Seen from existing hits.
func NewSeen(hits []Hit) Seen {
	s := make(Seen, len(hits))
	for _, h := range hits {
		s[h.ID()] = struct{}{}
	}
	return s
}

// Has reports whether id was seen.
func (s Seen) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Dedupe returns hits not yet seen, in input order, and marks them seen.
func (s Seen) Dedupe(hits []Hit) []Hit {
	out := make([]Hit, 0, len(hits))
	for _, h := range hits {
		id := h.ID()
		if _, ok := s[id]; ok {
			continue
		}
		s[id] = struct{}{}
		out = append(out, h)
	}
	return out
}

// IDs returns the ids of hits in order.
func IDs(hits []Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.ID()
	}
	return out
}
