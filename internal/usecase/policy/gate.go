package policy

import (
	"sort"
	"strings"

	"github.com/kailas-cloud/agrirag/internal/domain/hit"
	"github.com/kailas-cloud/agrirag/internal/domain/tag"
	"github.com/kailas-cloud/agrirag/internal/usecase/tagging"
)

// GateByTags keeps hits whose text mentions at least one tag key of tags,
// ordered by required then optional key matches, at most limit. Supplement
// hits pass through ahead of the gated ones. When nothing passes, hits are
// returned unchanged so the caller never loses all evidence to the gate.
func GateByTags(hits []hit.Hit, tags tag.Set, limit int) []hit.Hit {
	required := tagKeys(tags.RequiredAny)
	optional := tagKeys(tags.Any)
	if len(required) == 0 && len(optional) == 0 {
		return hits
	}

	type scored struct {
		h             hit.Hit
		must, anyHits int
	}
	var supplements []hit.Hit
	var kept []scored
	for _, h := range hits {
		if h.IsSupplement() {
			supplements = append(supplements, h)
			continue
		}
		blob := " " + evidenceText(h) + " "
		s := scored{h: h, must: countIn(blob, required), anyHits: countIn(blob, optional)}
		if s.must > 0 || s.anyHits > 0 {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return hits
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].must != kept[j].must {
			return kept[i].must > kept[j].must
		}
		return kept[i].anyHits > kept[j].anyHits
	})
	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}

	out := make([]hit.Hit, 0, len(supplements)+len(kept))
	out = append(out, supplements...)
	for _, s := range kept {
		out = append(out, s.h)
	}
	return out
}

// evidenceText is the folded question, alt question, answer and tag keys of a hit.
func evidenceText(h hit.Hit) string {
	d := h.Doc
	parts := []string{d.Question(), d.AltQuestion(), d.Answer()}
	for _, t := range d.Tags() {
		parts = append(parts, tag.Key(t))
	}
	return tagging.NormalizeEntity(strings.Join(parts, " "))
}

func tagKeys(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if k := tagging.NormalizeEntity(tag.Key(t)); k != "" {
			out = append(out, k)
		}
	}
	return out
}

func countIn(blob string, keys []string) int {
	n := 0
	for _, k := range keys {
		if strings.Contains(blob, " "+k+" ") {
			n++
		}
	}
	return n
}
