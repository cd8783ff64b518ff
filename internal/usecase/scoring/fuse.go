package scoring

import (
	"math"
	"slices"
	"sort"

	"github.com/kailas-cloud/agrirag/internal/domain/hit"
)

// Defaults used when a Weights field is zero.
const (
	DefaultTagWeight    = 0.65
	DefaultEmbedWeight  = 0.35
	DefaultMaxTagScore  = 5.0
	DefaultGapThreshold = 0.15
	DefaultMinGapBonus  = 0.05
)

// Weights holds the linear fusion parameters.
type Weights struct {
	TagWeight    float64
	EmbedWeight  float64
	MaxTagScore  float64
	GapThreshold float64
	MinGapBonus  float64
}

func (w Weights) withDefaults() Weights {
	if w.TagWeight == 0 && w.EmbedWeight == 0 {
		w.TagWeight, w.EmbedWeight = DefaultTagWeight, DefaultEmbedWeight
	}
	if w.MaxTagScore <= 0 {
		w.MaxTagScore = DefaultMaxTagScore
	}
	if w.GapThreshold <= 0 {
		w.GapThreshold = DefaultGapThreshold
	}
	if w.MinGapBonus <= 0 {
		w.MinGapBonus = DefaultMinGapBonus
	}
	return w
}

// Profile summarizes the quality of a ranked hit list.
type Profile struct {
	Top1       float64 `json:"top1"`
	Top2       float64 `json:"top2"`
	Gap        float64 `json:"gap"`
	Mean5      float64 `json:"mean5"`
	N          int     `json:"n"`
	Confidence float64 `json:"confidence"`
	TagDensity float64 `json:"tag_density"`
}

// Fuser combines tag match strength and vector similarity into one score.
// Tag matches dominate; similarity separates hits with equal tag scores.
type Fuser struct {
	w Weights
}

// New creates a Fuser. Zero fields fall back to the package defaults.
func New(w Weights) *Fuser {
	return &Fuser{w: w.withDefaults()}
}

// Fuse returns TagWeight·min(1, tagScore/MaxTagScore) + EmbedWeight·similarity.
func (f *Fuser) Fuse(tagScore int, similarity float64) float64 {
	t := math.Min(1, float64(tagScore)/f.w.MaxTagScore)
	return f.w.TagWeight*t + f.w.EmbedWeight*similarity
}

// Apply sets FusedScore on every hit in place.
func (f *Fuser) Apply(hits []hit.Hit) {
	for i := range hits {
		hits[i].FusedScore = f.Fuse(hits[i].TagScore, hits[i].Similarity)
	}
}

// Rank returns a copy of hits ordered by fused score descending.
// Supplementary hits stay ahead of base hits when supplementFirst is set.
func (f *Fuser) Rank(hits []hit.Hit, supplementFirst bool) []hit.Hit {
	out := slices.Clone(hits)
	f.Apply(out)
	sort.SliceStable(out, func(i, j int) bool {
		if supplementFirst && out[i].IsSupplement() != out[j].IsSupplement() {
			return out[i].IsSupplement()
		}
		return out[i].FusedScore > out[j].FusedScore
	})
	return out
}

// Profile computes top-k statistics and the confidence value of hits.
// Missing fused scores are computed, the input is not modified.
func (f *Fuser) Profile(hits []hit.Hit) Profile {
	if len(hits) == 0 {
		return Profile{}
	}
	scores := make([]float64, len(hits))
	tagScores := make([]float64, len(hits))
	for i, h := range hits {
		s := h.FusedScore
		if s == 0 {
			s = f.Fuse(h.TagScore, h.Similarity)
		}
		scores[i] = s
		tagScores[i] = float64(h.TagScore)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(scores)))
	sort.Sort(sort.Reverse(sort.Float64Slice(tagScores)))

	p := Profile{N: len(scores), Top1: scores[0]}
	if len(scores) > 1 {
		p.Top2 = scores[1]
	}
	p.Gap = p.Top1 - p.Top2
	p.Mean5 = meanTop(scores, 5)
	p.TagDensity = math.Min(1, meanTop(tagScores, 5)/f.w.MaxTagScore)
	p.Confidence = f.confidence(p)
	return p
}

func (f *Fuser) confidence(p Profile) float64 {
	bonus := math.Min(1, math.Max(f.w.MinGapBonus, p.Gap/f.w.GapThreshold))
	density := clamp01(p.Mean5 / math.Max(p.Top1, 1e-6))
	base := p.Top1 * bonus * (0.5 + 0.5*density)
	return base * (0.6 + 0.4*p.TagDensity)
}

func meanTop(sorted []float64, k int) float64 {
	if len(sorted) > k {
		sorted = sorted[:k]
	}
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return sum / float64(len(sorted))
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
