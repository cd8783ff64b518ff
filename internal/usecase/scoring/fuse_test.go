package scoring

import (
	"math"
	"testing"

	"github.com/kailas-cloud/agrirag/internal/domain/hit"
	"github.com/kailas-cloud/agrirag/internal/domain/knowledge"
)

const eps = 1e-9

func mkHit(t *testing.T, id string, tagScore int, sim float64) hit.Hit {
	t.Helper()
	d, err := knowledge.New(knowledge.Fields{ID: id})
	if err != nil {
		t.Fatalf("doc: %v", err)
	}
	return hit.Hit{Doc: &d, TagScore: tagScore, Similarity: sim}
}

func TestFuse(t *testing.T) {
	f := New(Weights{})
	tests := []struct {
		name     string
		tagScore int
		sim      float64
		want     float64
	}{
		{"zero", 0, 0, 0},
		{"similarity only", 0, 0.5, 0.175},
		{"full tags", 5, 1, 1},
		{"tags capped", 9, 0, 0.65},
		{"partial", 3, 0.8, 0.65*0.6 + 0.35*0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Fuse(tt.tagScore, tt.sim); math.Abs(got-tt.want) > eps {
				t.Errorf("Fuse(%d, %v) = %v, want %v", tt.tagScore, tt.sim, got, tt.want)
			}
		})
	}
}

func TestFuse_CustomWeights(t *testing.T) {
	f := New(Weights{TagWeight: 0.5, EmbedWeight: 0.5, MaxTagScore: 10})
	if got := f.Fuse(5, 1); math.Abs(got-0.75) > eps {
		t.Errorf("Fuse = %v, want 0.75", got)
	}
}

func TestFuse_TagScoreMonotonic(t *testing.T) {
	f := New(Weights{})
	for _, sim := range []float64{0, 0.3, 0.9} {
		prev := f.Fuse(0, sim)
		for ts := 1; ts <= 8; ts++ {
			got := f.Fuse(ts, sim)
			if got < prev {
				t.Fatalf("Fuse(%d, %v) = %v < Fuse(%d, %v) = %v", ts, sim, got, ts-1, sim, prev)
			}
			prev = got
		}
	}
}

func TestProfile_Empty(t *testing.T) {
	if p := New(Weights{}).Profile(nil); p != (Profile{}) {
		t.Errorf("expected zero profile, got %+v", p)
	}
}

func TestProfile_Values(t *testing.T) {
	f := New(Weights{})
	hits := []hit.Hit{mkHit(t, "b", 0, 0.5), mkHit(t, "a", 5, 1)}

	p := f.Profile(hits)
	if p.N != 2 {
		t.Errorf("N = %d", p.N)
	}
	if math.Abs(p.Top1-1) > eps || math.Abs(p.Top2-0.175) > eps {
		t.Errorf("top1/top2 = %v/%v", p.Top1, p.Top2)
	}
	if math.Abs(p.Mean5-0.5875) > eps {
		t.Errorf("mean5 = %v", p.Mean5)
	}
	if math.Abs(p.TagDensity-0.5) > eps {
		t.Errorf("tag density = %v", p.TagDensity)
	}
	if math.Abs(p.Confidence-0.635) > eps {
		t.Errorf("confidence = %v, want 0.635", p.Confidence)
	}
}

func TestProfile_SmallGapStillPositive(t *testing.T) {
	f := New(Weights{})
	p := f.Profile([]hit.Hit{mkHit(t, "a", 2, 0.6), mkHit(t, "b", 2, 0.6)})
	if p.Gap != 0 {
		t.Fatalf("gap = %v", p.Gap)
	}
	if p.Confidence <= 0 {
		t.Errorf("confidence must stay positive with zero gap, got %v", p.Confidence)
	}
}

func TestProfile_ConfidenceMonotonic(t *testing.T) {
	f := New(Weights{})
	rest := []Profile{
		{Top2: 0.3, Mean5: 0.4, TagDensity: 0.2},
		{Top2: 0.5, Mean5: 0.55, TagDensity: 0.6},
		{Top2: 0.1, Mean5: 0.2, TagDensity: 1},
	}
	for _, base := range rest {
		prev := -1.0
		for top1 := base.Top2; top1 <= 1.0001; top1 += 0.05 {
			p := base
			p.Top1 = top1
			p.Gap = top1 - p.Top2
			c := f.confidence(p)
			if c+eps < prev {
				t.Fatalf("confidence decreased in top1 at %v: %v < %v", top1, c, prev)
			}
			prev = c
		}

		prev = -1.0
		for td := 0.0; td <= 1.0001; td += 0.1 {
			p := base
			p.Top1 = 0.8
			p.Gap = p.Top1 - p.Top2
			p.TagDensity = td
			c := f.confidence(p)
			if c+eps < prev {
				t.Fatalf("confidence decreased in tag density at %v", td)
			}
			prev = c
		}
	}
}

func TestRank_SupplementFirst(t *testing.T) {
	f := New(Weights{})
	base := mkHit(t, "base", 5, 1)
	sup := mkHit(t, "sup", 0, 0.1)
	sup.SolutionSlot = "need_timing"

	got := f.Rank([]hit.Hit{base, sup}, true)
	if got[0].ID() != "sup" {
		t.Errorf("expected supplementary hit first, got %s", got[0].ID())
	}
	got = f.Rank([]hit.Hit{sup, base}, false)
	if got[0].ID() != "base" {
		t.Errorf("expected base hit first by score, got %s", got[0].ID())
	}
	if got[0].FusedScore == 0 {
		t.Error("Rank must set fused scores")
	}
}
