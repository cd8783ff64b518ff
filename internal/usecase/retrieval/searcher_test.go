package retrieval

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/kailas-cloud/agrirag/internal/domain"
	"github.com/kailas-cloud/agrirag/internal/domain/hit"
	"github.com/kailas-cloud/agrirag/internal/domain/knowledge"
	"github.com/kailas-cloud/agrirag/internal/domain/tag"
)

type testDoc struct {
	id   string
	tags string
	vec  []float32
}

func buildBase(t *testing.T, rows ...testDoc) *knowledge.Base {
	t.Helper()
	docs := make([]knowledge.Document, 0, len(rows))
	for _, r := range rows {
		d, err := knowledge.New(knowledge.Fields{ID: r.id, TagsV2: r.tags, Answer: "answer " + r.id, Embedding: r.vec})
		if err != nil {
			t.Fatalf("new doc: %v", err)
		}
		docs = append(docs, d)
	}
	kb, err := knowledge.NewBase(docs)
	if err != nil {
		t.Fatalf("new base: %v", err)
	}
	return kb
}

func sampleBase(t *testing.T) *knowledge.Base {
	return buildBase(t,
		testDoc{"a", "chemical:imidacloprid|crop:lua|pest:ray-nau", []float32{0.2, 1}},
		testDoc{"b", "chemical:imidacloprid", []float32{1, 0}},
		testDoc{"c", "crop:lua|pest:ray-nau", []float32{1, 0.1}},
		testDoc{"d", "crop:ngo", []float32{0.9, 0.4}},
		testDoc{"e", "chemical:imidacloprid|crop:lua", []float32{0.5, 0.5}},
	)
}

func TestSearch_StrictRanking(t *testing.T) {
	s := New(sampleBase(t))
	tags := tag.New([]string{"chemical:imidacloprid"}, []string{"crop:lua", "pest:ray-nau"})

	hits, err := s.Search(context.Background(), []float32{1, 0}, tags, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := hit.IDs(hits); !slices.Equal(got, []string{"a", "e"}) {
		t.Fatalf("ids = %v, want [a e]", got)
	}
	if hits[0].TagScore != 5 || hits[1].TagScore != 4 {
		t.Errorf("tag scores = %d, %d", hits[0].TagScore, hits[1].TagScore)
	}
	for _, h := range hits {
		if h.Stage != hit.StageStrict {
			t.Errorf("%s stage = %s", h.ID(), h.Stage)
		}
	}
}

func TestSearch_DropAnyFills(t *testing.T) {
	s := New(sampleBase(t))
	tags := tag.New([]string{"chemical:imidacloprid"}, []string{"pest:ray-nau"})

	hits, err := s.Search(context.Background(), []float32{1, 0}, tags, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// a passes strict; b and e only carry the required tag.
	if got := hit.IDs(hits); !slices.Equal(got, []string{"a", "b", "e"}) {
		t.Fatalf("ids = %v, want [a b e]", got)
	}
	if hits[0].Stage != hit.StageStrict || hits[1].Stage != hit.StageDropAny {
		t.Errorf("stages = %s, %s", hits[0].Stage, hits[1].Stage)
	}
}

func TestSearch_DropAnyKeepsAnyInScore(t *testing.T) {
	kb := buildBase(t,
		testDoc{"x", "product:forsan-60ec", []float32{1, 0}},
		testDoc{"y", "product:forsan-60ec|crop:ngo", []float32{0, 1}},
	)
	s := New(kb)
	tags := tag.New([]string{"product:forsan-60ec"}, []string{"crop:ngo", "crop:lua"})

	hits, err := s.Search(context.Background(), []float32{1, 0}, tags, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := hit.IDs(hits); !slices.Equal(got, []string{"y", "x"}) {
		t.Fatalf("ids = %v, want [y x]", got)
	}
	if hits[0].TagScore != 4 {
		t.Errorf("y tag score = %d, want 4", hits[0].TagScore)
	}
}

func TestSearch_NoFallbackWithoutAny(t *testing.T) {
	s := New(sampleBase(t))
	tags := tag.New([]string{"chemical:abamectin"}, nil)

	hits, err := s.Search(context.Background(), []float32{1, 0}, tags, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %v", hit.IDs(hits))
	}
}

func TestSearch_SimilarityOnlyStage(t *testing.T) {
	s := New(sampleBase(t), WithSimilarityOnly(true))
	tags := tag.New([]string{"chemical:abamectin"}, nil)

	hits, err := s.Search(context.Background(), []float32{1, 0}, tags, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := hit.IDs(hits); !slices.Equal(got, []string{"b", "c"}) {
		t.Fatalf("ids = %v, want [b c]", got)
	}
	if hits[0].Stage != hit.StageSimilarityOnly {
		t.Errorf("stage = %s", hits[0].Stage)
	}
}

func TestSearch_EmptyTagsRanksBySimilarity(t *testing.T) {
	s := New(sampleBase(t))
	hits, err := s.Search(context.Background(), []float32{0, 1}, tag.Set{}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := hit.IDs(hits); !slices.Equal(got, []string{"a", "e", "d"}) {
		t.Fatalf("ids = %v, want [a e d]", got)
	}
}

func TestSearch_StableTies(t *testing.T) {
	kb := buildBase(t,
		testDoc{"first", "crop:lua", []float32{1, 0}},
		testDoc{"second", "crop:lua", []float32{1, 0}},
		testDoc{"third", "crop:lua", []float32{1, 0}},
	)
	s := New(kb)
	tags := tag.New(nil, []string{"crop:lua"})
	for range 10 {
		hits, err := s.Search(context.Background(), []float32{1, 0}, tags, 3)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := hit.IDs(hits); !slices.Equal(got, []string{"first", "second", "third"}) {
			t.Fatalf("ids = %v, want load order", got)
		}
	}
}

func TestSearch_UniqueIDs(t *testing.T) {
	s := New(sampleBase(t), WithSimilarityOnly(true))
	tags := tag.New([]string{"chemical:imidacloprid"}, []string{"crop:lua"})

	hits, err := s.Search(context.Background(), []float32{1, 1}, tags, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seen := map[string]bool{}
	for _, h := range hits {
		if seen[h.ID()] {
			t.Fatalf("duplicate id %s", h.ID())
		}
		seen[h.ID()] = true
	}
	if len(hits) != 5 {
		t.Errorf("expected all 5 docs, got %d", len(hits))
	}
}

func TestSearch_DimensionMismatch(t *testing.T) {
	s := New(sampleBase(t))
	_, err := s.Search(context.Background(), []float32{1, 0, 0}, tag.Set{}, 3)
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestSearch_Cancelled(t *testing.T) {
	s := New(sampleBase(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Search(ctx, []float32{1, 0}, tag.Set{}, 3); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSearchStrict_NoFill(t *testing.T) {
	s := New(sampleBase(t))
	tags := tag.New([]string{"chemical:imidacloprid"}, []string{"pest:ray-nau"})
	hits, err := s.SearchStrict(context.Background(), []float32{1, 0}, tags, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := hit.IDs(hits); !slices.Equal(got, []string{"a"}) {
		t.Fatalf("ids = %v, want [a]", got)
	}
}

func TestSearch_ReasonListsMatchedTags(t *testing.T) {
	s := New(sampleBase(t))
	tags := tag.New([]string{"chemical:imidacloprid"}, []string{"crop:lua"})
	hits, err := s.Search(context.Background(), []float32{1, 0}, tags, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits[0].Reason != "must=chemical:imidacloprid any=crop:lua" {
		t.Errorf("reason = %q", hits[0].Reason)
	}
}
