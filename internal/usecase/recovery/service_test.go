package recovery

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/kailas-cloud/agrirag/internal/domain"
	"github.com/kailas-cloud/agrirag/internal/domain/hit"
	"github.com/kailas-cloud/agrirag/internal/domain/knowledge"
	"github.com/kailas-cloud/agrirag/internal/domain/tag"
	"github.com/kailas-cloud/agrirag/internal/usecase/reasoning"
)

// --- Fakes ---

type fakeGen struct {
	queries map[reasoning.Family][]string
	fail    map[reasoning.Family]bool
}

func (f *fakeGen) RecoveryQueries(_ context.Context, fam reasoning.Family, _ string, n int) ([]string, error) {
	if f.fail[fam] {
		return nil, errors.New("oracle down")
	}
	q := f.queries[fam]
	if len(q) > n {
		q = q[:n]
	}
	return q, nil
}

type fakeTagger map[string]tag.Set

func (f fakeTagger) Extract(q string) tag.Set { return f[q] }

type docSpec struct {
	id       string
	sim      float64
	tagScore int
}

type fakeRetriever struct {
	mu      sync.Mutex
	byQuery map[string][]docSpec
	tags    map[string]tag.Set
	err     error
}

func (f *fakeRetriever) Retrieve(_ context.Context, q string, tags tag.Set, _ int) ([]hit.Hit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tags == nil {
		f.tags = map[string]tag.Set{}
	}
	f.tags[q] = tags
	if f.err != nil {
		return nil, f.err
	}
	var out []hit.Hit
	for _, s := range f.byQuery[q] {
		d, _ := knowledge.New(knowledge.Fields{ID: s.id})
		out = append(out, hit.Hit{Doc: &d, Similarity: s.sim, TagScore: s.tagScore, OriginQuery: q})
	}
	return out, nil
}

var crop = tag.New(nil, []string{"crop:lua"})

// --- Tests ---

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		tags tag.Set
		want Branch
	}{
		{"pest", tag.New(nil, []string{"pest:ray-nau", "disease:dao-on"}), BranchPest},
		{"weed", tag.New(nil, []string{"weed:co-lac"}), BranchPest},
		{"disease", tag.New(nil, []string{"disease:dao-on", "crop:lua"}), BranchDisease},
		{"generic", crop, BranchGeneric},
		{"empty", tag.Set{}, BranchGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.tags); got != tt.want {
				t.Errorf("Classify = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFamilies(t *testing.T) {
	if got := Families(BranchPest)[0]; got != reasoning.PestFromSymptom {
		t.Errorf("pest branch starts with %s", got)
	}
	if got := Families(BranchDisease)[0]; got != reasoning.DiseaseFromSymptom {
		t.Errorf("disease branch starts with %s", got)
	}
	if got := len(Families(BranchGeneric)); got != 3 {
		t.Errorf("generic branch has %d families", got)
	}
}

func TestRecover_RejectsUntaggedQueries(t *testing.T) {
	gen := &fakeGen{queries: map[reasoning.Family][]string{
		reasoning.EntityGuess:     {"grounded", "hallucinated"},
		reasoning.GenericRephrase: {"also grounded"},
	}}
	tagger := fakeTagger{
		"grounded":      tag.New([]string{"chemical:abamectin"}, []string{"crop:lua"}),
		"also grounded": crop,
	}
	ret := &fakeRetriever{byQuery: map[string][]docSpec{
		"grounded":      {{"a", 0.9, 2}},
		"hallucinated":  {{"x", 0.99, 5}},
		"also grounded": {{"b", 0.5, 1}},
	}}
	s := New(gen, tagger, ret, Config{})

	hits, err := s.Recover(context.Background(), "q", tag.Set{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := hit.IDs(hits); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("ids = %v, want [a b]", got)
	}
	if _, ok := ret.tags["hallucinated"]; ok {
		t.Error("untagged query must not be retrieved")
	}
	folded := ret.tags["grounded"]
	if len(folded.RequiredAny) != 0 || !slices.Equal(folded.Any, []string{"chemical:abamectin", "crop:lua"}) {
		t.Errorf("relaxed tags = %+v", folded)
	}
}

func TestRecover_ProvenanceAndFirstWins(t *testing.T) {
	gen := &fakeGen{queries: map[reasoning.Family][]string{
		reasoning.PestFromSymptom:  {"p1"},
		reasoning.ControlMechanism: {"m1"},
	}}
	tagger := fakeTagger{"p1": crop, "m1": crop}
	ret := &fakeRetriever{byQuery: map[string][]docSpec{
		"p1": {{"shared", 0.5, 1}},
		"m1": {{"shared", 0.9, 1}, {"own", 0.4, 1}},
	}}
	s := New(gen, tagger, ret, Config{})

	hits, err := s.Recover(context.Background(), "q", tag.New(nil, []string{"pest:ray-nau"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, h := range hits {
		if h.ID() == "shared" && (h.RecoveryMode != string(reasoning.PestFromSymptom) || h.OriginQuery != "p1") {
			t.Errorf("shared hit provenance = %s/%s, want first family", h.RecoveryMode, h.OriginQuery)
		}
		if h.ID() == "own" && h.RecoveryMode != string(reasoning.ControlMechanism) {
			t.Errorf("own hit mode = %s", h.RecoveryMode)
		}
	}
}

func TestRecover_FamilyFailureIsEmpty(t *testing.T) {
	gen := &fakeGen{
		queries: map[reasoning.Family][]string{reasoning.GenericRephrase: {"g"}},
		fail:    map[reasoning.Family]bool{reasoning.EntityGuess: true},
	}
	ret := &fakeRetriever{byQuery: map[string][]docSpec{"g": {{"a", 0.5, 1}}}}
	s := New(gen, fakeTagger{"g": crop}, ret, Config{})

	hits, err := s.Recover(context.Background(), "q", tag.Set{})
	if err != nil {
		t.Fatalf("oracle failure must not escape: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("hits = %d", len(hits))
	}
}

func TestRecover_RetrievalErrorAborts(t *testing.T) {
	gen := &fakeGen{queries: map[reasoning.Family][]string{reasoning.EntityGuess: {"e"}}}
	ret := &fakeRetriever{err: domain.ErrEmbeddingProviderError}
	s := New(gen, fakeTagger{"e": crop}, ret, Config{})

	if _, err := s.Recover(context.Background(), "q", tag.Set{}); !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected embedding error, got %v", err)
	}
}

func TestRecover_DiversityAcrossFamilies(t *testing.T) {
	// The first family has many strong hits; the others only weak ones.
	var strong []docSpec
	for _, id := range []string{"s1", "s2", "s3", "s4", "s5", "s6"} {
		strong = append(strong, docSpec{id, 0.95, 5})
	}
	gen := &fakeGen{queries: map[reasoning.Family][]string{
		reasoning.PestFromSymptom:  {"strong"},
		reasoning.ControlMechanism: {"mech"},
		reasoning.FormulaPhrasing:  {"formula"},
		reasoning.GenericRephrase:  {"generic"},
	}}
	tagger := fakeTagger{"strong": crop, "mech": crop, "formula": crop, "generic": crop}
	ret := &fakeRetriever{byQuery: map[string][]docSpec{
		"strong":  strong,
		"mech":    {{"m1", 0.1, 0}},
		"formula": {{"f1", 0.1, 0}},
		"generic": {{"g1", 0.1, 0}},
	}}
	s := New(gen, tagger, ret, Config{MaxDocs: 6})

	hits, err := s.Recover(context.Background(), "q", tag.New(nil, []string{"pest:ray-nau"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 6 {
		t.Fatalf("expected cap of 6, got %d", len(hits))
	}
	modes := map[string]bool{}
	for _, h := range hits {
		modes[h.RecoveryMode] = true
	}
	for _, f := range Families(BranchPest) {
		if !modes[string(f)] {
			t.Errorf("family %s missing from recovered set", f)
		}
	}
}

func TestRecover_OrderedByComposite(t *testing.T) {
	gen := &fakeGen{queries: map[reasoning.Family][]string{
		reasoning.EntityGuess:     {"e"},
		reasoning.GenericRephrase: {"g"},
	}}
	tagger := fakeTagger{"e": crop, "g": crop}
	ret := &fakeRetriever{byQuery: map[string][]docSpec{
		"e": {{"low", 0.1, 0}},
		"g": {{"high", 0.9, 5}},
	}}
	s := New(gen, tagger, ret, Config{})

	hits, _ := s.Recover(context.Background(), "q", tag.Set{})
	if got := hit.IDs(hits); !slices.Equal(got, []string{"high", "low"}) {
		t.Errorf("ids = %v, want composite order", got)
	}
}

func TestComposite(t *testing.T) {
	s := New(nil, nil, nil, Config{})
	d, _ := knowledge.New(knowledge.Fields{ID: "x"})
	h := hit.Hit{Doc: &d, Similarity: 0.5, TagScore: 10}
	// 0.6*0.5 + 0.3*1 + 0.1*0.8
	if got := s.composite(h, 0.8); got < 0.6799 || got > 0.6801 {
		t.Errorf("composite = %v, want 0.68", got)
	}
}
