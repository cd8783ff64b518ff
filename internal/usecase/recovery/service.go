package recovery

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/agrirag/internal/domain/hit"
	"github.com/kailas-cloud/agrirag/internal/domain/tag"
	"github.com/kailas-cloud/agrirag/internal/logger"
	"github.com/kailas-cloud/agrirag/internal/metrics"
	"github.com/kailas-cloud/agrirag/internal/usecase/reasoning"
)

// Branch groups recovery families by what the query seems to be about.
type Branch string

// Branches.
const (
	BranchPest    Branch = "pest"
	BranchDisease Branch = "disease"
	BranchGeneric Branch = "generic"
)

// Composite score weights.
const (
	simWeight    = 0.6
	tagWeight    = 0.3
	familyWeight = 0.1
)

// Defaults applied to zero Config fields.
const (
	DefaultQueriesPerFamily = 3
	DefaultPerFamilyMin     = 3
	DefaultMaxDocs          = 32
	DefaultTopK             = 12
	DefaultParallelism      = 4
	DefaultMaxTagScore      = 5
)

// Config tunes recovery fan-out and selection.
type Config struct {
	QueriesPerFamily int
	PerFamilyMin     int
	MaxDocs          int
	TopK             int
	Parallelism      int
	MaxTagScore      float64
}

// Service runs no-hit recovery: oracle-generated queries per family,
// each re-tagged and retrieved with relaxed constraints.
type Service struct {
	gen       QueryGenerator
	tagger    Tagger
	retriever Retriever
	cfg       Config
}

// New creates a recovery service.
func New(gen QueryGenerator, tagger Tagger, retriever Retriever, cfg Config) *Service {
	if cfg.QueriesPerFamily <= 0 {
		cfg.QueriesPerFamily = DefaultQueriesPerFamily
	}
	if cfg.PerFamilyMin <= 0 {
		cfg.PerFamilyMin = DefaultPerFamilyMin
	}
	if cfg.MaxDocs <= 0 {
		cfg.MaxDocs = DefaultMaxDocs
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultParallelism
	}
	if cfg.MaxTagScore <= 0 {
		cfg.MaxTagScore = DefaultMaxTagScore
	}
	return &Service{gen: gen, tagger: tagger, retriever: retriever, cfg: cfg}
}

// Classify picks the branch from detected tags: pest or weed first, then disease.
func Classify(tags tag.Set) Branch {
	switch {
	case tags.HasNamespace(tag.Pest), tags.HasNamespace(tag.Weed):
		return BranchPest
	case tags.HasNamespace(tag.Disease):
		return BranchDisease
	default:
		return BranchGeneric
	}
}

// Families returns the query families of a branch in merge order.
func Families(b Branch) []reasoning.Family {
	switch b {
	case BranchPest:
		return []reasoning.Family{
			reasoning.PestFromSymptom, reasoning.ControlMechanism,
			reasoning.FormulaPhrasing, reasoning.GenericRephrase,
		}
	case BranchDisease:
		return []reasoning.Family{
			reasoning.DiseaseFromSymptom, reasoning.ControlMechanism,
			reasoning.FormulaPhrasing, reasoning.GenericRephrase,
		}
	default:
		return []reasoning.Family{
			reasoning.EntityGuess, reasoning.ControlMechanism, reasoning.GenericRephrase,
		}
	}
}

// FamilyWeight ranks how specific a family's hypotheses are.
func FamilyWeight(f reasoning.Family) float64 {
	switch f {
	case reasoning.PestFromSymptom, reasoning.DiseaseFromSymptom, reasoning.EntityGuess:
		return 1.0
	case reasoning.ControlMechanism:
		return 0.8
	case reasoning.FormulaPhrasing:
		return 0.6
	default:
		return 0.3
	}
}

type scored struct {
	hit       hit.Hit
	family    int
	composite float64
}

// Recover generates alternative queries per family in parallel and merges
// their hits. Oracle failures empty a family; retrieval errors abort.
func (s *Service) Recover(ctx context.Context, query string, tags tag.Set) ([]hit.Hit, error) {
	log := logger.FromContext(ctx)
	branch := Classify(tags)
	families := Families(branch)
	perFamily := make([][]hit.Hit, len(families))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Parallelism)
	for i, fam := range families {
		g.Go(func() error {
			hits, err := s.runFamily(gctx, fam, query)
			if err != nil {
				return err
			}
			perFamily[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("no-hit recovery: %w", err)
	}

	// Merge in family then query order; the first occurrence of an id wins.
	seen := hit.Seen{}
	var pool []scored
	nonEmpty := 0
	for i, hits := range perFamily {
		fresh := seen.Dedupe(hits)
		if len(fresh) > 0 {
			nonEmpty++
		}
		w := FamilyWeight(families[i])
		for _, h := range fresh {
			pool = append(pool, scored{hit: h, family: i, composite: s.composite(h, w)})
		}
	}

	out := s.selectDiverse(pool, len(families))
	log.Info("no_hit_recovery",
		zap.String("branch", string(branch)),
		zap.Int("families_with_hits", nonEmpty),
		zap.Int("pool", len(pool)),
		zap.Int("selected", len(out)),
	)
	return out, nil
}

func (s *Service) runFamily(ctx context.Context, fam reasoning.Family, query string) ([]hit.Hit, error) {
	log := logger.FromContext(ctx)
	queries, err := s.gen.RecoveryQueries(ctx, fam, query, s.cfg.QueriesPerFamily)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("recovery family failed", zap.String("family", string(fam)), zap.Error(err))
		return nil, nil
	}

	var out []hit.Hit
	for _, q := range queries {
		qt := s.tagger.Extract(q)
		if qt.IsEmpty() {
			metrics.RecoveryQueriesTotal.WithLabelValues(string(fam), "rejected_no_tags").Inc()
			log.Debug("recovery query rejected", zap.String("family", string(fam)), zap.String("query", q))
			continue
		}
		metrics.RecoveryQueriesTotal.WithLabelValues(string(fam), "accepted").Inc()

		hits, err := s.retriever.Retrieve(ctx, q, qt.FoldRequired(), s.cfg.TopK)
		if err != nil {
			return nil, fmt.Errorf("family %s: %w", fam, err)
		}
		for i := range hits {
			hits[i].RecoveryMode = string(fam)
			hits[i].OriginQuery = q
		}
		out = append(out, hits...)
	}
	return out, nil
}

func (s *Service) composite(h hit.Hit, famWeight float64) float64 {
	card := math.Min(1, float64(h.TagScore)/s.cfg.MaxTagScore)
	return simWeight*h.Similarity + tagWeight*card + familyWeight*famWeight
}

// selectDiverse takes the best PerFamilyMin of each family first, then fills
// globally by composite up to MaxDocs. The result is ordered by composite.
func (s *Service) selectDiverse(pool []scored, families int) []hit.Hit {
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].composite > pool[j].composite })

	taken := make([]bool, len(pool))
	perFamily := make([]int, families)
	picked := 0
	for i, c := range pool {
		if picked >= s.cfg.MaxDocs {
			break
		}
		if perFamily[c.family] < s.cfg.PerFamilyMin {
			perFamily[c.family]++
			taken[i] = true
			picked++
		}
	}
	for i := range pool {
		if picked >= s.cfg.MaxDocs {
			break
		}
		if !taken[i] {
			taken[i] = true
			picked++
		}
	}

	out := make([]hit.Hit, 0, picked)
	for i, c := range pool {
		if taken[i] {
			out = append(out, c.hit)
		}
	}
	return out
}
