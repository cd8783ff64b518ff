// Package pipeline wires tag extraction, retrieval, scoring and the
// completeness stages into one RetrieveAndVerify call.
package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/agrirag/internal/domain"
	"github.com/kailas-cloud/agrirag/internal/domain/hit"
	"github.com/kailas-cloud/agrirag/internal/domain/hop"
	"github.com/kailas-cloud/agrirag/internal/domain/tag"
	"github.com/kailas-cloud/agrirag/internal/logger"
	"github.com/kailas-cloud/agrirag/internal/metrics"
	"github.com/kailas-cloud/agrirag/internal/usecase/completeness"
	"github.com/kailas-cloud/agrirag/internal/usecase/contextbuild"
	memuc "github.com/kailas-cloud/agrirag/internal/usecase/memory"
	"github.com/kailas-cloud/agrirag/internal/usecase/policy"
	"github.com/kailas-cloud/agrirag/internal/usecase/routing"
	"github.com/kailas-cloud/agrirag/internal/usecase/scoring"
	"github.com/kailas-cloud/agrirag/internal/usecase/tagging"
)

// DefaultMaxQueryRunes bounds the accepted query length.
const DefaultMaxQueryRunes = 2000

const modeFormula = "formula"

// Request is one retrieval request.
type Request struct {
	Query  string
	UserID string
	// TagHint is merged into the extracted tags.
	TagHint tag.Set
}

// Result is the verified evidence and the context for answer generation.
type Result struct {
	RunID          string
	Query          string
	EffectiveQuery string
	Rewritten      bool
	// NormalizedQuery is the query after spelling normalization; it is
	// what tagging, routing and retrieval see.
	NormalizedQuery string
	Route           routing.Decision
	MemoryPrompt    string

	Tags          tag.Set
	Found         tagging.Found
	IsListing     bool
	FormulaMode   bool
	FormulaIntent bool
	Budget        int

	Hits           []hit.Hit
	Context        string
	SystemOverride string
	NoData         bool

	Hops         hop.Trail
	Recovered    bool
	Profile      scoring.Profile
	Policy       policy.Policy
	Completeness completeness.Report
	Usage        domain.UsageSnapshot
}

// Config holds pipeline limits.
type Config struct {
	MaxQueryRunes int
}

// Service runs RetrieveAndVerify.
type Service struct {
	tagger        Tagger
	retriever     Retriever
	hopper        Hopper
	ranker        Ranker
	selector      *contextbuild.Selector
	completer     Completer
	conversations Conversations
	stages        Stages
	cfg           Config
}

// New creates the pipeline. conversations may be nil.
func New(
	tagger Tagger,
	retriever Retriever,
	hopper Hopper,
	ranker Ranker,
	selector *contextbuild.Selector,
	completer Completer,
	conversations Conversations,
	cfg Config,
) *Service {
	if cfg.MaxQueryRunes <= 0 {
		cfg.MaxQueryRunes = DefaultMaxQueryRunes
	}
	return &Service{
		tagger:        tagger,
		retriever:     retriever,
		hopper:        hopper,
		ranker:        ranker,
		selector:      selector,
		completer:     completer,
		conversations: conversations,
		cfg:           cfg,
	}
}

// WithStages installs the optional stages.
func (s *Service) WithStages(st Stages) *Service {
	s.stages = st
	return s
}

// ValidateQuery trims the query and rejects empty or oversized input.
func (s *Service) ValidateQuery(q string) (string, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return "", fmt.Errorf("%w: query is empty", domain.ErrInvalidQuery)
	}
	if n := utf8.RuneCountInString(q); n > s.cfg.MaxQueryRunes {
		return "", fmt.Errorf("%w: query has %d characters, max %d", domain.ErrInvalidQuery, n, s.cfg.MaxQueryRunes)
	}
	return q, nil
}

// RetrieveAndVerify gathers evidence for a query and decides whether it is
// enough to answer. Empty evidence is reported as NoData, not as an error.
// Only invalid input, embedding failures and budget rejection (embedding or
// oracle) are returned as errors.
func (s *Service) RetrieveAndVerify(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	query, err := s.ValidateQuery(req.Query)
	if err != nil {
		return Result{}, err
	}

	runID := uuid.NewString()
	log := logger.FromContext(ctx).With(zap.String("run_id", runID))
	ctx = logger.ContextWithLogger(ctx, log)
	usage := domain.UsageFromContext(ctx)
	if usage == nil {
		ctx, usage = domain.NewContextWithUsage(ctx)
	}

	res := Result{RunID: runID, Query: query, EffectiveQuery: query}

	if s.conversations != nil && req.UserID != "" {
		r := s.conversations.Resolve(ctx, req.UserID, query)
		res.EffectiveQuery, res.Rewritten = r.Query, r.Rewritten
		if err := s.conversations.AppendUser(ctx, req.UserID, query); err != nil {
			log.Warn("conversation append failed", zap.Error(err))
		}
	}
	effective := s.normalize(ctx, res.EffectiveQuery)
	res.NormalizedQuery = effective
	if err := oracleRejection(usage); err != nil {
		return Result{}, err
	}

	if s.stages.Memory != nil && req.UserID != "" {
		res.MemoryPrompt = memuc.Prompt(s.stages.Memory.Recall(ctx, req.UserID, effective))
	}

	analysis := s.tagger.Analyze(effective)
	res.Tags = analysis.Tags.Merge(req.TagHint)
	res.Found = analysis.Found
	res.IsListing = s.selector.IsListing(effective)
	res.FormulaMode = tagging.IsFormulaQuery(effective, res.Tags)
	res.FormulaIntent = s.tagger.HasFormulaTrigger(effective)
	log.Info("tag_extract",
		zap.Strings("must", res.Tags.RequiredAny),
		zap.Strings("any", res.Tags.Any),
		zap.String("kb_mode", string(res.Found.Mode)),
		zap.Bool("is_listing", res.IsListing),
		zap.Bool("formula_mode", res.FormulaMode),
		zap.Bool("formula_intent", res.FormulaIntent),
	)

	res.Route = routing.Decision{Route: routing.RAG}
	if s.stages.Router != nil {
		res.Route = s.stages.Router.Decide(effective, res.FormulaIntent || res.FormulaMode, analysis)
		metrics.RouteDecisionsTotal.WithLabelValues(string(res.Route.Route), res.Route.Reason).Inc()
	}
	if res.Route.Route == routing.Global {
		res.SystemOverride = routing.GlobalSystemPrompt
		return s.finish(ctx, &res, usage, start)
	}

	var hits []hit.Hit
	if res.FormulaMode {
		res.Budget = s.selector.SoftBudget()
		hits, err = s.formulaSearch(ctx, effective, res.Tags, res.Budget)
		if err != nil {
			return Result{}, fmt.Errorf("formula search: %w", err)
		}
		res.Hops = hop.Trail{{Index: 1, Query: effective, HitCount: len(hits), SearchMode: modeFormula}}
		metrics.RetrievedHits.WithLabelValues(modeFormula).Observe(float64(len(hits)))
	} else {
		res.Budget = s.selector.Budget(res.IsListing)
		mh, err := s.hopper.Run(ctx, effective, res.Tags)
		if err != nil {
			return Result{}, fmt.Errorf("multi-hop retrieval: %w", err)
		}
		hits, res.Hops, res.Recovered = mh.Hits, mh.Trail, mh.Recovered
		mode := "multihop"
		if mh.Recovered {
			mode = "recovery"
		}
		metrics.RetrievedHits.WithLabelValues(mode).Observe(float64(len(hits)))
	}

	if len(hits) == 0 {
		res.NoData = true
		res.Context = contextbuild.NoDataMessage
		return s.finish(ctx, &res, usage, start)
	}

	ranked := s.ranker.Rank(hits, false)
	res.Profile = s.ranker.Profile(ranked)

	if s.stages.Policy != nil {
		res.Policy = s.stages.Policy.Decide(effective, ranked[0].Doc, res.IsListing)
		gated := res.Policy.GatesEvidence()
		if gated {
			before := len(ranked)
			ranked = policy.GateByTags(ranked, res.Tags, s.selector.SoftBudget())
			log.Debug("evidence_gate", zap.Int("before", before), zap.Int("after", len(ranked)))
		}
		metrics.AnswerPoliciesTotal.WithLabelValues(string(res.Policy.Intent), strconv.FormatBool(gated)).Inc()
	}

	used := map[string]struct{}{effective: {}}
	for _, r := range res.Hops {
		used[r.Query] = struct{}{}
	}
	out, err := s.completer.Run(ctx, completeness.Input{
		Query:       effective,
		Hits:        ranked,
		BaseTags:    res.Tags,
		UsedQueries: used,
		Budget:      res.Budget,
	})
	if err != nil {
		return Result{}, fmt.Errorf("completeness: %w", err)
	}
	res.Hits = out.Hits
	res.Context = out.Context
	res.SystemOverride = out.SystemOverride
	res.Completeness = out.Report
	return s.finish(ctx, &res, usage, start)
}

// normalize returns the normalized query, or query itself when the stage is
// off or fails.
func (s *Service) normalize(ctx context.Context, query string) string {
	if s.stages.Normalizer == nil {
		return query
	}
	out, err := s.stages.Normalizer.Normalize(ctx, query)
	if err != nil {
		logger.FromContext(ctx).Warn("query normalization failed", zap.Error(err))
		return query
	}
	if out != query {
		logger.FromContext(ctx).Debug("query normalized", zap.String("original", query), zap.String("normalized", out))
	}
	return out
}

// finish snapshots usage and logs the run. An oracle budget rejection during
// the run fails it, since every oracle stage degraded silently.
func (s *Service) finish(ctx context.Context, res *Result, usage *domain.RequestUsage, start time.Time) (Result, error) {
	res.Usage = usage.Snapshot()
	s.logSummary(ctx, res, start)
	if err := oracleRejection(usage); err != nil {
		return Result{}, err
	}
	return *res, nil
}

func oracleRejection(usage *domain.RequestUsage) error {
	if err := usage.OracleRejection(); err != nil {
		return fmt.Errorf("oracle budget: %w", err)
	}
	return nil
}

// logSummary writes the canonical line of a run.
func (s *Service) logSummary(ctx context.Context, res *Result, start time.Time) {
	logger.FromContext(ctx).Info("retrieve_and_verify",
		zap.String("effective_query", res.EffectiveQuery),
		zap.Bool("rewritten", res.Rewritten),
		zap.String("route", string(res.Route.Route)),
		zap.String("policy", string(res.Policy.Intent)),
		zap.Bool("memory", res.MemoryPrompt != ""),
		zap.Bool("no_data", res.NoData),
		zap.Bool("formula_mode", res.FormulaMode),
		zap.Bool("recovered", res.Recovered),
		zap.Int("hops", len(res.Hops)),
		zap.String("stop_reason", string(res.Hops.Final())),
		zap.Int("hits", len(res.Hits)),
		zap.Int("budget", res.Budget),
		zap.Float64("confidence", res.Profile.Confidence),
		zap.String("t4", res.Completeness.T4.Decision),
		zap.String("t5", res.Completeness.T5.Decision),
		zap.Int("embedding_tokens", res.Usage.EmbeddingTokens),
		zap.Int("oracle_tokens", res.Usage.OracleTokens),
		zap.Duration("duration", time.Since(start)),
	)
}
