// Package completeness decides whether retrieved evidence is enough to act on:
// L3 detects gaps in a draft, T4 retrieves for the missing slots and T5 adds
// background knowledge when the knowledge base has nothing more.
package completeness

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kailas-cloud/agrirag/internal/domain/hit"
	"github.com/kailas-cloud/agrirag/internal/domain/slot"
	"github.com/kailas-cloud/agrirag/internal/domain/tag"
	"github.com/kailas-cloud/agrirag/internal/logger"
	"github.com/kailas-cloud/agrirag/internal/metrics"
	"github.com/kailas-cloud/agrirag/internal/usecase/contextbuild"
	"github.com/kailas-cloud/agrirag/internal/usecase/reasoning"
)

// KnowledgeHeader prefixes the synthesized section in the context.
const KnowledgeHeader = "\n\n[KIẾN THỨC NỀN]\n"

// SystemOverride instructs the generator to rely on the knowledge section.
const SystemOverride = "INTERNAL DATA IS INSUFFICIENT. " +
	"You MUST use the [KIẾN THỨC NỀN] section to complete the user's objective. " +
	"Do not answer using only internal data."

// Defaults applied to zero Config fields.
const (
	DefaultT4TopK       = 12
	DefaultT4MaxIntents = 3
	DefaultExcerptRunes = 3000
	DefaultDraftMaxHits = 8
	DefaultDraftSnippet = 240
)

const draftHeader = "Tài liệu hiện có:"

// Config tunes the three stages.
type Config struct {
	T4Disabled    bool
	T4TopK        int
	T4MaxIntents  int
	ExcerptRunes  int
	DraftMaxHits  int
	DraftSnippet  int
	FallbackSlots []slot.Slot
	// Coverage maps a slot to tag prefixes that satisfy it.
	Coverage map[slot.Slot][]string
	// Queries maps a slot to its canned retrieval query.
	Queries map[slot.Slot]string
}

// Input is the evidence state handed over by the retrieval stages.
type Input struct {
	Query    string
	Hits     []hit.Hit
	BaseTags tag.Set
	// UsedQueries holds queries already retrieved in this run.
	UsedQueries map[string]struct{}
	Budget      int
}

// Output is the final evidence and context.
type Output struct {
	Hits           []hit.Hit
	Context        string
	SystemOverride string
	Report         Report
}

// Service runs L3 -> T4 -> T5.
type Service struct {
	gap       GapDetector
	knowledge KnowledgeSource
	retriever Retriever
	tagger    Tagger
	ranker    Ranker
	cfg       Config
	fallback  map[slot.Slot]bool
}

// New creates a completeness service.
func New(
	gap GapDetector, knowledge KnowledgeSource, retriever Retriever,
	tagger Tagger, ranker Ranker, cfg Config,
) *Service {
	if cfg.T4TopK <= 0 {
		cfg.T4TopK = DefaultT4TopK
	}
	if cfg.T4MaxIntents <= 0 {
		cfg.T4MaxIntents = DefaultT4MaxIntents
	}
	if cfg.ExcerptRunes <= 0 {
		cfg.ExcerptRunes = DefaultExcerptRunes
	}
	if cfg.DraftMaxHits <= 0 {
		cfg.DraftMaxHits = DefaultDraftMaxHits
	}
	if cfg.DraftSnippet <= 0 {
		cfg.DraftSnippet = DefaultDraftSnippet
	}
	slots := cfg.FallbackSlots
	if len(slots) == 0 {
		slots = slot.All
	}
	fallback := make(map[slot.Slot]bool, len(slots))
	for _, s := range slots {
		fallback[s] = true
	}
	return &Service{
		gap: gap, knowledge: knowledge, retriever: retriever,
		tagger: tagger, ranker: ranker, cfg: cfg, fallback: fallback,
	}
}

// Draft summarizes hits without generation so that gaps in the knowledge
// base stay visible to the gap detector.
func (s *Service) Draft(hits []hit.Hit) string {
	if len(hits) == 0 {
		return contextbuild.NoDataMessage
	}
	var b strings.Builder
	b.WriteString(draftHeader)
	for i, h := range hits {
		if i == s.cfg.DraftMaxHits {
			break
		}
		b.WriteString("\n- ")
		b.WriteString(h.Doc.Question())
		b.WriteString(": ")
		b.WriteString(reasoning.ExcerptRunes(strings.Join(strings.Fields(h.Doc.Answer()), " "), s.cfg.DraftSnippet))
	}
	return b.String()
}

// Run executes the stages over in and returns the final context.
// Only T4 retrieval errors are returned; oracle failures take their defaults.
func (s *Service) Run(ctx context.Context, in Input) (Output, error) {
	log := logger.FromContext(ctx)

	l3 := s.runL3(ctx, in)
	rep := Report{
		L3: l3,
		T4: T4Report{Decision: T4Skipped, RemainingSlots: l3.MissingSlots},
		T5: T5Report{Decision: T5NotNeeded},
	}

	hits := in.Hits
	if !l3.IsComplete && len(l3.MissingSlots) > 0 {
		added, t4, err := s.runT4(ctx, in, l3.MissingSlots)
		if err != nil {
			return Output{}, err
		}
		rep.T4 = t4
		if len(added) > 0 {
			hits = append(append([]hit.Hit(nil), in.Hits...), added...)
		}
	}
	metrics.CompletenessDecisionsTotal.WithLabelValues("t4", rep.T4.Decision).Inc()
	log.Info("t4_completion",
		zap.String("decision", rep.T4.Decision),
		zap.Strings("covered", slot.Strings(rep.T4.CoveredSlots)),
		zap.Int("added", rep.T4.AddedHits),
		zap.Strings("remaining", slot.Strings(rep.T4.RemainingSlots)),
	)

	hits = s.ranker.Rank(hits, true)
	out := Output{
		Hits:    hits,
		Context: contextbuild.Build(contextbuild.Select(hits, in.Budget)),
	}

	if slot.Intersects(rep.T4.RemainingSlots, s.fallback) {
		rep.T5 = s.runT5(ctx, in.Query, rep.T4.RemainingSlots, &out)
	}
	metrics.CompletenessDecisionsTotal.WithLabelValues("t5", rep.T5.Decision).Inc()
	log.Info("t5_fallback",
		zap.String("decision", rep.T5.Decision),
		zap.Strings("slots", slot.Strings(rep.T5.Slots)),
		zap.Int("chars", rep.T5.Chars),
	)

	out.Report = rep
	return out, nil
}

func (s *Service) runL3(ctx context.Context, in Input) L3Report {
	draft := s.Draft(in.Hits)
	verdict, err := s.gap.GapCheck(ctx, in.Query, draft)
	rep := L3Report{
		IsComplete:   verdict.IsComplete,
		MissingSlots: verdict.MissingSlots,
		Reason:       verdict.Reason,
		DraftChars:   utf8.RuneCountInString(draft),
	}
	if err != nil {
		rep = L3Report{IsComplete: true, Reason: "gap_check_failed", DraftChars: rep.DraftChars, OracleFailed: true}
	}
	if rep.IsComplete {
		rep.MissingSlots = nil
	}

	decision := "complete"
	if !rep.IsComplete {
		decision = "incomplete"
	}
	if rep.OracleFailed {
		decision = "oracle_error"
	}
	metrics.CompletenessDecisionsTotal.WithLabelValues("l3", decision).Inc()
	logger.FromContext(ctx).Info("l3_gap",
		zap.String("decision", decision),
		zap.Strings("missing_slots", slot.Strings(rep.MissingSlots)),
		zap.String("reason", rep.Reason),
		zap.Error(err),
	)
	return rep
}

// Covered reports whether any hit carries a tag satisfying the slot.
func (s *Service) Covered(sl slot.Slot, hits []hit.Hit) bool {
	prefixes := s.cfg.Coverage[sl]
	for _, h := range hits {
		for _, p := range prefixes {
			if h.Doc.HasTagPrefix(p) {
				return true
			}
		}
	}
	return false
}

func (s *Service) runT4(ctx context.Context, in Input, missing []slot.Slot) ([]hit.Hit, T4Report, error) {
	rep := T4Report{RemainingSlots: missing}
	if s.cfg.T4Disabled {
		rep.Decision = T4Disabled
		return nil, rep, nil
	}

	var uncovered []slot.Slot
	for _, sl := range missing {
		if s.Covered(sl, in.Hits) {
			rep.CoveredSlots = append(rep.CoveredSlots, sl)
			continue
		}
		uncovered = append(uncovered, sl)
	}
	if len(uncovered) == 0 {
		rep.Decision = T4AlreadyCovered
		rep.RemainingSlots = nil
		return nil, rep, nil
	}

	used := make(map[string]struct{}, len(in.UsedQueries)+1)
	for q := range in.UsedQueries {
		used[q] = struct{}{}
	}
	used[in.Query] = struct{}{}
	seen := hit.NewSeen(in.Hits)

	// The cap applies to planned intents, so a skipped used query still
	// takes one of the slots.
	type planned struct {
		slot  slot.Slot
		query string
	}
	var plan []planned
	for _, sl := range uncovered {
		if q := s.cfg.Queries[sl]; q != "" {
			plan = append(plan, planned{slot: sl, query: q})
		}
	}
	if len(plan) > s.cfg.T4MaxIntents {
		plan = plan[:s.cfg.T4MaxIntents]
	}

	var added []hit.Hit
	resolved := make(map[slot.Slot]bool)
	for _, p := range plan {
		sl, q := p.slot, p.query
		if _, dup := used[q]; dup {
			continue
		}
		used[q] = struct{}{}

		tags := s.tagger.Extract(q)
		if tags.IsEmpty() {
			tags = tag.Set{Any: in.BaseTags.Any}
		}
		hits, err := s.retriever.Retrieve(ctx, q, tags, s.cfg.T4TopK)
		if err != nil {
			return nil, rep, fmt.Errorf("solution completion %s: %w", sl, err)
		}
		fresh := seen.Dedupe(hits)
		for i := range fresh {
			fresh[i].SolutionSlot = string(sl)
			fresh[i].OriginQuery = q
		}
		if len(fresh) > 0 {
			resolved[sl] = true
		}
		rep.Intents = append(rep.Intents, Intent{Slot: sl, Query: q, Added: len(fresh)})
		added = append(added, fresh...)
	}

	rep.AddedHits = len(added)
	rep.RemainingSlots = nil
	for _, sl := range uncovered {
		if !resolved[sl] {
			rep.RemainingSlots = append(rep.RemainingSlots, sl)
		}
	}
	switch {
	case len(rep.Intents) == 0:
		rep.Decision = T4NoIntents
	case len(added) == 0:
		rep.Decision = T4NothingAdded
	default:
		rep.Decision = T4Retrieved
	}
	return added, rep, nil
}

func (s *Service) runT5(ctx context.Context, query string, remaining []slot.Slot, out *Output) T5Report {
	rep := T5Report{Slots: remaining}
	excerpt := reasoning.ExcerptRunes(out.Context, s.cfg.ExcerptRunes)
	text, err := s.knowledge.Knowledge(ctx, query, remaining, excerpt)
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			logger.FromContext(ctx).Warn("knowledge fallback failed", zap.Error(err))
		}
		out.Context += KnowledgeHeader
		rep.Decision = T5Empty
		return rep
	}
	out.Context += KnowledgeHeader + text
	out.SystemOverride = SystemOverride
	rep.Decision = T5Injected
	rep.Chars = utf8.RuneCountInString(text)
	return rep
}
