package agrirag

import (
	"github.com/kailas-cloud/agrirag/internal/domain/hit"
	"github.com/kailas-cloud/agrirag/internal/domain/slot"
	"github.com/kailas-cloud/agrirag/internal/domain/tag"
	"github.com/kailas-cloud/agrirag/internal/usecase/pipeline"
	"github.com/kailas-cloud/agrirag/internal/usecase/tagging"
)

func fromTags(s tag.Set) Tags {
	return Tags{Must: s.RequiredAny, Any: s.Any}
}

func fromTagging(r tagging.Result) TagAnalysis {
	f := r.Found
	return TagAnalysis{
		Tags:              fromTags(r.Tags),
		Mode:              string(f.Mode),
		Crops:             f.Crops,
		Pests:             f.Pests,
		Weeds:             f.Weeds,
		Diseases:          f.Diseases,
		Products:          f.Products,
		Brands:            f.Brands,
		Mechanisms:        f.Mechanisms,
		Formulations:      f.Formulations,
		Formulas:          f.Formulas,
		DirectChemicals:   f.DirectChemicals,
		InferredChemicals: f.InferredChemicals,
	}
}

func fromHit(h hit.Hit) Hit {
	return Hit{
		ID:           h.ID(),
		Question:     h.Doc.Question(),
		AltQuestion:  h.Doc.AltQuestion(),
		Answer:       h.Doc.Answer(),
		Category:     h.Doc.Category(),
		Tags:         h.Doc.Tags(),
		Similarity:   h.Similarity,
		TagScore:     h.TagScore,
		Score:        h.FusedScore,
		Stage:        string(h.Stage),
		OriginQuery:  h.OriginQuery,
		Hop:          h.HopIndex,
		RecoveryMode: h.RecoveryMode,
		SolutionSlot: h.SolutionSlot,
	}
}

func fromPipelineResult(r pipeline.Result) Result {
	hits := make([]Hit, len(r.Hits))
	for i, h := range r.Hits {
		hits[i] = fromHit(h)
	}
	hops := make([]HopRecord, len(r.Hops))
	for i, rec := range r.Hops {
		hops[i] = HopRecord{
			Index:      rec.Index,
			Query:      rec.Query,
			HitCount:   rec.HitCount,
			StopReason: string(rec.StopReason),
			Reason:     rec.Reason,
			SearchMode: rec.SearchMode,
		}
	}
	rep := r.Completeness
	return Result{
		RunID:           r.RunID,
		Query:           r.Query,
		EffectiveQuery:  r.EffectiveQuery,
		Rewritten:       r.Rewritten,
		NormalizedQuery: r.NormalizedQuery,
		Route:           string(r.Route.Route),
		RouteReason:     r.Route.Reason,
		Policy: AnswerPolicy{
			Intent:           string(r.Policy.Intent),
			Format:           string(r.Policy.Format),
			RequireGrounding: r.Policy.RequireGrounding,
			MaxSources:       r.Policy.MaxSources,
		},
		MemoryPrompt:   r.MemoryPrompt,
		Tags:           fromTags(r.Tags),
		IsListing:      r.IsListing,
		FormulaMode:    r.FormulaMode,
		Hits:           hits,
		Context:        r.Context,
		SystemOverride: r.SystemOverride,
		NoData:         r.NoData,
		Hops:           hops,
		StopReason:     string(r.Hops.Final()),
		Recovered:      r.Recovered,
		Confidence:     r.Profile.Confidence,
		Completeness: Completeness{
			Complete:       rep.L3.IsComplete,
			MissingSlots:   slot.Strings(rep.L3.MissingSlots),
			Reason:         rep.L3.Reason,
			Completion:     rep.T4.Decision,
			RemainingSlots: slot.Strings(rep.T4.RemainingSlots),
			AddedHits:      rep.T4.AddedHits,
			Fallback:       rep.T5.Decision,
		},
		Usage: Usage{
			EmbeddingTokens: r.Usage.EmbeddingTokens,
			EmbeddingCalls:  r.Usage.EmbeddingCalls,
			OracleTokens:    r.Usage.OracleTokens,
			OracleCalls:     r.Usage.OracleCalls,
		},
	}
}
