// Package engine assembles the retrieval pipeline from its parts. It is shared
// by the HTTP server and the embedded client.
package engine

import (
	"errors"
	"fmt"

	"github.com/kailas-cloud/agrirag/internal/domain"
	"github.com/kailas-cloud/agrirag/internal/domain/knowledge"
	"github.com/kailas-cloud/agrirag/internal/domain/slot"
	"github.com/kailas-cloud/agrirag/internal/domain/vocabulary"
	"github.com/kailas-cloud/agrirag/internal/usecase/completeness"
	"github.com/kailas-cloud/agrirag/internal/usecase/contextbuild"
	"github.com/kailas-cloud/agrirag/internal/usecase/conversation"
	"github.com/kailas-cloud/agrirag/internal/usecase/memory"
	"github.com/kailas-cloud/agrirag/internal/usecase/multihop"
	"github.com/kailas-cloud/agrirag/internal/usecase/pipeline"
	"github.com/kailas-cloud/agrirag/internal/usecase/policy"
	"github.com/kailas-cloud/agrirag/internal/usecase/reasoning"
	"github.com/kailas-cloud/agrirag/internal/usecase/recovery"
	"github.com/kailas-cloud/agrirag/internal/usecase/retrieval"
	"github.com/kailas-cloud/agrirag/internal/usecase/routing"
	"github.com/kailas-cloud/agrirag/internal/usecase/scoring"
	"github.com/kailas-cloud/agrirag/internal/usecase/tagging"
)

// Config collects the tuning knobs of every stage. Zero values take the
// stage defaults.
type Config struct {
	MaxQueryRunes int

	TopK           int
	MaxHops        int
	MinDocs        int
	SimilarityOnly bool
	IntentHint     bool

	Weights scoring.Weights

	Recovery recovery.Config

	T4Disabled    bool
	T4TopK        int
	T4MaxIntents  int
	ExcerptRunes  int
	DraftMaxHits  int
	DraftSnippet  int
	FallbackSlots []string

	Budgets contextbuild.Budgets

	HistoryTurns int

	// NormalizeDisabled skips the oracle spelling normalization.
	NormalizeDisabled bool
	// RoutingEnabled sends definition-style questions to general knowledge
	// instead of retrieval.
	RoutingEnabled bool
	MemoryTopK     int

	OracleTemperature float32
	OracleMaxTokens   int
}

// Deps are the external collaborators. Conversations may be nil, which
// disables follow-up rewriting and turn recording. Memory may be nil, which
// disables long-lived user facts.
type Deps struct {
	KB            *knowledge.Base
	Vocabulary    *vocabulary.Vocabulary
	Embedder      domain.Embedder
	Oracle        domain.Oracle
	Conversations conversation.Store
	Memory        memory.Store
}

// Engine exposes the assembled services.
type Engine struct {
	Tagger        *tagging.Extractor
	Retrieval     *retrieval.Service
	Reasoning     *reasoning.Service
	Conversations *conversation.Service
	Memory        *memory.Service
	Pipeline      *pipeline.Service
}

// New wires every stage around deps.
func New(deps Deps, cfg Config) (*Engine, error) {
	if deps.KB == nil || deps.KB.Len() == 0 {
		return nil, fmt.Errorf("engine: %w: knowledge base is empty", domain.ErrKnowledgeBaseInvalid)
	}
	if deps.Vocabulary == nil {
		return nil, errors.New("engine: vocabulary is required")
	}
	if deps.Embedder == nil || deps.Oracle == nil {
		return nil, errors.New("engine: embedder and oracle are required")
	}

	voc := deps.Vocabulary
	tagger := tagging.NewExtractor(voc)
	reasoner := reasoning.New(deps.Oracle, reasoning.Options{
		Temperature: cfg.OracleTemperature,
		MaxTokens:   cfg.OracleMaxTokens,
	})

	searcher := retrieval.New(deps.KB, retrieval.WithSimilarityOnly(cfg.SimilarityOnly))
	retriever := retrieval.NewService(deps.Embedder, searcher)
	fuser := scoring.New(cfg.Weights)

	recCfg := cfg.Recovery
	if recCfg.MaxTagScore <= 0 {
		recCfg.MaxTagScore = cfg.Weights.MaxTagScore
	}
	recoverer := recovery.New(reasoner, tagger, retriever, recCfg)

	hopper := multihop.New(retriever, reasoner, recoverer, multihop.Config{
		TopK:       cfg.TopK,
		MaxHops:    cfg.MaxHops,
		MinDocs:    cfg.MinDocs,
		IntentHint: cfg.IntentHint,
	})

	completer := completeness.New(reasoner, reasoner, retriever, tagger, fuser, completeness.Config{
		T4Disabled:    cfg.T4Disabled,
		T4TopK:        cfg.T4TopK,
		T4MaxIntents:  cfg.T4MaxIntents,
		ExcerptRunes:  cfg.ExcerptRunes,
		DraftMaxHits:  cfg.DraftMaxHits,
		DraftSnippet:  cfg.DraftSnippet,
		FallbackSlots: slot.Parse(cfg.FallbackSlots),
		Coverage:      voc.SlotCoverage,
		Queries:       voc.SlotQueries,
	})

	selector := contextbuild.NewSelector(cfg.Budgets, voc.ListingKeywords)

	e := &Engine{Tagger: tagger, Retrieval: retriever, Reasoning: reasoner}

	// Optional stages stay true nil interfaces when disabled.
	stages := pipeline.Stages{Policy: policy.NewDecider(voc.Policy)}
	if !cfg.NormalizeDisabled {
		stages.Normalizer = reasoner
	}
	if cfg.RoutingEnabled {
		stages.Router = routing.New(voc.Routing)
	}
	if deps.Memory != nil {
		e.Memory = memory.New(deps.Memory, retriever, reasoner, cfg.MemoryTopK)
		stages.Memory = e.Memory
	}

	var conv pipeline.Conversations
	if deps.Conversations != nil {
		e.Conversations = conversation.New(deps.Conversations, reasoner, voc.ReferencePatterns, cfg.HistoryTurns)
		if e.Memory != nil {
			e.Conversations.WithMemory(e.Memory)
		}
		conv = e.Conversations
	}

	e.Pipeline = pipeline.New(tagger, retriever, hopper, fuser, selector, completer, conv, pipeline.Config{
		MaxQueryRunes: cfg.MaxQueryRunes,
	}).WithStages(stages)
	return e, nil
}
