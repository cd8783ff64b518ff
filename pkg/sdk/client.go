package agrirag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/agrirag/internal/db"
	dbRedis "github.com/kailas-cloud/agrirag/internal/db/redis"
	"github.com/kailas-cloud/agrirag/internal/domain"
	domconv "github.com/kailas-cloud/agrirag/internal/domain/conversation"
	"github.com/kailas-cloud/agrirag/internal/domain/knowledge"
	"github.com/kailas-cloud/agrirag/internal/engine"
	convrepo "github.com/kailas-cloud/agrirag/internal/repository/conversation"
	kbrepo "github.com/kailas-cloud/agrirag/internal/repository/knowledge"
	memrepo "github.com/kailas-cloud/agrirag/internal/repository/memory"
	vocabrepo "github.com/kailas-cloud/agrirag/internal/repository/vocabulary"
	openaiTransport "github.com/kailas-cloud/agrirag/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/agrirag/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/agrirag/internal/usecase/health"
	"github.com/kailas-cloud/agrirag/internal/usecase/pipeline"
	"github.com/kailas-cloud/agrirag/internal/usecase/tagging"
)

const defaultReadinessTimeout = 10 * time.Second

// Внутренние интерфейсы для подмены в тестах.
type pipelineUseCase interface {
	RetrieveAndVerify(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

type taggerUseCase interface {
	Analyze(query string) tagging.Result
}

type conversationUseCase interface {
	AppendAssistant(ctx context.Context, userID, content string) error
	History(ctx context.Context, userID string) ([]domconv.Turn, error)
	Clear(ctx context.Context, userID string) error
}

// Client is the agrirag SDK entry point. It runs retrieval in process
// over an in-memory knowledge base.
type Client struct {
	store     db.Store
	pipeline  pipelineUseCase
	tagger    taggerUseCase
	convSvc   conversationUseCase
	healthSvc healthUseCase
	documents int
	obs       *observer
}

// New loads the knowledge base and vocabulary and wires the retrieval
// engine. The provided context is used for loading and the optional
// database readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}

	kb, err := loadKnowledgeBase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	voc, err := vocabrepo.Load(cfg.vocabPath)
	if err != nil {
		return nil, fmt.Errorf("agrirag: %w", err)
	}
	embedder, oracle, err := buildProviders(cfg, kb.Dimension())
	if err != nil {
		return nil, err
	}

	var store db.Store
	if len(cfg.addrs) > 0 {
		store, err = connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		closeStore(store)
		return nil, err
	}

	c, err := wireClient(store, kb, engine.Deps{
		KB:         kb,
		Vocabulary: voc,
		Embedder:   embedder,
		Oracle:     oracle,
	}, cfg)
	if err != nil {
		closeStore(store)
		return nil, err
	}
	c.obs = obs
	return c, nil
}

func loadKnowledgeBase(ctx context.Context, cfg *clientConfig) (*knowledge.Base, error) {
	switch {
	case len(cfg.documents) > 0:
		kb, err := buildKnowledgeBase(cfg.documents)
		if err != nil {
			return nil, fmt.Errorf("agrirag: %w", err)
		}
		return kb, nil
	case cfg.kbPath != "":
		kb, err := kbrepo.Load(ctx, cfg.kbPath)
		if err != nil {
			return nil, fmt.Errorf("agrirag: %w", err)
		}
		return kb, nil
	default:
		return nil, errors.New("agrirag: knowledge base required (use WithKnowledgeBase or WithDocuments)")
	}
}

func buildKnowledgeBase(docs []Document) (*knowledge.Base, error) {
	out := make([]knowledge.Document, 0, len(docs))
	for i, d := range docs {
		doc, err := knowledge.New(knowledge.Fields{
			ID:          d.ID,
			Question:    d.Question,
			AltQuestion: d.AltQuestion,
			Answer:      d.Answer,
			Category:    d.Category,
			TagsV2:      d.Tags,
			EntityType:  d.EntityType,
			Embedding:   d.Embedding,
		})
		if err != nil {
			return nil, fmt.Errorf("document %d: %w: %w", i, domain.ErrKnowledgeBaseInvalid, err)
		}
		out = append(out, doc)
	}
	kb, err := knowledge.NewBase(out)
	if err != nil {
		return nil, fmt.Errorf("build knowledge base: %w", err)
	}
	return kb, nil
}

// buildProviders resolves the embedder and the oracle. Explicit providers
// win over OpenAI configuration.
func buildProviders(cfg *clientConfig, dim int) (domain.Embedder, domain.Oracle, error) {
	var embedder domain.Embedder
	switch {
	case cfg.embedder != nil:
		embedder = &embedderAdapter{inner: cfg.embedder}
	case cfg.openAI != nil && cfg.openAI.EmbeddingModel != "":
		if d := cfg.openAI.EmbeddingDimensions; d > 0 && d != dim {
			return nil, nil, fmt.Errorf("agrirag: embedding dimensions %d, knowledge base %d: %w",
				d, dim, domain.ErrDimensionMismatch)
		}
		embedder = embeddinguc.NewRetryEmbedder(openaiTransport.NewEmbedder(&openaiTransport.Config{
			APIKey:     cfg.openAI.APIKey,
			BaseURL:    cfg.openAI.BaseURL,
			Model:      cfg.openAI.EmbeddingModel,
			Dimensions: cfg.openAI.EmbeddingDimensions,
			Provider:   "openai",
		}), embeddinguc.DefaultRetryDelay)
	default:
		return nil, nil, errors.New("agrirag: embedder required (use WithEmbedder or WithOpenAI)")
	}
	if cfg.instruction != "" {
		embedder = domain.NewInstructionEmbedder(embedder, cfg.instruction)
	}

	var oracle domain.Oracle
	switch {
	case cfg.oracle != nil:
		oracle = &oracleAdapter{inner: cfg.oracle}
	case cfg.openAI != nil && cfg.openAI.OracleModel != "":
		oracle = openaiTransport.NewOracle(&openaiTransport.OracleConfig{
			APIKey:     cfg.openAI.APIKey,
			BaseURL:    cfg.openAI.BaseURL,
			Model:      cfg.openAI.OracleModel,
			RatePerSec: cfg.openAI.RatePerSec,
		})
	default:
		return nil, nil, errors.New("agrirag: oracle required (use WithOracle or WithOpenAI)")
	}
	return embedder, oracle, nil
}

func connect(ctx context.Context, cfg *clientConfig) (db.Store, error) {
	s, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.addrs,
		Password: cfg.password,
	})
	if err != nil {
		return nil, fmt.Errorf("agrirag: create redis store: %w", err)
	}
	if err := s.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		s.Close()
		return nil, fmt.Errorf("agrirag: database not ready: %w", err)
	}
	return s, nil
}

func wireClient(store db.Store, kb *knowledge.Base, deps engine.Deps, cfg *clientConfig) (*Client, error) {
	if store != nil {
		deps.Conversations = convrepo.New(store, 0, cfg.conversationTTL)
		if cfg.memory {
			deps.Memory = memrepo.New(store, cfg.memoryFacts, cfg.memoryTTL)
		}
	}

	eng, err := engine.New(deps, engine.Config{
		TopK:           cfg.topK,
		MaxHops:        cfg.maxHops,
		MinDocs:        cfg.minDocs,
		SimilarityOnly: cfg.similarityOnly,
		T4Disabled:     cfg.t4Disabled,
		HistoryTurns:   cfg.historyTurns,

		NormalizeDisabled: cfg.normalizeDisabled,
		RoutingEnabled:    cfg.routing,
		MemoryTopK:        cfg.memoryTopK,
	})
	if err != nil {
		return nil, fmt.Errorf("agrirag: %w", err)
	}

	// Pass nil interfaces (not typed nil pointers!) for disabled parts.
	var pinger healthuc.DBPinger
	if store != nil {
		pinger = store
	}
	var conv conversationUseCase
	if eng.Conversations != nil {
		conv = eng.Conversations
	}

	return &Client{
		store:     store,
		pipeline:  eng.Pipeline,
		tagger:    eng.Tagger,
		convSvc:   conv,
		healthSvc: healthuc.New(pinger, kb, checker(deps.Embedder), checker(deps.Oracle)),
		documents: kb.Len(),
	}, nil
}

// checker returns p as a health checker when it supports health checks.
func checker(p any) healthuc.ProviderChecker {
	if hc, ok := p.(healthuc.ProviderChecker); ok {
		return hc
	}
	return nil
}

func closeStore(s db.Store) {
	if s != nil {
		s.Close()
	}
}

// Close releases all resources.
func (c *Client) Close() {
	closeStore(c.store)
}

// Ping checks database connectivity. Without WithRedis it always succeeds.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	if c.store == nil {
		return nil
	}
	if err = c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Documents returns the number of documents in the knowledge base.
func (c *Client) Documents() int {
	return c.documents
}

// embedderAdapter wraps public Embedder to satisfy internal domain.Embedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w: %w", domain.ErrEmbeddingProviderError, err)
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

// oracleAdapter wraps public Oracle to satisfy internal domain.Oracle
// and records its token usage on the request.
type oracleAdapter struct {
	inner Oracle
}

func (a *oracleAdapter) Complete(ctx context.Context, req domain.OracleRequest) (domain.OracleResponse, error) {
	r, err := a.inner.Complete(ctx, OracleRequest{
		Purpose:     req.Purpose,
		System:      req.System,
		User:        req.User,
		JSON:        req.JSON,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return domain.OracleResponse{}, fmt.Errorf("complete: %w: %w", domain.ErrOracleError, err)
	}
	domain.UsageFromContext(ctx).AddOracle(r.TotalTokens)
	return domain.OracleResponse{
		Content:      r.Content,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}
