package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/agrirag/internal/config"
	"github.com/kailas-cloud/agrirag/internal/db"
	dbRedis "github.com/kailas-cloud/agrirag/internal/db/redis"
	"github.com/kailas-cloud/agrirag/internal/domain"
	domusage "github.com/kailas-cloud/agrirag/internal/domain/usage"
	"github.com/kailas-cloud/agrirag/internal/engine"
	logpkg "github.com/kailas-cloud/agrirag/internal/logger"
	"github.com/kailas-cloud/agrirag/internal/metrics"
	budgetrepo "github.com/kailas-cloud/agrirag/internal/repository/budget"
	convrepo "github.com/kailas-cloud/agrirag/internal/repository/conversation"
	memrepo "github.com/kailas-cloud/agrirag/internal/repository/memory"
	"github.com/kailas-cloud/agrirag/internal/repository/embcache"
	kbrepo "github.com/kailas-cloud/agrirag/internal/repository/knowledge"
	vocabrepo "github.com/kailas-cloud/agrirag/internal/repository/vocabulary"
	chiTransport "github.com/kailas-cloud/agrirag/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/agrirag/internal/transport/openai"
	"github.com/kailas-cloud/agrirag/internal/usecase/contextbuild"
	embeddinguc "github.com/kailas-cloud/agrirag/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/agrirag/internal/usecase/health"
	"github.com/kailas-cloud/agrirag/internal/usecase/quota"
	"github.com/kailas-cloud/agrirag/internal/usecase/reasoning"
	"github.com/kailas-cloud/agrirag/internal/usecase/recovery"
	"github.com/kailas-cloud/agrirag/internal/usecase/scoring"
	usageuc "github.com/kailas-cloud/agrirag/internal/usecase/usage"
	"github.com/kailas-cloud/agrirag/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting agrirag API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := logpkg.ContextWithLogger(context.Background(), logger)
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.Register()

	kb, err := kbrepo.Load(ctx, cfg.Knowledge.Path)
	if err != nil {
		logger.Fatal("Failed to load knowledge base", zap.String("path", cfg.Knowledge.Path), zap.Error(err))
	}
	if cfg.Embedding.Dimensions > 0 && kb.Dimension() > 0 && kb.Dimension() != cfg.Embedding.Dimensions {
		logger.Fatal("Knowledge base does not match the embedding model",
			zap.Int("kb_dimension", kb.Dimension()),
			zap.Int("embedding_dimensions", cfg.Embedding.Dimensions),
			zap.Error(domain.ErrDimensionMismatch),
		)
	}

	voc, err := vocabrepo.Load(cfg.Knowledge.VocabularyPath)
	if err != nil {
		logger.Fatal("Failed to load vocabulary", zap.Error(err))
	}

	budgetStore := budgetrepo.New(store, budgetrepo.DefaultDailyTTL, budgetrepo.DefaultMonthlyTTL)
	embBudget := buildBudget(ctx, "embedding:"+cfg.Embedding.Provider, cfg.Embedding.Budget,
		domain.ErrEmbeddingQuotaExceeded, budgetStore, logger)
	oracleBudget := buildBudget(ctx, "oracle:"+cfg.Oracle.Provider, cfg.Oracle.Budget,
		domain.ErrOracleQuotaExceeded, budgetStore, logger)

	embedder := buildEmbedder(&cfg, store, embBudget, logger)
	oracle := buildOracle(&cfg, oracleBudget, logger)
	logger.Info("Providers created",
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.String("oracle_model", cfg.Oracle.Model),
	)

	deps := engine.Deps{
		KB:            kb,
		Vocabulary:    voc,
		Embedder:      embedder,
		Oracle:        oracle,
		Conversations: convrepo.New(store, cfg.Conversation.MaxTurns, time.Duration(cfg.Conversation.TTLHours)*time.Hour),
	}
	if cfg.Memory.Enabled {
		deps.Memory = memrepo.New(store, cfg.Memory.MaxFacts, time.Duration(cfg.Memory.TTLDays)*24*time.Hour)
	}
	eng, err := engine.New(deps, engineConfig(&cfg))
	if err != nil {
		logger.Fatal("Failed to assemble retrieval engine", zap.Error(err))
	}

	// Usage service reads from the shared trackers.
	usageSvc := usageuc.New(
		usageSource(domusage.ScopeEmbedding, embBudget, cfg.Embedding.Budget),
		usageSource(domusage.ScopeOracle, oracleBudget, cfg.Oracle.Budget),
	)
	healthSvc := healthuc.New(store, kb, embedder, oracle)

	server := chiTransport.NewServer(eng.Pipeline, eng.Tagger, eng.Conversations, usageSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(chiTransport.JSONRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(chiTransport.WideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr), zap.Int("documents", kb.Len()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildBudget returns nil when the section sets no limits.
func buildBudget(
	ctx context.Context, scope string, bc config.BudgetConfig, exceeded error,
	store quota.Store, logger *zap.Logger,
) *quota.Tracker {
	if bc.DailyTokenLimit <= 0 && bc.MonthlyTokenLimit <= 0 {
		return nil
	}
	t := quota.NewTracker(scope, bc.DailyTokenLimit, bc.MonthlyTokenLimit, quota.ParseAction(bc.Action), exceeded, logger)
	// Connect persistence store, loads current counters from DB.
	return t.WithStore(ctx, store)
}

// usageSource keeps a nil tracker a nil interface.
func usageSource(scope domusage.Scope, t *quota.Tracker, bc config.BudgetConfig) usageuc.Source {
	src := usageuc.Source{Scope: scope, CostPerMillionTokens: bc.CostPerMillionTokens}
	if t != nil {
		src.Reader = t
	}
	return src
}

// buildEmbedder assembles the decorator chain:
// OpenAI -> Retry -> Instrumented -> Cached -> Instruction.
// Cache sits outside the budget so cached queries spend nothing.
func buildEmbedder(cfg *config.Config, store db.Store, budget *quota.Tracker, logger *zap.Logger) *domain.InstructionEmbedder {
	provCfg := cfg.Providers[cfg.Embedding.Provider]

	// Base provider (with transport metrics built-in)
	var embedder domain.Embedder = openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     provCfg.APIKey,
		BaseURL:    provCfg.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})

	embedder = embeddinguc.NewRetryEmbedder(embedder, embeddinguc.DefaultRetryDelay)

	// Pass nil interface (not typed nil pointer!) if budget is not configured.
	var checker embeddinguc.BudgetChecker
	if budget != nil {
		checker = budget
	}
	embedder = embeddinguc.NewInstrumentedEmbedder(
		embedder, cfg.Embedding.Provider, cfg.Embedding.Model, checker, logger,
	)

	embedder = embcache.New(embedder, store, cfg.Embedding.Model,
		time.Duration(cfg.Embedding.CacheTTLHours)*time.Hour, metrics.EmbeddingCacheTotal, logger)

	// Instruction prefix (outermost, cache key includes instruction)
	return domain.NewInstructionEmbedder(embedder, cfg.Embedding.QueryInstruction)
}

func buildOracle(cfg *config.Config, budget *quota.Tracker, logger *zap.Logger) *reasoning.BudgetedOracle {
	provCfg := cfg.Providers[cfg.Oracle.Provider]
	base := openaiTransport.NewOracle(&openaiTransport.OracleConfig{
		APIKey:      provCfg.APIKey,
		BaseURL:     provCfg.BaseURL,
		Model:       cfg.Oracle.Model,
		Temperature: cfg.Oracle.Temperature,
		MaxTokens:   cfg.Oracle.MaxTokens,
		Timeout:     time.Duration(cfg.Oracle.TimeoutSec) * time.Second,
		RatePerSec:  cfg.Oracle.RatePerSec,
		Burst:       cfg.Oracle.Burst,
		Logger:      logger,
	})

	var checker reasoning.BudgetChecker
	if budget != nil {
		checker = budget
	}
	return reasoning.NewBudgetedOracle(base, cfg.Oracle.Provider, checker, logger)
}

func engineConfig(cfg *config.Config) engine.Config {
	return engine.Config{
		MaxQueryRunes:  cfg.HTTP.MaxQueryChars,
		TopK:           cfg.Retrieval.TopK,
		MaxHops:        cfg.Retrieval.MaxHops,
		MinDocs:        cfg.Retrieval.MinDocsForAnswer,
		SimilarityOnly: cfg.Retrieval.SimilarityOnly,
		IntentHint:     cfg.Retrieval.IntentHint,
		Weights: scoring.Weights{
			TagWeight:    cfg.Scoring.TagWeight,
			EmbedWeight:  cfg.Scoring.EmbedWeight,
			MaxTagScore:  cfg.Scoring.MaxTagScore,
			GapThreshold: cfg.Scoring.GapThreshold,
			MinGapBonus:  cfg.Scoring.MinGapBonus,
		},
		Recovery: recovery.Config{
			QueriesPerFamily: cfg.Recovery.QueriesPerFamily,
			PerFamilyMin:     cfg.Recovery.PerFamilyMin,
			MaxDocs:          cfg.Recovery.MaxDocs,
			TopK:             cfg.Recovery.TopK,
			Parallelism:      cfg.Recovery.Parallelism,
			MaxTagScore:      cfg.Scoring.MaxTagScore,
		},
		T4Disabled:    cfg.Completeness.T4Disabled,
		T4TopK:        cfg.Completeness.T4TopK,
		T4MaxIntents:  cfg.Completeness.T4MaxIntents,
		ExcerptRunes:  cfg.Completeness.T5ExcerptChars,
		DraftMaxHits:  cfg.Completeness.DraftMaxHits,
		DraftSnippet:  cfg.Completeness.DraftSnippetLen,
		FallbackSlots: cfg.Completeness.FallbackSlots,
		Budgets: contextbuild.Budgets{
			MaxStrict:    cfg.Context.MaxStrict,
			MaxSoft:      cfg.Context.MaxSoft,
			MaxListing:   cfg.Context.MaxListing,
			MaxReasoning: cfg.Context.MaxReasoning,
		},
		HistoryTurns:      cfg.Conversation.HistoryTurns,
		NormalizeDisabled: cfg.Query.NormalizeDisabled,
		RoutingEnabled:    cfg.Query.RoutingEnabled,
		MemoryTopK:        cfg.Memory.TopK,
		OracleTemperature: cfg.Oracle.Temperature,
		OracleMaxTokens:   cfg.Oracle.MaxTokens,
	}
}
