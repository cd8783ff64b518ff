package agrirag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/agrirag/internal/domain"
)

var kbDocs = []Document{
	{ID: "d1", Question: "Thuốc trừ rầy nâu hại lúa?", Answer: "Dùng thiamethoxam.",
		Tags: "chemical:thiamethoxam,pest:ray-nau,crop:lua", Embedding: []float32{1, 0}},
	{ID: "d2", Question: "Rầy nâu là gì?", Answer: "Côn trùng chích hút.",
		Tags: "chemical:thiamethoxam,pest:ray-nau", Embedding: []float32{0.9, 0.1}},
	{ID: "d3", Question: "Bón phân cho ngô", Answer: "Bón lót.",
		Tags: "crop:ngo", Embedding: []float32{0, 1}},
}

const kbJSON = `{
  "ids": ["d1", "d2", "d3"],
  "questions": ["Thuốc trừ rầy nâu hại lúa?", "Rầy nâu là gì?", "Bón phân cho ngô"],
  "answers": ["Dùng thiamethoxam.", "Côn trùng chích hút.", "Bón lót."],
  "tags_v2": ["chemical:thiamethoxam,pest:ray-nau,crop:lua", "chemical:thiamethoxam,pest:ray-nau", "crop:ngo"],
  "embeddings": [[1, 0], [0.9, 0.1], [0, 1]]
}`

func constEmbedder() *mockEmbedder {
	return &mockEmbedder{fn: func(context.Context, string) (EmbeddingResult, error) {
		return EmbeddingResult{Embedding: []float32{1, 0}, TotalTokens: 3}, nil
	}}
}

func silentOracle() *mockOracle {
	return &mockOracle{fn: func(context.Context, OracleRequest) (OracleResponse, error) {
		return OracleResponse{Content: `{"need_next_hop": false, "is_complete": true}`, TotalTokens: 2}, nil
	}}
}

func TestNew_RequiresKnowledgeBase(t *testing.T) {
	_, err := New(context.Background(), WithEmbedder(constEmbedder()), WithOracle(silentOracle()))
	if err == nil {
		t.Fatal("expected error when no knowledge base provided")
	}
}

func TestNew_RequiresProviders(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want string
	}{
		{"no embedder", []Option{WithDocuments(kbDocs), WithOracle(silentOracle())}, "embedder required"},
		{"no oracle", []Option{WithDocuments(kbDocs), WithEmbedder(constEmbedder())}, "oracle required"},
		{"openai without models", []Option{WithDocuments(kbDocs), WithOpenAI(OpenAIConfig{APIKey: "k"})}, "embedder required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(context.Background(), tt.opts...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestNew_InvalidDocument(t *testing.T) {
	_, err := New(context.Background(),
		WithDocuments([]Document{{ID: " "}}),
		WithEmbedder(constEmbedder()), WithOracle(silentOracle()),
	)
	if !errors.Is(err, ErrKnowledgeBaseInvalid) {
		t.Fatalf("err = %v, want ErrKnowledgeBaseInvalid", err)
	}
}

func TestNew_OpenAIDimensionMismatch(t *testing.T) {
	_, err := New(context.Background(),
		WithDocuments(kbDocs),
		WithOpenAI(OpenAIConfig{APIKey: "k", EmbeddingModel: "m", EmbeddingDimensions: 1024, OracleModel: "o"}),
	)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("err = %v, want ErrDimensionMismatch", err)
	}
}

func TestNew_RetrieveAndVerify(t *testing.T) {
	c, err := New(context.Background(),
		WithDocuments(kbDocs),
		WithEmbedder(constEmbedder()),
		WithOracle(silentOracle()),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if c.Documents() != 3 {
		t.Errorf("documents = %d, want 3", c.Documents())
	}
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("ping without database: %v", err)
	}

	res, err := c.RetrieveAndVerify(context.Background(), "thiamethoxam trừ rầy nâu trên lúa")
	if err != nil {
		t.Fatalf("RetrieveAndVerify: %v", err)
	}
	if res.NoData || len(res.Hits) == 0 {
		t.Fatalf("expected hits, got NoData=%v", res.NoData)
	}
	if res.Hits[0].ID != "d1" {
		t.Errorf("top hit = %s, want d1", res.Hits[0].ID)
	}
	if res.Usage.EmbeddingCalls == 0 {
		t.Error("expected embedding usage to be recorded")
	}
	if len(res.Hops) == 0 {
		t.Error("expected a hop trail")
	}

	_, err = c.RetrieveAndVerify(context.Background(), "   ")
	if !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("blank query err = %v, want ErrInvalidQuery", err)
	}

	if err := c.RecordAnswer(context.Background(), "u1", "ok"); !errors.Is(err, ErrNotImplemented) {
		t.Errorf("RecordAnswer without database err = %v, want ErrNotImplemented", err)
	}

	h := c.Health(context.Background())
	if h.Status != "ok" || h.Documents != 3 {
		t.Errorf("health = %+v", h)
	}
	if _, ok := h.Checks["database"]; ok {
		t.Error("database check should be absent without WithRedis")
	}
}

func TestNew_KnowledgeBaseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.json")
	if err := os.WriteFile(path, []byte(kbJSON), 0o600); err != nil {
		t.Fatalf("write kb: %v", err)
	}

	c, err := New(context.Background(),
		WithKnowledgeBase(path),
		WithEmbedder(constEmbedder()),
		WithOracle(silentOracle()),
		WithQueryInstruction("query: "),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if c.Documents() != 3 {
		t.Errorf("documents = %d, want 3", c.Documents())
	}
	tags := c.ExtractTags("thiamethoxam trừ rầy nâu")
	if len(tags.DirectChemicals) == 0 {
		t.Errorf("expected a direct chemical, got %+v", tags)
	}
}

func TestEmbedderAdapter(t *testing.T) {
	called := false
	mock := &mockEmbedder{
		fn: func(_ context.Context, text string) (EmbeddingResult, error) {
			called = true
			return EmbeddingResult{
				Embedding:    []float32{1, 2, 3},
				PromptTokens: 5,
				TotalTokens:  10,
			}, nil
		},
	}

	adapter := &embedderAdapter{inner: mock}
	result, err := adapter.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("inner embedder was not called")
	}
	if len(result.Embedding) != 3 {
		t.Errorf("embedding len = %d, want 3", len(result.Embedding))
	}
	if result.TotalTokens != 10 {
		t.Errorf("total tokens = %d, want 10", result.TotalTokens)
	}
}

func TestEmbedderAdapter_Error(t *testing.T) {
	mock := &mockEmbedder{
		fn: func(_ context.Context, _ string) (EmbeddingResult, error) {
			return EmbeddingResult{}, errors.New("provider down")
		},
	}

	adapter := &embedderAdapter{inner: mock}
	_, err := adapter.Embed(context.Background(), "hello")
	if !errors.Is(err, ErrEmbeddingProviderError) {
		t.Fatalf("err = %v, want ErrEmbeddingProviderError", err)
	}
}

func TestOracleAdapter(t *testing.T) {
	var got OracleRequest
	mock := &mockOracle{fn: func(_ context.Context, req OracleRequest) (OracleResponse, error) {
		got = req
		return OracleResponse{Content: "{}", TotalTokens: 9}, nil
	}}
	ctx, usage := domain.NewContextWithUsage(context.Background())

	adapter := &oracleAdapter{inner: mock}
	resp, err := adapter.Complete(ctx, domain.OracleRequest{Purpose: "gap_check", User: "u", JSON: true, MaxTokens: 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Purpose != "gap_check" || !got.JSON || got.MaxTokens != 50 {
		t.Errorf("forwarded request = %+v", got)
	}
	if resp.TotalTokens != 9 {
		t.Errorf("total tokens = %d, want 9", resp.TotalTokens)
	}
	if s := usage.Snapshot(); s.OracleCalls != 1 || s.OracleTokens != 9 {
		t.Errorf("usage = %+v, want 1 call / 9 tokens", s)
	}
}

func TestOracleAdapter_Error(t *testing.T) {
	mock := &mockOracle{fn: func(context.Context, OracleRequest) (OracleResponse, error) {
		return OracleResponse{}, errors.New("timeout")
	}}
	_, err := (&oracleAdapter{inner: mock}).Complete(context.Background(), domain.OracleRequest{})
	if !errors.Is(err, ErrOracleError) {
		t.Fatalf("err = %v, want ErrOracleError", err)
	}
}

func TestClientOptions(t *testing.T) {
	cfg := &clientConfig{}

	WithRedis("localhost:6380", "pass").apply(cfg)
	if cfg.addrs[0] != "localhost:6380" {
		t.Errorf("addr = %q, want localhost:6380", cfg.addrs[0])
	}
	if cfg.password != "pass" {
		t.Errorf("password = %q, want pass", cfg.password)
	}

	WithConversation(4, time.Hour).apply(cfg)
	if cfg.historyTurns != 4 || cfg.conversationTTL != time.Hour {
		t.Errorf("conversation = (%d, %s), want (4, 1h)", cfg.historyTurns, cfg.conversationTTL)
	}

	WithTopK(10).apply(cfg)
	WithMaxHops(2).apply(cfg)
	WithMinDocs(5).apply(cfg)
	WithSimilarityOnly().apply(cfg)
	WithoutSolutionCompletion().apply(cfg)
	if cfg.topK != 10 || cfg.maxHops != 2 || cfg.minDocs != 5 || !cfg.similarityOnly || !cfg.t4Disabled {
		t.Errorf("tuning = %+v", cfg)
	}

	WithRouting().apply(cfg)
	WithoutQueryNormalization().apply(cfg)
	WithLongTermMemory(20, 24*time.Hour, 3).apply(cfg)
	if !cfg.routing || !cfg.normalizeDisabled {
		t.Errorf("routing = %v, normalizeDisabled = %v", cfg.routing, cfg.normalizeDisabled)
	}
	if !cfg.memory || cfg.memoryFacts != 20 || cfg.memoryTTL != 24*time.Hour || cfg.memoryTopK != 3 {
		t.Errorf("memory = (%v, %d, %s, %d)", cfg.memory, cfg.memoryFacts, cfg.memoryTTL, cfg.memoryTopK)
	}

	WithOpenAI(OpenAIConfig{APIKey: "k", OracleModel: "o"}).apply(cfg)
	if cfg.openAI == nil || cfg.openAI.OracleModel != "o" {
		t.Error("expected openAI config to be set")
	}

	cfg2 := &clientConfig{}
	logger := slog.Default()
	WithLogger(logger).apply(cfg2)
	if cfg2.logger != logger {
		t.Error("expected logger to be set")
	}

	cfg3 := &clientConfig{}
	reg := prometheus.NewRegistry()
	WithPrometheus(reg).apply(cfg3)
	if cfg3.metricsReg != reg {
		t.Error("expected metricsReg to be set")
	}
}

func TestClient_Close_NilStore(t *testing.T) {
	// Close на клиенте с nil store не паникует.
	c := &Client{store: nil}
	c.Close() // не должен упасть
}

func TestObserver_NilSafe(t *testing.T) {
	// nil observer should not panic.
	var obs *observer
	obs.observe("test", time.Now(), nil)
	obs.observe("test", time.Now(), errors.New("err"))
}

func TestObserver_WithPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := newObserver(nil, reg)
	if err != nil {
		t.Fatalf("newObserver: %v", err)
	}

	obs.observe("history", time.Now().Add(-10*time.Millisecond), nil)
	obs.observe("history", time.Now(), fmt.Errorf("history: %w", ErrNotImplemented))
	obs.observeRetrieve(time.Now(), &Result{Route: "global"}, nil)
	obs.observeRetrieve(time.Now(), &Result{NoData: true}, nil)

	calls := obs.metrics.calls
	tests := []struct {
		op, outcome string
	}{
		{"history", outcomeOK},
		{"history", outcomeDisabled},
		{"retrieve", outcomeOK},
		{"retrieve", outcomeNoData},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(calls.WithLabelValues(tt.op, tt.outcome)); got != 1 {
			t.Errorf("%s/%s = %v, want 1", tt.op, tt.outcome, got)
		}
	}
	if got := testutil.CollectAndCount(obs.metrics.evidence); got != 2 {
		t.Errorf("evidence series = %d, want 2 (global and rag)", got)
	}
}

func TestObserver_ReusesCollectorsAcrossClients(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := newObserver(nil, reg)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := newObserver(nil, reg)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.metrics.calls != second.metrics.calls {
		t.Error("expected the second client to reuse the registered counter")
	}
}

func TestOutcomeOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, outcomeOK},
		{fmt.Errorf("retrieve: %w", ErrInvalidQuery), outcomeInvalid},
		{fmt.Errorf("oracle budget: %w", ErrOracleQuotaExceeded), outcomeQuota},
		{ErrEmbeddingQuotaExceeded, outcomeQuota},
		{fmt.Errorf("embed: %w", ErrEmbeddingProviderError), outcomeProvider},
		{ErrRateLimited, outcomeProvider},
		{ErrNotImplemented, outcomeDisabled},
		{context.Canceled, outcomeCanceled},
		{errors.New("boom"), outcomeError},
	}
	for _, tt := range tests {
		if got := outcomeOf(tt.err); got != tt.want {
			t.Errorf("outcomeOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestObserver_WithLogger(t *testing.T) {
	// Проверяем что логгер не паникует при вызове.
	logger := slog.Default()
	obs, err := newObserver(logger, nil)
	if err != nil {
		t.Fatalf("newObserver: %v", err)
	}
	obs.observe("test.op", time.Now(), nil)
	obs.observe("test.op", time.Now(), errors.New("test error"))
}
