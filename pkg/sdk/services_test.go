package agrirag

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/agrirag/internal/domain"
	domconv "github.com/kailas-cloud/agrirag/internal/domain/conversation"
	"github.com/kailas-cloud/agrirag/internal/domain/hit"
	"github.com/kailas-cloud/agrirag/internal/domain/hop"
	"github.com/kailas-cloud/agrirag/internal/domain/knowledge"
	"github.com/kailas-cloud/agrirag/internal/domain/slot"
	"github.com/kailas-cloud/agrirag/internal/domain/tag"
	"github.com/kailas-cloud/agrirag/internal/usecase/completeness"
	healthuc "github.com/kailas-cloud/agrirag/internal/usecase/health"
	"github.com/kailas-cloud/agrirag/internal/usecase/pipeline"
	"github.com/kailas-cloud/agrirag/internal/usecase/policy"
	"github.com/kailas-cloud/agrirag/internal/usecase/routing"
	"github.com/kailas-cloud/agrirag/internal/usecase/tagging"
)

func TestRetrieveAndVerify_ReportsRoutePolicyAndMemory(t *testing.T) {
	p := &mockPipeline{fn: func(context.Context, pipeline.Request) (pipeline.Result, error) {
		return pipeline.Result{
			Query:           "ray nau la gi",
			EffectiveQuery:  "rầy nâu là gì",
			NormalizedQuery: "rầy nâu là gì",
			Route:           routing.Decision{Route: routing.Global, Reason: routing.ReasonDefinition},
			Policy:          policy.Policy{Intent: policy.IntentGeneral, Format: policy.FormatShort, MaxSources: 5},
			MemoryPrompt:    "USER MEMORY:\n- trồng lúa ở An Giang",
			SystemOverride:  routing.GlobalSystemPrompt,
		}, nil
	}}
	c := testClient(p, nil, nil)

	res, err := c.RetrieveAndVerify(context.Background(), "ray nau la gi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.NormalizedQuery != "rầy nâu là gì" {
		t.Errorf("normalized = %q", res.NormalizedQuery)
	}
	if res.Route != "global" || res.RouteReason != routing.ReasonDefinition {
		t.Errorf("route = %q (%s)", res.Route, res.RouteReason)
	}
	if res.Policy.Intent != "general" || res.Policy.Format != "short" || res.Policy.MaxSources != 5 {
		t.Errorf("policy = %+v", res.Policy)
	}
	if !strings.Contains(res.MemoryPrompt, "An Giang") || res.SystemOverride != routing.GlobalSystemPrompt {
		t.Errorf("memory = %q, override = %q", res.MemoryPrompt, res.SystemOverride)
	}
}

func TestRetrieveAndVerify_Converts(t *testing.T) {
	doc, _ := knowledge.New(knowledge.Fields{
		ID: "d1", Question: "q", Answer: "a", TagsV2: "pest:ray-nau,crop:lua",
	})
	p := &mockPipeline{fn: func(context.Context, pipeline.Request) (pipeline.Result, error) {
		return pipeline.Result{
			RunID:          "run",
			Query:          "q",
			EffectiveQuery: "q2",
			Rewritten:      true,
			Tags:           tag.New([]string{"pest:ray-nau"}, []string{"crop:lua"}),
			Hits: []hit.Hit{{
				Doc: &doc, Similarity: 0.8, TagScore: 3, FusedScore: 0.7,
				Stage: hit.StageStrict, HopIndex: 1, SolutionSlot: "need_pesticide",
			}},
			Context:        "ctx",
			SystemOverride: completeness.SystemOverride,
			Hops: hop.Trail{
				{Index: 1, Query: "q2", HitCount: 1, SearchMode: "strict_must"},
				{Index: 2, Query: "next", StopReason: hop.LLMStop},
			},
			Completeness: completeness.Report{
				L3: completeness.L3Report{MissingSlots: []slot.Slot{slot.Pesticide}},
				T4: completeness.T4Report{Decision: completeness.T4Retrieved, AddedHits: 1},
				T5: completeness.T5Report{Decision: completeness.T5Injected},
			},
			Usage: domain.UsageSnapshot{EmbeddingTokens: 5, EmbeddingCalls: 2, OracleCalls: 3},
		}, nil
	}}
	c := testClient(p, nil, nil)

	res, err := c.RetrieveAndVerify(context.Background(), "q",
		WithUserID("u1"), WithTagHint([]string{"Crop:Lua"}, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.req.UserID != "u1" || !slices.Equal(p.req.TagHint.RequiredAny, []string{"crop:lua"}) {
		t.Errorf("request = %+v", p.req)
	}
	if !res.Rewritten || res.EffectiveQuery != "q2" {
		t.Errorf("rewrite = %v/%q", res.Rewritten, res.EffectiveQuery)
	}
	if len(res.Hits) != 1 || res.Hits[0].Score != 0.7 || res.Hits[0].Stage != "STRICT" ||
		res.Hits[0].SolutionSlot != "need_pesticide" {
		t.Errorf("hits = %+v", res.Hits)
	}
	if !slices.Equal(res.Hits[0].Tags, []string{"crop:lua", "pest:ray-nau"}) &&
		!slices.Equal(res.Hits[0].Tags, []string{"pest:ray-nau", "crop:lua"}) {
		t.Errorf("hit tags = %v", res.Hits[0].Tags)
	}
	if res.StopReason != string(hop.LLMStop) || len(res.Hops) != 2 {
		t.Errorf("hops = %+v, stop = %q", res.Hops, res.StopReason)
	}
	if res.Completeness.Completion != completeness.T4Retrieved ||
		res.Completeness.Fallback != completeness.T5Injected ||
		!slices.Equal(res.Completeness.MissingSlots, []string{"need_pesticide"}) {
		t.Errorf("completeness = %+v", res.Completeness)
	}
	if res.Usage.EmbeddingCalls != 2 || res.Usage.OracleCalls != 3 {
		t.Errorf("usage = %+v", res.Usage)
	}
	if res.SystemOverride == "" {
		t.Error("expected system override")
	}
}

func TestRetrieveAndVerify_Error(t *testing.T) {
	p := &mockPipeline{fn: func(context.Context, pipeline.Request) (pipeline.Result, error) {
		return pipeline.Result{}, domain.ErrEmbeddingQuotaExceeded
	}}
	c := testClient(p, nil, nil)

	if _, err := c.RetrieveAndVerify(context.Background(), "q"); !errors.Is(err, ErrEmbeddingQuotaExceeded) {
		t.Fatalf("err = %v, want ErrEmbeddingQuotaExceeded", err)
	}
}

func TestExtractTags(t *testing.T) {
	tagger := &mockTagger{result: tagging.Result{
		Tags: tag.New([]string{"chemical:abamectin"}, []string{"crop:lua"}),
		Found: tagging.Found{
			Pests:             []string{"nhen"},
			InferredChemicals: []string{"abamectin"},
			Mode:              tagging.InferPest,
		},
	}}
	c := testClient(nil, tagger, nil)

	got := c.ExtractTags("q")
	if !slices.Equal(got.Tags.Must, []string{"chemical:abamectin"}) || got.Mode != "pest" {
		t.Errorf("analysis = %+v", got)
	}
	if !slices.Equal(got.InferredChemicals, []string{"abamectin"}) {
		t.Errorf("inferred = %v", got.InferredChemicals)
	}
}

func TestConversation_Disabled(t *testing.T) {
	c := testClient(nil, nil, nil)
	ctx := context.Background()

	if err := c.RecordAnswer(ctx, "u", "a"); !errors.Is(err, ErrNotImplemented) {
		t.Errorf("RecordAnswer err = %v", err)
	}
	if _, err := c.History(ctx, "u"); !errors.Is(err, ErrNotImplemented) {
		t.Errorf("History err = %v", err)
	}
	if err := c.ClearHistory(ctx, "u"); !errors.Is(err, ErrNotImplemented) {
		t.Errorf("ClearHistory err = %v", err)
	}
}

func TestConversation(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var appended, cleared string
	conv := &mockConversations{
		appendFn: func(_ context.Context, userID, content string) error {
			appended = userID + ":" + content
			return nil
		},
		historyFn: func(context.Context, string) ([]domconv.Turn, error) {
			return []domconv.Turn{
				{Role: domconv.RoleUser, Content: "hỏi", At: at},
				{Role: domconv.RoleAssistant, Content: "đáp", At: at},
			}, nil
		},
		clearFn: func(_ context.Context, userID string) error {
			cleared = userID
			return nil
		},
	}
	c := testClient(nil, nil, conv)
	ctx := context.Background()

	if err := c.RecordAnswer(ctx, "u1", "đáp"); err != nil || appended != "u1:đáp" {
		t.Errorf("RecordAnswer = %v, appended %q", err, appended)
	}
	turns, err := c.History(ctx, "u1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(turns) != 2 || turns[1].Role != "assistant" || !turns[0].At.Equal(at) {
		t.Errorf("turns = %+v", turns)
	}
	if err := c.ClearHistory(ctx, "u1"); err != nil || cleared != "u1" {
		t.Errorf("ClearHistory = %v, cleared %q", err, cleared)
	}
}

func TestConversation_StoreError(t *testing.T) {
	conv := &mockConversations{
		historyFn: func(context.Context, string) ([]domconv.Turn, error) {
			return nil, errors.New("connection refused")
		},
	}
	c := testClient(nil, nil, conv)

	if _, err := c.History(context.Background(), "u1"); err == nil {
		t.Fatal("expected error")
	}
}

func TestHealth(t *testing.T) {
	c := &Client{healthSvc: &mockHealth{report: healthuc.Report{
		Status:    healthuc.Degraded,
		Checks:    map[string]healthuc.CheckResult{"database": healthuc.CheckError, "knowledge_base": healthuc.CheckOK},
		Documents: 12,
	}}}

	h := c.Health(context.Background())
	if h.Status != "degraded" || h.Checks["database"] != "error" || h.Documents != 12 {
		t.Errorf("health = %+v", h)
	}
}
