package chi

import (
	"time"

	"github.com/kailas-cloud/agrirag/internal/domain/conversation"
	"github.com/kailas-cloud/agrirag/internal/domain/hit"
	"github.com/kailas-cloud/agrirag/internal/domain/hop"
	"github.com/kailas-cloud/agrirag/internal/domain/tag"
	domusage "github.com/kailas-cloud/agrirag/internal/domain/usage"
	"github.com/kailas-cloud/agrirag/internal/usecase/completeness"
	"github.com/kailas-cloud/agrirag/internal/usecase/pipeline"
	"github.com/kailas-cloud/agrirag/internal/usecase/policy"
	"github.com/kailas-cloud/agrirag/internal/usecase/routing"
	"github.com/kailas-cloud/agrirag/internal/usecase/scoring"
	"github.com/kailas-cloud/agrirag/internal/usecase/tagging"
)

// ErrorCode is a stable machine-readable error identifier.
type ErrorCode string

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest             ErrorCode = "bad_request"
	CodeValidationFailed       ErrorCode = "validation_failed"
	CodeUnauthorized           ErrorCode = "unauthorized"
	CodeNotFound               ErrorCode = "not_found"
	CodeRateLimited            ErrorCode = "rate_limited"
	CodeEmbeddingQuotaExceeded ErrorCode = "embedding_quota_exceeded"
	CodeOracleQuotaExceeded    ErrorCode = "oracle_quota_exceeded"
	CodeEmbeddingProviderError ErrorCode = "embedding_provider_error"
	CodeOracleError            ErrorCode = "oracle_error"
	CodeNotImplemented         ErrorCode = "not_implemented"
	CodeInternalError          ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// RetrieveRequest is the body of POST /v1/retrieve.
type RetrieveRequest struct {
	Query  string   `json:"query"`
	UserID string   `json:"user_id,omitempty"`
	Tags   *tag.Set `json:"tags,omitempty"`
}

// HitItem is one piece of evidence.
type HitItem struct {
	ID           string   `json:"id"`
	Question     string   `json:"question"`
	Answer       string   `json:"answer"`
	Category     string   `json:"category,omitempty"`
	Tags         []string `json:"tags"`
	Similarity   float64  `json:"similarity"`
	TagScore     int      `json:"tag_score"`
	FusedScore   float64  `json:"fused_score"`
	Stage        string   `json:"stage,omitempty"`
	Reason       string   `json:"reason,omitempty"`
	OriginQuery  string   `json:"origin_query,omitempty"`
	Hop          int      `json:"hop,omitempty"`
	RecoveryMode string   `json:"recovery_mode,omitempty"`
	SolutionSlot string   `json:"solution_slot,omitempty"`
}

// UsageItem reports the external tokens spent by one request.
type UsageItem struct {
	EmbeddingTokens int `json:"embedding_tokens"`
	EmbeddingCalls  int `json:"embedding_calls"`
	OracleTokens    int `json:"oracle_tokens"`
	OracleCalls     int `json:"oracle_calls"`
}

// RetrieveResponse is the verified evidence of one run.
type RetrieveResponse struct {
	RunID          string              `json:"run_id"`
	Query          string              `json:"query"`
	EffectiveQuery string              `json:"effective_query"`
	Normalized     string              `json:"normalized_query,omitempty"`
	Rewritten      bool                `json:"rewritten"`
	Tags           tag.Set             `json:"tags"`
	Found          tagging.Found       `json:"found"`
	IsListing      bool                `json:"is_listing"`
	FormulaMode    bool                `json:"formula_mode"`
	FormulaIntent  bool                `json:"formula_intent"`
	Budget         int                 `json:"budget"`
	NoData         bool                `json:"no_data"`
	Recovered      bool                `json:"recovered"`
	Hits           []HitItem           `json:"hits"`
	Context        string              `json:"context"`
	SystemOverride string              `json:"system_override,omitempty"`
	Hops           hop.Trail           `json:"hops"`
	Profile        scoring.Profile     `json:"profile"`
	Completeness   completeness.Report `json:"completeness"`
	Route          routing.Decision    `json:"route"`
	Policy         policy.Policy       `json:"policy"`
	MemoryPrompt   string              `json:"memory_prompt,omitempty"`
	Usage          UsageItem           `json:"usage"`
}

// AnswerRequest is the body of POST /v1/conversations/answer.
type AnswerRequest struct {
	UserID string `json:"user_id"`
	Answer string `json:"answer"`
}

// TagsResponse is the body of GET /v1/tags.
type TagsResponse struct {
	Must  []string      `json:"must"`
	Any   []string      `json:"any"`
	Found tagging.Found `json:"found"`
}

// ConversationResponse is the body of GET /v1/conversations.
type ConversationResponse struct {
	UserID string              `json:"user_id"`
	Turns  []conversation.Turn `json:"turns"`
}

// BudgetStatus is the budget state of one scope.
type BudgetStatus struct {
	TokensLimit     int64      `json:"tokens_limit"`
	TokensRemaining int64      `json:"tokens_remaining"`
	IsExhausted     bool       `json:"is_exhausted"`
	ResetsAt        *time.Time `json:"resets_at,omitempty"`
}

// ScopeUsage is the usage of one budgeted provider.
type ScopeUsage struct {
	Scope            string       `json:"scope"`
	Tokens           int64        `json:"tokens"`
	CostMillidollars *int64       `json:"cost_millidollars,omitempty"`
	PeriodStartAt    *time.Time   `json:"period_start_at,omitempty"`
	PeriodEndAt      *time.Time   `json:"period_end_at,omitempty"`
	Budget           BudgetStatus `json:"budget"`
}

// UsageResponse is the body of GET /v1/usage.
type UsageResponse struct {
	Period string       `json:"period"`
	Items  []ScopeUsage `json:"items"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Documents int               `json:"documents"`
}

func hitToAPI(h *hit.Hit) HitItem {
	tags := h.Doc.Tags()
	if tags == nil {
		tags = []string{}
	}
	return HitItem{
		ID:           h.ID(),
		Question:     h.Doc.Question(),
		Answer:       h.Doc.Answer(),
		Category:     h.Doc.Category(),
		Tags:         tags,
		Similarity:   h.Similarity,
		TagScore:     h.TagScore,
		FusedScore:   h.FusedScore,
		Stage:        string(h.Stage),
		Reason:       h.Reason,
		OriginQuery:  h.OriginQuery,
		Hop:          h.HopIndex,
		RecoveryMode: h.RecoveryMode,
		SolutionSlot: h.SolutionSlot,
	}
}

func resultToAPI(res *pipeline.Result) RetrieveResponse {
	hits := make([]HitItem, len(res.Hits))
	for i := range res.Hits {
		hits[i] = hitToAPI(&res.Hits[i])
	}
	hops := res.Hops
	if hops == nil {
		hops = hop.Trail{}
	}
	return RetrieveResponse{
		RunID:          res.RunID,
		Query:          res.Query,
		EffectiveQuery: res.EffectiveQuery,
		Normalized:     res.NormalizedQuery,
		Rewritten:      res.Rewritten,
		Tags:           res.Tags,
		Found:          res.Found,
		IsListing:      res.IsListing,
		FormulaMode:    res.FormulaMode,
		FormulaIntent:  res.FormulaIntent,
		Budget:         res.Budget,
		NoData:         res.NoData,
		Recovered:      res.Recovered,
		Hits:           hits,
		Context:        res.Context,
		SystemOverride: res.SystemOverride,
		Hops:           hops,
		Profile:        res.Profile,
		Completeness:   res.Completeness,
		Route:          res.Route,
		Policy:         res.Policy,
		MemoryPrompt:   res.MemoryPrompt,
		Usage: UsageItem{
			EmbeddingTokens: res.Usage.EmbeddingTokens,
			EmbeddingCalls:  res.Usage.EmbeddingCalls,
			OracleTokens:    res.Usage.OracleTokens,
			OracleCalls:     res.Usage.OracleCalls,
		},
	}
}

func reportToAPI(r *domusage.Report) ScopeUsage {
	item := ScopeUsage{
		Scope:  string(r.Scope),
		Tokens: r.Tokens,
		Budget: BudgetStatus{
			TokensLimit:     r.Budget.TokensLimit,
			TokensRemaining: r.Budget.TokensRemaining,
			IsExhausted:     r.Budget.Exhausted,
		},
	}
	if r.CostMillidollars > 0 {
		cost := r.CostMillidollars
		item.CostMillidollars = &cost
	}
	if r.PeriodStart > 0 {
		start := time.UnixMilli(r.PeriodStart).UTC()
		end := time.UnixMilli(r.PeriodEnd).UTC()
		item.PeriodStartAt = &start
		item.PeriodEndAt = &end
	}
	if r.Budget.ResetsAt > 0 {
		resetsAt := time.UnixMilli(r.Budget.ResetsAt).UTC()
		item.Budget.ResetsAt = &resetsAt
	}
	return item
}
