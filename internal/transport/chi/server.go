// Package chi exposes the retrieval engine over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/agrirag/internal/domain"
	"github.com/kailas-cloud/agrirag/internal/domain/conversation"
	"github.com/kailas-cloud/agrirag/internal/domain/tag"
	domusage "github.com/kailas-cloud/agrirag/internal/domain/usage"
	healthuc "github.com/kailas-cloud/agrirag/internal/usecase/health"
	"github.com/kailas-cloud/agrirag/internal/usecase/pipeline"
	"github.com/kailas-cloud/agrirag/internal/usecase/tagging"
)

const maxBodyBytes = 1 << 20

// Retriever runs the retrieval pipeline.
type Retriever interface {
	RetrieveAndVerify(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// Tagger explains tag extraction for a query.
type Tagger interface {
	Analyze(query string) tagging.Result
}

// Conversations reads, extends and clears short-term history.
type Conversations interface {
	History(ctx context.Context, userID string) ([]conversation.Turn, error)
	AppendAssistant(ctx context.Context, userID, content string) error
	Clear(ctx context.Context, userID string) error
}

// UsageReporter reports token budgets.
type UsageReporter interface {
	GetReport(ctx context.Context, period domusage.Period) []domusage.Report
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server holds the HTTP handlers of the API.
type Server struct {
	retriever     Retriever
	tagger        Tagger
	conversations Conversations
	usage         UsageReporter
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. conversations may be nil.
func NewServer(
	retriever Retriever,
	tagger Tagger,
	conversations Conversations,
	usage UsageReporter,
	health HealthChecker,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		retriever:     retriever,
		tagger:        tagger,
		conversations: conversations,
		usage:         usage,
		health:        health,
		logger:        logger,
	}
	s.errorHandlers = []errorHandler{
		invalidQueryHandler,
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited),
		sentinelHandler(domain.ErrEmbeddingQuotaExceeded, http.StatusPaymentRequired, CodeEmbeddingQuotaExceeded),
		sentinelHandler(domain.ErrOracleQuotaExceeded, http.StatusPaymentRequired, CodeOracleQuotaExceeded),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeEmbeddingProviderError),
		sentinelHandler(domain.ErrOracleError, http.StatusBadGateway, CodeOracleError),
		sentinelHandler(domain.ErrNotImplemented, http.StatusNotImplemented, CodeNotImplemented),
	}
	return s
}

// Register mounts all routes on r.
func (s *Server) Register(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/retrieve", s.Retrieve)
		r.Get("/tags", s.ExtractTags)
		r.Get("/conversations", s.GetConversation)
		r.Delete("/conversations", s.ClearConversation)
		r.Post("/conversations/answer", s.RecordAnswer)
		r.Get("/usage", s.GetUsage)
	})
}

// Retrieve handles POST /v1/retrieve.
func (s *Server) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req RetrieveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	var hint tag.Set
	if req.Tags != nil {
		hint = tag.New(req.Tags.RequiredAny, req.Tags.Any)
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	res, err := s.retriever.RetrieveAndVerify(ctx, pipeline.Request{
		Query:   req.Query,
		UserID:  req.UserID,
		TagHint: hint,
	})
	setUsageHeaders(w, usage)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resultToAPI(&res))
}

// ExtractTags handles GET /v1/tags?q=.
func (s *Server) ExtractTags(w http.ResponseWriter, r *http.Request) {
	var q string
	if err := runtime.BindQueryParameter("form", true, true, "q", r.URL.Query(), &q); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid format for parameter q: "+err.Error())
		return
	}

	res := s.tagger.Analyze(q)
	must, anyTags := res.Tags.RequiredAny, res.Tags.Any
	if must == nil {
		must = []string{}
	}
	if anyTags == nil {
		anyTags = []string{}
	}
	writeJSON(w, http.StatusOK, TagsResponse{Must: must, Any: anyTags, Found: res.Found})
}

// GetConversation handles GET /v1/conversations?user_id=.
func (s *Server) GetConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.bindUserID(w, r)
	if !ok {
		return
	}

	turns, err := s.conversations.History(r.Context(), userID)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if turns == nil {
		turns = []conversation.Turn{}
	}
	writeJSON(w, http.StatusOK, ConversationResponse{UserID: userID, Turns: turns})
}

// ClearConversation handles DELETE /v1/conversations?user_id=.
func (s *Server) ClearConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.bindUserID(w, r)
	if !ok {
		return
	}

	if err := s.conversations.Clear(r.Context(), userID); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RecordAnswer handles POST /v1/conversations/answer. The caller reports the
// answer it generated so follow-ups and long-term memory can see it.
func (s *Server) RecordAnswer(w http.ResponseWriter, r *http.Request) {
	if s.conversations == nil {
		s.handleDomainError(w, r, domain.ErrNotImplemented)
		return
	}
	var req AnswerRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" || strings.TrimSpace(req.Answer) == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "user_id and answer are required")
		return
	}

	if err := s.conversations.AppendAssistant(r.Context(), req.UserID, req.Answer); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) bindUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	if s.conversations == nil {
		s.handleDomainError(w, r, domain.ErrNotImplemented)
		return "", false
	}
	var userID string
	if err := runtime.BindQueryParameter("form", true, true, "user_id", r.URL.Query(), &userID); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid format for parameter user_id: "+err.Error())
		return "", false
	}
	if userID == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "user_id is required")
		return "", false
	}
	return userID, true
}

// GetUsage handles GET /v1/usage?period=day|month.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	var raw string
	if err := runtime.BindQueryParameter("form", true, false, "period", r.URL.Query(), &raw); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid format for parameter period: "+err.Error())
		return
	}
	period, ok := domusage.ParsePeriod(raw)
	if !ok {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "period must be day or month")
		return
	}

	reports := s.usage.GetReport(r.Context(), period)
	resp := UsageResponse{Period: string(period), Items: make([]ScopeUsage, len(reports))}
	for i := range reports {
		resp.Items[i] = reportToAPI(&reports[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:    string(report.Status),
		Checks:    checks,
		Documents: report.Documents,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func setUsageHeaders(w http.ResponseWriter, usage *domain.RequestUsage) {
	snap := usage.Snapshot()
	if snap.EmbeddingCalls > 0 {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(snap.EmbeddingTokens))
	}
	if snap.OracleCalls > 0 {
		w.Header().Set("X-Oracle-Tokens", strconv.Itoa(snap.OracleTokens))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrInvalidQuery,
		domain.ErrRateLimited,
		domain.ErrEmbeddingQuotaExceeded,
		domain.ErrOracleQuotaExceeded,
		domain.ErrEmbeddingProviderError,
		domain.ErrOracleError,
		domain.ErrNotImplemented,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// invalidQueryHandler echoes the validation detail, which only describes user input.
func invalidQueryHandler(w http.ResponseWriter, err error, _ string) bool {
	if !errors.Is(err, domain.ErrInvalidQuery) {
		return false
	}
	writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, _ *http.Request, err error) {
	log := s.logger
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
