package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/agrirag/internal/domain"
	"github.com/kailas-cloud/agrirag/internal/domain/hit"
	"github.com/kailas-cloud/agrirag/internal/domain/hop"
	"github.com/kailas-cloud/agrirag/internal/domain/slot"
)

// Call site labels, used as OracleRequest.Purpose.
const (
	PurposeNextHop   = "next_hop"
	PurposeIntent    = "intent"
	PurposeGapCheck  = "gap_check"
	PurposeRecovery  = "recovery"
	PurposeKnowledge = "knowledge"
	PurposeRewrite   = "rewrite"
	PurposeNormalize = "normalize"
	PurposeFacts     = "facts"
)

// Family is a recovery query-generation strategy.
type Family string

// Recovery families.
const (
	PestFromSymptom    Family = "pest_from_symptom"
	DiseaseFromSymptom Family = "disease_from_symptom"
	EntityGuess        Family = "entity_guess"
	ControlMechanism   Family = "control_mechanism"
	FormulaPhrasing    Family = "formula_phrasing"
	GenericRephrase    Family = "generic_rephrase"
)

const (
	sampleHits      = 10
	maxQueryRunes   = 200
	maxRewriteRunes = 500
	maxFactRunes    = 300
)

// Options tunes generation parameters.
type Options struct {
	Temperature float32
	MaxTokens   int
}

// Service wraps the oracle with one typed method per call site.
// Every method returns a usable fail-safe value alongside any error,
// so callers only log the error.
type Service struct {
	oracle domain.Oracle
	opts   Options
}

// New creates a reasoning service.
func New(oracle domain.Oracle, opts Options) *Service {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 600
	}
	return &Service{oracle: oracle, opts: opts}
}

// HopDecision is the oracle verdict on whether another hop is needed.
type HopDecision struct {
	Need   bool
	Query  string
	Reason string
}

type hopPayload struct {
	OriginalQuery string       `json:"original_query"`
	HopIndex      int          `json:"hop_index"`
	NumHits       int          `json:"num_hits"`
	SampleHits    []sampledHit `json:"sample_hits"`
}

type sampledHit struct {
	ID       string   `json:"id"`
	Question string   `json:"question"`
	Tags     []string `json:"tags"`
}

// NextHop asks whether more evidence is needed. Failure means stop.
func (s *Service) NextHop(ctx context.Context, query string, hits []hit.Hit, hopIndex int) (HopDecision, error) {
	p := hopPayload{OriginalQuery: query, HopIndex: hopIndex, NumHits: len(hits)}
	for i, h := range hits {
		if i == sampleHits {
			break
		}
		p.SampleHits = append(p.SampleHits, sampledHit{ID: h.ID(), Question: h.Doc.Question(), Tags: h.Doc.Tags()})
	}
	body, err := json.Marshal(p)
	if err != nil {
		return HopDecision{Reason: "encode_error"}, fmt.Errorf("encode hop payload: %w", err)
	}

	content, err := s.complete(ctx, PurposeNextHop, nextHopSystem, string(body), true, 300)
	if err != nil {
		return HopDecision{Reason: "oracle_error"}, err
	}
	return ParseHopDecision(content), nil
}

// ParseHopDecision decodes the next-hop JSON. Anything malformed means stop.
func ParseHopDecision(content string) HopDecision {
	var raw struct {
		Need   any `json:"need_next_hop"`
		Query  any `json:"next_query"`
		Reason any `json:"reason"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return HopDecision{Reason: "malformed_response"}
	}
	d := HopDecision{
		Need:   asBool(raw.Need),
		Query:  truncateRunes(strings.TrimSpace(asString(raw.Query)), maxQueryRunes),
		Reason: strings.TrimSpace(asString(raw.Reason)),
	}
	if !d.Need || d.Query == "" {
		d.Need, d.Query = false, ""
	}
	return d
}

// Intent asks for the user's primary and fallback targets. Failure yields an empty hint.
func (s *Service) Intent(ctx context.Context, query string) (hop.IntentHint, error) {
	content, err := s.complete(ctx, PurposeIntent, intentSystem, query, true, 200)
	if err != nil {
		return hop.IntentHint{}, err
	}
	return ParseIntent(content), nil
}

// ParseIntent decodes the intent JSON, defaulting missing or mistyped fields.
func ParseIntent(content string) hop.IntentHint {
	var raw struct {
		Primary   any `json:"primary_target"`
		Fallbacks any `json:"fallback_targets"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return hop.IntentHint{}
	}
	return hop.IntentHint{
		PrimaryTarget:   strings.TrimSpace(asString(raw.Primary)),
		FallbackTargets: asStrings(raw.Fallbacks),
	}
}

// GapCheck asks whether the draft lets the user act. Failure means complete.
func (s *Service) GapCheck(ctx context.Context, query, draft string) (slot.Report, error) {
	body, err := json.Marshal(map[string]string{"user_query": query, "answer_text": draft})
	if err != nil {
		return completeReport("encode_error"), fmt.Errorf("encode gap payload: %w", err)
	}
	content, err := s.complete(ctx, PurposeGapCheck, gapSystem, string(body), true, 200)
	if err != nil {
		return completeReport("gap_detector_error"), err
	}
	return ParseGapReport(content), nil
}

// ParseGapReport decodes the gap verdict. Malformed output counts as complete.
// Unknown slot names are dropped; an incomplete verdict without known slots
// is treated as complete since nothing downstream could act on it.
func ParseGapReport(content string) slot.Report {
	var raw struct {
		Complete any `json:"is_complete"`
		Missing  any `json:"missing_slots"`
		Reason   any `json:"reason"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return completeReport("malformed_response")
	}
	complete := true
	if raw.Complete != nil {
		complete = asBool(raw.Complete)
	}
	r := slot.Report{
		IsComplete: complete,
		Reason:     strings.TrimSpace(asString(raw.Reason)),
	}
	if !complete {
		r.MissingSlots = slot.Parse(asStrings(raw.Missing))
	}
	if len(r.MissingSlots) == 0 {
		r.IsComplete = true
		r.MissingSlots = nil
	}
	return r
}

func completeReport(reason string) slot.Report {
	return slot.Report{IsComplete: true, Reason: reason}
}

// RecoveryQueries asks for up to n alternative queries in one family.
func (s *Service) RecoveryQueries(ctx context.Context, family Family, query string, n int) ([]string, error) {
	instruction, ok := familyInstructions[family]
	if !ok {
		return nil, fmt.Errorf("unknown recovery family %q", family)
	}
	user := fmt.Sprintf("Chiến lược: %s\nSố truy vấn tối đa: %d\nCâu hỏi gốc: %s", instruction, n, query)
	content, err := s.complete(ctx, PurposeRecovery, recoverySystem, user, true, 300)
	if err != nil {
		return nil, err
	}
	return ParseQueries(content, n), nil
}

// ParseQueries decodes {"queries": [...]} keeping at most n non-empty, distinct entries.
func ParseQueries(content string, n int) []string {
	var raw struct {
		Queries any `json:"queries"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, q := range asStrings(raw.Queries) {
		q = truncateRunes(q, maxQueryRunes)
		if seen[q] {
			continue
		}
		seen[q] = true
		out = append(out, q)
		if len(out) == n {
			break
		}
	}
	return out
}

// Knowledge synthesizes bridging domain knowledge. Failure yields "".
func (s *Service) Knowledge(ctx context.Context, query string, missing []slot.Slot, excerpt string) (string, error) {
	user := fmt.Sprintf(
		"Người dùng hỏi:\n%s\n\nThành phần còn thiếu:\n%s\n\nDữ liệu nội bộ hiện có (có thể không đủ):\n%s",
		query, strings.Join(slot.Strings(missing), ", "), excerpt,
	)
	content, err := s.complete(ctx, PurposeKnowledge, knowledgeSystem, user, false, 0)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

// Rewrite turns a follow-up into a standalone question. Failure or empty output
// returns the original query.
func (s *Service) Rewrite(ctx context.Context, query, history string) (string, error) {
	user := fmt.Sprintf("HỘI THOẠI GẦN NHẤT:\n%s\n\nCÂU HỎI HIỆN TẠI:\n%s", history, query)
	content, err := s.complete(ctx, PurposeRewrite, rewriteSystem, user, false, 120)
	if err != nil {
		return query, err
	}
	out := strings.TrimSpace(content)
	if out == "" {
		return query, nil
	}
	return truncateRunes(out, maxRewriteRunes), nil
}

// Normalize fixes spelling, casing and active-ingredient spelling without
// adding content. Failure or unusable output returns query unchanged.
func (s *Service) Normalize(ctx context.Context, query string) (string, error) {
	content, err := s.complete(ctx, PurposeNormalize, normalizeSystem, query, true, 200)
	if err != nil {
		return query, err
	}
	return ParseNormalized(content, query), nil
}

// ParseNormalized decodes {"query": "..."}, falling back to original when the
// field is missing, empty or grows the query past the rewrite bound.
func ParseNormalized(content, original string) string {
	var raw struct {
		Query any `json:"query"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return original
	}
	q := strings.TrimSpace(asString(raw.Query))
	if q == "" || utf8.RuneCountInString(q) > maxRewriteRunes {
		return original
	}
	return q
}

// Fact is a long-lived statement about a user distilled from a conversation.
type Fact struct {
	Type       string
	Text       string
	Confidence float64
}

// SummarizeFacts distills stable facts (profile, preference, workflow) from a
// conversation transcript. Failure yields no facts.
func (s *Service) SummarizeFacts(ctx context.Context, transcript string) ([]Fact, error) {
	user := fmt.Sprintf("HỘI THOẠI:\n%s", transcript)
	content, err := s.complete(ctx, PurposeFacts, factsSystem, user, true, 300)
	if err != nil {
		return nil, err
	}
	return ParseFacts(content), nil
}

var factTypes = map[string]bool{"profile": true, "preference": true, "workflow": true}

// ParseFacts decodes {"facts": [{"type", "fact", "confidence"}]}. Entries with
// an unknown type or empty text are dropped.
func ParseFacts(content string) []Fact {
	var raw struct {
		Facts []struct {
			Type       any `json:"type"`
			Fact       any `json:"fact"`
			Confidence any `json:"confidence"`
		} `json:"facts"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil
	}
	var out []Fact
	seen := make(map[string]bool)
	for _, f := range raw.Facts {
		typ := strings.ToLower(strings.TrimSpace(asString(f.Type)))
		text := truncateRunes(strings.TrimSpace(asString(f.Fact)), maxFactRunes)
		if !factTypes[typ] || text == "" || seen[text] {
			continue
		}
		seen[text] = true
		conf, _ := f.Confidence.(float64)
		out = append(out, Fact{Type: typ, Text: text, Confidence: min(max(conf, 0), 1)})
	}
	return out
}

func (s *Service) complete(
	ctx context.Context, purpose, system, user string, jsonMode bool, maxTokens int,
) (string, error) {
	if maxTokens <= 0 {
		maxTokens = s.opts.MaxTokens
	}
	resp, err := s.oracle.Complete(ctx, domain.OracleRequest{
		Purpose:     purpose,
		System:      system,
		User:        user,
		JSON:        jsonMode,
		Temperature: s.opts.Temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("oracle %s: %w", purpose, err)
	}
	return resp.Content, nil
}

// ExcerptRunes returns at most n runes of s without splitting a character.
func ExcerptRunes(s string, n int) string {
	return truncateRunes(s, n)
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func asBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes", "1":
			return true
		}
	case float64:
		return b != 0
	}
	return false
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}

func asStrings(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
