package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kailas-cloud/agrirag/internal/domain/conversation"
	"github.com/kailas-cloud/agrirag/internal/logger"
	"github.com/kailas-cloud/agrirag/internal/usecase/tagging"
)

// DefaultHistoryTurns is how many recent turns the rewriter sees.
const DefaultHistoryTurns = 6

const minRewriteRunes = 4

// Resolution is the outcome of query resolution against the conversation.
type Resolution struct {
	Query     string
	Rewritten bool
}

// Service resolves follow-up questions and records turns.
type Service struct {
	store        Store
	rewriter     Rewriter
	patterns     []string
	historyTurns int
	memory       Rememberer
	now          func() time.Time
}

// New creates a conversation service. patterns are reference phrases
// ("đó", "này", ...) that mark a query as depending on earlier turns.
func New(store Store, rewriter Rewriter, patterns []string, historyTurns int) *Service {
	if historyTurns <= 0 {
		historyTurns = DefaultHistoryTurns
	}
	return &Service{
		store:        store,
		rewriter:     rewriter,
		patterns:     patterns,
		historyTurns: historyTurns,
		now:          time.Now,
	}
}

// WithMemory makes AppendAssistant distill long-lived facts from the
// conversation and Clear forget them.
func (s *Service) WithMemory(m Rememberer) *Service {
	s.memory = m
	return s
}

// NeedsRewrite reports whether query refers back to earlier turns.
func (s *Service) NeedsRewrite(query string) bool {
	q := strings.TrimSpace(query)
	if utf8.RuneCountInString(q) < minRewriteRunes {
		return false
	}
	return tagging.ContainsAnyPhrase(q, s.patterns)
}

// FormatHistory renders the last turns as "USER: ..." / "ASSISTANT: ..." lines.
func (s *Service) FormatHistory(turns []conversation.Turn) string {
	if len(turns) > s.historyTurns {
		turns = turns[len(turns)-s.historyTurns:]
	}
	return transcript(turns)
}

func transcript(turns []conversation.Turn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		role := "USER"
		if t.Role == conversation.RoleAssistant {
			role = "ASSISTANT"
		}
		lines = append(lines, role+": "+t.Content)
	}
	return strings.Join(lines, "\n")
}

// Resolve returns the effective query for userID. Store or oracle failures
// keep the original query.
func (s *Service) Resolve(ctx context.Context, userID, query string) Resolution {
	res := Resolution{Query: query}
	if userID == "" || !s.NeedsRewrite(query) {
		return res
	}
	log := logger.FromContext(ctx)

	turns, err := s.store.Turns(ctx, userID)
	if err != nil {
		log.Warn("conversation read failed", zap.String("user_id", userID), zap.Error(err))
		return res
	}
	if len(turns) == 0 {
		return res
	}

	rewritten, err := s.rewriter.Rewrite(ctx, query, s.FormatHistory(turns))
	if err != nil {
		log.Warn("query rewrite failed", zap.Error(err))
		return res
	}
	if rewritten == "" || rewritten == query {
		return res
	}
	log.Debug("query rewritten", zap.String("original", query), zap.String("rewritten", rewritten))
	return Resolution{Query: rewritten, Rewritten: true}
}

// AppendUser records a user turn.
func (s *Service) AppendUser(ctx context.Context, userID, content string) error {
	return s.append(ctx, userID, conversation.RoleUser, content)
}

// AppendAssistant records an assistant turn, then refreshes the user's
// long-lived facts when memory is on. Memory failures are only logged.
func (s *Service) AppendAssistant(ctx context.Context, userID, content string) error {
	if err := s.append(ctx, userID, conversation.RoleAssistant, content); err != nil {
		return err
	}
	if s.memory == nil || userID == "" {
		return nil
	}
	log := logger.FromContext(ctx)
	turns, err := s.store.Turns(ctx, userID)
	if err != nil {
		log.Warn("memory transcript read failed", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	n, err := s.memory.Remember(ctx, userID, transcript(turns))
	if err != nil {
		log.Warn("memory write failed", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	log.Debug("memory updated", zap.String("user_id", userID), zap.Int("facts", n))
	return nil
}

func (s *Service) append(ctx context.Context, userID string, role conversation.Role, content string) error {
	if userID == "" {
		return nil
	}
	turn := conversation.Turn{Role: role, Content: content, At: s.now().UTC()}
	if err := s.store.Append(ctx, userID, turn); err != nil {
		return fmt.Errorf("append %s turn: %w", role, err)
	}
	return nil
}

// History returns the stored turns of userID.
func (s *Service) History(ctx context.Context, userID string) ([]conversation.Turn, error) {
	turns, err := s.store.Turns(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("read conversation: %w", err)
	}
	return turns, nil
}

// Clear drops the conversation of userID and, with memory on, its facts.
func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.store.Clear(ctx, userID); err != nil {
		return fmt.Errorf("clear conversation: %w", err)
	}
	if s.memory != nil {
		if err := s.memory.Forget(ctx, userID); err != nil {
			return fmt.Errorf("clear memory: %w", err)
		}
	}
	return nil
}
