// Package memory recalls and records long-lived facts about a user.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/agrirag/internal/domain/memory"
	"github.com/kailas-cloud/agrirag/internal/logger"
)

// DefaultTopK is how many facts Recall returns.
const DefaultTopK = 5

const promptHeader = "USER MEMORY:"

// Service recalls facts relevant to a query and records new ones.
type Service struct {
	store      Store
	vectors    Vectorizer
	summarizer Summarizer
	topK       int
	now        func() time.Time
}

// New creates a memory service.
func New(store Store, vectors Vectorizer, summarizer Summarizer, topK int) *Service {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Service{store: store, vectors: vectors, summarizer: summarizer, topK: topK, now: time.Now}
}

// Recall returns up to topK facts of userID ranked by cosine similarity to
// query. Failures yield no facts.
func (s *Service) Recall(ctx context.Context, userID, query string) []memory.Fact {
	if userID == "" {
		return nil
	}
	log := logger.FromContext(ctx)

	facts, err := s.store.Facts(ctx, userID)
	if err != nil {
		log.Warn("memory read failed", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	if len(facts) == 0 {
		return nil
	}
	vec, err := s.vectors.Vector(ctx, query)
	if err != nil {
		log.Warn("memory query embedding failed", zap.Error(err))
		return nil
	}
	return TopK(facts, vec, s.topK)
}

// TopK ranks facts by cosine similarity to vec. Facts whose embedding does
// not match vec's dimension are skipped.
func TopK(facts []memory.Fact, vec []float32, k int) []memory.Fact {
	type scored struct {
		f     memory.Fact
		score float64
	}
	qn := norm(vec)
	if qn == 0 {
		return nil
	}
	ranked := make([]scored, 0, len(facts))
	for _, f := range facts {
		if len(f.Embedding) != len(vec) {
			continue
		}
		fn := norm(f.Embedding)
		if fn == 0 {
			continue
		}
		var dot float64
		for i, v := range vec {
			dot += float64(v) * float64(f.Embedding[i])
		}
		ranked = append(ranked, scored{f: f, score: dot / (qn * fn)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	out := make([]memory.Fact, len(ranked))
	for i, r := range ranked {
		out[i] = r.f
	}
	return out
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Prompt renders facts as a system-prompt prefix, "" when there are none.
func Prompt(facts []memory.Fact) string {
	if len(facts) == 0 {
		return ""
	}
	lines := make([]string, 0, len(facts)+1)
	lines = append(lines, promptHeader)
	for _, f := range facts {
		lines = append(lines, "- "+f.Text)
	}
	return strings.Join(lines, "\n")
}

// Remember distills facts from transcript and stores them with embeddings.
// Facts that fail to embed are skipped. It returns the number stored.
func (s *Service) Remember(ctx context.Context, userID, transcript string) (int, error) {
	if userID == "" || strings.TrimSpace(transcript) == "" {
		return 0, nil
	}
	distilled, err := s.summarizer.SummarizeFacts(ctx, transcript)
	if err != nil {
		return 0, fmt.Errorf("summarize facts: %w", err)
	}

	now := s.now().UTC()
	facts := make([]memory.Fact, 0, len(distilled))
	for _, d := range distilled {
		vec, err := s.vectors.Vector(ctx, d.Text)
		if err != nil {
			logger.FromContext(ctx).Warn("fact embedding failed", zap.Error(err))
			continue
		}
		facts = append(facts, memory.Fact{
			Kind:       d.Type,
			Text:       d.Text,
			Confidence: d.Confidence,
			Embedding:  vec,
			At:         now,
		})
	}
	if err := s.store.Add(ctx, userID, facts); err != nil {
		return 0, fmt.Errorf("store facts: %w", err)
	}
	return len(facts), nil
}

// Forget drops every fact of userID.
func (s *Service) Forget(ctx context.Context, userID string) error {
	if err := s.store.Clear(ctx, userID); err != nil {
		return fmt.Errorf("forget facts: %w", err)
	}
	return nil
}
