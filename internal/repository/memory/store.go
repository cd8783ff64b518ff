// Package memory persists per-user facts in the KV store.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/agrirag/internal/db"
	"github.com/kailas-cloud/agrirag/internal/domain"
	"github.com/kailas-cloud/agrirag/internal/domain/memory"
	"github.com/kailas-cloud/agrirag/internal/repository/userlock"
)

var keyPrefix = domain.KeyPrefix + "memory:"

// Defaults applied to zero settings.
const (
	DefaultMaxFacts = 50
	DefaultTTL      = 30 * 24 * time.Hour
)

// kv is the consumer interface of the store (ISP).
type kv interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// Store keeps the newest facts of each user in one KV record.
type Store struct {
	kv       kv
	maxFacts int
	ttl      time.Duration
	locks    *userlock.Striped
}

// New creates a fact store.
func New(s kv, maxFacts int, ttl time.Duration) *Store {
	if maxFacts <= 0 {
		maxFacts = DefaultMaxFacts
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{kv: s, maxFacts: maxFacts, ttl: ttl, locks: userlock.New(0)}
}

// Facts returns the stored facts of userID, oldest first.
func (s *Store) Facts(ctx context.Context, userID string) ([]memory.Fact, error) {
	return s.read(ctx, userID)
}

// Add stores facts, replacing older facts with the same text and keeping
// only the newest maxFacts.
func (s *Store) Add(ctx context.Context, userID string, facts []memory.Fact) error {
	if len(facts) == 0 {
		return nil
	}
	mu := s.locks.For(userID)
	mu.Lock()
	defer mu.Unlock()

	stored, err := s.read(ctx, userID)
	if err != nil {
		return err
	}
	incoming := make(map[string]struct{}, len(facts))
	for _, f := range facts {
		incoming[f.Text] = struct{}{}
	}
	kept := stored[:0]
	for _, f := range stored {
		if _, dup := incoming[f.Text]; !dup {
			kept = append(kept, f)
		}
	}
	kept = append(kept, facts...)
	if len(kept) > s.maxFacts {
		kept = kept[len(kept)-s.maxFacts:]
	}

	data, err := json.Marshal(kept)
	if err != nil {
		return fmt.Errorf("marshal facts: %w", err)
	}
	if err := s.kv.SetWithTTL(ctx, key(userID), data, s.ttl); err != nil {
		return fmt.Errorf("save facts: %w", err)
	}
	return nil
}

// Clear removes the facts of userID.
func (s *Store) Clear(ctx context.Context, userID string) error {
	mu := s.locks.For(userID)
	mu.Lock()
	defer mu.Unlock()

	if err := s.kv.Del(ctx, key(userID)); err != nil && !errors.Is(err, db.ErrKeyNotFound) {
		return fmt.Errorf("delete facts: %w", err)
	}
	return nil
}

func (s *Store) read(ctx context.Context, userID string) ([]memory.Fact, error) {
	data, err := s.kv.Get(ctx, key(userID))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load facts: %w", err)
	}
	var facts []memory.Fact
	if err := json.Unmarshal(data, &facts); err != nil {
		return nil, fmt.Errorf("decode facts: %w", err)
	}
	return facts, nil
}

func key(userID string) string {
	return keyPrefix + userID
}
