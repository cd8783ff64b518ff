package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/agrirag/internal/db"
	"github.com/kailas-cloud/agrirag/internal/domain"
	"github.com/kailas-cloud/agrirag/internal/domain/conversation"
	"github.com/kailas-cloud/agrirag/internal/repository/userlock"
)

var keyPrefix = domain.KeyPrefix + "conv:"

// Defaults applied to zero settings.
const (
	DefaultMaxTurns = 8
	DefaultTTL      = 6 * time.Hour
)

// kv is the consumer interface of the store (ISP).
type kv interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// Store keeps the last turns of each user in one KV record.
// Every write refreshes the TTL, so conversations expire after idling.
type Store struct {
	kv       kv
	maxTurns int
	ttl      time.Duration
	locks    *userlock.Striped
}

// New creates a conversation store.
func New(s kv, maxTurns int, ttl time.Duration) *Store {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{kv: s, maxTurns: maxTurns, ttl: ttl, locks: userlock.New(0)}
}

// Turns returns the stored turns of userID, oldest first.
func (s *Store) Turns(ctx context.Context, userID string) ([]conversation.Turn, error) {
	return s.read(ctx, userID)
}

// Append adds a turn, keeping only the newest maxTurns.
func (s *Store) Append(ctx context.Context, userID string, turn conversation.Turn) error {
	mu := s.locks.For(userID)
	mu.Lock()
	defer mu.Unlock()

	turns, err := s.read(ctx, userID)
	if err != nil {
		return err
	}
	turns = append(turns, turn)
	if len(turns) > s.maxTurns {
		turns = turns[len(turns)-s.maxTurns:]
	}

	data, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("marshal turns: %w", err)
	}
	if err := s.kv.SetWithTTL(ctx, key(userID), data, s.ttl); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}
	return nil
}

// Clear removes the conversation of userID.
func (s *Store) Clear(ctx context.Context, userID string) error {
	mu := s.locks.For(userID)
	mu.Lock()
	defer mu.Unlock()

	if err := s.kv.Del(ctx, key(userID)); err != nil && !errors.Is(err, db.ErrKeyNotFound) {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

func (s *Store) read(ctx context.Context, userID string) ([]conversation.Turn, error) {
	data, err := s.kv.Get(ctx, key(userID))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	var turns []conversation.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	return turns, nil
}

func key(userID string) string {
	return keyPrefix + userID
}
