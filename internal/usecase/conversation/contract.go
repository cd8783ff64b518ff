package conversation

import (
	"context"

	"github.com/kailas-cloud/agrirag/internal/domain/conversation"
)

// Store persists short-term conversations keyed by user id.
type Store interface {
	Turns(ctx context.Context, userID string) ([]conversation.Turn, error)
	Append(ctx context.Context, userID string, turn conversation.Turn) error
	Clear(ctx context.Context, userID string) error
}

// Rewriter turns a follow-up question into a standalone one.
type Rewriter interface {
	Rewrite(ctx context.Context, query, history string) (string, error)
}

// Rememberer distills long-lived facts from a transcript and forgets them on request.
type Rememberer interface {
	Remember(ctx context.Context, userID, transcript string) (int, error)
	Forget(ctx context.Context, userID string) error
}
