package agrirag

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/agrirag/internal/domain"
)

// RecordAnswer appends the generated answer as an assistant turn, so that
// the next follow-up question can refer to it.
func (c *Client) RecordAnswer(ctx context.Context, userID, answer string) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("record_answer", start, err) }()

	if c.convSvc == nil {
		return errConversationsDisabled()
	}
	if err = c.convSvc.AppendAssistant(ctx, userID, answer); err != nil {
		return fmt.Errorf("record answer: %w", err)
	}
	return nil
}

// History returns the stored turns of a user, oldest first.
func (c *Client) History(ctx context.Context, userID string) (turns []Turn, err error) {
	start := time.Now()
	defer func() { c.obs.observe("history", start, err) }()

	if c.convSvc == nil {
		return nil, errConversationsDisabled()
	}
	stored, err := c.convSvc.History(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	turns = make([]Turn, len(stored))
	for i, t := range stored {
		turns[i] = Turn{Role: string(t.Role), Content: t.Content, At: t.At}
	}
	return turns, nil
}

// ClearHistory deletes the stored turns of a user.
func (c *Client) ClearHistory(ctx context.Context, userID string) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("clear_history", start, err) }()

	if c.convSvc == nil {
		return errConversationsDisabled()
	}
	if err = c.convSvc.Clear(ctx, userID); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

func errConversationsDisabled() error {
	return fmt.Errorf("agrirag: conversation memory disabled (use WithRedis): %w", domain.ErrNotImplemented)
}
