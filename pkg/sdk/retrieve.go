package agrirag

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/agrirag/internal/domain/tag"
	"github.com/kailas-cloud/agrirag/internal/usecase/pipeline"
)

// RetrieveOption configures one RetrieveAndVerify call.
type RetrieveOption func(*pipeline.Request)

// WithUserID attaches the request to a conversation. With conversation
// memory enabled, follow-up questions are rewritten against the history
// and the query is recorded as a user turn.
func WithUserID(id string) RetrieveOption {
	return func(r *pipeline.Request) {
		r.UserID = id
	}
}

// WithTagHint merges caller-known tags into the extracted ones.
func WithTagHint(must, anyTags []string) RetrieveOption {
	return func(r *pipeline.Request) {
		r.TagHint = r.TagHint.Merge(tag.New(must, anyTags))
	}
}

// RetrieveAndVerify gathers evidence for query and checks whether it is
// enough to answer. Missing evidence is reported as Result.NoData; errors
// are returned only for invalid queries and embedding failures.
func (c *Client) RetrieveAndVerify(ctx context.Context, query string, opts ...RetrieveOption) (res Result, err error) {
	start := time.Now()
	defer func() { c.obs.observeRetrieve(start, &res, err) }()

	req := pipeline.Request{Query: query}
	for _, o := range opts {
		o(&req)
	}

	out, err := c.pipeline.RetrieveAndVerify(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("retrieve: %w", err)
	}
	return fromPipelineResult(out), nil
}

// ExtractTags runs tag extraction alone, without retrieval.
func (c *Client) ExtractTags(query string) TagAnalysis {
	return fromTagging(c.tagger.Analyze(query))
}
