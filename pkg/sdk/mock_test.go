package agrirag

import (
	"context"

	domconv "github.com/kailas-cloud/agrirag/internal/domain/conversation"
	healthuc "github.com/kailas-cloud/agrirag/internal/usecase/health"
	"github.com/kailas-cloud/agrirag/internal/usecase/pipeline"
	"github.com/kailas-cloud/agrirag/internal/usecase/tagging"
)

// --- pipelineUseCase mock ---

type mockPipeline struct {
	fn  func(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
	req pipeline.Request
}

func (m *mockPipeline) RetrieveAndVerify(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
	m.req = req
	return m.fn(ctx, req)
}

// --- taggerUseCase mock ---

type mockTagger struct {
	result tagging.Result
}

func (m *mockTagger) Analyze(string) tagging.Result { return m.result }

// --- conversationUseCase mock ---

type mockConversations struct {
	appendFn  func(ctx context.Context, userID, content string) error
	historyFn func(ctx context.Context, userID string) ([]domconv.Turn, error)
	clearFn   func(ctx context.Context, userID string) error
}

func (m *mockConversations) AppendAssistant(ctx context.Context, userID, content string) error {
	return m.appendFn(ctx, userID, content)
}

func (m *mockConversations) History(ctx context.Context, userID string) ([]domconv.Turn, error) {
	return m.historyFn(ctx, userID)
}

func (m *mockConversations) Clear(ctx context.Context, userID string) error {
	return m.clearFn(ctx, userID)
}

// --- healthUseCase mock ---

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }

// --- providers ---

type mockEmbedder struct {
	fn func(ctx context.Context, text string) (EmbeddingResult, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	return m.fn(ctx, text)
}

type mockOracle struct {
	fn func(ctx context.Context, req OracleRequest) (OracleResponse, error)
}

func (m *mockOracle) Complete(ctx context.Context, req OracleRequest) (OracleResponse, error) {
	return m.fn(ctx, req)
}

// --- helpers ---

func testClient(p pipelineUseCase, tagger taggerUseCase, conv conversationUseCase) *Client {
	c := &Client{pipeline: p, tagger: tagger}
	if conv != nil {
		c.convSvc = conv
	}
	return c
}
