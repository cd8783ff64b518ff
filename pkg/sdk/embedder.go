package agrirag

import "context"

// Embedder converts query text to a vector embedding.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// EmbeddingResult carries the embedding vector and token counts.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// Oracle is the reasoning language model. It returns raw text;
// the client decodes JSON answers itself and falls back to safe
// defaults when the text is unusable.
type Oracle interface {
	Complete(ctx context.Context, req OracleRequest) (OracleResponse, error)
}

// OracleRequest is one structured prompt.
type OracleRequest struct {
	// Purpose names the call site, e.g. "next_hop" or "gap_check".
	Purpose     string
	System      string
	User        string
	JSON        bool
	Temperature float32
	MaxTokens   int
}

// OracleResponse is the raw completion plus token usage.
type OracleResponse struct {
	Content      string
	PromptTokens int
	TotalTokens  int
}
