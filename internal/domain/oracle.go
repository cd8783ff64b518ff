package domain

import "context"

// Oracle is the reasoning language-model contract.
// Implementations return raw text; call sites decode and default it.
type Oracle interface {
	Complete(ctx context.Context, req OracleRequest) (OracleResponse, error)
}

// OracleRequest is one structured prompt.
type OracleRequest struct {
	// Purpose labels the call site for metrics and logs (e.g. "next_hop").
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
