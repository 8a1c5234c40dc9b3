package responder

import (
	"context"
	"strings"
	"time"

	"github.com/finsight-ai/advisor-platform/internal/llm"
	"github.com/finsight-ai/advisor-platform/pkg/metrics"
)

// LLMResponder adapts an LLM provider client to the advisor contract,
// for deployments without a dedicated advisor endpoint. Like the
// advisor endpoint, it receives only the current message; the system
// prompt lives in the provider client.
type LLMResponder struct {
	client llm.Client
}

// NewLLMResponder creates a responder around an LLM client.
func NewLLMResponder(client llm.Client) *LLMResponder {
	return &LLMResponder{client: client}
}

// Respond completes the query against the LLM provider.
func (r *LLMResponder) Respond(ctx context.Context, q Query) (*Reply, error) {
	start := time.Now()

	resp, err := r.client.Complete(ctx, &llm.CompletionRequest{
		Messages: []llm.ChatMessage{{Role: "user", Content: q.Message}},
	})
	if err != nil {
		metrics.RecordResponder(r.client.Name(), "error", time.Since(start).Seconds())
		return nil, err
	}

	metrics.RecordResponder(r.client.Name(), "success", time.Since(start).Seconds())
	return &Reply{
		Response:    resp.Content,
		Suggestions: defaultSuggestions(),
		ShowChart:   strings.Contains(strings.ToLower(q.Message), "chart"),
	}, nil
}
