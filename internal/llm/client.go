// Package llm provides completion clients for the AI providers that can
// stand in for the advisor endpoint.
package llm

import (
	"context"
)

// AdvisorSystemPrompt frames every completion as financial advice.
const AdvisorSystemPrompt = "You are FinSight AI, a conversational financial advisor. " +
	"Answer questions about investments, portfolios and taxes concisely and in plain language. " +
	"Never present yourself as a licensed professional."

// ChatMessage is one turn of conversation context.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a single-shot completion request.
type CompletionRequest struct {
	Model     string
	Messages  []ChatMessage
	MaxTokens int
}

// CompletionResponse is the provider's reply.
type CompletionResponse struct {
	Content   string
	Model     string
	TokensIn  int
	TokensOut int
	LatencyMs int64
}

// Client is the interface for LLM providers.
type Client interface {
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
	Name() string
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// NewClient creates a new LLM client based on provider.
func NewClient(provider Provider, apiKey string) (Client, error) {
	switch provider {
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey)
	default:
		return NewAnthropicClient(apiKey)
	}
}
