// Package responder produces assistant replies: from the remote advisor
// endpoint, from an LLM provider standing in for it, or from the
// deterministic local fallback when the remote call fails.
package responder

import (
	"context"
)

// Query is one user message routed to the AI.
type Query struct {
	Message   string
	ActorID   string
	SessionID string
}

// Reply is the AI's answer with its presentation flags.
type Reply struct {
	Response    string
	Suggestions []string
	ShowChart   bool
}

// Responder answers a query or fails; it never partially succeeds.
type Responder interface {
	Respond(ctx context.Context, q Query) (*Reply, error)
}

// DefaultSuggestions are offered when the AI supplies none.
var DefaultSuggestions = []string{
	"Analyze my risk profile",
	"Show portfolio allocation",
	"Find rebalancing opportunities",
	"Show me a chart",
}

func defaultSuggestions() []string {
	out := make([]string, len(DefaultSuggestions))
	copy(out, DefaultSuggestions)
	return out
}
