package responder

import "context"

// Local serves canned replies without any external call, for
// deployments with no advisor endpoint and no LLM credentials.
type Local struct{}

// NewLocal creates a local responder.
func NewLocal() *Local {
	return &Local{}
}

// Respond returns the deterministic canned reply. It never fails.
func (*Local) Respond(_ context.Context, q Query) (*Reply, error) {
	return Fallback(q.Message), nil
}
