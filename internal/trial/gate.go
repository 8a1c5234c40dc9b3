// Package trial enforces the free-message quota for unauthenticated
// actors.
package trial

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/finsight-ai/advisor-platform/internal/model"
	"github.com/finsight-ai/advisor-platform/internal/remote"
	"github.com/finsight-ai/advisor-platform/pkg/logger"
	"github.com/finsight-ai/advisor-platform/pkg/metrics"
)

// DefaultFreeLimit is the number of free messages before the gate closes.
const DefaultFreeLimit = 3

// Gate tracks the trial counter for the current actor. For anonymous
// actors the counter lives only in process memory and resets on restart;
// for authenticated actors the remote profile value is authoritative.
type Gate struct {
	mu      sync.Mutex
	limit   int
	counter int

	store  remote.Store
	logger *logger.Logger
}

// NewGate creates a gate with the given free limit. A limit of zero or
// less falls back to DefaultFreeLimit.
func NewGate(limit int, store remote.Store, log *logger.Logger) *Gate {
	if limit <= 0 {
		limit = DefaultFreeLimit
	}
	return &Gate{limit: limit, store: store, logger: log}
}

// Count returns the current counter value.
func (g *Gate) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counter
}

// Seed replaces the counter, used when the authoritative remote value is
// fetched on sign-in.
func (g *Gate) Seed(count int) {
	g.mu.Lock()
	g.counter = count
	g.mu.Unlock()
}

// CanSend reports whether the actor may send another message.
// Authenticated actors are unlimited.
func (g *Gate) CanSend(actor model.Actor) bool {
	if actor.IsAuthenticated() {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counter < g.limit
}

// RecordSend increments the counter and returns the new value. For
// authenticated actors the increment is mirrored to the remote profile;
// a failed mirror is logged but the local increment is kept.
func (g *Gate) RecordSend(ctx context.Context, actor model.Actor) int {
	g.mu.Lock()
	g.counter++
	count := g.counter
	g.mu.Unlock()

	if actor.IsAuthenticated() {
		err := g.store.MergeProfile(ctx, actor.ID, model.Profile{FreeTrialCount: count})
		if err != nil {
			metrics.RemoteWriteFailures.WithLabelValues("profile").Inc()
			g.logger.Warn("failed to persist trial counter",
				zap.String("actor_id", actor.ID), zap.Error(err))
		}
	}
	return count
}

// ShouldPromptAuth reports whether the auth prompt should be raised. It
// is evaluated after each increment and again on every blocked attempt;
// there is no suppression once shown.
func (g *Gate) ShouldPromptAuth(actor model.Actor) bool {
	if actor.IsAuthenticated() {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counter >= g.limit
}
