// Package chat assembles the sync engine for one client: identity
// resolver, trial gate, session store, sync bridge and message pipeline
// wired together.
package chat

import (
	"context"
	"sync"

	"github.com/finsight-ai/advisor-platform/internal/bridge"
	"github.com/finsight-ai/advisor-platform/internal/identity"
	"github.com/finsight-ai/advisor-platform/internal/model"
	"github.com/finsight-ai/advisor-platform/internal/pipeline"
	"github.com/finsight-ai/advisor-platform/internal/remote"
	"github.com/finsight-ai/advisor-platform/internal/responder"
	"github.com/finsight-ai/advisor-platform/internal/store"
	"github.com/finsight-ai/advisor-platform/internal/trial"
	"github.com/finsight-ai/advisor-platform/pkg/logger"
)

// Engine is one client's conversation context. It starts anonymous and
// follows identity transitions from its provider.
type Engine struct {
	Sessions *store.Sessions
	Bridge   *bridge.Bridge
	Gate     *trial.Gate
	Resolver *identity.Resolver
	Pipeline *pipeline.Pipeline

	provider identity.Provider
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *logger.Logger

	mu         sync.Mutex
	lastNotice string
}

// Config carries engine construction dependencies.
type Config struct {
	Provider  identity.Provider
	Remote    remote.Store
	Responder responder.Responder
	FreeLimit int
	Logger    *logger.Logger
}

// NewEngine wires an engine and starts observing the identity provider.
func NewEngine(parent context.Context, cfg Config) *Engine {
	ctx, cancel := context.WithCancel(parent)

	sessions := store.NewSessions(cfg.Logger)
	gate := trial.NewGate(cfg.FreeLimit, cfg.Remote, cfg.Logger)
	b := bridge.New(sessions, cfg.Remote, cfg.Logger)

	e := &Engine{
		Sessions: sessions,
		Bridge:   b,
		Gate:     gate,
		provider: cfg.Provider,
		ctx:      ctx,
		cancel:   cancel,
		logger:   cfg.Logger,
	}

	e.Pipeline = pipeline.New(sessions, b, gate, cfg.Responder, cfg.Logger)
	e.Resolver = identity.NewResolver(cfg.Provider, cfg.Remote, gate, e, cfg.Logger)

	b.NeedNewSession = func() {
		e.Pipeline.NewChat(ctx)
	}
	b.Notice = func(msg string) {
		e.mu.Lock()
		e.lastNotice = msg
		e.mu.Unlock()
	}

	e.Resolver.Start(ctx)
	return e
}

// SwitchActor implements identity.DatasetSwitcher: the store swaps its
// backing dataset and the bridge re-targets its subscriptions.
func (e *Engine) SwitchActor(actor model.Actor) {
	e.Sessions.SwitchActor(actor)
	e.Bridge.SetActor(e.ctx, actor)
}

// SetActiveSession switches the active session synchronously and
// re-points the message watch at it.
func (e *Engine) SetActiveSession(sessionID string) {
	e.Sessions.SetActive(sessionID)
	e.Bridge.WatchActiveSession(e.ctx, e.Sessions.Actor(), sessionID)
}

// SignIn exchanges a credential with the identity provider. The actor
// transition and its side effects flow through the resolver.
func (e *Engine) SignIn(ctx context.Context, credential string) (*identity.User, error) {
	return e.provider.SignIn(ctx, credential)
}

// SignOut returns the engine to the anonymous actor.
func (e *Engine) SignOut(ctx context.Context) error {
	return e.provider.SignOut(ctx)
}

// LastNotice returns the most recent non-fatal subscription notice, or
// empty when none occurred.
func (e *Engine) LastNotice() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastNotice
}

// Close releases the provider subscription and all remote watches.
func (e *Engine) Close() {
	e.Resolver.Stop()
	e.cancel()
	e.Bridge.Close()
}
