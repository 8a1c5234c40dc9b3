package identity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/finsight-ai/advisor-platform/internal/model"
	"github.com/finsight-ai/advisor-platform/internal/remote"
	"github.com/finsight-ai/advisor-platform/internal/trial"
	"github.com/finsight-ai/advisor-platform/pkg/logger"
)

// DatasetSwitcher is told when the actor changes so the session store
// and sync bridge can swap their backing dataset.
type DatasetSwitcher interface {
	SwitchActor(actor model.Actor)
}

// Resolver observes the identity provider and exposes the current actor.
// It is in an indeterminate resolving state until the provider's first
// notification, and fires its listeners exactly once per identity
// transition.
type Resolver struct {
	provider Provider
	store    remote.Store
	gate     *trial.Gate
	switcher DatasetSwitcher
	logger   *logger.Logger

	mu        sync.Mutex
	resolved  bool
	actor     model.Actor
	listeners map[int]func(model.Actor)
	nextSub   int
	release   func()
}

// NewResolver creates a resolver. Start must be called to begin
// observing the provider.
func NewResolver(p Provider, rs remote.Store, gate *trial.Gate, sw DatasetSwitcher, log *logger.Logger) *Resolver {
	return &Resolver{
		provider:  p,
		store:     rs,
		gate:      gate,
		switcher:  sw,
		logger:    log,
		listeners: make(map[int]func(model.Actor)),
	}
}

// Start subscribes to the provider's auth state.
func (r *Resolver) Start(ctx context.Context) {
	r.release = r.provider.Subscribe(func(u *User) {
		r.onAuthState(ctx, u)
	})
}

// Stop releases the provider subscription.
func (r *Resolver) Stop() {
	if r.release != nil {
		r.release()
		r.release = nil
	}
}

// Resolved reports whether the first provider notification has arrived.
func (r *Resolver) Resolved() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolved
}

// Actor returns the current actor. Before the first notification this
// is the anonymous actor.
func (r *Resolver) Actor() model.Actor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.actor
}

// OnChange registers a listener fired once per identity transition.
func (r *Resolver) OnChange(fn func(model.Actor)) func() {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.listeners[id] = fn
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

func (r *Resolver) onAuthState(ctx context.Context, u *User) {
	next := model.Anonymous()
	if u != nil {
		next = model.Authenticated(u.UID, u.DisplayName, u.Email, u.PhotoURL)
	}

	r.mu.Lock()
	first := !r.resolved
	r.resolved = true
	same := !first && r.actor.Kind == next.Kind && r.actor.ID == next.ID
	if same {
		r.mu.Unlock()
		return
	}
	r.actor = next
	fns := make([]func(model.Actor), 0, len(r.listeners))
	for _, fn := range r.listeners {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	if next.IsAuthenticated() {
		r.seedFromProfile(ctx, next)
	} else {
		// A fresh anonymous context starts with an untouched counter.
		r.gate.Seed(0)
	}

	if r.switcher != nil {
		r.switcher.SwitchActor(next)
	}
	for _, fn := range fns {
		fn(next)
	}
}

// seedFromProfile fetches the authoritative trial counter, initializing
// an absent server record to zero, and bootstraps the profile document
// on first sign-in.
func (r *Resolver) seedFromProfile(ctx context.Context, actor model.Actor) {
	p, ok, err := r.store.GetProfile(ctx, actor.ID)
	if err != nil {
		r.logger.Warn("failed to fetch profile", zap.String("actor_id", actor.ID), zap.Error(err))
		r.gate.Seed(0)
		return
	}
	now := time.Now()
	if !ok {
		r.gate.Seed(0)
		err := r.store.MergeProfile(ctx, actor.ID, model.Profile{
			Email:          actor.Email,
			DisplayName:    actor.DisplayName,
			PhotoURL:       actor.PhotoURL,
			IsPro:          false,
			FreeTrialCount: 0,
			CreatedAt:      now,
			LastSignIn:     now,
		})
		if err != nil {
			r.logger.Warn("failed to bootstrap profile", zap.String("actor_id", actor.ID), zap.Error(err))
		}
		return
	}
	r.gate.Seed(p.FreeTrialCount)
	if err := r.store.MergeProfile(ctx, actor.ID, model.Profile{LastSignIn: now}); err != nil {
		r.logger.Warn("failed to refresh last sign-in", zap.String("actor_id", actor.ID), zap.Error(err))
	}
}
