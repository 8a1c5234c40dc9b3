// Package bridge connects the session store to the remote document
// store. It owns the live subscriptions (one on the session-metadata
// collection, one on the active session's messages), forwards their full
// snapshots into the store, and mirrors local mutations as upserts. A
// subscription captures its target ids at creation time; deliveries
// whose target no longer matches current state are discarded, so a
// stale watch can never write into a dataset that has moved on.
package bridge

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/finsight-ai/advisor-platform/internal/model"
	"github.com/finsight-ai/advisor-platform/internal/remote"
	"github.com/finsight-ai/advisor-platform/internal/store"
	"github.com/finsight-ai/advisor-platform/pkg/logger"
	"github.com/finsight-ai/advisor-platform/pkg/metrics"
)

// Bridge mediates between one actor's Sessions store and the remote
// store.
type Bridge struct {
	sessions *store.Sessions
	remote   remote.Store
	logger   *logger.Logger

	// NeedNewSession is invoked when a session snapshot arrives empty
	// and the actor has no conversation to select.
	NeedNewSession func()

	// Notice is invoked with a human-readable message on non-fatal
	// subscription failures. The store keeps its last-known-good state.
	Notice func(msg string)

	mu           sync.Mutex
	closed       bool
	sessionWatch remote.SessionWatch
	sessionActor string
	messageWatch remote.MessageWatch
	messageActor string
	messageSess  string
	wg           sync.WaitGroup
}

// New creates a bridge. No subscriptions exist until SetActor.
func New(sessions *store.Sessions, rs remote.Store, log *logger.Logger) *Bridge {
	return &Bridge{sessions: sessions, remote: rs, logger: log}
}

// SetActor re-targets the bridge at a new actor: previous subscriptions
// are released on every path, and for authenticated actors a fresh
// session-metadata watch is opened.
func (b *Bridge) SetActor(ctx context.Context, actor model.Actor) {
	b.stopSessionWatch()
	b.stopMessageWatch()

	if !actor.IsAuthenticated() {
		return
	}

	w, err := b.remote.WatchSessions(ctx, actor.ID)
	if err != nil {
		b.logger.Warn("session subscription failed", zap.String("actor_id", actor.ID), zap.Error(err))
		b.notice("Could not load your previous conversations.")
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		w.Stop()
		return
	}
	b.sessionWatch = w
	b.sessionActor = actor.ID
	b.wg.Add(1)
	b.mu.Unlock()

	metrics.WatchesActive.Inc()
	go b.runSessionWatch(ctx, w, actor.ID)
}

// WatchActiveSession re-targets the message watch at the given session.
// Any previous message watch is released first.
func (b *Bridge) WatchActiveSession(ctx context.Context, actor model.Actor, sessionID string) {
	b.stopMessageWatch()

	if !actor.IsAuthenticated() || sessionID == "" {
		return
	}

	w, err := b.remote.WatchMessages(ctx, actor.ID, sessionID)
	if err != nil {
		b.logger.Warn("message subscription failed",
			zap.String("actor_id", actor.ID), zap.String("session_id", sessionID), zap.Error(err))
		b.notice("Could not load messages for this conversation.")
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		w.Stop()
		return
	}
	b.messageWatch = w
	b.messageActor = actor.ID
	b.messageSess = sessionID
	b.wg.Add(1)
	b.mu.Unlock()

	metrics.WatchesActive.Inc()
	go b.runMessageWatch(ctx, w, actor.ID, sessionID)
}

func (b *Bridge) runSessionWatch(ctx context.Context, w remote.SessionWatch, targetActor string) {
	defer b.wg.Done()
	defer metrics.WatchesActive.Dec()
	for snap := range w.Snapshots() {
		current := b.sessions.Actor()
		if !current.IsAuthenticated() || current.ID != targetActor {
			metrics.StaleSnapshotsDropped.WithLabelValues("sessions").Inc()
			continue
		}
		activeID, needNew := b.sessions.ApplySessionSnapshot(snap)
		if needNew {
			if b.NeedNewSession != nil {
				b.NeedNewSession()
			}
			continue
		}
		// Re-point the message watch when snapshot application moved
		// the active session.
		b.mu.Lock()
		watching := b.messageSess
		b.mu.Unlock()
		if activeID != "" && activeID != watching {
			b.WatchActiveSession(ctx, current, activeID)
		}
	}
	if err := w.Err(); err != nil {
		b.logger.Warn("session watch ended with error", zap.Error(err))
		b.notice("Could not load your previous conversations.")
	}
}

func (b *Bridge) runMessageWatch(ctx context.Context, w remote.MessageWatch, targetActor, targetSession string) {
	defer b.wg.Done()
	defer metrics.WatchesActive.Dec()
	for snap := range w.Snapshots() {
		current := b.sessions.Actor()
		if !current.IsAuthenticated() || current.ID != targetActor || b.sessions.ActiveID() != targetSession {
			metrics.StaleSnapshotsDropped.WithLabelValues("messages").Inc()
			continue
		}
		b.sessions.ApplyRemoteSnapshot(targetSession, snap)
	}
	if err := w.Err(); err != nil {
		b.logger.Warn("message watch ended with error", zap.Error(err))
		b.notice("Could not load messages for this conversation.")
	}
}

// PersistSession mirrors session metadata to the remote store. Failures
// are logged and counted; the optimistic local state is kept.
func (b *Bridge) PersistSession(ctx context.Context, actor model.Actor, meta model.SessionMeta) {
	if !actor.IsAuthenticated() {
		return
	}
	if err := b.remote.UpsertSession(ctx, actor.ID, meta); err != nil {
		metrics.RemoteWriteFailures.WithLabelValues("session").Inc()
		b.logger.Warn("failed to persist session",
			zap.String("session_id", meta.ID), zap.Error(err))
	}
}

// PersistMessage mirrors a message to the remote store.
func (b *Bridge) PersistMessage(ctx context.Context, actor model.Actor, sessionID string, msg model.Message) {
	if !actor.IsAuthenticated() {
		return
	}
	if err := b.remote.UpsertMessage(ctx, actor.ID, sessionID, msg); err != nil {
		metrics.RemoteWriteFailures.WithLabelValues("message").Inc()
		b.logger.Warn("failed to persist message",
			zap.String("session_id", sessionID), zap.String("message_id", msg.ID), zap.Error(err))
	}
}

func (b *Bridge) stopSessionWatch() {
	b.mu.Lock()
	w := b.sessionWatch
	b.sessionWatch = nil
	b.sessionActor = ""
	b.mu.Unlock()
	if w != nil {
		w.Stop()
	}
}

func (b *Bridge) stopMessageWatch() {
	b.mu.Lock()
	w := b.messageWatch
	b.messageWatch = nil
	b.messageActor = ""
	b.messageSess = ""
	b.mu.Unlock()
	if w != nil {
		w.Stop()
	}
}

// Close releases all subscriptions and waits for delivery goroutines to
// drain. The closed flag keeps a draining session watch from opening a
// fresh message watch behind the shutdown.
func (b *Bridge) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.stopSessionWatch()
	b.stopMessageWatch()
	b.wg.Wait()
}

func (b *Bridge) notice(msg string) {
	if b.Notice != nil {
		b.Notice(msg)
	}
}
