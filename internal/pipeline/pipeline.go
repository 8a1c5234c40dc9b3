// Package pipeline orchestrates the lifecycle of sending a message:
// gate check, optimistic local append, remote persist, AI request, and
// the fallback branch that absorbs AI failures. Submit never returns an
// error; every call settles in a terminal result.
package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/finsight-ai/advisor-platform/internal/bridge"
	"github.com/finsight-ai/advisor-platform/internal/model"
	"github.com/finsight-ai/advisor-platform/internal/responder"
	"github.com/finsight-ai/advisor-platform/internal/store"
	"github.com/finsight-ai/advisor-platform/internal/trial"
	"github.com/finsight-ai/advisor-platform/pkg/logger"
	"github.com/finsight-ai/advisor-platform/pkg/metrics"
)

// Result is the settled outcome of one Submit call.
type Result struct {
	// Ignored is true for empty input; nothing happened.
	Ignored bool
	// Busy is true when another send was already in flight.
	Busy bool
	// Blocked is true when the trial gate refused the send.
	Blocked bool
	// PromptAuth is true when the auth prompt should be raised, either
	// because the send was blocked or because this send closed the gate.
	PromptAuth bool
	// UsedFallback is true when the assistant reply came from the local
	// fallback responder instead of the AI endpoint.
	UsedFallback bool

	SessionID        string
	UserMessage      *model.Message
	AssistantMessage *model.Message
}

// Pipeline drives message sends for one actor context.
type Pipeline struct {
	sessions  *store.Sessions
	bridge    *bridge.Bridge
	gate      *trial.Gate
	responder responder.Responder
	logger    *logger.Logger

	mu   sync.Mutex
	busy bool
}

// New creates a pipeline.
func New(
	sessions *store.Sessions,
	b *bridge.Bridge,
	gate *trial.Gate,
	r responder.Responder,
	log *logger.Logger,
) *Pipeline {
	return &Pipeline{
		sessions:  sessions,
		bridge:    b,
		gate:      gate,
		responder: r,
		logger:    log,
	}
}

// Busy reports whether a send is in flight. The input surface is
// disabled while true.
func (p *Pipeline) Busy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.busy
}

// Submit runs the full send lifecycle. It never returns an error: every
// branch terminates in either a successful append or a fallback append,
// and gate-blocked sends settle with the auth-prompt signal raised.
func (p *Pipeline) Submit(ctx context.Context, text string) *Result {
	text = strings.TrimSpace(text)
	if text == "" {
		return &Result{Ignored: true}
	}

	p.mu.Lock()
	if p.busy {
		p.mu.Unlock()
		return &Result{Busy: true}
	}
	p.busy = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.busy = false
		p.mu.Unlock()
	}()

	actor := p.sessions.Actor()

	// Gating is checked against the pre-increment counter.
	if !p.gate.CanSend(actor) {
		metrics.TrialBlocked.Inc()
		return &Result{Blocked: true, PromptAuth: true}
	}

	userMsg := model.Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Role:      model.RoleUser,
		Content:   text,
		Timestamp: time.Now(),
	}

	sessionID, created := p.resolveSession(ctx, actor, text, userMsg)

	if !created {
		p.sessions.AppendLocal(sessionID, userMsg)
		p.bridge.PersistMessage(ctx, actor, sessionID, userMsg)
		p.persistMeta(ctx, actor, sessionID)

		// The first user message retitles the session.
		if p.sessions.UserMessageCount(sessionID) == 1 {
			p.sessions.Retitle(sessionID, p.sessions.UniqueTitle(text))
			p.persistMeta(ctx, actor, sessionID)
		}
	}

	p.gate.RecordSend(ctx, actor)

	reply, usedFallback := p.respond(ctx, actor, sessionID, text)

	assistantMsg := model.Message{
		ID:          uuid.Must(uuid.NewV7()).String(),
		Role:        model.RoleAssistant,
		Content:     reply.Response,
		Timestamp:   time.Now(),
		Suggestions: reply.Suggestions,
		ShowChart:   reply.ShowChart,
	}
	p.sessions.AppendLocal(sessionID, assistantMsg)
	p.bridge.PersistMessage(ctx, actor, sessionID, assistantMsg)
	p.persistMeta(ctx, actor, sessionID)

	return &Result{
		PromptAuth:       p.gate.ShouldPromptAuth(actor),
		UsedFallback:     usedFallback,
		SessionID:        sessionID,
		UserMessage:      &userMsg,
		AssistantMessage: &assistantMsg,
	}
}

// resolveSession returns the target session for a send, creating one
// seeded with the welcome and user messages when no session is active.
func (p *Pipeline) resolveSession(ctx context.Context, actor model.Actor, text string, userMsg model.Message) (string, bool) {
	if active := p.sessions.ActiveID(); active != "" {
		return active, false
	}

	sessionID := p.sessions.CreateSession([]model.Message{userMsg})
	p.sessions.Retitle(sessionID, p.sessions.UniqueTitle(text))
	p.persistMeta(ctx, actor, sessionID)
	p.bridge.PersistMessage(ctx, actor, sessionID, model.WelcomeMessage())
	p.bridge.PersistMessage(ctx, actor, sessionID, userMsg)
	p.bridge.WatchActiveSession(ctx, actor, sessionID)
	return sessionID, true
}

func (p *Pipeline) respond(ctx context.Context, actor model.Actor, sessionID, text string) (*responder.Reply, bool) {
	reply, err := p.responder.Respond(ctx, responder.Query{
		Message:   text,
		ActorID:   actor.RemoteID(),
		SessionID: sessionID,
	})
	if err == nil {
		return reply, false
	}

	// The failure is absorbed: the conversation continues with the
	// deterministic local reply.
	metrics.FallbackResponses.Inc()
	p.logger.Warn("AI responder failed, using fallback",
		zap.String("session_id", sessionID), zap.Error(err))
	return responder.Fallback(text), true
}

// NewChat starts a fresh session with only the welcome message, mirrors
// it remotely for authenticated actors and re-points the message watch.
func (p *Pipeline) NewChat(ctx context.Context) string {
	actor := p.sessions.Actor()
	sessionID := p.sessions.CreateSession(nil)
	p.persistMeta(ctx, actor, sessionID)
	p.bridge.PersistMessage(ctx, actor, sessionID, model.WelcomeMessage())
	p.bridge.WatchActiveSession(ctx, actor, sessionID)
	return sessionID
}

func (p *Pipeline) persistMeta(ctx context.Context, actor model.Actor, sessionID string) {
	if meta, ok := p.sessions.Meta(sessionID); ok {
		p.bridge.PersistSession(ctx, actor, meta)
	}
}
