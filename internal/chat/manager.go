package chat

import (
	"context"
	"sync"

	"github.com/finsight-ai/advisor-platform/internal/identity"
	"github.com/finsight-ai/advisor-platform/internal/remote"
	"github.com/finsight-ai/advisor-platform/internal/responder"
	"github.com/finsight-ai/advisor-platform/pkg/logger"
)

// Manager owns one engine per connected client. Engines live for the
// process lifetime and are never evicted.
type Manager struct {
	remote    remote.Store
	responder responder.Responder
	jwtSecret string
	freeLimit int
	logger    *logger.Logger

	ctx context.Context

	mu      sync.Mutex
	engines map[string]*Engine
}

// NewManager creates a manager producing engines bound to the shared
// remote store and responder.
func NewManager(ctx context.Context, rs remote.Store, rsp responder.Responder, jwtSecret string, freeLimit int, log *logger.Logger) *Manager {
	return &Manager{
		remote:    rs,
		responder: rsp,
		jwtSecret: jwtSecret,
		freeLimit: freeLimit,
		logger:    log,
		ctx:       ctx,
		engines:   make(map[string]*Engine),
	}
}

// Engine returns the engine for a client id, creating it on first use.
// Fresh engines start anonymous with a zeroed trial counter.
func (m *Manager) Engine(clientID string) *Engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.engines[clientID]; ok {
		return e
	}
	e := NewEngine(m.ctx, Config{
		Provider:  identity.NewJWTProvider(m.jwtSecret),
		Remote:    m.remote,
		Responder: m.responder,
		FreeLimit: m.freeLimit,
		Logger:    m.logger,
	})
	m.engines[clientID] = e
	return e
}

// Close shuts down every engine.
func (m *Manager) Close() {
	m.mu.Lock()
	engines := make([]*Engine, 0, len(m.engines))
	for _, e := range m.engines {
		engines = append(engines, e)
	}
	m.mu.Unlock()
	for _, e := range engines {
		e.Close()
	}
}
