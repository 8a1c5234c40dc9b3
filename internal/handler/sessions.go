package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/finsight-ai/advisor-platform/internal/chat"
	"github.com/finsight-ai/advisor-platform/internal/middleware"
	"github.com/finsight-ai/advisor-platform/pkg/logger"
)

// SessionHandler handles session list and activation endpoints.
type SessionHandler struct {
	manager *chat.Manager
	logger  *logger.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(manager *chat.Manager, log *logger.Logger) *SessionHandler {
	return &SessionHandler{manager: manager, logger: log}
}

func (h *SessionHandler) engine(r *http.Request) *chat.Engine {
	return h.manager.Engine(middleware.GetClientID(r.Context()))
}

// List handles GET /api/v1/sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	engine := h.engine(r)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions":  engine.Sessions.ListSessions(),
		"active_id": engine.Sessions.ActiveID(),
	})
}

// Create handles POST /api/v1/sessions, starting a fresh chat holding
// only the welcome message.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	engine := h.engine(r)
	sessionID := engine.Pipeline.NewChat(r.Context())
	meta, _ := engine.Sessions.Meta(sessionID)
	writeJSON(w, http.StatusCreated, meta)
}

// Activate handles POST /api/v1/sessions/{id}/activate
func (h *SessionHandler) Activate(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	engine := h.engine(r)
	if _, ok := engine.Sessions.Meta(sessionID); !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	engine.SetActiveSession(sessionID)
	writeJSON(w, http.StatusOK, map[string]string{
		"active_id": sessionID,
	})
}

// Messages handles GET /api/v1/sessions/{id}/messages
func (h *SessionHandler) Messages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	engine := h.engine(r)
	if _, ok := engine.Sessions.Meta(sessionID); !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"messages":   engine.Sessions.GetMessages(sessionID),
	})
}
