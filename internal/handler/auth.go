package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/finsight-ai/advisor-platform/internal/chat"
	"github.com/finsight-ai/advisor-platform/internal/middleware"
	"github.com/finsight-ai/advisor-platform/internal/remote"
	"github.com/finsight-ai/advisor-platform/pkg/logger"
)

// AuthHandler handles sign-in and sign-out for a client's engine.
type AuthHandler struct {
	manager *chat.Manager
	remote  remote.Store
	logger  *logger.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(manager *chat.Manager, rs remote.Store, log *logger.Logger) *AuthHandler {
	return &AuthHandler{manager: manager, remote: rs, logger: log}
}

// SignInRequest carries the identity token to exchange.
type SignInRequest struct {
	Token string `json:"token"`
}

// SignIn handles POST /api/v1/auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "token cannot be empty")
		return
	}

	engine := h.manager.Engine(middleware.GetClientID(r.Context()))
	user, err := engine.SignIn(r.Context(), req.Token)
	if err != nil {
		h.logger.Warn("sign-in rejected", zap.Error(err))
		writeError(w, http.StatusUnauthorized, "invalid credential")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user": user,
	})
}

// SignOut handles POST /api/v1/auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	engine := h.manager.Engine(middleware.GetClientID(r.Context()))
	if err := engine.SignOut(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "sign-out failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}

// Me handles GET /api/v1/auth/me, reporting the resolved actor, the
// trial counter and the pro flag from the remote profile.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	engine := h.manager.Engine(middleware.GetClientID(r.Context()))
	actor := engine.Sessions.Actor()

	resp := map[string]interface{}{
		"actor":       actor,
		"resolved":    engine.Resolver.Resolved(),
		"trial_count": engine.Gate.Count(),
	}

	if actor.IsAuthenticated() {
		if p, ok, err := h.remote.GetProfile(r.Context(), actor.ID); err == nil && ok {
			resp["is_pro"] = p.IsPro
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
