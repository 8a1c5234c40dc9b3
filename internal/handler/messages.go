package handler

import (
	"encoding/json"
	"net/http"

	"github.com/finsight-ai/advisor-platform/internal/chat"
	"github.com/finsight-ai/advisor-platform/internal/middleware"
	"github.com/finsight-ai/advisor-platform/internal/model"
	"github.com/finsight-ai/advisor-platform/pkg/logger"
)

// MessageHandler handles the message send endpoint.
type MessageHandler struct {
	manager *chat.Manager
	logger  *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(manager *chat.Manager, log *logger.Logger) *MessageHandler {
	return &MessageHandler{manager: manager, logger: log}
}

// SendRequest is the body of a send call.
type SendRequest struct {
	Content string `json:"content"`
}

// SendResponse is the settled outcome of a send call.
type SendResponse struct {
	SessionID        string         `json:"session_id,omitempty"`
	UserMessage      *model.Message `json:"user_message,omitempty"`
	AssistantMessage *model.Message `json:"assistant_message,omitempty"`
	PromptAuth       bool           `json:"prompt_auth"`
	UsedFallback     bool           `json:"used_fallback,omitempty"`
}

// Send handles POST /api/v1/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	engine := h.manager.Engine(middleware.GetClientID(r.Context()))
	result := engine.Pipeline.Submit(r.Context(), req.Content)

	switch {
	case result.Ignored:
		writeError(w, http.StatusBadRequest, "content cannot be empty")
	case result.Busy:
		writeError(w, http.StatusConflict, "a send is already in progress")
	case result.Blocked:
		writeJSON(w, http.StatusForbidden, map[string]interface{}{
			"error":       "free trial limit reached",
			"prompt_auth": true,
		})
	default:
		writeJSON(w, http.StatusOK, SendResponse{
			SessionID:        result.SessionID,
			UserMessage:      result.UserMessage,
			AssistantMessage: result.AssistantMessage,
			PromptAuth:       result.PromptAuth,
			UsedFallback:     result.UsedFallback,
		})
	}
}
