package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/finsight-ai/advisor-platform/internal/chat"
	"github.com/finsight-ai/advisor-platform/internal/middleware"
	"github.com/finsight-ai/advisor-platform/internal/model"
	"github.com/finsight-ai/advisor-platform/pkg/logger"
	"github.com/finsight-ai/advisor-platform/pkg/metrics"
)

// StreamHandler pushes session-store changes to clients over SSE.
type StreamHandler struct {
	manager *chat.Manager
	logger  *logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(manager *chat.Manager, log *logger.Logger) *StreamHandler {
	return &StreamHandler{manager: manager, logger: log}
}

// sessionsEvent is the full session-list snapshot sent on every change.
type sessionsEvent struct {
	Sessions []model.SessionMeta `json:"sessions"`
	ActiveID string              `json:"active_id"`
}

// messagesEvent is the full merged message snapshot of one session.
type messagesEvent struct {
	SessionID string          `json:"session_id"`
	Messages  []model.Message `json:"messages"`
}

// Stream handles GET /api/v1/stream
// Every store change is delivered as a full snapshot, never a diff: a
// sessions event for the session list and a messages event for the
// active session.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID := middleware.GetClientID(ctx)
	engine := h.manager.Engine(clientID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.SSEConnectionsActive.Inc()
	defer metrics.SSEConnectionsActive.Dec()

	// Change notifications are coalesced: a pending signal is enough,
	// snapshots are rebuilt from the store on delivery.
	changes := make(chan struct{}, 1)
	release := engine.Sessions.Subscribe(func(string) {
		select {
		case changes <- struct{}{}:
		default:
		}
	})
	defer release()

	sendSSEEvent(w, flusher, "connected", map[string]string{
		"client_id": clientID,
	})
	h.sendSnapshot(w, flusher, engine)

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("SSE client disconnected", zap.String("client_id", clientID))
			return

		case <-changes:
			h.sendSnapshot(w, flusher, engine)

		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", map[string]int64{
				"timestamp": time.Now().Unix(),
			})
		}
	}
}

func (h *StreamHandler) sendSnapshot(w http.ResponseWriter, flusher http.Flusher, engine *chat.Engine) {
	activeID := engine.Sessions.ActiveID()

	sendSSEEvent(w, flusher, "sessions", &sessionsEvent{
		Sessions: engine.Sessions.ListSessions(),
		ActiveID: activeID,
	})

	if activeID != "" {
		sendSSEEvent(w, flusher, "messages", &messagesEvent{
			SessionID: activeID,
			Messages:  engine.Sessions.GetMessages(activeID),
		})
	}

	if notice := engine.LastNotice(); notice != "" {
		sendSSEEvent(w, flusher, "notice", map[string]string{
			"message": notice,
		})
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()

	return nil
}
