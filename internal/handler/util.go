package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/finsight-ai/advisor-platform/pkg/logger"
)

// writeJSON writes v as a JSON response body. Encode failures after the
// status line has gone out can only be logged.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Global().Warn("failed to encode response body",
			zap.Int("status", status), zap.Error(err))
	}
}

// writeError writes a JSON error body of the form {"error": message}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
