package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/finsight-ai/advisor-platform/pkg/metrics"
)

// HTTPResponder calls the advisor endpoint:
// POST {message, user_id, chat_id} -> {response, suggestions?, showChart?}.
// Any non-2xx status or malformed body is a failure.
type HTTPResponder struct {
	url    string
	client *http.Client
}

// NewHTTPResponder creates a responder for the given endpoint URL.
func NewHTTPResponder(url string, timeout time.Duration) *HTTPResponder {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPResponder{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type advisorRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
	ChatID  string `json:"chat_id"`
}

type advisorResponse struct {
	Response    string   `json:"response"`
	Suggestions []string `json:"suggestions,omitempty"`
	ShowChart   bool     `json:"showChart,omitempty"`
}

// Respond sends the query to the advisor endpoint.
func (r *HTTPResponder) Respond(ctx context.Context, q Query) (*Reply, error) {
	start := time.Now()

	body, err := json.Marshal(advisorRequest{
		Message: q.Message,
		UserID:  q.ActorID,
		ChatID:  q.SessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal advisor request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create advisor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		metrics.RecordResponder("advisor", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("advisor call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RecordResponder("advisor", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("advisor call: unexpected status %d", resp.StatusCode)
	}

	var parsed advisorResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		metrics.RecordResponder("advisor", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("decode advisor response: %w", err)
	}
	if parsed.Response == "" {
		metrics.RecordResponder("advisor", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("advisor response missing body")
	}

	suggestions := parsed.Suggestions
	if len(suggestions) == 0 {
		suggestions = defaultSuggestions()
	}

	metrics.RecordResponder("advisor", "success", time.Since(start).Seconds())
	return &Reply{
		Response:    parsed.Response,
		Suggestions: suggestions,
		ShowChart:   parsed.ShowChart,
	}, nil
}
