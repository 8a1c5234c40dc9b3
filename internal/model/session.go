package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DefaultSessionID is the fixed id of the single session an anonymous
// actor gets at startup.
const DefaultSessionID = "default-unauthenticated-chat"

// DefaultSessionTitle is the title a session carries until its first
// user message retitles it.
const DefaultSessionTitle = "New Chat"

// SessionMeta is conversation thread metadata. Message lists live in a
// sub-collection keyed by the session id.
type SessionMeta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// NewSessionID allocates a time-based session id, unique within an
// actor's namespace.
func NewSessionID(now time.Time) string {
	return fmt.Sprintf("chat-%d", now.UnixMilli())
}

// SessionTitle derives a title from the first user message: its first
// six words, with an ellipsis marker when truncated.
func SessionTitle(content string) string {
	words := strings.Fields(strings.TrimSpace(content))
	if len(words) <= 6 {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:6], " ") + "..."
}

// DecodeSessionMeta decodes a remote session document, rejecting
// malformed payloads.
func DecodeSessionMeta(data []byte) (*SessionMeta, error) {
	var s SessionMeta
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if s.ID == "" {
		return nil, fmt.Errorf("decode session: missing id")
	}
	if s.Title == "" {
		s.Title = "Untitled Chat"
	}
	return &s, nil
}
