package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// WelcomeMessageID is the well-known id of the synthesized welcome
// message. It is fixed so a persisted copy is reused rather than
// duplicated on resync.
const WelcomeMessageID = "welcome"

// WelcomeText is the canned greeting shown before any real traffic.
const WelcomeText = "Hello! I'm your FinSight AI advisor. Ask me anything about your investments or taxes."

// Message is a single conversation message.
type Message struct {
	ID          string    `json:"id"`
	Role        Role      `json:"role"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	Suggestions []string  `json:"suggestions,omitempty"`
	ShowChart   bool      `json:"show_chart,omitempty"`
}

// WelcomeMessage synthesizes the virtual welcome message.
func WelcomeMessage() Message {
	return Message{
		ID:        WelcomeMessageID,
		Role:      RoleAssistant,
		Content:   WelcomeText,
		Timestamp: time.Now(),
	}
}

// ValidRole reports whether r is a role this engine understands.
func ValidRole(r Role) bool {
	return r == RoleUser || r == RoleAssistant
}

// DecodeMessage decodes a remote message document, rejecting malformed
// payloads instead of falling back to zero values.
func DecodeMessage(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if m.ID == "" {
		return nil, fmt.Errorf("decode message: missing id")
	}
	if !ValidRole(m.Role) {
		return nil, fmt.Errorf("decode message %s: invalid role %q", m.ID, m.Role)
	}
	if m.Content == "" {
		return nil, fmt.Errorf("decode message %s: missing content", m.ID)
	}
	return &m, nil
}
