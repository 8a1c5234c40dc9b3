package middleware

import (
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/finsight-ai/advisor-platform/internal/model"
)

// ValidateMessageContent validates message content.
func ValidateMessageContent(content string) error {
	if len(content) == 0 {
		return errors.New("content cannot be empty")
	}
	if len(content) > 100000 { // ~100KB limit
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateSessionID validates a session ID. Valid ids are the anonymous
// default session or a creation-timestamp id.
func ValidateSessionID(id string) error {
	if id == model.DefaultSessionID {
		return nil
	}
	rest, ok := strings.CutPrefix(id, "chat-")
	if !ok {
		return errors.New("invalid session ID format")
	}
	if _, err := strconv.ParseInt(rest, 10, 64); err != nil {
		return errors.New("invalid session ID format")
	}
	return nil
}

// ValidateSymbol validates a portfolio stock symbol.
func ValidateSymbol(symbol string) error {
	if len(symbol) == 0 {
		return errors.New("symbol cannot be empty")
	}
	if len(symbol) > 12 {
		return errors.New("symbol exceeds maximum length")
	}
	return nil
}
