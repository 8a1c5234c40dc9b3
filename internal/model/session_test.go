package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionID(t *testing.T) {
	now := time.UnixMilli(1722500000000)
	assert.Equal(t, "chat-1722500000000", NewSessionID(now))
}

func TestSessionTitle(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "short message unchanged",
			content: "Buy TCS",
			want:    "Buy TCS",
		},
		{
			name:    "exactly six words",
			content: "one two three four five six",
			want:    "one two three four five six",
		},
		{
			name:    "long message truncated",
			content: "should I rebalance my portfolio before the end of the quarter",
			want:    "should I rebalance my portfolio before...",
		},
		{
			name:    "surrounding whitespace collapsed",
			content: "  what   about  taxes  ",
			want:    "what about taxes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SessionTitle(tt.content))
		})
	}
}

func TestDecodeSessionMeta(t *testing.T) {
	s, err := DecodeSessionMeta([]byte(`{"id":"chat-1","title":"Buy TCS"}`))
	require.NoError(t, err)
	assert.Equal(t, "Buy TCS", s.Title)

	s, err = DecodeSessionMeta([]byte(`{"id":"chat-1"}`))
	require.NoError(t, err)
	assert.Equal(t, "Untitled Chat", s.Title)

	_, err = DecodeSessionMeta([]byte(`{"title":"no id"}`))
	assert.Error(t, err)
}

func TestProfileMerge(t *testing.T) {
	existing := Profile{Email: "a@b.c", FreeTrialCount: 2}
	existing.Merge(Profile{DisplayName: "Ada", FreeTrialCount: 1})

	assert.Equal(t, "a@b.c", existing.Email)
	assert.Equal(t, "Ada", existing.DisplayName)
	// The counter never moves backwards on merge.
	assert.Equal(t, 2, existing.FreeTrialCount)
}
