package trial

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-ai/advisor-platform/internal/model"
	"github.com/finsight-ai/advisor-platform/internal/remote"
	"github.com/finsight-ai/advisor-platform/pkg/logger"
)

func TestAnonymousQuota(t *testing.T) {
	gate := NewGate(3, remote.NewMemoryStore(), logger.NewNop())
	anon := model.Anonymous()
	ctx := context.Background()

	// First three sends pass; the third closes the gate.
	for i := 1; i <= 3; i++ {
		require.True(t, gate.CanSend(anon), "send %d should be allowed", i)
		assert.Equal(t, i, gate.RecordSend(ctx, anon))
	}
	assert.True(t, gate.ShouldPromptAuth(anon))

	// The fourth is blocked, and the prompt fires again on every attempt.
	assert.False(t, gate.CanSend(anon))
	assert.True(t, gate.ShouldPromptAuth(anon))
	assert.False(t, gate.CanSend(anon))
	assert.True(t, gate.ShouldPromptAuth(anon))
}

func TestPromptRaisedOnClosingSend(t *testing.T) {
	gate := NewGate(3, remote.NewMemoryStore(), logger.NewNop())
	anon := model.Anonymous()
	ctx := context.Background()

	gate.RecordSend(ctx, anon)
	gate.RecordSend(ctx, anon)
	assert.False(t, gate.ShouldPromptAuth(anon))

	gate.RecordSend(ctx, anon)
	assert.True(t, gate.ShouldPromptAuth(anon))
}

func TestAuthenticatedUnlimited(t *testing.T) {
	store := remote.NewMemoryStore()
	gate := NewGate(3, store, logger.NewNop())
	user := model.Authenticated("u1", "Ada", "ada@example.com", "")
	ctx := context.Background()

	gate.Seed(10)
	assert.True(t, gate.CanSend(user))
	assert.False(t, gate.ShouldPromptAuth(user))

	gate.RecordSend(ctx, user)

	// The increment is mirrored to the remote profile.
	p, ok, err := store.GetProfile(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 11, p.FreeTrialCount)
}

func TestRecordSendKeepsLocalCountOnRemoteFailure(t *testing.T) {
	store := remote.NewMemoryStore()
	store.FailWrites(errors.New("remote down"))
	gate := NewGate(3, store, logger.NewNop())
	user := model.Authenticated("u1", "Ada", "ada@example.com", "")

	assert.Equal(t, 1, gate.RecordSend(context.Background(), user))
	assert.Equal(t, 1, gate.Count())
}

func TestSeedReplacesCounter(t *testing.T) {
	gate := NewGate(3, remote.NewMemoryStore(), logger.NewNop())
	anon := model.Anonymous()

	gate.RecordSend(context.Background(), anon)
	gate.Seed(0)
	assert.Equal(t, 0, gate.Count())
	assert.True(t, gate.CanSend(anon))
}

func TestZeroLimitFallsBackToDefault(t *testing.T) {
	gate := NewGate(0, remote.NewMemoryStore(), logger.NewNop())
	anon := model.Anonymous()
	ctx := context.Background()

	for i := 0; i < DefaultFreeLimit; i++ {
		require.True(t, gate.CanSend(anon))
		gate.RecordSend(ctx, anon)
	}
	assert.False(t, gate.CanSend(anon))
}
