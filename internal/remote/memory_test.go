package remote

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-ai/advisor-platform/internal/model"
)

func TestMessageSnapshotOrderedByServerTime(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	// Client timestamps are deliberately reversed; server apply order
	// decides the snapshot ordering.
	old := time.Now().Add(-time.Hour)
	require.NoError(t, s.UpsertMessage(ctx, "u1", "chat-1", model.Message{
		ID: "m1", Role: model.RoleUser, Content: "first", Timestamp: time.Now(),
	}))
	require.NoError(t, s.UpsertMessage(ctx, "u1", "chat-1", model.Message{
		ID: "m2", Role: model.RoleAssistant, Content: "second", Timestamp: old,
	}))

	w, err := s.WatchMessages(ctx, "u1", "chat-1")
	require.NoError(t, err)
	defer w.Stop()

	snap := <-w.Snapshots()
	require.Len(t, snap, 2)
	assert.Equal(t, "m1", snap[0].ID)
	assert.Equal(t, "m2", snap[1].ID)
}

func TestUpsertExistingMessageKeepsServerTimestamp(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	welcome := model.WelcomeMessage()
	require.NoError(t, s.UpsertMessage(ctx, "u1", "chat-1", welcome))
	require.NoError(t, s.UpsertMessage(ctx, "u1", "chat-1", model.Message{
		ID: "m1", Role: model.RoleUser, Content: "hello",
	}))

	// Re-upserting the welcome must not move it after m1.
	require.NoError(t, s.UpsertMessage(ctx, "u1", "chat-1", model.WelcomeMessage()))

	w, err := s.WatchMessages(ctx, "u1", "chat-1")
	require.NoError(t, err)
	defer w.Stop()

	snap := <-w.Snapshots()
	require.Len(t, snap, 2)
	assert.Equal(t, model.WelcomeMessageID, snap[0].ID)
	assert.Equal(t, "m1", snap[1].ID)
}

func TestSessionWatchDeliversOnEveryUpsert(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	w, err := s.WatchSessions(ctx, "u1")
	require.NoError(t, err)
	defer w.Stop()

	// Initial snapshot is empty.
	assert.Empty(t, <-w.Snapshots())

	require.NoError(t, s.UpsertSession(ctx, "u1", model.SessionMeta{
		ID: "chat-1", Title: "a", LastActivity: time.Now(),
	}))
	snap := <-w.Snapshots()
	require.Len(t, snap, 1)
	assert.Equal(t, "chat-1", snap[0].ID)
}

func TestSlowReceiverStillSeesLatestSnapshot(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	w, err := s.WatchMessages(ctx, "u1", "chat-1")
	require.NoError(t, err)
	defer w.Stop()

	// Burst of writes with nobody reading. Intermediate snapshots may be
	// superseded, but the final one must be waiting in the channel.
	for i := 0; i < 20; i++ {
		require.NoError(t, s.UpsertMessage(ctx, "u1", "chat-1", model.Message{
			ID: fmt.Sprintf("m-%d", i), Role: model.RoleUser, Content: "burst",
		}))
	}

	var snap []model.Message
	require.Eventually(t, func() bool {
		select {
		case snap = <-w.Snapshots():
		default:
		}
		return len(snap) == 20
	}, time.Second, 5*time.Millisecond)
}

func TestWatchesAreActorScoped(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	w, err := s.WatchSessions(ctx, "alice")
	require.NoError(t, err)
	defer w.Stop()
	<-w.Snapshots()

	require.NoError(t, s.UpsertSession(ctx, "bob", model.SessionMeta{
		ID: "chat-b", Title: "bob", LastActivity: time.Now(),
	}))

	select {
	case snap := <-w.Snapshots():
		t.Fatalf("alice's watch should not see bob's write, got %v", snap)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMergeProfileOverlays(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.MergeProfile(ctx, "u1", model.Profile{Email: "a@b.c", FreeTrialCount: 1}))
	require.NoError(t, s.MergeProfile(ctx, "u1", model.Profile{DisplayName: "Ada", FreeTrialCount: 2}))

	p, ok, err := s.GetProfile(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a@b.c", p.Email)
	assert.Equal(t, "Ada", p.DisplayName)
	assert.Equal(t, 2, p.FreeTrialCount)
}
