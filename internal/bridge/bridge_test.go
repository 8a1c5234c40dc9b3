package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-ai/advisor-platform/internal/model"
	"github.com/finsight-ai/advisor-platform/internal/remote"
	"github.com/finsight-ai/advisor-platform/internal/store"
	"github.com/finsight-ai/advisor-platform/pkg/logger"
)

func newBridge(t *testing.T) (*Bridge, *store.Sessions, *remote.MemoryStore) {
	t.Helper()
	sessions := store.NewSessions(logger.NewNop())
	mem := remote.NewMemoryStore()
	b := New(sessions, mem, logger.NewNop())
	t.Cleanup(b.Close)
	return b, sessions, mem
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

func TestSessionSnapshotForwarded(t *testing.T) {
	b, sessions, mem := newBridge(t)
	ctx := context.Background()
	actor := model.Authenticated("u1", "", "", "")

	meta := model.SessionMeta{ID: "chat-1", Title: "Buy TCS", LastActivity: time.Now()}
	require.NoError(t, mem.UpsertSession(ctx, "u1", meta))

	sessions.SwitchActor(actor)
	b.SetActor(ctx, actor)

	waitFor(t, func() bool {
		list := sessions.ListSessions()
		return len(list) == 1 && list[0].ID == "chat-1"
	}, "session snapshot should reach the store")
	waitFor(t, func() bool {
		return sessions.ActiveID() == "chat-1"
	}, "arriving snapshot should select an active session")
}

func TestMessageSnapshotForwarded(t *testing.T) {
	b, sessions, mem := newBridge(t)
	ctx := context.Background()
	actor := model.Authenticated("u1", "", "", "")

	require.NoError(t, mem.UpsertMessage(ctx, "u1", "chat-1", model.Message{
		ID: "m1", Role: model.RoleUser, Content: "hello",
	}))

	sessions.SwitchActor(actor)
	sessions.SetActive("chat-1")
	b.WatchActiveSession(ctx, actor, "chat-1")

	waitFor(t, func() bool {
		msgs := sessions.GetMessages("chat-1")
		return len(msgs) == 1 && msgs[0].ID == "m1"
	}, "message snapshot should reach the store")
}

func TestStaleDeliveryDiscardedAfterActorSwitch(t *testing.T) {
	b, sessions, mem := newBridge(t)
	ctx := context.Background()
	alice := model.Authenticated("alice", "", "", "")
	bob := model.Authenticated("bob", "", "", "")

	require.NoError(t, mem.UpsertSession(ctx, "alice", model.SessionMeta{
		ID: "chat-a", Title: "alice chat", LastActivity: time.Now(),
	}))

	sessions.SwitchActor(alice)
	b.SetActor(ctx, alice)
	waitFor(t, func() bool { return len(sessions.ListSessions()) == 1 }, "alice data should load")

	// Switch to bob; late writes into alice's collection must never
	// land in bob's dataset.
	sessions.SwitchActor(bob)
	b.SetActor(ctx, bob)

	require.NoError(t, mem.UpsertSession(ctx, "alice", model.SessionMeta{
		ID: "chat-a2", Title: "late alice chat", LastActivity: time.Now(),
	}))
	require.NoError(t, mem.UpsertSession(ctx, "bob", model.SessionMeta{
		ID: "chat-b", Title: "bob chat", LastActivity: time.Now(),
	}))

	waitFor(t, func() bool {
		list := sessions.ListSessions()
		return len(list) == 1 && list[0].ID == "chat-b"
	}, "only bob's session should be visible")
}

func TestEmptySnapshotTriggersNeedNewSession(t *testing.T) {
	b, sessions, mem := newBridge(t)
	ctx := context.Background()
	actor := model.Authenticated("u1", "", "", "")

	called := make(chan struct{}, 1)
	b.NeedNewSession = func() {
		select {
		case called <- struct{}{}:
		default:
		}
	}

	sessions.SwitchActor(actor)
	b.SetActor(ctx, actor)
	_ = mem

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("empty snapshot should request a new session")
	}
}

func TestMessageWatchRepointedWhenActiveMoves(t *testing.T) {
	b, sessions, mem := newBridge(t)
	ctx := context.Background()
	actor := model.Authenticated("u1", "", "", "")

	require.NoError(t, mem.UpsertSession(ctx, "u1", model.SessionMeta{
		ID: "chat-1", Title: "first", LastActivity: time.Now(),
	}))
	require.NoError(t, mem.UpsertMessage(ctx, "u1", "chat-1", model.Message{
		ID: "m1", Role: model.RoleUser, Content: "hello",
	}))

	sessions.SwitchActor(actor)
	b.SetActor(ctx, actor)

	// The session watch selects chat-1 and opens its message watch.
	waitFor(t, func() bool {
		msgs := sessions.GetMessages("chat-1")
		return len(msgs) == 1 && msgs[0].ID == "m1"
	}, "active session messages should stream in")
}

type terminatedSessionWatch struct {
	ch chan []model.SessionMeta
}

func (w *terminatedSessionWatch) Snapshots() <-chan []model.SessionMeta { return w.ch }
func (w *terminatedSessionWatch) Err() error                            { return remote.ErrWatchTerminated }
func (w *terminatedSessionWatch) Stop()                                 {}

type terminatingStore struct {
	*remote.MemoryStore
}

func (s *terminatingStore) WatchSessions(context.Context, string) (remote.SessionWatch, error) {
	w := &terminatedSessionWatch{ch: make(chan []model.SessionMeta)}
	close(w.ch)
	return w, nil
}

func TestWatchTerminationRaisesNotice(t *testing.T) {
	sessions := store.NewSessions(logger.NewNop())
	b := New(sessions, &terminatingStore{remote.NewMemoryStore()}, logger.NewNop())
	t.Cleanup(b.Close)

	notices := make(chan string, 1)
	b.Notice = func(msg string) {
		select {
		case notices <- msg:
		default:
		}
	}

	actor := model.Authenticated("u1", "", "", "")
	sessions.SwitchActor(actor)
	b.SetActor(context.Background(), actor)

	select {
	case msg := <-notices:
		assert.Contains(t, msg, "previous conversations")
	case <-time.After(2 * time.Second):
		t.Fatal("terminated watch should surface a notice")
	}
}

func TestNoNewWatchesAfterClose(t *testing.T) {
	sessions := store.NewSessions(logger.NewNop())
	mem := remote.NewMemoryStore()
	b := New(sessions, mem, logger.NewNop())
	ctx := context.Background()
	actor := model.Authenticated("u1", "", "", "")

	sessions.SwitchActor(actor)
	sessions.SetActive("chat-1")
	b.Close()

	// A re-point racing shutdown must not open a fresh subscription.
	b.WatchActiveSession(ctx, actor, "chat-1")
	require.NoError(t, mem.UpsertMessage(ctx, "u1", "chat-1", model.Message{
		ID: "m1", Role: model.RoleUser, Content: "late",
	}))

	time.Sleep(50 * time.Millisecond)
	msgs := sessions.GetMessages("chat-1")
	require.Len(t, msgs, 1)
	assert.Equal(t, model.WelcomeMessageID, msgs[0].ID)
}

func TestPersistSkipsAnonymous(t *testing.T) {
	b, _, mem := newBridge(t)
	ctx := context.Background()
	anon := model.Anonymous()

	b.PersistSession(ctx, anon, model.SessionMeta{ID: "chat-1", Title: "local only"})
	b.PersistMessage(ctx, anon, "chat-1", model.Message{ID: "m1", Role: model.RoleUser, Content: "hi"})

	w, err := mem.WatchSessions(ctx, model.AnonymousRemoteID)
	require.NoError(t, err)
	defer w.Stop()
	snap := <-w.Snapshots()
	assert.Empty(t, snap)
}

func TestPersistMirrorsForAuthenticated(t *testing.T) {
	b, _, mem := newBridge(t)
	ctx := context.Background()
	actor := model.Authenticated("u1", "", "", "")

	b.PersistSession(ctx, actor, model.SessionMeta{ID: "chat-1", Title: "mirrored", LastActivity: time.Now()})
	b.PersistMessage(ctx, actor, "chat-1", model.Message{ID: "m1", Role: model.RoleUser, Content: "hi"})

	w, err := mem.WatchSessions(ctx, "u1")
	require.NoError(t, err)
	defer w.Stop()
	snap := <-w.Snapshots()
	require.Len(t, snap, 1)
	assert.Equal(t, "chat-1", snap[0].ID)
}
