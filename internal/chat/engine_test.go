package chat

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-ai/advisor-platform/internal/identity"
	"github.com/finsight-ai/advisor-platform/internal/model"
	"github.com/finsight-ai/advisor-platform/internal/remote"
	"github.com/finsight-ai/advisor-platform/internal/responder"
	"github.com/finsight-ai/advisor-platform/pkg/logger"
)

const testSecret = "engine-test-secret"

func mintToken(t *testing.T, uid, name, email string) string {
	t.Helper()
	claims := identity.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Name:  name,
		Email: email,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

type cannedResponder struct{}

func (cannedResponder) Respond(_ context.Context, q responder.Query) (*responder.Reply, error) {
	return &responder.Reply{Response: "advice for: " + q.Message}, nil
}

func newTestEngine(t *testing.T, mem *remote.MemoryStore) *Engine {
	t.Helper()
	e := NewEngine(context.Background(), Config{
		Provider:  identity.NewJWTProvider(testSecret),
		Remote:    mem,
		Responder: cannedResponder{},
		FreeLimit: 3,
		Logger:    logger.NewNop(),
	})
	t.Cleanup(e.Close)
	return e
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

func TestEngineStartsAnonymous(t *testing.T) {
	e := newTestEngine(t, remote.NewMemoryStore())

	assert.True(t, e.Resolver.Resolved())
	assert.False(t, e.Sessions.Actor().IsAuthenticated())
	assert.Equal(t, model.DefaultSessionID, e.Sessions.ActiveID())
}

func TestSignInCreatesFirstRemoteSession(t *testing.T) {
	mem := remote.NewMemoryStore()
	e := newTestEngine(t, mem)
	ctx := context.Background()

	user, err := e.SignIn(ctx, mintToken(t, "u1", "Ada", "ada@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "u1", user.UID)

	// No server-side sessions yet: the empty snapshot triggers a fresh
	// chat that is mirrored remotely with its welcome message.
	waitFor(t, func() bool {
		return e.Sessions.Actor().IsAuthenticated() && e.Sessions.ActiveID() != ""
	}, "sign-in should settle on a fresh session")

	sessionID := e.Sessions.ActiveID()
	waitFor(t, func() bool {
		w, err := mem.WatchMessages(ctx, "u1", sessionID)
		if err != nil {
			return false
		}
		defer w.Stop()
		snap := <-w.Snapshots()
		return len(snap) == 1 && snap[0].ID == model.WelcomeMessageID
	}, "welcome message should be persisted")
}

func TestSignInLoadsExistingSessions(t *testing.T) {
	mem := remote.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, mem.UpsertSession(ctx, "u1", model.SessionMeta{
		ID: "chat-100", Title: "Buy TCS", LastActivity: time.Now(),
	}))
	require.NoError(t, mem.UpsertMessage(ctx, "u1", "chat-100", model.Message{
		ID: "m1", Role: model.RoleUser, Content: "Buy TCS",
	}))

	e := newTestEngine(t, mem)
	_, err := e.SignIn(ctx, mintToken(t, "u1", "Ada", ""))
	require.NoError(t, err)

	waitFor(t, func() bool {
		return e.Sessions.ActiveID() == "chat-100"
	}, "existing session should become active")
	waitFor(t, func() bool {
		msgs := e.Sessions.GetMessages("chat-100")
		return len(msgs) == 1 && msgs[0].ID == "m1"
	}, "existing messages should stream in")
}

func TestAuthenticatedSendIsMirrored(t *testing.T) {
	mem := remote.NewMemoryStore()
	e := newTestEngine(t, mem)
	ctx := context.Background()

	_, err := e.SignIn(ctx, mintToken(t, "u1", "Ada", ""))
	require.NoError(t, err)
	waitFor(t, func() bool { return e.Sessions.ActiveID() != "" }, "session should settle")

	res := e.Pipeline.Submit(ctx, "mirror this")
	require.False(t, res.Blocked)

	w, err := mem.WatchMessages(ctx, "u1", res.SessionID)
	require.NoError(t, err)
	defer w.Stop()
	snap := <-w.Snapshots()
	contents := make(map[string]bool)
	for _, m := range snap {
		contents[m.Content] = true
	}
	assert.True(t, contents["mirror this"])
	assert.True(t, contents["advice for: mirror this"])
}

func TestSignOutReturnsToAnonymousDefault(t *testing.T) {
	mem := remote.NewMemoryStore()
	e := newTestEngine(t, mem)
	ctx := context.Background()

	_, err := e.SignIn(ctx, mintToken(t, "u1", "Ada", ""))
	require.NoError(t, err)
	waitFor(t, func() bool { return e.Sessions.Actor().IsAuthenticated() }, "sign-in should settle")

	require.NoError(t, e.SignOut(ctx))
	waitFor(t, func() bool {
		return !e.Sessions.Actor().IsAuthenticated() && e.Sessions.ActiveID() == model.DefaultSessionID
	}, "sign-out should land on the anonymous default session")
	assert.Equal(t, 0, e.Gate.Count())
}

func TestTrialCounterSurvivesSignInCycle(t *testing.T) {
	mem := remote.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, mem.MergeProfile(ctx, "u1", model.Profile{FreeTrialCount: 2}))

	e := newTestEngine(t, mem)
	_, err := e.SignIn(ctx, mintToken(t, "u1", "Ada", ""))
	require.NoError(t, err)

	waitFor(t, func() bool { return e.Gate.Count() == 2 }, "counter should seed from the profile")
}

func TestManagerReusesEnginePerClient(t *testing.T) {
	mem := remote.NewMemoryStore()
	m := NewManager(context.Background(), mem, cannedResponder{}, testSecret, 3, logger.NewNop())
	t.Cleanup(m.Close)

	a := m.Engine("client-a")
	assert.Same(t, a, m.Engine("client-a"))
	assert.NotSame(t, a, m.Engine("client-b"))
}
