// Package store owns the canonical in-memory view of the current actor's
// chat sessions. It keeps two tiers per session: an authoritative layer
// replaced wholesale by remote snapshots, and a speculative overlay of
// optimistic local appends merged on every read. An overlay entry is
// garbage-collected once the authoritative layer contains its id; an
// entry whose remote echo came back under a server-assigned id is
// instead matched one-to-one by (role, content) and suppressed from the
// merged view, which makes an optimistic append and its echo converge
// without duplicates while a repeated identical send stays visible.
package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/finsight-ai/advisor-platform/internal/model"
	"github.com/finsight-ai/advisor-platform/pkg/logger"
	"github.com/finsight-ai/advisor-platform/pkg/metrics"
)

// ChangeListener is notified after any mutation to a session's message
// list or the session list itself. sessionID is empty for metadata-only
// changes.
type ChangeListener func(sessionID string)

// Sessions is the session store for one actor context.
type Sessions struct {
	mu sync.Mutex

	actor model.Actor
	metas []model.SessionMeta

	authoritative map[string][]model.Message
	overlay       map[string][]model.Message

	activeID  string
	listeners map[int]ChangeListener
	nextSub   int

	logger *logger.Logger
}

// NewSessions creates an empty store for the anonymous actor. The
// anonymous default session exists immediately.
func NewSessions(log *logger.Logger) *Sessions {
	s := &Sessions{
		authoritative: make(map[string][]model.Message),
		overlay:       make(map[string][]model.Message),
		listeners:     make(map[int]ChangeListener),
		logger:        log,
	}
	s.resetAnonymousLocked()
	return s
}

func (s *Sessions) resetAnonymousLocked() {
	s.actor = model.Anonymous()
	now := time.Now()
	s.metas = []model.SessionMeta{{
		ID:           model.DefaultSessionID,
		Title:        DefaultAnonymousTitle,
		CreatedAt:    now,
		LastActivity: now,
	}}
	s.authoritative = make(map[string][]model.Message)
	s.overlay = make(map[string][]model.Message)
	s.activeID = model.DefaultSessionID
}

// DefaultAnonymousTitle labels the single synthetic anonymous session.
const DefaultAnonymousTitle = "New Chat"

// SwitchActor swaps the backing dataset for a new actor. All cached
// state from the previous actor is discarded; for authenticated actors
// the session list arrives via the next remote snapshot.
func (s *Sessions) SwitchActor(actor model.Actor) {
	s.mu.Lock()
	if actor.IsAuthenticated() {
		s.actor = actor
		s.metas = nil
		s.authoritative = make(map[string][]model.Message)
		s.overlay = make(map[string][]model.Message)
		s.activeID = ""
	} else {
		s.resetAnonymousLocked()
	}
	s.mu.Unlock()
	s.notify("")
}

// Actor returns the actor this store currently serves.
func (s *Sessions) Actor() model.Actor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actor
}

// ActiveID returns the currently active session id, which may be empty
// for an authenticated actor whose session list has not arrived yet.
func (s *Sessions) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// SetActive switches the active session synchronously. Callers see the
// cached (possibly stale or empty) list until the remote subscription
// delivers.
func (s *Sessions) SetActive(sessionID string) {
	s.mu.Lock()
	s.activeID = sessionID
	s.mu.Unlock()
	s.notify(sessionID)
}

// ListSessions returns session metadata ordered by lastActivity
// descending. Anonymous actors always see exactly one synthetic entry.
func (s *Sessions) ListSessions() []model.SessionMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.SessionMeta, len(s.metas))
	copy(out, s.metas)
	return out
}

// GetMessages returns the merged message list for a session. A session
// with no real traffic yields exactly one synthesized welcome message,
// never an empty list.
func (s *Sessions) GetMessages(sessionID string) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := s.mergedLocked(sessionID)
	if len(merged) == 0 {
		return []model.Message{model.WelcomeMessage()}
	}
	return merged
}

func (s *Sessions) mergedLocked(sessionID string) []model.Message {
	auth := s.authoritative[sessionID]
	overlay := s.overlay[sessionID]
	converged := convergedOverlay(auth, overlay)
	out := make([]model.Message, 0, len(auth)+len(overlay))
	out = append(out, auth...)
	for i, pending := range overlay {
		if !converged[i] {
			out = append(out, pending)
		}
	}
	return out
}

// convergedOverlay marks which overlay entries already exist in the
// authoritative layer. Matching is one-to-one: each authoritative
// message absorbs at most one overlay entry, by id first and then, for
// echoes that came back under a server-assigned id, by (role, content).
// The counting keeps a repeated identical send visible instead of
// letting one echo swallow every lookalike.
func convergedOverlay(auth, overlay []model.Message) []bool {
	converged := make([]bool, len(overlay))
	used := make([]bool, len(auth))
	for i, pending := range overlay {
		for j, have := range auth {
			if !used[j] && have.ID == pending.ID {
				used[j] = true
				converged[i] = true
				break
			}
		}
	}
	for i, pending := range overlay {
		if converged[i] {
			continue
		}
		for j, have := range auth {
			if !used[j] && have.Role == pending.Role && have.Content == pending.Content {
				used[j] = true
				converged[i] = true
				break
			}
		}
	}
	return converged
}

// ApplyRemoteSnapshot replaces a session's authoritative message list
// wholesale and garbage-collects overlay entries whose id the snapshot
// now carries. Entries converged by content equivalence stay in the
// overlay so later identical appends still find an unclaimed
// authoritative match; the merge suppresses them from the visible list.
func (s *Sessions) ApplyRemoteSnapshot(sessionID string, messages []model.Message) {
	s.mu.Lock()
	auth := make([]model.Message, len(messages))
	copy(auth, messages)
	s.authoritative[sessionID] = auth

	var kept []model.Message
	for _, pending := range s.overlay[sessionID] {
		if !hasMessageID(auth, pending.ID) {
			kept = append(kept, pending)
		}
	}
	s.overlay[sessionID] = kept
	s.mu.Unlock()

	metrics.SnapshotsApplied.WithLabelValues("messages").Inc()
	s.notify(sessionID)
}

// ApplySessionSnapshot replaces the session-metadata list with the
// authoritative remote ordering and re-selects the active session: a
// still-present active session is kept, otherwise the most recent
// session becomes active. The second return is true when the snapshot
// was empty and a fresh session is needed.
func (s *Sessions) ApplySessionSnapshot(metas []model.SessionMeta) (activeID string, needNew bool) {
	s.mu.Lock()
	s.metas = make([]model.SessionMeta, len(metas))
	copy(s.metas, metas)
	sortMetasLocked(s.metas)

	if s.activeID != "" && s.hasSessionLocked(s.activeID) {
		activeID = s.activeID
	} else if len(s.metas) > 0 {
		s.activeID = s.metas[0].ID
		activeID = s.activeID
	} else {
		s.activeID = ""
		needNew = true
	}
	s.mu.Unlock()

	metrics.SnapshotsApplied.WithLabelValues("sessions").Inc()
	s.notify("")
	return activeID, needNew
}

func hasMessageID(list []model.Message, id string) bool {
	for _, m := range list {
		if m.ID == id {
			return true
		}
	}
	return false
}

func (s *Sessions) hasSessionLocked(id string) bool {
	for _, m := range s.metas {
		if m.ID == id {
			return true
		}
	}
	return false
}

func sortMetasLocked(metas []model.SessionMeta) {
	sort.SliceStable(metas, func(i, j int) bool {
		return metas[i].LastActivity.After(metas[j].LastActivity)
	})
}

// AppendLocal appends a message optimistically to the overlay and bumps
// the session's lastActivity.
func (s *Sessions) AppendLocal(sessionID string, msg model.Message) {
	s.mu.Lock()
	s.overlay[sessionID] = append(s.overlay[sessionID], msg)
	s.touchLocked(sessionID, msg.Timestamp)
	s.mu.Unlock()

	metrics.MessagesTotal.WithLabelValues(string(msg.Role)).Inc()
	s.notify(sessionID)
}

func (s *Sessions) touchLocked(sessionID string, at time.Time) {
	if at.IsZero() {
		at = time.Now()
	}
	for i := range s.metas {
		if s.metas[i].ID == sessionID {
			s.metas[i].LastActivity = at
			sortMetasLocked(s.metas)
			return
		}
	}
}

// CreateSession allocates a new session seeded with the welcome message
// and any pending messages, registers its metadata and makes it active.
func (s *Sessions) CreateSession(seed []model.Message) string {
	s.mu.Lock()
	now := time.Now()
	id := model.NewSessionID(now)
	// Millisecond ids can collide under rapid creation.
	for s.hasSessionLocked(id) {
		now = now.Add(time.Millisecond)
		id = model.NewSessionID(now)
	}

	msgs := make([]model.Message, 0, len(seed)+1)
	msgs = append(msgs, model.WelcomeMessage())
	for _, m := range seed {
		if m.ID != model.WelcomeMessageID {
			msgs = append(msgs, m)
		}
	}
	s.overlay[id] = msgs
	s.metas = append(s.metas, model.SessionMeta{
		ID:           id,
		Title:        model.DefaultSessionTitle,
		CreatedAt:    now,
		LastActivity: now,
	})
	sortMetasLocked(s.metas)
	s.activeID = id
	s.mu.Unlock()

	metrics.SessionsCreated.Inc()
	s.logger.Info("session created", zap.String("session_id", id))
	s.notify(id)
	return id
}

// Retitle sets a session's title.
func (s *Sessions) Retitle(sessionID, title string) {
	s.mu.Lock()
	for i := range s.metas {
		if s.metas[i].ID == sessionID {
			s.metas[i].Title = title
			break
		}
	}
	s.mu.Unlock()
	s.notify("")
}

// Meta returns a session's metadata.
func (s *Sessions) Meta(sessionID string) (model.SessionMeta, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.metas {
		if m.ID == sessionID {
			return m, true
		}
	}
	return model.SessionMeta{}, false
}

// UniqueTitle derives a session title from the first user message and
// appends a numeric suffix until it collides with no existing title.
func (s *Sessions) UniqueTitle(content string) string {
	base := model.SessionTitle(content)
	s.mu.Lock()
	defer s.mu.Unlock()
	title := base
	for n := 1; s.titleTakenLocked(title); n++ {
		title = fmt.Sprintf("%s (%d)", base, n)
	}
	return title
}

func (s *Sessions) titleTakenLocked(title string) bool {
	for _, m := range s.metas {
		if m.Title == title {
			return true
		}
	}
	return false
}

// UserMessageCount counts user-role messages in the merged view of a
// session. The pipeline retitles a session when this hits one.
func (s *Sessions) UserMessageCount(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.mergedLocked(sessionID) {
		if m.Role == model.RoleUser {
			n++
		}
	}
	return n
}

// Subscribe registers a change listener and returns its release func.
func (s *Sessions) Subscribe(fn ChangeListener) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Sessions) notify(sessionID string) {
	s.mu.Lock()
	fns := make([]ChangeListener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(sessionID)
	}
}
