package remote

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/finsight-ai/advisor-platform/internal/model"
)

// MemoryStore is an in-process Store used when no NATS URL is configured
// and as the test double. Server timestamps are assigned at apply time.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]map[string]stampedSession // actor -> session id -> meta
	messages map[string]map[string]map[string]stampedMessage
	profiles map[string]model.Profile
	folios   map[string]model.Portfolio

	sessionWatches []*memSessionWatch
	messageWatches []*memMessageWatch

	writeErr error
}

type stampedSession struct {
	meta model.SessionMeta
	at   time.Time
}

type stampedMessage struct {
	msg model.Message
	at  time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]map[string]stampedSession),
		messages: make(map[string]map[string]map[string]stampedMessage),
		profiles: make(map[string]model.Profile),
		folios:   make(map[string]model.Portfolio),
	}
}

// FailWrites makes subsequent writes return err; nil restores normal
// operation. Used to exercise the remote-write failure branches.
func (s *MemoryStore) FailWrites(err error) {
	s.mu.Lock()
	s.writeErr = err
	s.mu.Unlock()
}

func (s *MemoryStore) UpsertSession(_ context.Context, actorID string, meta model.SessionMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	byID := s.sessions[actorID]
	if byID == nil {
		byID = make(map[string]stampedSession)
		s.sessions[actorID] = byID
	}
	byID[meta.ID] = stampedSession{meta: meta, at: time.Now()}
	s.notifySessionsLocked(actorID)
	return nil
}

func (s *MemoryStore) UpsertMessage(_ context.Context, actorID, sessionID string, msg model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	bySession := s.messages[actorID]
	if bySession == nil {
		bySession = make(map[string]map[string]stampedMessage)
		s.messages[actorID] = bySession
	}
	byID := bySession[sessionID]
	if byID == nil {
		byID = make(map[string]stampedMessage)
		bySession[sessionID] = byID
	}
	if existing, ok := byID[msg.ID]; ok {
		// Idempotent reuse keeps the original server timestamp.
		byID[msg.ID] = stampedMessage{msg: msg, at: existing.at}
	} else {
		byID[msg.ID] = stampedMessage{msg: msg, at: time.Now()}
	}
	s.notifyMessagesLocked(actorID, sessionID)
	return nil
}

func (s *MemoryStore) GetProfile(_ context.Context, actorID string) (*model.Profile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[actorID]
	if !ok {
		return nil, false, nil
	}
	cp := p
	return &cp, true, nil
}

func (s *MemoryStore) MergeProfile(_ context.Context, actorID string, p model.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	existing := s.profiles[actorID]
	existing.Merge(p)
	s.profiles[actorID] = existing
	return nil
}

func (s *MemoryStore) GetPortfolio(_ context.Context, actorID string) (*model.Portfolio, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pf, ok := s.folios[actorID]
	if !ok {
		return nil, false, nil
	}
	cp := pf
	return &cp, true, nil
}

func (s *MemoryStore) PutPortfolio(_ context.Context, actorID string, pf model.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.folios[actorID] = pf
	return nil
}

func (s *MemoryStore) WatchSessions(_ context.Context, actorID string) (SessionWatch, error) {
	w := &memSessionWatch{
		store:   s,
		actorID: actorID,
		ch:      make(chan []model.SessionMeta, 1),
	}
	s.mu.Lock()
	s.sessionWatches = append(s.sessionWatches, w)
	w.deliver(s.sessionSnapshotLocked(actorID))
	s.mu.Unlock()
	return w, nil
}

func (s *MemoryStore) WatchMessages(_ context.Context, actorID, sessionID string) (MessageWatch, error) {
	w := &memMessageWatch{
		store:     s,
		actorID:   actorID,
		sessionID: sessionID,
		ch:        make(chan []model.Message, 1),
	}
	s.mu.Lock()
	s.messageWatches = append(s.messageWatches, w)
	w.deliver(s.messageSnapshotLocked(actorID, sessionID))
	s.mu.Unlock()
	return w, nil
}

func (s *MemoryStore) sessionSnapshotLocked(actorID string) []model.SessionMeta {
	byID := s.sessions[actorID]
	out := make([]model.SessionMeta, 0, len(byID))
	for _, ss := range byID {
		out = append(out, ss.meta)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out
}

func (s *MemoryStore) messageSnapshotLocked(actorID, sessionID string) []model.Message {
	byID := s.messages[actorID][sessionID]
	stamped := make([]stampedMessage, 0, len(byID))
	for _, sm := range byID {
		stamped = append(stamped, sm)
	}
	sort.Slice(stamped, func(i, j int) bool {
		return stamped[i].at.Before(stamped[j].at)
	})
	out := make([]model.Message, len(stamped))
	for i, sm := range stamped {
		out[i] = sm.msg
	}
	return out
}

func (s *MemoryStore) notifySessionsLocked(actorID string) {
	snap := s.sessionSnapshotLocked(actorID)
	for _, w := range s.sessionWatches {
		if w.actorID == actorID && !w.stopped {
			w.deliver(snap)
		}
	}
}

func (s *MemoryStore) notifyMessagesLocked(actorID, sessionID string) {
	snap := s.messageSnapshotLocked(actorID, sessionID)
	for _, w := range s.messageWatches {
		if w.actorID == actorID && w.sessionID == sessionID && !w.stopped {
			w.deliver(snap)
		}
	}
}

type memSessionWatch struct {
	store   *MemoryStore
	actorID string
	ch      chan []model.SessionMeta
	stopped bool
}

func (w *memSessionWatch) deliver(snap []model.SessionMeta) {
	// A slow receiver loses superseded snapshots only; the latest always
	// lands in the single-slot buffer.
	for {
		select {
		case w.ch <- snap:
			return
		default:
			select {
			case <-w.ch:
			default:
			}
		}
	}
}

func (w *memSessionWatch) Snapshots() <-chan []model.SessionMeta { return w.ch }
func (w *memSessionWatch) Err() error                            { return nil }

func (w *memSessionWatch) Stop() {
	w.store.mu.Lock()
	defer w.store.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	close(w.ch)
}

type memMessageWatch struct {
	store     *MemoryStore
	actorID   string
	sessionID string
	ch        chan []model.Message
	stopped   bool
}

func (w *memMessageWatch) deliver(snap []model.Message) {
	for {
		select {
		case w.ch <- snap:
			return
		default:
			select {
			case <-w.ch:
			default:
			}
		}
	}
}

func (w *memMessageWatch) Snapshots() <-chan []model.Message { return w.ch }
func (w *memMessageWatch) Err() error                        { return nil }

func (w *memMessageWatch) Stop() {
	w.store.mu.Lock()
	defer w.store.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	close(w.ch)
}
