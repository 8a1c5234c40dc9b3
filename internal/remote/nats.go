package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/finsight-ai/advisor-platform/internal/model"
	"github.com/finsight-ai/advisor-platform/pkg/logger"
)

// Key layout inside the chat bucket:
//
//	s.<actor>.<session>            session metadata
//	m.<actor>.<session>.<message>  message documents
//	u.<actor>                      profile document
//	p.<actor>                      portfolio blob
//
// Watches rebuild a full ordered snapshot from the live key set on every
// change; ordering comes from the KV entry creation time, which the
// server assigns.
type NATSStore struct {
	kv     jetstream.KeyValue
	logger *logger.Logger
}

// NewNATSStore creates a Store backed by a JetStream KV bucket.
func NewNATSStore(kv jetstream.KeyValue, log *logger.Logger) *NATSStore {
	return &NATSStore{kv: kv, logger: log}
}

// ErrWatchTerminated reports a watch whose update stream ended without
// Stop being called, typically because the KV watcher lost its
// subscription.
var ErrWatchTerminated = errors.New("remote watch terminated unexpectedly")

func sessionKey(actorID, sessionID string) string {
	return fmt.Sprintf("s.%s.%s", actorID, sessionID)
}

func messageKey(actorID, sessionID, messageID string) string {
	return fmt.Sprintf("m.%s.%s.%s", actorID, sessionID, messageID)
}

func profileKey(actorID string) string   { return "u." + actorID }
func portfolioKey(actorID string) string { return "p." + actorID }

func (s *NATSStore) UpsertSession(ctx context.Context, actorID string, meta model.SessionMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if _, err := s.kv.Put(ctx, sessionKey(actorID, meta.ID), data); err != nil {
		return fmt.Errorf("upsert session %s: %w", meta.ID, err)
	}
	return nil
}

func (s *NATSStore) UpsertMessage(ctx context.Context, actorID, sessionID string, msg model.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	key := messageKey(actorID, sessionID, msg.ID)
	if msg.ID == model.WelcomeMessageID {
		// The welcome message has a well-known id; create-if-absent keeps
		// its original server timestamp across resyncs.
		if _, err := s.kv.Create(ctx, key, data); err != nil {
			if err == jetstream.ErrKeyExists {
				return nil
			}
			return fmt.Errorf("upsert welcome message: %w", err)
		}
		return nil
	}
	if _, err := s.kv.Put(ctx, key, data); err != nil {
		return fmt.Errorf("upsert message %s: %w", msg.ID, err)
	}
	return nil
}

func (s *NATSStore) GetProfile(ctx context.Context, actorID string) (*model.Profile, bool, error) {
	entry, err := s.kv.Get(ctx, profileKey(actorID))
	if err != nil {
		if err == jetstream.ErrKeyNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get profile: %w", err)
	}
	p, err := model.DecodeProfile(entry.Value())
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

func (s *NATSStore) MergeProfile(ctx context.Context, actorID string, p model.Profile) error {
	existing, ok, err := s.GetProfile(ctx, actorID)
	if err != nil {
		return err
	}
	merged := p
	if ok {
		base := *existing
		base.Merge(p)
		merged = base
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	if _, err := s.kv.Put(ctx, profileKey(actorID), data); err != nil {
		return fmt.Errorf("merge profile: %w", err)
	}
	return nil
}

func (s *NATSStore) GetPortfolio(ctx context.Context, actorID string) (*model.Portfolio, bool, error) {
	entry, err := s.kv.Get(ctx, portfolioKey(actorID))
	if err != nil {
		if err == jetstream.ErrKeyNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get portfolio: %w", err)
	}
	var pf model.Portfolio
	if err := json.Unmarshal(entry.Value(), &pf); err != nil {
		return nil, false, fmt.Errorf("decode portfolio: %w", err)
	}
	return &pf, true, nil
}

func (s *NATSStore) PutPortfolio(ctx context.Context, actorID string, pf model.Portfolio) error {
	data, err := json.Marshal(pf)
	if err != nil {
		return fmt.Errorf("marshal portfolio: %w", err)
	}
	if _, err := s.kv.Put(ctx, portfolioKey(actorID), data); err != nil {
		return fmt.Errorf("put portfolio: %w", err)
	}
	return nil
}

func (s *NATSStore) WatchSessions(ctx context.Context, actorID string) (SessionWatch, error) {
	watcher, err := s.kv.Watch(ctx, fmt.Sprintf("s.%s.*", actorID))
	if err != nil {
		return nil, fmt.Errorf("watch sessions: %w", err)
	}
	w := &natsSessionWatch{
		watcher: watcher,
		ch:      make(chan []model.SessionMeta, 1),
		entries: make(map[string]timedEntry[model.SessionMeta]),
		logger:  s.logger,
	}
	go w.run()
	return w, nil
}

func (s *NATSStore) WatchMessages(ctx context.Context, actorID, sessionID string) (MessageWatch, error) {
	watcher, err := s.kv.Watch(ctx, fmt.Sprintf("m.%s.%s.*", actorID, sessionID))
	if err != nil {
		return nil, fmt.Errorf("watch messages: %w", err)
	}
	w := &natsMessageWatch{
		watcher: watcher,
		ch:      make(chan []model.Message, 1),
		entries: make(map[string]timedEntry[model.Message]),
		logger:  s.logger,
	}
	go w.run()
	return w, nil
}

type timedEntry[T any] struct {
	val T
	at  time.Time
}

type natsSessionWatch struct {
	watcher jetstream.KeyWatcher
	ch      chan []model.SessionMeta
	entries map[string]timedEntry[model.SessionMeta]
	logger  *logger.Logger

	mu      sync.Mutex
	stopped bool
	err     error
}

func (w *natsSessionWatch) run() {
	defer close(w.ch)
	defer w.recordTermination()
	replaying := true
	for entry := range w.watcher.Updates() {
		if entry == nil {
			// End of initial replay; emit the first snapshot.
			replaying = false
			w.emit()
			continue
		}
		switch entry.Operation() {
		case jetstream.KeyValuePut:
			meta, err := model.DecodeSessionMeta(entry.Value())
			if err != nil {
				w.logger.Warn("dropping malformed session document", zap.Error(err))
				continue
			}
			// Server-assigned write time is authoritative for ordering.
			meta.LastActivity = entry.Created()
			w.entries[entry.Key()] = timedEntry[model.SessionMeta]{val: *meta, at: entry.Created()}
		case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
			delete(w.entries, entry.Key())
		}
		if !replaying {
			w.emit()
		}
	}
}

func (w *natsSessionWatch) emit() {
	out := make([]model.SessionMeta, 0, len(w.entries))
	for _, e := range w.entries {
		out = append(out, e.val)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	// A slow receiver only ever loses superseded snapshots; the latest
	// one always lands in the single-slot buffer.
	for {
		select {
		case w.ch <- out:
			return
		default:
			select {
			case <-w.ch:
			default:
			}
		}
	}
}

func (w *natsSessionWatch) recordTermination() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.stopped {
		w.err = ErrWatchTerminated
	}
}

func (w *natsSessionWatch) Snapshots() <-chan []model.SessionMeta { return w.ch }

func (w *natsSessionWatch) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *natsSessionWatch) Stop() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	_ = w.watcher.Stop()
}

type natsMessageWatch struct {
	watcher jetstream.KeyWatcher
	ch      chan []model.Message
	entries map[string]timedEntry[model.Message]
	logger  *logger.Logger

	mu      sync.Mutex
	stopped bool
	err     error
}

func (w *natsMessageWatch) run() {
	defer close(w.ch)
	defer w.recordTermination()
	replaying := true
	for entry := range w.watcher.Updates() {
		if entry == nil {
			replaying = false
			w.emit()
			continue
		}
		switch entry.Operation() {
		case jetstream.KeyValuePut:
			msg, err := model.DecodeMessage(entry.Value())
			if err != nil {
				w.logger.Warn("dropping malformed message document", zap.Error(err))
				continue
			}
			msg.Timestamp = entry.Created()
			w.entries[entry.Key()] = timedEntry[model.Message]{val: *msg, at: entry.Created()}
		case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
			delete(w.entries, entry.Key())
		}
		if !replaying {
			w.emit()
		}
	}
}

func (w *natsMessageWatch) emit() {
	type keyed struct {
		key string
		e   timedEntry[model.Message]
	}
	all := make([]keyed, 0, len(w.entries))
	for k, e := range w.entries {
		all = append(all, keyed{key: k, e: e})
	}
	// Ascending by server timestamp; key order breaks ties
	// deterministically.
	sort.Slice(all, func(i, j int) bool {
		if !all[i].e.at.Equal(all[j].e.at) {
			return all[i].e.at.Before(all[j].e.at)
		}
		return all[i].key < all[j].key
	})
	out := make([]model.Message, len(all))
	for i, k := range all {
		out[i] = k.e.val
	}
	for {
		select {
		case w.ch <- out:
			return
		default:
			select {
			case <-w.ch:
			default:
			}
		}
	}
}

func (w *natsMessageWatch) recordTermination() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.stopped {
		w.err = ErrWatchTerminated
	}
}

func (w *natsMessageWatch) Snapshots() <-chan []model.Message { return w.ch }

func (w *natsMessageWatch) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *natsMessageWatch) Stop() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	_ = w.watcher.Stop()
}
