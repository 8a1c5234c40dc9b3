// Package remote defines the remote document store boundary: per-actor
// session and profile documents, per-session message sub-collections,
// ordered watch subscriptions and upsert-by-id writes.
package remote

import (
	"context"

	"github.com/finsight-ai/advisor-platform/internal/model"
)

// SessionWatch is a live subscription on an actor's session-metadata
// collection. Every delivery is a full snapshot ordered by lastActivity
// descending, not a diff.
type SessionWatch interface {
	Snapshots() <-chan []model.SessionMeta
	Err() error
	Stop()
}

// MessageWatch is a live subscription on one session's message
// sub-collection. Every delivery is a full snapshot ordered ascending by
// the server-assigned write timestamp.
type MessageWatch interface {
	Snapshots() <-chan []model.Message
	Err() error
	Stop()
}

// Store is the remote persisted copy of all conversation state, keyed by
// actor id. Writes are upserts by id tagged with a server-assigned write
// timestamp; client clocks never decide ordering.
type Store interface {
	WatchSessions(ctx context.Context, actorID string) (SessionWatch, error)
	WatchMessages(ctx context.Context, actorID, sessionID string) (MessageWatch, error)

	UpsertSession(ctx context.Context, actorID string, meta model.SessionMeta) error
	UpsertMessage(ctx context.Context, actorID, sessionID string, msg model.Message) error

	// GetProfile returns the actor's profile document. The second return
	// reports whether the document exists.
	GetProfile(ctx context.Context, actorID string) (*model.Profile, bool, error)
	MergeProfile(ctx context.Context, actorID string, p model.Profile) error

	GetPortfolio(ctx context.Context, actorID string) (*model.Portfolio, bool, error)
	PutPortfolio(ctx context.Context, actorID string, pf model.Portfolio) error
}
