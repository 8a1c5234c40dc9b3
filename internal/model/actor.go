// Package model defines data structures for the chat sync engine.
package model

// ActorKind distinguishes trial-limited anonymous visitors from
// authenticated users with a stable remote identity.
type ActorKind string

const (
	ActorAnonymous     ActorKind = "anonymous"
	ActorAuthenticated ActorKind = "authenticated"
)

// AnonymousRemoteID is the id reported to the AI responder for actors
// without a stable identity.
const AnonymousRemoteID = "demo_user"

// Actor is the current user identity context.
type Actor struct {
	Kind        ActorKind `json:"kind"`
	ID          string    `json:"id,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	Email       string    `json:"email,omitempty"`
	PhotoURL    string    `json:"photo_url,omitempty"`
}

// Anonymous returns the anonymous actor.
func Anonymous() Actor {
	return Actor{Kind: ActorAnonymous}
}

// Authenticated returns an authenticated actor for the given identity.
func Authenticated(uid, displayName, email, photoURL string) Actor {
	return Actor{
		Kind:        ActorAuthenticated,
		ID:          uid,
		DisplayName: displayName,
		Email:       email,
		PhotoURL:    photoURL,
	}
}

// IsAuthenticated reports whether the actor has a stable remote identity.
func (a Actor) IsAuthenticated() bool {
	return a.Kind == ActorAuthenticated
}

// RemoteID returns the id used to key remote documents and AI requests.
func (a Actor) RemoteID() string {
	if a.IsAuthenticated() {
		return a.ID
	}
	return AnonymousRemoteID
}
