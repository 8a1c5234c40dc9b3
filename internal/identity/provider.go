// Package identity resolves the current actor from the external
// identity provider and drives dataset switches on sign-in/sign-out.
package identity

import "context"

// User is the identity provider's view of a signed-in user. A nil User
// in a subscription callback means signed out.
type User struct {
	UID         string
	DisplayName string
	PhotoURL    string
	Email       string
}

// Provider is the external identity provider boundary: an auth-state
// subscription, a sign-in call and a sign-out call.
type Provider interface {
	// Subscribe registers an auth-state callback. The callback fires
	// immediately with the current state and again on every change.
	// The returned func releases the subscription.
	Subscribe(fn func(*User)) func()

	// SignIn exchanges a credential for a signed-in user or fails with
	// no state change.
	SignIn(ctx context.Context, credential string) (*User, error)

	SignOut(ctx context.Context) error
}
