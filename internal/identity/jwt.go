package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the profile claims carried in a sign-in credential.
type Claims struct {
	jwt.RegisteredClaims
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// JWTProvider is a Provider that verifies HMAC-signed identity tokens.
type JWTProvider struct {
	secret []byte

	mu          sync.Mutex
	current     *User
	subscribers map[int]func(*User)
	nextSub     int
}

// NewJWTProvider creates a provider verifying tokens with the given
// shared secret.
func NewJWTProvider(secret string) *JWTProvider {
	return &JWTProvider{
		secret:      []byte(secret),
		subscribers: make(map[int]func(*User)),
	}
}

// Subscribe registers an auth-state callback, invoking it immediately
// with the current state.
func (p *JWTProvider) Subscribe(fn func(*User)) func() {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subscribers[id] = fn
	current := p.current
	p.mu.Unlock()

	fn(current)
	return func() {
		p.mu.Lock()
		delete(p.subscribers, id)
		p.mu.Unlock()
	}
}

// SignIn verifies the credential and transitions to the signed-in user.
// A bad credential leaves the auth state untouched.
func (p *JWTProvider) SignIn(_ context.Context, credential string) (*User, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(credential, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return p.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid credential: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid credential")
	}
	if claims.Subject == "" {
		return nil, errors.New("invalid credential: missing subject")
	}

	user := &User{
		UID:         claims.Subject,
		DisplayName: claims.Name,
		Email:       claims.Email,
		PhotoURL:    claims.Picture,
	}
	p.setCurrent(user)
	return user, nil
}

// SignOut transitions to the signed-out state.
func (p *JWTProvider) SignOut(_ context.Context) error {
	p.setCurrent(nil)
	return nil
}

func (p *JWTProvider) setCurrent(user *User) {
	p.mu.Lock()
	p.current = user
	fns := make([]func(*User), 0, len(p.subscribers))
	for _, fn := range p.subscribers {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(user)
	}
}
