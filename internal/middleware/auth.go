// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// ClientIDKey is the context key for the client id owning the engine.
	ClientIDKey ContextKey = "client_id"
	// UserIDKey is the context key for the authenticated user id.
	UserIDKey ContextKey = "user_id"
)

// ClientIDHeader identifies the client across requests so its engine
// survives reconnects.
const ClientIDHeader = "X-Client-ID"

// Claims represents identity token claims.
type Claims struct {
	jwt.RegisteredClaims
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
}

// Identity resolves the client id and, when a valid bearer token is
// present, the user id into the request context. Requests without a
// token proceed as anonymous; only a malformed token is rejected.
func Identity(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := r.Header.Get(ClientIDHeader)
			if clientID == "" {
				clientID = r.RemoteAddr
			}
			ctx := context.WithValue(r.Context(), ClientIDKey, clientID)

			if authHeader := r.Header.Get("Authorization"); authHeader != "" {
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
					http.Error(w, `{"error":"invalid authorization header format"}`, http.StatusUnauthorized)
					return
				}

				claims := &Claims{}
				token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
					if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
						return nil, jwt.ErrSignatureInvalid
					}
					return []byte(jwtSecret), nil
				})
				if err != nil || !token.Valid {
					http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
					return
				}

				ctx = context.WithValue(ctx, UserIDKey, claims.Subject)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClientID gets the client id from context.
func GetClientID(ctx context.Context) string {
	if v := ctx.Value(ClientIDKey); v != nil {
		return v.(string)
	}
	return ""
}

// GetUserID gets the user id from context, empty for anonymous requests.
func GetUserID(ctx context.Context) string {
	if v := ctx.Value(UserIDKey); v != nil {
		return v.(string)
	}
	return ""
}
