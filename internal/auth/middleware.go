package auth

import (
	"context"
	"net/http"
)

// Context keys for the principal fields injected by the middleware.
type contextKey string

const (
	UserKey     contextKey = "user_id"
	UsernameKey contextKey = "username"
)

// Middleware protects the REST routes. Unlike the websocket gate, a missing
// or invalid credential here is a hard 401: every REST operation requires
// an identity.
type Middleware struct {
	validator TokenValidator
}

func NewMiddleware(v TokenValidator) *Middleware {
	return &Middleware{validator: v}
}

func (m *Middleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := BearerToken(r)
		if tokenString == "" {
			http.Error(w, "Missing authentication token", http.StatusUnauthorized)
			return
		}

		userID, username, err := m.validator.ValidateToken(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		// Inject into Context
		ctx := context.WithValue(r.Context(), UserKey, userID)
		ctx = context.WithValue(ctx, UsernameKey, username)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PrincipalFromContext reads the identity injected by Handle. ok is false
// on routes that did not pass through the middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	userID, ok := ctx.Value(UserKey).(int)
	username, ok2 := ctx.Value(UsernameKey).(string)
	if !ok || !ok2 {
		return Principal{}, false
	}
	return Principal{UserID: userID, Username: username}, true
}
