// Package auth binds verified identities to connections. The Gate runs once
// at connection establishment; the resulting Principal is an immutable value
// carried with the session handle, never read back from ambient state.
package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/Daom5095/BackendChatPrivate-sub000/internal/apperr"
)

// Principal is a verified identity. Immutable for the session's lifetime:
// established once at connect, never re-derived mid-session.
type Principal struct {
	UserID   int
	Username string
}

// TokenValidator is what the gate needs from the user service.
// This interface keeps auth decoupled from the user package.
type TokenValidator interface {
	// ValidateToken returns userID, username, error.
	ValidateToken(tokenString string) (int, string, error)
}

// Gate is the connection-time authentication check.
type Gate struct {
	validator TokenValidator
	log       *slog.Logger
}

func NewGate(v TokenValidator, log *slog.Logger) *Gate {
	return &Gate{validator: v, log: log}
}

// Authenticate extracts and verifies the bearer credential of a connection
// request. Returns:
//   - (nil, nil) when no credential is present — the connection proceeds
//     unauthenticated and later identity-requiring operations fail on their own;
//   - (nil, err) when a credential is present but invalid — the connection is
//     still allowed to proceed, just without a bound Principal;
//   - (principal, nil) on success. The caller binds the Principal to the
//     session handle exactly once; there is no re-binding later.
func (g *Gate) Authenticate(r *http.Request) (*Principal, error) {
	token := BearerToken(r)
	if token == "" {
		return nil, nil
	}

	userID, username, err := g.validator.ValidateToken(token)
	if err != nil {
		g.log.Warn("connection credential rejected", "err", err)
		return nil, apperr.Wrap(apperr.KindUnauthenticated, "invalid credential", err)
	}

	return &Principal{UserID: userID, Username: username}, nil
}

// BearerToken pulls the credential from the Authorization header, falling
// back to the token query parameter for websocket clients that cannot set
// headers during the upgrade.
func BearerToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 {
			return parts[1]
		}
	}
	return r.URL.Query().Get("token")
}
