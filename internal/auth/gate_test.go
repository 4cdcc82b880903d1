package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Daom5095/BackendChatPrivate-sub000/internal/apperr"
)

// stubValidator accepts exactly one token string.
type stubValidator struct {
	token    string
	userID   int
	username string
}

func (s stubValidator) ValidateToken(tokenString string) (int, string, error) {
	if tokenString != s.token {
		return 0, "", errors.New("signature is invalid")
	}
	return s.userID, s.username, nil
}

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGate_NoCredential_ProceedsAnonymous(t *testing.T) {
	req := require.New(t)
	gate := NewGate(stubValidator{token: "good"}, discardLog())

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)

	principal, err := gate.Authenticate(r)
	req.NoError(err)
	req.Nil(principal)
}

func TestGate_ValidHeaderCredential_BindsPrincipal(t *testing.T) {
	req := require.New(t)
	gate := NewGate(stubValidator{token: "good", userID: 42, username: "alice"}, discardLog())

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Bearer good")

	principal, err := gate.Authenticate(r)
	req.NoError(err)
	req.NotNil(principal)
	req.Equal(42, principal.UserID)
	req.Equal("alice", principal.Username)
}

func TestGate_QueryParamFallback(t *testing.T) {
	req := require.New(t)
	gate := NewGate(stubValidator{token: "good", userID: 7, username: "bob"}, discardLog())

	// Browser websocket clients cannot set headers during the upgrade
	r := httptest.NewRequest(http.MethodGet, "/ws?token=good", nil)

	principal, err := gate.Authenticate(r)
	req.NoError(err)
	req.NotNil(principal)
	req.Equal(7, principal.UserID)
}

func TestGate_InvalidCredential_NoPrincipalButNoHardFail(t *testing.T) {
	req := require.New(t)
	gate := NewGate(stubValidator{token: "good"}, discardLog())

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Bearer forged")

	// The connection continues unauthenticated; the error only tells the
	// caller why no Principal was bound.
	principal, err := gate.Authenticate(r)
	req.Error(err)
	req.Nil(principal)
	req.Equal(apperr.KindUnauthenticated, apperr.KindOf(err))
}

func TestMiddleware_RejectsMissingAndInvalidTokens(t *testing.T) {
	req := require.New(t)
	mw := NewMiddleware(stubValidator{token: "good", userID: 42, username: "alice"})

	var gotPrincipal Principal
	var gotOK bool
	handler := mw.Handle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPrincipal, gotOK = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	// Missing token
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/conversations", nil))
	req.Equal(http.StatusUnauthorized, w.Code)

	// Invalid token
	r := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	r.Header.Set("Authorization", "Bearer forged")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	req.Equal(http.StatusUnauthorized, w.Code)

	// Valid token reaches the handler with the principal in context
	r = httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	r.Header.Set("Authorization", "Bearer good")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	req.Equal(http.StatusOK, w.Code)
	req.True(gotOK)
	req.Equal(Principal{UserID: 42, Username: "alice"}, gotPrincipal)
}

func TestPrincipalFromContext_EmptyContext(t *testing.T) {
	req := require.New(t)
	_, ok := PrincipalFromContext(context.Background())
	req.False(ok)
}
