package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	req := require.New(t)

	req.Equal(KindAccessDenied, KindOf(New(KindAccessDenied, "nope")))

	// Survives wrapping
	wrapped := fmt.Errorf("handler: %w", New(KindRateLimited, "slow down"))
	req.Equal(KindRateLimited, KindOf(wrapped))

	// Untagged errors collapse to internal
	req.Equal(KindInternal, KindOf(errors.New("pq: deadlock detected")))
}

func TestClientMessage_NeverLeaksInternalDetail(t *testing.T) {
	req := require.New(t)

	err := Wrap(KindInternal, "internal server error", errors.New("pq: relation messages does not exist"))
	req.Equal("internal server error", ClientMessage(err))
	req.NotContains(ClientMessage(err), "pq:")

	// Client-facing kinds keep their specific message
	req.Equal("not a participant", ClientMessage(New(KindAccessDenied, "not a participant")))
}

func TestHTTPStatus(t *testing.T) {
	req := require.New(t)
	req.Equal(http.StatusUnauthorized, HTTPStatus(KindUnauthenticated))
	req.Equal(http.StatusForbidden, HTTPStatus(KindAccessDenied))
	req.Equal(http.StatusBadRequest, HTTPStatus(KindInvalidArgument))
	req.Equal(http.StatusTooManyRequests, HTTPStatus(KindRateLimited))
	req.Equal(http.StatusInternalServerError, HTTPStatus(KindInternal))
}

func TestErrorUnwrap(t *testing.T) {
	req := require.New(t)
	cause := errors.New("connection refused")
	err := Wrap(KindInternal, "internal server error", cause)
	req.ErrorIs(err, cause)
}
