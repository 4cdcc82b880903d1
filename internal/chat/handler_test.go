package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Daom5095/BackendChatPrivate-sub000/internal/auth"
)

// tokenStub maps raw tokens to identities.
type tokenStub map[string]auth.Principal

func (s tokenStub) ValidateToken(tokenString string) (int, string, error) {
	p, ok := s[tokenString]
	if !ok {
		return 0, "", errors.New("token is malformed")
	}
	return p.UserID, p.Username, nil
}

// wsFixture spins a real websocket server over the fan-out fixture.
func wsFixture(t *testing.T) (*httptest.Server, *Registry, *fakeStore) {
	t.Helper()

	store := newFakeStore(map[[2]int]Role{
		{10, 1}: RoleOwner,
		{10, 2}: RoleMember,
	})
	registry := NewRegistry()
	guard := NewGuard(store, testLog())
	engine := NewEngine(guard, store, registry, nil, testLog())
	gate := auth.NewGate(tokenStub{
		"token-a": {UserID: 1, Username: "alice"},
		"token-b": {UserID: 2, Username: "bob"},
	}, testLog())
	handler := NewHandler(gate, engine, registry, nil, guard, testLog())

	srv := httptest.NewServer(http.HandlerFunc(handler.ServeWs))
	t.Cleanup(srv.Close)
	return srv, registry, store
}

func dialWs(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn, out any) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	// WritePump batches queued frames newline-separated; take the first
	if i := strings.IndexByte(string(raw), '\n'); i >= 0 {
		raw = raw[:i]
	}
	require.NoError(t, json.Unmarshal(raw, out))
}

func waitForSessions(t *testing.T, registry *Registry, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for registry.Len() < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d sessions, have %d", n, registry.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServeWs_SendDeliversToRecipient(t *testing.T) {
	req := require.New(t)
	srv, registry, store := wsFixture(t)

	connA := dialWs(t, srv, "token-a")
	connB := dialWs(t, srv, "token-b")
	waitForSessions(t, registry, 2)

	req.NoError(connA.WriteJSON(map[string]any{
		"type":            "send",
		"conversation_id": 10,
		"ciphertext":      "ct1",
		"wrapped_keys":    map[string]string{"2": "k1"},
	}))

	// Sender gets an ack with the persisted id
	var ack AckFrame
	readFrame(t, connA, &ack)
	req.Equal(FrameAck, ack.Type)
	req.Equal(10, ack.ConversationID)
	req.NotZero(ack.MessageID)
	req.Len(store.saved, 1)

	// Recipient gets the push with its single wrapped key
	var delivery DeliveryFrame
	readFrame(t, connB, &delivery)
	req.Equal(FrameMessage, delivery.Type)
	req.Equal(10, delivery.ConversationID)
	req.Equal(1, delivery.SenderID)
	req.Equal("ct1", delivery.Ciphertext)
	req.Equal("k1", delivery.WrappedKey)
}

func TestServeWs_AnonymousConnectionCanOpenButNotSend(t *testing.T) {
	req := require.New(t)
	srv, registry, store := wsFixture(t)

	// No credential at all: the connection is accepted, nothing registered
	conn := dialWs(t, srv, "")
	req.Equal(0, registry.Len())

	req.NoError(conn.WriteJSON(map[string]any{
		"type":            "send",
		"conversation_id": 10,
		"ciphertext":      "ct",
		"wrapped_keys":    map[string]string{"2": "k"},
	}))

	var errFrame ErrorFrame
	readFrame(t, conn, &errFrame)
	req.Equal(FrameError, errFrame.Type)
	req.Equal("ACCESS_DENIED", errFrame.Kind)
	req.Empty(store.saved)
}

func TestServeWs_InvalidCredentialStaysAnonymous(t *testing.T) {
	req := require.New(t)
	srv, registry, _ := wsFixture(t)

	// A forged token does not close the connection; it reports why no
	// principal was bound and the session stays anonymous.
	conn := dialWs(t, srv, "forged")

	var errFrame ErrorFrame
	readFrame(t, conn, &errFrame)
	req.Equal(FrameError, errFrame.Type)
	req.Equal("UNAUTHENTICATED", errFrame.Kind)
	req.Equal(0, registry.Len())
}

func TestServeWs_MalformedAndUnknownFrames(t *testing.T) {
	req := require.New(t)
	srv, registry, _ := wsFixture(t)

	conn := dialWs(t, srv, "token-a")
	waitForSessions(t, registry, 1)

	req.NoError(conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	var errFrame ErrorFrame
	readFrame(t, conn, &errFrame)
	req.Equal("INVALID_ARGUMENT", errFrame.Kind)

	req.NoError(conn.WriteJSON(map[string]any{"type": "subscribe"}))
	readFrame(t, conn, &errFrame)
	req.Equal("INVALID_ARGUMENT", errFrame.Kind)
}

func TestServeWs_DisconnectUnregisters(t *testing.T) {
	req := require.New(t)
	srv, registry, _ := wsFixture(t)

	conn := dialWs(t, srv, "token-a")
	waitForSessions(t, registry, 1)

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for registry.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session was not unregistered after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
	req.Empty(registry.SessionsFor(1))
}
