package chat

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Daom5095/BackendChatPrivate-sub000/internal/auth"
)

// recordSink collects pushed payloads for assertions.
type recordSink struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (s *recordSink) Push(payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, payload)
	return true
}

func (s *recordSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads)
}

func newSession(userID int) *Session {
	return &Session{
		Handle:      uuid.New(),
		Principal:   auth.Principal{UserID: userID, Username: "user"},
		ConnectedAt: time.Now(),
		Sink:        &recordSink{},
	}
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	// Given no session, lookup is empty but not an error
	req.Empty(registry.SessionsFor(1))

	s := newSession(1)
	registry.Register(s)

	sessions := registry.SessionsFor(1)
	req.Len(sessions, 1)
	req.Equal(s.Handle, sessions[0].Handle)
	req.Equal(1, registry.Len())
}

func TestRegistry_MultiDevice(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	// The same principal connects from two devices
	phone := newSession(1)
	laptop := newSession(1)
	registry.Register(phone)
	registry.Register(laptop)

	req.Len(registry.SessionsFor(1), 2)

	// Closing one device leaves the other reachable
	registry.Unregister(phone.Handle)
	sessions := registry.SessionsFor(1)
	req.Len(sessions, 1)
	req.Equal(laptop.Handle, sessions[0].Handle)
}

func TestRegistry_UnregisterIsIdempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	s := newSession(1)
	registry.Register(s)

	// Twice on the same handle, once on a handle never registered
	registry.Unregister(s.Handle)
	registry.Unregister(s.Handle)
	registry.Unregister(uuid.New())

	req.Empty(registry.SessionsFor(1))
	req.Equal(0, registry.Len())
}

func TestRegistry_ConcurrentChurn(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	// Independent connection lifecycles registering, looking up, and
	// unregistering concurrently must not race or lose sessions.
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(userID int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s := newSession(userID)
				registry.Register(s)
				registry.SessionsFor(userID)
				registry.Unregister(s.Handle)
				registry.Unregister(s.Handle)
			}
		}(i % 5)
	}
	wg.Wait()

	req.Equal(0, registry.Len())
}
