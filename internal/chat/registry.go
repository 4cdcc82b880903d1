package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Daom5095/BackendChatPrivate-sub000/internal/auth"
)

// Sink is a delivery target for raw frames. Push must not block; it reports
// whether the payload was accepted (false means the session is backed up or
// closing and the frame was dropped).
type Sink interface {
	Push(payload []byte) bool
}

// Session is one live connection bound to a Principal. Multi-device is
// normal: a principal may hold any number of concurrent sessions.
type Session struct {
	Handle      uuid.UUID
	Principal   auth.Principal
	ConnectedAt time.Time
	Sink        Sink
}

// Registry is the single owner of the live session set. It is an explicit
// concurrent map injected wherever delivery is needed; nothing reads session
// state from ambient globals.
type Registry struct {
	mu       sync.RWMutex
	byHandle map[uuid.UUID]*Session
	byUser   map[int]map[uuid.UUID]*Session
}

func NewRegistry() *Registry {
	return &Registry{
		byHandle: make(map[uuid.UUID]*Session),
		byUser:   make(map[int]map[uuid.UUID]*Session),
	}
}

// Register adds a session under its principal. Called once per successful
// connection-time authentication.
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byHandle[s.Handle] = s

	userID := s.Principal.UserID
	if _, ok := r.byUser[userID]; !ok {
		r.byUser[userID] = make(map[uuid.UUID]*Session)
	}
	r.byUser[userID][s.Handle] = s
}

// Unregister removes a session by handle. Idempotent: unregistering twice,
// or a handle that was never registered, is a no-op because disconnect
// notifications can race with cleanup.
func (r *Registry) Unregister(handle uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byHandle[handle]
	if !ok {
		return
	}
	delete(r.byHandle, handle)

	userID := s.Principal.UserID
	if sessions, ok := r.byUser[userID]; ok {
		delete(sessions, handle)
		// Don't keep empty sets around for users that disconnected
		if len(sessions) == 0 {
			delete(r.byUser, userID)
		}
	}
}

// SessionsFor returns a snapshot of a principal's live sessions. An empty
// result is normal, not an error: the recipient simply has no live device
// and will pick the message up from history.
func (r *Registry) SessionsFor(userID int) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions, ok := r.byUser[userID]
	if !ok {
		return nil
	}
	out := make([]*Session, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s)
	}
	return out
}

// Len reports the number of live sessions, for logs and tests.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byHandle)
}
