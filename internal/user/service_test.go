package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Daom5095/BackendChatPrivate-sub000/internal/apperr"
)

// memStore is an in-memory Store for service tests.
type memStore struct {
	nextID int
	byName map[string]*User
	keys   map[int]string
}

func newMemStore() *memStore {
	return &memStore{nextID: 1, byName: map[string]*User{}, keys: map[int]string{}}
}

func (m *memStore) CreateUser(_ context.Context, u *User) (*User, error) {
	if _, exists := m.byName[u.Username]; exists {
		return nil, errors.New("duplicate key value violates unique constraint")
	}
	u.ID = m.nextID
	m.nextID++
	m.byName[u.Username] = u
	return u, nil
}

func (m *memStore) GetUserByUsername(_ context.Context, username string) (*User, error) {
	u, ok := m.byName[username]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func (m *memStore) SearchUsers(_ context.Context, _ string) ([]User, error) { return nil, nil }

func (m *memStore) SetPublicKey(_ context.Context, userID int, pem string) error {
	m.keys[userID] = pem
	return nil
}

func (m *memStore) GetPublicKey(_ context.Context, userID int) (string, error) {
	pem, ok := m.keys[userID]
	if !ok || pem == "" {
		return "", ErrNotFound
	}
	return pem, nil
}

func TestService_RegisterThenLogin(t *testing.T) {
	req := require.New(t)
	svc := NewService(newMemStore(), "test-secret", 24*time.Hour)
	ctx := context.Background()

	u, err := svc.Register(ctx, &RegisterRequest{Username: "alice", Password: "s3cret-pass"})
	req.NoError(err)
	req.Equal("alice", u.Username)
	req.Empty(u.Password, "plaintext or hash must not leak in the response")

	res, err := svc.Login(ctx, &RegisterRequest{Username: "alice", Password: "s3cret-pass"})
	req.NoError(err)
	req.NotEmpty(res.AccessToken)
	req.Equal(u.ID, res.ID)

	// The issued token round-trips through validation
	userID, username, err := svc.ValidateToken(res.AccessToken)
	req.NoError(err)
	req.Equal(u.ID, userID)
	req.Equal("alice", username)
}

func TestService_Register_RejectsWeakInput(t *testing.T) {
	req := require.New(t)
	svc := NewService(newMemStore(), "test-secret", 24*time.Hour)

	_, err := svc.Register(context.Background(), &RegisterRequest{Username: "al", Password: "short"})
	req.Error(err)
	req.Equal(apperr.KindInvalidArgument, apperr.KindOf(err))
}

func TestService_Login_WrongPassword(t *testing.T) {
	req := require.New(t)
	svc := NewService(newMemStore(), "test-secret", 24*time.Hour)
	ctx := context.Background()

	_, err := svc.Register(ctx, &RegisterRequest{Username: "alice", Password: "s3cret-pass"})
	req.NoError(err)

	_, err = svc.Login(ctx, &RegisterRequest{Username: "alice", Password: "wrong-pass"})
	req.Error(err)
	req.Equal(apperr.KindUnauthenticated, apperr.KindOf(err))

	// Unknown users get the same answer as wrong passwords
	_, err = svc.Login(ctx, &RegisterRequest{Username: "mallory", Password: "whatever"})
	req.Error(err)
	req.Equal(apperr.KindUnauthenticated, apperr.KindOf(err))
}

func TestService_ValidateToken_RejectsForgedAndExpired(t *testing.T) {
	req := require.New(t)
	store := newMemStore()
	ctx := context.Background()

	svc := NewService(store, "test-secret", 24*time.Hour)
	_, err := svc.Register(ctx, &RegisterRequest{Username: "alice", Password: "s3cret-pass"})
	req.NoError(err)

	// Token signed with a different secret
	other := NewService(store, "other-secret", 24*time.Hour)
	res, err := other.Login(ctx, &RegisterRequest{Username: "alice", Password: "s3cret-pass"})
	req.NoError(err)
	_, _, err = svc.ValidateToken(res.AccessToken)
	req.Error(err)

	// Token already expired at issue time
	expired := NewService(store, "test-secret", -time.Minute)
	res, err = expired.Login(ctx, &RegisterRequest{Username: "alice", Password: "s3cret-pass"})
	req.NoError(err)
	_, _, err = svc.ValidateToken(res.AccessToken)
	req.Error(err)
}

func TestService_PublicKeyDirectory(t *testing.T) {
	req := require.New(t)
	svc := NewService(newMemStore(), "test-secret", 24*time.Hour)
	ctx := context.Background()

	u, err := svc.Register(ctx, &RegisterRequest{Username: "alice", Password: "s3cret-pass"})
	req.NoError(err)

	// Lookup before upload is a not-found
	_, err = svc.GetPublicKey(ctx, u.ID)
	req.Error(err)

	pem := "-----BEGIN PUBLIC KEY-----\nMIIB...\n-----END PUBLIC KEY-----"
	req.NoError(svc.SetPublicKey(ctx, u.ID, &PublicKeyRequest{PublicKey: pem}))

	res, err := svc.GetPublicKey(ctx, u.ID)
	req.NoError(err)
	req.Equal(pem, res.PublicKey)
	req.Equal(u.ID, res.UserID)
}
