package user

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/Daom5095/BackendChatPrivate-sub000/internal/apperr"
)

// Store is what the service needs from persistence; satisfied by Repository
// and by the in-memory fake in the tests.
type Store interface {
	CreateUser(ctx context.Context, user *User) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	SearchUsers(ctx context.Context, query string) ([]User, error)
	SetPublicKey(ctx context.Context, userID int, pem string) error
	GetPublicKey(ctx context.Context, userID int) (string, error)
}

type Service struct {
	repo      Store
	jwtSecret string
	tokenTTL  time.Duration
	validate  *validator.Validate
}

type Claims struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func NewService(repo Store, secret string, tokenTTL time.Duration) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: secret,
		tokenTTL:  tokenTTL,
		validate:  validator.New(),
	}
}

func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*User, error) {
	// 1. Validate before any expensive cryptographic work
	if err := s.validate.Struct(req); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidArgument, "invalid username or password", err)
	}

	// 2. Hash the password; the repository never sees the plain one
	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "internal server error", err)
	}

	u := &User{
		Username: req.Username,
		Password: string(hashedPwd),
	}

	if _, err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidArgument, "username is taken", err)
	}

	u.Password = ""
	return u, nil
}

func (s *Service) Login(ctx context.Context, req *RegisterRequest) (*LoginResponse, error) {
	u, err := s.repo.GetUserByUsername(ctx, req.Username)
	if err != nil {
		// Same message for unknown user and bad password to prevent
		// user enumeration.
		return nil, apperr.Wrap(apperr.KindUnauthenticated, "invalid credentials", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)); err != nil {
		return nil, apperr.Wrap(apperr.KindUnauthenticated, "invalid credentials", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ID:       u.ID,
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "chat-backend",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenTTL)),
		},
	})

	ss, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "internal server error", err)
	}

	return &LoginResponse{
		AccessToken: ss,
		ID:          u.ID,
		Username:    u.Username,
	}, nil
}

// ValidateToken checks signature and expiry, returning the subject identity.
// It satisfies auth.TokenValidator.
func (s *Service) ValidateToken(tokenString string) (int, string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return 0, "", err
	}
	if !token.Valid {
		return 0, "", errors.New("invalid token")
	}

	return claims.ID, claims.Username, nil
}

func (s *Service) SearchUsers(ctx context.Context, query string) ([]User, error) {
	return s.repo.SearchUsers(ctx, query)
}

// SetPublicKey stores the caller's PEM public key in the directory.
func (s *Service) SetPublicKey(ctx context.Context, userID int, req *PublicKeyRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return apperr.Wrap(apperr.KindInvalidArgument, "public_key is required", err)
	}
	if err := s.repo.SetPublicKey(ctx, userID, req.PublicKey); err != nil {
		return apperr.Wrap(apperr.KindInternal, "internal server error", err)
	}
	return nil
}

// GetPublicKey looks a key up in the directory.
func (s *Service) GetPublicKey(ctx context.Context, userID int) (*PublicKeyResponse, error) {
	pem, err := s.repo.GetPublicKey(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.Wrap(apperr.KindInvalidArgument, "no public key for user", err)
		}
		return nil, apperr.Wrap(apperr.KindInternal, "internal server error", err)
	}
	return &PublicKeyResponse{UserID: userID, PublicKey: pem}, nil
}
