package user

import (
	"context"
	"database/sql"
	"errors"
)

// ErrNotFound covers both unknown users and users without a stored key.
var ErrNotFound = errors.New("user not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateUser(ctx context.Context, user *User) (*User, error) {
	var id int
	query := "INSERT INTO users (username, password) VALUES ($1, $2) RETURNING id"

	err := r.db.QueryRowContext(ctx, query, user.Username, user.Password).Scan(&id)
	if err != nil {
		return nil, err
	}

	user.ID = id
	return user, nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	u := &User{}
	query := "SELECT id, username, password FROM users WHERE username = $1"

	err := r.db.QueryRowContext(ctx, query, username).Scan(&u.ID, &u.Username, &u.Password)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return u, nil
}

func (r *Repository) SearchUsers(ctx context.Context, query string) ([]User, error) {
	// We limit to 10 to keep it fast
	q := `SELECT id, username FROM users WHERE username ILIKE $1 LIMIT 10`
	rows, err := r.db.QueryContext(ctx, q, "%"+query+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

// SetPublicKey stores (or replaces) a user's PEM public key.
func (r *Repository) SetPublicKey(ctx context.Context, userID int, pem string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET public_key = $1 WHERE id = $2", pem, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetPublicKey returns a user's PEM public key, or ErrNotFound when the user
// does not exist or has not uploaded one yet.
func (r *Repository) GetPublicKey(ctx context.Context, userID int) (string, error) {
	var pem sql.NullString
	err := r.db.QueryRowContext(ctx,
		"SELECT public_key FROM users WHERE id = $1", userID).Scan(&pem)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	if !pem.Valid || pem.String == "" {
		return "", ErrNotFound
	}
	return pem.String, nil
}
