package store

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
)

// User is an authenticated principal scoped to one org.
type User struct {
	ID           int64  `db:"id" json:"id"`
	OrgID        int64  `db:"org_id" json:"org_id"`
	Email        string `db:"email" json:"email"`
	PasswordHash string `db:"password_hash" json:"-"`
	Role         string `db:"role" json:"role"`
}

// ErrBadCredentials is returned when email or password do not match.
var ErrBadCredentials = errors.New("invalid credentials")

// HashPassword derives the stored password hash with an HMAC keyed by the
// application secret.
func HashPassword(secret, password string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(password))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticate verifies credentials and returns the matching user.
func (s *Store) Authenticate(ctx context.Context, secret, email, password string) (*User, error) {
	const q = `
		SELECT id, org_id, email, password_hash, role
		FROM users
		WHERE email = $1`
	var u User
	if err := s.db.GetContext(ctx, &u, q, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBadCredentials
		}
		return nil, fmt.Errorf("user lookup: %w", err)
	}

	want := HashPassword(secret, password)
	if !hmac.Equal([]byte(want), []byte(u.PasswordHash)) {
		return nil, ErrBadCredentials
	}
	return &u, nil
}

// UserByID fetches a user for token refresh.
func (s *Store) UserByID(ctx context.Context, userID int64) (*User, error) {
	const q = `SELECT id, org_id, email, password_hash, role FROM users WHERE id = $1`
	var u User
	if err := s.db.GetContext(ctx, &u, q, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("user %d: %w", userID, err)
	}
	return &u, nil
}
