package store

import (
	"context"
	"database/sql"
	"fmt"
)

// CreateUser inserts a new user row with a pre-hashed password, grounded
// on the teacher's AuthHandler.signup / store.CreateUser pairing. Callers
// are expected to have already bcrypt-hashed passwordHash.
func (s *Store) CreateUser(ctx context.Context, id, email, passwordHash string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES ($1, $2, $3, now())`,
		id, email, passwordHash)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUserByEmail returns the user id and stored password hash for email,
// used by the login handler to verify credentials.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (id, passwordHash string, err error) {
	err = s.DB.QueryRowContext(ctx,
		`SELECT id, password_hash FROM users WHERE email = $1`, email,
	).Scan(&id, &passwordHash)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", "", fmt.Errorf("get user by email: %w", err)
		}
		return "", "", fmt.Errorf("get user by email: %w", err)
	}
	return id, passwordHash, nil
}
