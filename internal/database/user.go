// internal/database/user.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/neverhq/never-service/internal/models"
)

// CreateUser inserts an identity row, assigning an id when the caller left
// it zero. Used by the guest flow when a client shows up without a token.
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	q := `INSERT INTO users (id, username, is_guest, created_at) VALUES ($1, $2, $3, $4)`
	return pgx.BeginTxFunc(ctx, s.Pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, q, u.ID, u.Username, u.IsGuest, u.CreatedAt)
		return err
	})
}

// GetUserByID fetches an identity row.
func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	q := `SELECT id, username, is_guest, created_at FROM users WHERE id = $1`
	var u models.User
	err := s.Pool.QueryRow(ctx, q, id).Scan(&u.ID, &u.Username, &u.IsGuest, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
