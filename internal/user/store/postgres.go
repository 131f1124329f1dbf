package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"freewalk/internal/user/models"
	id "freewalk/pkg/domain"
	"freewalk/pkg/platform/sentinel"
	txcontext "freewalk/pkg/platform/tx"
)

// PostgresStore persists users in the users table. Point totals are written
// by the report store inside its unit of work.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `id, email, total_points, created_at`

func scanUser(row *sql.Row) (*models.User, error) {
	var (
		u   models.User
		uid uuid.UUID
	)
	if err := row.Scan(&uid, &u.Email, &u.TotalPoints, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.ID = id.UserID(uid)
	return &u, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	u, err := scanUser(txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, uuid.UUID(userID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return u, nil
}

// FindOrCreate inserts u, or returns the row that already owns u.Email.
func (s *PostgresStore) FindOrCreate(ctx context.Context, u models.User) (*models.User, bool, error) {
	query := `
		INSERT INTO users (id, email, total_points, created_at)
		VALUES ($1, $2, 0, $3)
		ON CONFLICT (email) DO NOTHING
		RETURNING ` + userColumns
	created, err := scanUser(txcontext.Exec(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(u.ID), u.Email, u.CreatedAt))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("insert user: %w", err)
	}
	existing, err := s.FindByEmail(ctx, u.Email)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}
