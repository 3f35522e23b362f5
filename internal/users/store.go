// Package users is the user directory: account records plus the enriched
// identity view (profile and memberships) consumed by the session layer and
// by membership-request display enrichment.
package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/taskhive/taskhive/internal/db"
)

// Store provides access to user records
type Store struct {
	db db.Querier
}

// NewStore creates a user store on top of a pool or transaction
func NewStore(q db.Querier) *Store {
	return &Store{db: q}
}

// Create inserts a new user. Returns ErrEmailTaken if the email is registered.
func (s *Store) Create(ctx context.Context, email, name, passwordHash string) (*User, error) {
	var user User

	query := `
		INSERT INTO users (email, name, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, email, name, password_hash, created_at, updated_at
	`

	err := s.db.QueryRow(ctx, query, email, name, passwordHash).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return &user, nil
}

// FindByID retrieves a user by ID
func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.findOne(ctx, "id = $1", id)
}

// FindByEmail retrieves a user by email
func (s *Store) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.findOne(ctx, "email = $1", email)
}

func (s *Store) findOne(ctx context.Context, where string, arg any) (*User, error) {
	var user User

	query := `
		SELECT id, email, name, password_hash, created_at, updated_at
		FROM users
		WHERE ` + where

	err := s.db.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// FindByIDWithMemberships loads the enriched identity view: the user's
// profile plus every organization they belong to with their role.
func (s *Store) FindByIDWithMemberships(ctx context.Context, id uuid.UUID) (*CurrentUser, error) {
	user, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT m.id, m.org_id, o.name, o.slug, m.role, m.created_at
		FROM memberships m
		INNER JOIN organizations o ON o.id = m.org_id
		WHERE m.user_id = $1
		ORDER BY o.name
	`

	rows, err := s.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list user memberships: %w", err)
	}
	defer rows.Close()

	current := &CurrentUser{
		ID:          user.ID,
		Email:       user.Email,
		Name:        user.Name,
		CreatedAt:   user.CreatedAt,
		Memberships: []MembershipSummary{},
	}

	for rows.Next() {
		var m MembershipSummary
		if err := rows.Scan(&m.MembershipID, &m.OrgID, &m.OrgName, &m.OrgSlug, &m.Role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership summary: %w", err)
		}
		current.Memberships = append(current.Memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating membership rows: %w", err)
	}

	return current, nil
}
