// Package members owns the memberships table: the source of truth for which
// user belongs to which organization with what role. It also provides the
// authorization guard that role-gated operations consult.
package members

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/taskhive/taskhive/internal/db"
)

// Store provides access to membership records. It runs on a db.Querier so the
// resolution engine can call it inside a transaction.
type Store struct {
	db db.Querier
}

// NewStore creates a membership store on top of a pool or transaction
func NewStore(q db.Querier) *Store {
	return &Store{db: q}
}

// Create inserts a membership for (userID, orgID).
// Returns ErrMembershipExists if the pair already has one.
func (s *Store) Create(ctx context.Context, userID, orgID uuid.UUID, role Role) (*Membership, error) {
	if !role.IsValid() {
		return nil, ErrInvalidRole
	}

	var m Membership
	query := `
		INSERT INTO memberships (user_id, org_id, role)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, org_id, role, created_at
	`

	err := s.db.QueryRow(ctx, query, userID, orgID, role).Scan(
		&m.ID,
		&m.UserID,
		&m.OrgID,
		&m.Role,
		&m.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return nil, ErrMembershipExists
		}
		return nil, fmt.Errorf("failed to create membership: %w", err)
	}

	return &m, nil
}

// FindByUserAndOrg retrieves the membership for a (user, org) pair
func (s *Store) FindByUserAndOrg(ctx context.Context, userID, orgID uuid.UUID) (*Membership, error) {
	query := `
		SELECT id, user_id, org_id, role, created_at
		FROM memberships
		WHERE user_id = $1 AND org_id = $2
	`
	return s.scanOne(s.db.QueryRow(ctx, query, userID, orgID))
}

// FindByID retrieves a membership by ID
func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (*Membership, error) {
	query := `
		SELECT id, user_id, org_id, role, created_at
		FROM memberships
		WHERE id = $1
	`
	return s.scanOne(s.db.QueryRow(ctx, query, id))
}

// FindByIDForUpdate retrieves a membership by ID and locks the row for the
// duration of the enclosing transaction
func (s *Store) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Membership, error) {
	query := `
		SELECT id, user_id, org_id, role, created_at
		FROM memberships
		WHERE id = $1
		FOR UPDATE
	`
	return s.scanOne(s.db.QueryRow(ctx, query, id))
}

func (s *Store) scanOne(row pgx.Row) (*Membership, error) {
	var m Membership
	err := row.Scan(&m.ID, &m.UserID, &m.OrgID, &m.Role, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return &m, nil
}

// FindByOrgID retrieves all members of an organization with user display
// fields, ordered by user display name
func (s *Store) FindByOrgID(ctx context.Context, orgID uuid.UUID) ([]MemberWithUser, error) {
	query := `
		SELECT m.id, m.user_id, m.org_id, m.role, m.created_at, u.name, u.email
		FROM memberships m
		INNER JOIN users u ON u.id = m.user_id
		WHERE m.org_id = $1
		ORDER BY u.name
	`

	rows, err := s.db.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := []MemberWithUser{}
	for rows.Next() {
		var m MemberWithUser
		if err := rows.Scan(&m.ID, &m.UserID, &m.OrgID, &m.Role, &m.CreatedAt, &m.UserName, &m.UserEmail); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating member rows: %w", err)
	}

	return members, nil
}

// UpdateRole sets a membership's role and returns the updated row
func (s *Store) UpdateRole(ctx context.Context, id uuid.UUID, role Role) (*Membership, error) {
	if !role.IsValid() {
		return nil, ErrInvalidRole
	}

	query := `
		UPDATE memberships
		SET role = $2
		WHERE id = $1
		RETURNING id, user_id, org_id, role, created_at
	`
	return s.scanOne(s.db.QueryRow(ctx, query, id, role))
}

// Delete removes a membership. Returns false if no row was deleted.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM memberships WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete membership: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CountOwnersByOrgID returns the number of OWNER memberships in an org.
// Backs the last-owner guard.
func (s *Store) CountOwnersByOrgID(ctx context.Context, orgID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM memberships WHERE org_id = $1 AND role = $2`
	if err := s.db.QueryRow(ctx, query, orgID, RoleOwner).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count owners: %w", err)
	}
	return count, nil
}

// lockOwners takes row locks on all OWNER memberships of an org and returns
// their count. Must run inside a transaction: the locks serialize concurrent
// demote/remove attempts against the last-owner invariant.
func (s *Store) lockOwners(ctx context.Context, orgID uuid.UUID) (int, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id
		FROM memberships
		WHERE org_id = $1 AND role = $2
		FOR UPDATE
	`, orgID, RoleOwner)
	if err != nil {
		return 0, fmt.Errorf("failed to lock owners: %w", err)
	}
	defer rows.Close()

	var owners int
	for rows.Next() {
		owners++
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to lock owners: %w", err)
	}
	return owners, nil
}
