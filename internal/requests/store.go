package requests

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taskhive/taskhive/internal/db"
	"github.com/taskhive/taskhive/internal/members"
)

const requestColumns = `id, org_id, type, invited_user_id, invited_by, requester_id,
	role, status, message, created_at, updated_at, resolved_at, resolved_by`

// Store provides access to membership request records. It runs on a
// db.Querier so the engine can call it inside a transaction.
type Store struct {
	db db.Querier
}

// NewStore creates a membership request store on top of a pool or transaction
func NewStore(q db.Querier) *Store {
	return &Store{db: q}
}

// CreateParams describes a new membership request. The type decides which of
// the user references must be set; the table's check constraint rejects
// records that set both or neither.
type CreateParams struct {
	OrgID         uuid.UUID
	Type          RequestType
	InvitedUserID *uuid.UUID
	InvitedBy     *uuid.UUID
	RequesterID   *uuid.UUID
	Role          members.Role
	Message       *string
}

// Create inserts a new PENDING membership request
func (s *Store) Create(ctx context.Context, params CreateParams) (*MembershipRequest, error) {
	query := fmt.Sprintf(`
		INSERT INTO membership_requests (org_id, type, invited_user_id, invited_by, requester_id, role, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING %s
	`, requestColumns)

	row := s.db.QueryRow(ctx, query,
		params.OrgID,
		params.Type,
		params.InvitedUserID,
		params.InvitedBy,
		params.RequesterID,
		params.Role,
		params.Message,
	)

	req, err := scanRequest(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create membership request: %w", err)
	}
	return req, nil
}

// FindByID retrieves a membership request by ID
func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (*MembershipRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM membership_requests WHERE id = $1`, requestColumns)

	req, err := scanRequest(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get membership request: %w", err)
	}
	return req, nil
}

// FindByOrgID retrieves an org's membership requests of one type, newest
// first, enriched with org and subject user display fields. A nil status
// returns all statuses.
func (s *Store) FindByOrgID(ctx context.Context, orgID uuid.UUID, typ RequestType, status *RequestStatus) ([]RequestWithDetails, error) {
	query := fmt.Sprintf(`
		SELECT %s, o.name, o.slug, u.name, u.email
		FROM membership_requests r
		INNER JOIN organizations o ON o.id = r.org_id
		INNER JOIN users u ON u.id = COALESCE(r.invited_user_id, r.requester_id)
		WHERE r.org_id = $1 AND r.type = $2 AND ($3::text IS NULL OR r.status = $3)
		ORDER BY r.created_at DESC
	`, prefixedRequestColumns)

	rows, err := s.db.Query(ctx, query, orgID, typ, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list membership requests: %w", err)
	}
	defer rows.Close()

	return collectDetails(rows)
}

// FindByInvitedUserID retrieves the invites addressed to a user, newest first
func (s *Store) FindByInvitedUserID(ctx context.Context, userID uuid.UUID, status *RequestStatus) ([]RequestWithDetails, error) {
	query := fmt.Sprintf(`
		SELECT %s, o.name, o.slug, u.name, u.email
		FROM membership_requests r
		INNER JOIN organizations o ON o.id = r.org_id
		INNER JOIN users u ON u.id = r.invited_user_id
		WHERE r.invited_user_id = $1 AND ($2::text IS NULL OR r.status = $2)
		ORDER BY r.created_at DESC
	`, prefixedRequestColumns)

	rows, err := s.db.Query(ctx, query, userID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}
	defer rows.Close()

	return collectDetails(rows)
}

// FindByRequesterID retrieves the join requests a user has filed, newest first
func (s *Store) FindByRequesterID(ctx context.Context, userID uuid.UUID) ([]RequestWithDetails, error) {
	query := fmt.Sprintf(`
		SELECT %s, o.name, o.slug, u.name, u.email
		FROM membership_requests r
		INNER JOIN organizations o ON o.id = r.org_id
		INNER JOIN users u ON u.id = r.requester_id
		WHERE r.requester_id = $1
		ORDER BY r.created_at DESC
	`, prefixedRequestColumns)

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list join requests: %w", err)
	}
	defer rows.Close()

	return collectDetails(rows)
}

// UpdateStatus moves a PENDING request into a terminal status, recording who
// resolved it and when. The WHERE clause only matches PENDING rows, so of two
// concurrent resolvers exactly one sees the update succeed; the loser gets
// ErrNotPending.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status RequestStatus, resolvedBy uuid.UUID) (*MembershipRequest, error) {
	if !status.IsTerminal() {
		return nil, ErrInvalidStatus
	}

	query := fmt.Sprintf(`
		UPDATE membership_requests
		SET status = $2, resolved_by = $3, resolved_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'
		RETURNING %s
	`, requestColumns)

	req, err := scanRequest(s.db.QueryRow(ctx, query, id, status, resolvedBy))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotPending
		}
		return nil, fmt.Errorf("failed to update membership request status: %w", err)
	}
	return req, nil
}

// HasPendingInvite reports whether the (org, user) pair has a pending invite
func (s *Store) HasPendingInvite(ctx context.Context, orgID, userID uuid.UUID) (bool, error) {
	return s.hasPending(ctx, orgID, userID, TypeInvite)
}

// HasPendingRequest reports whether the (org, user) pair has a pending join request
func (s *Store) HasPendingRequest(ctx context.Context, orgID, userID uuid.UUID) (bool, error) {
	return s.hasPending(ctx, orgID, userID, TypeRequest)
}

func (s *Store) hasPending(ctx context.Context, orgID, userID uuid.UUID, typ RequestType) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM membership_requests
			WHERE org_id = $1
			  AND type = $2
			  AND status = 'PENDING'
			  AND COALESCE(invited_user_id, requester_id) = $3
		)
	`

	var exists bool
	if err := s.db.QueryRow(ctx, query, orgID, typ, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check pending membership request: %w", err)
	}
	return exists, nil
}

// DeleteResolvedBefore removes terminal requests resolved before the cutoff.
// Backs the retention job.
func (s *Store) DeleteResolvedBefore(ctx context.Context, cutoffDays int) (int64, error) {
	query := `
		DELETE FROM membership_requests
		WHERE status <> 'PENDING'
		  AND resolved_at < NOW() - make_interval(days => $1)
	`

	tag, err := s.db.Exec(ctx, query, cutoffDays)
	if err != nil {
		return 0, fmt.Errorf("failed to prune membership requests: %w", err)
	}
	return tag.RowsAffected(), nil
}

const prefixedRequestColumns = `r.id, r.org_id, r.type, r.invited_user_id, r.invited_by, r.requester_id,
	r.role, r.status, r.message, r.created_at, r.updated_at, r.resolved_at, r.resolved_by`

func scanRequest(row pgx.Row) (*MembershipRequest, error) {
	var m MembershipRequest
	err := row.Scan(
		&m.ID, &m.OrgID, &m.Type, &m.InvitedUserID, &m.InvitedBy, &m.RequesterID,
		&m.Role, &m.Status, &m.Message, &m.CreatedAt, &m.UpdatedAt, &m.ResolvedAt, &m.ResolvedBy,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func collectDetails(rows pgx.Rows) ([]RequestWithDetails, error) {
	results := []RequestWithDetails{}
	for rows.Next() {
		var d RequestWithDetails
		err := rows.Scan(
			&d.ID, &d.OrgID, &d.Type, &d.InvitedUserID, &d.InvitedBy, &d.RequesterID,
			&d.Role, &d.Status, &d.Message, &d.CreatedAt, &d.UpdatedAt, &d.ResolvedAt, &d.ResolvedBy,
			&d.OrgName, &d.OrgSlug, &d.SubjectName, &d.SubjectEmail,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership request: %w", err)
		}
		results = append(results, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating membership request rows: %w", err)
	}
	return results, nil
}
