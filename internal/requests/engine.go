package requests

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/taskhive/taskhive/internal/cache"
	"github.com/taskhive/taskhive/internal/db"
	"github.com/taskhive/taskhive/internal/members"
	"github.com/taskhive/taskhive/internal/users"
)

// Engine drives the membership request lifecycle. Creation paths run the
// duplicate checks; resolution paths move a PENDING record into a terminal
// status, and the membership-granting ones do so in the same transaction as
// the membership insert.
type Engine struct {
	pool  *pgxpool.Pool
	guard *members.Guard
	cache cache.Cache
}

// NewEngine creates a resolution engine
func NewEngine(pool *pgxpool.Pool, c cache.Cache) *Engine {
	return &Engine{
		pool:  pool,
		guard: members.NewGuard(pool),
		cache: c,
	}
}

// CreateInvite invites a user into an org. Owner only. Fails if the target
// does not exist, is already a member, or already has a pending invite.
func (e *Engine) CreateInvite(ctx context.Context, orgID, actorID, targetUserID uuid.UUID, role members.Role) (*MembershipRequest, error) {
	if !role.IsValid() {
		return nil, members.ErrInvalidRole
	}

	if _, err := e.guard.Require(ctx, actorID, orgID, members.RoleOwner); err != nil {
		return nil, err
	}

	if _, err := users.NewStore(e.pool).FindByID(ctx, targetUserID); err != nil {
		return nil, err
	}

	memberStore := members.NewStore(e.pool)
	if _, err := memberStore.FindByUserAndOrg(ctx, targetUserID, orgID); err == nil {
		return nil, members.ErrMembershipExists
	} else if !errors.Is(err, members.ErrMemberNotFound) {
		return nil, err
	}

	store := NewStore(e.pool)
	pending, err := store.HasPendingInvite(ctx, orgID, targetUserID)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, ErrPendingInviteExists
	}

	invite, err := store.Create(ctx, CreateParams{
		OrgID:         orgID,
		Type:          TypeInvite,
		InvitedUserID: &targetUserID,
		InvitedBy:     &actorID,
		Role:          role,
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("org_id", orgID.String()).
		Str("invite_id", invite.ID.String()).
		Str("invited_user_id", targetUserID.String()).
		Msg("Invite created")

	return invite, nil
}

// CreateJoinRequest files a join request for the caller. Fails if the caller
// is already a member or has a pending request. If a pending invite exists
// the caller is told to resolve that instead of creating a mirror record.
func (e *Engine) CreateJoinRequest(ctx context.Context, orgID, userID uuid.UUID, message *string) (*MembershipRequest, error) {
	memberStore := members.NewStore(e.pool)
	if _, err := memberStore.FindByUserAndOrg(ctx, userID, orgID); err == nil {
		return nil, members.ErrMembershipExists
	} else if !errors.Is(err, members.ErrMemberNotFound) {
		return nil, err
	}

	store := NewStore(e.pool)

	pendingRequest, err := store.HasPendingRequest(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if pendingRequest {
		return nil, ErrPendingRequestExists
	}

	pendingInvite, err := store.HasPendingInvite(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if pendingInvite {
		return nil, ErrInviteAwaitsUser
	}

	// Requests always start as MEMBER; the approver can grant a higher role
	request, err := store.Create(ctx, CreateParams{
		OrgID:       orgID,
		Type:        TypeRequest,
		RequesterID: &userID,
		Role:        members.RoleMember,
		Message:     message,
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("org_id", orgID.String()).
		Str("request_id", request.ID.String()).
		Str("requester_id", userID.String()).
		Msg("Join request created")

	return request, nil
}

// ListOrgInvites returns an org's invites. Owner only.
func (e *Engine) ListOrgInvites(ctx context.Context, orgID, actorID uuid.UUID, status *RequestStatus) ([]RequestWithDetails, error) {
	if _, err := e.guard.Require(ctx, actorID, orgID, members.RoleOwner); err != nil {
		return nil, err
	}
	return NewStore(e.pool).FindByOrgID(ctx, orgID, TypeInvite, status)
}

// ListOrgJoinRequests returns an org's join requests. Owner or admin.
func (e *Engine) ListOrgJoinRequests(ctx context.Context, orgID, actorID uuid.UUID, status *RequestStatus) ([]RequestWithDetails, error) {
	if _, err := e.guard.Require(ctx, actorID, orgID, members.RoleOwner, members.RoleAdmin); err != nil {
		return nil, err
	}
	return NewStore(e.pool).FindByOrgID(ctx, orgID, TypeRequest, status)
}

// ListMyInvites returns the caller's pending invites
func (e *Engine) ListMyInvites(ctx context.Context, userID uuid.UUID) ([]RequestWithDetails, error) {
	pending := StatusPending
	return NewStore(e.pool).FindByInvitedUserID(ctx, userID, &pending)
}

// ListMyJoinRequests returns every join request the caller has filed
func (e *Engine) ListMyJoinRequests(ctx context.Context, userID uuid.UUID) ([]RequestWithDetails, error) {
	return NewStore(e.pool).FindByRequesterID(ctx, userID)
}

// AcceptInvite turns a pending invite into a membership. The membership
// insert and the status transition commit together; the conditional status
// update makes replays and concurrent accepts lose cleanly.
func (e *Engine) AcceptInvite(ctx context.Context, inviteID, userID uuid.UUID) (*members.Membership, error) {
	invite, err := e.loadInviteFor(ctx, inviteID, userID)
	if err != nil {
		return nil, err
	}

	var membership *members.Membership
	err = db.WithTx(ctx, e.pool, func(tx pgx.Tx) error {
		if _, err := NewStore(tx).UpdateStatus(ctx, inviteID, StatusAccepted, userID); err != nil {
			return err
		}
		membership, err = members.NewStore(tx).Create(ctx, userID, invite.OrgID, invite.Role)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.invalidateJoin(ctx, invite.OrgID, userID)

	log.Info().
		Str("org_id", invite.OrgID.String()).
		Str("invite_id", inviteID.String()).
		Str("user_id", userID.String()).
		Msg("Invite accepted")

	return membership, nil
}

// DeclineInvite resolves a pending invite as DECLINED. Addressee only.
func (e *Engine) DeclineInvite(ctx context.Context, inviteID, userID uuid.UUID) (*MembershipRequest, error) {
	if _, err := e.loadInviteFor(ctx, inviteID, userID); err != nil {
		return nil, err
	}
	return NewStore(e.pool).UpdateStatus(ctx, inviteID, StatusDeclined, userID)
}

// RevokeInvite resolves a pending invite as REVOKED. Owner only; the invite
// must belong to the org in the URL.
func (e *Engine) RevokeInvite(ctx context.Context, orgID, actorID, inviteID uuid.UUID) (*MembershipRequest, error) {
	if _, err := e.guard.Require(ctx, actorID, orgID, members.RoleOwner); err != nil {
		return nil, err
	}

	invite, err := NewStore(e.pool).FindByID(ctx, inviteID)
	if err != nil {
		return nil, err
	}
	if invite.OrgID != orgID {
		return nil, ErrRequestNotFound
	}
	if invite.Type != TypeInvite {
		return nil, ErrWrongType
	}
	if invite.Status != StatusPending {
		return nil, ErrNotPending
	}

	return NewStore(e.pool).UpdateStatus(ctx, inviteID, StatusRevoked, actorID)
}

// ApproveRequest turns a pending join request into a membership, optionally
// granting a role above MEMBER. Owner or admin. Runs in one transaction like
// AcceptInvite.
func (e *Engine) ApproveRequest(ctx context.Context, orgID, actorID, requestID uuid.UUID, role members.Role) (*members.Membership, error) {
	if !role.IsValid() {
		return nil, members.ErrInvalidRole
	}

	if _, err := e.guard.Require(ctx, actorID, orgID, members.RoleOwner, members.RoleAdmin); err != nil {
		return nil, err
	}

	request, err := e.loadOrgRequest(ctx, orgID, requestID)
	if err != nil {
		return nil, err
	}
	requesterID := request.SubjectUserID()

	var membership *members.Membership
	err = db.WithTx(ctx, e.pool, func(tx pgx.Tx) error {
		if _, err := NewStore(tx).UpdateStatus(ctx, requestID, StatusAccepted, actorID); err != nil {
			return err
		}
		membership, err = members.NewStore(tx).Create(ctx, requesterID, orgID, role)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.invalidateJoin(ctx, orgID, requesterID)

	log.Info().
		Str("org_id", orgID.String()).
		Str("request_id", requestID.String()).
		Str("user_id", requesterID.String()).
		Str("role", string(role)).
		Msg("Join request approved")

	return membership, nil
}

// RejectRequest resolves a pending join request as REJECTED. Owner or admin.
func (e *Engine) RejectRequest(ctx context.Context, orgID, actorID, requestID uuid.UUID) (*MembershipRequest, error) {
	if _, err := e.guard.Require(ctx, actorID, orgID, members.RoleOwner, members.RoleAdmin); err != nil {
		return nil, err
	}

	if _, err := e.loadOrgRequest(ctx, orgID, requestID); err != nil {
		return nil, err
	}

	return NewStore(e.pool).UpdateStatus(ctx, requestID, StatusRejected, actorID)
}

// CancelRequest withdraws the caller's own pending join request. Cancellation
// shares the REVOKED terminal status with invite revocation; resolved_by
// tells the two apart.
func (e *Engine) CancelRequest(ctx context.Context, requestID, userID uuid.UUID) (*MembershipRequest, error) {
	request, err := NewStore(e.pool).FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Type != TypeRequest {
		return nil, ErrWrongType
	}
	if request.RequesterID == nil || *request.RequesterID != userID {
		return nil, ErrNotAddressee
	}
	if request.Status != StatusPending {
		return nil, ErrNotPending
	}

	return NewStore(e.pool).UpdateStatus(ctx, requestID, StatusRevoked, userID)
}

// loadInviteFor loads a pending invite and checks it is addressed to userID
func (e *Engine) loadInviteFor(ctx context.Context, inviteID, userID uuid.UUID) (*MembershipRequest, error) {
	invite, err := NewStore(e.pool).FindByID(ctx, inviteID)
	if err != nil {
		return nil, err
	}
	if invite.Type != TypeInvite {
		return nil, ErrWrongType
	}
	if invite.InvitedUserID == nil || *invite.InvitedUserID != userID {
		return nil, ErrNotAddressee
	}
	if invite.Status != StatusPending {
		return nil, ErrNotPending
	}
	return invite, nil
}

// loadOrgRequest loads a pending join request and checks it belongs to orgID
func (e *Engine) loadOrgRequest(ctx context.Context, orgID, requestID uuid.UUID) (*MembershipRequest, error) {
	request, err := NewStore(e.pool).FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.OrgID != orgID {
		return nil, ErrRequestNotFound
	}
	if request.Type != TypeRequest {
		return nil, ErrWrongType
	}
	if request.Status != StatusPending {
		return nil, ErrNotPending
	}
	return request, nil
}

// invalidateJoin drops the caches a new membership makes stale. Runs after
// commit; failures are logged and staleness expires with the TTL.
func (e *Engine) invalidateJoin(ctx context.Context, orgID, userID uuid.UUID) {
	keys := []string{cache.MembersKey(orgID), cache.UserKey(userID)}
	if err := e.cache.Del(ctx, keys...); err != nil {
		log.Warn().Err(err).Strs("keys", keys).Msg("Cache invalidation failed")
	}
}
