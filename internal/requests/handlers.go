package requests

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/taskhive/taskhive/internal/apperrors"
	"github.com/taskhive/taskhive/internal/audit"
	"github.com/taskhive/taskhive/internal/auth"
	"github.com/taskhive/taskhive/internal/members"
	"github.com/taskhive/taskhive/internal/orgs"
	"github.com/taskhive/taskhive/internal/users"
)

type CreateInviteRequest struct {
	UserID uuid.UUID `json:"user_id"`
	Role   string    `json:"role"`
}

// HandleCreateInvite handles POST /api/v1/orgs/{orgID}/invites
func HandleCreateInvite(engine *Engine, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorID := auth.GetUserID(ctx)

		orgID, err := uuid.Parse(chi.URLParam(r, "orgID"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid organization ID")
			return
		}

		var req CreateInviteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}
		if req.UserID == uuid.Nil {
			apperrors.WriteBadRequest(w, r, "user_id is required")
			return
		}

		role := members.RoleMember
		if req.Role != "" {
			role, err = members.ParseRole(req.Role)
			if err != nil {
				apperrors.WriteBadRequest(w, r, "Role must be one of OWNER, ADMIN, MEMBER")
				return
			}
		}

		invite, err := engine.CreateInvite(ctx, orgID, actorID, req.UserID, role)
		if err != nil {
			writeRequestError(w, r, err, "Failed to create invite")
			return
		}

		if err := auditor.LogOrgEvent(ctx, audit.EventInviteCreated, orgID, actorID, map[string]interface{}{
			"invite_id":       invite.ID.String(),
			"invited_user_id": req.UserID.String(),
			"role":            string(role),
		}); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"invite": invite,
		})
	}
}

// HandleListOrgInvites handles GET /api/v1/orgs/{orgID}/invites
func HandleListOrgInvites(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorID := auth.GetUserID(ctx)

		orgID, err := uuid.Parse(chi.URLParam(r, "orgID"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid organization ID")
			return
		}

		status, ok := statusFilter(w, r)
		if !ok {
			return
		}

		invites, err := engine.ListOrgInvites(ctx, orgID, actorID, status)
		if err != nil {
			writeRequestError(w, r, err, "Failed to list invites")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"invites": invites,
		})
	}
}

// HandleRevokeInvite handles DELETE /api/v1/orgs/{orgID}/invites/{inviteID}
func HandleRevokeInvite(engine *Engine, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorID := auth.GetUserID(ctx)

		orgID, err := uuid.Parse(chi.URLParam(r, "orgID"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid organization ID")
			return
		}
		inviteID, err := uuid.Parse(chi.URLParam(r, "inviteID"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid invite ID")
			return
		}

		invite, err := engine.RevokeInvite(ctx, orgID, actorID, inviteID)
		if err != nil {
			writeRequestError(w, r, err, "Failed to revoke invite")
			return
		}

		if err := auditor.LogOrgEvent(ctx, audit.EventInviteRevoked, orgID, actorID, map[string]interface{}{
			"invite_id": invite.ID.String(),
		}); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"invite": invite,
		})
	}
}

// HandleMyInvites handles GET /api/v1/me/invites
func HandleMyInvites(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		invites, err := engine.ListMyInvites(ctx, userID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list invites")
			apperrors.WriteInternalError(w, r, "Failed to list invites")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"invites": invites,
		})
	}
}

// HandleAcceptInvite handles POST /api/v1/me/invites/{inviteID}/accept
func HandleAcceptInvite(engine *Engine, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		inviteID, err := uuid.Parse(chi.URLParam(r, "inviteID"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid invite ID")
			return
		}

		membership, err := engine.AcceptInvite(ctx, inviteID, userID)
		if err != nil {
			writeRequestError(w, r, err, "Failed to accept invite")
			return
		}

		if err := auditor.LogOrgEvent(ctx, audit.EventInviteAccepted, membership.OrgID, userID, map[string]interface{}{
			"invite_id": inviteID.String(),
			"role":      string(membership.Role),
		}); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"membership": membership,
		})
	}
}

// HandleDeclineInvite handles POST /api/v1/me/invites/{inviteID}/decline
func HandleDeclineInvite(engine *Engine, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		inviteID, err := uuid.Parse(chi.URLParam(r, "inviteID"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid invite ID")
			return
		}

		invite, err := engine.DeclineInvite(ctx, inviteID, userID)
		if err != nil {
			writeRequestError(w, r, err, "Failed to decline invite")
			return
		}

		if err := auditor.LogOrgEvent(ctx, audit.EventInviteDeclined, invite.OrgID, userID, map[string]interface{}{
			"invite_id": invite.ID.String(),
		}); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"invite": invite,
		})
	}
}

type CreateJoinRequestRequest struct {
	Message *string `json:"message"`
}

// HandleCreateJoinRequest handles POST /api/v1/orgs/slug/{slug}/join-requests.
// The org is addressed by slug: prospective members discover orgs by their
// public slug, not by internal ID.
func HandleCreateJoinRequest(engine *Engine, orgSvc *orgs.Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		slug := strings.TrimSpace(chi.URLParam(r, "slug"))
		if slug == "" {
			apperrors.WriteBadRequest(w, r, "Organization slug is required")
			return
		}

		org, err := orgSvc.GetBySlug(ctx, slug)
		if err != nil {
			if errors.Is(err, orgs.ErrOrgNotFound) {
				apperrors.WriteNotFound(w, r, "Organization not found")
				return
			}
			log.Error().Err(err).Str("slug", slug).Msg("Failed to resolve organization")
			apperrors.WriteInternalError(w, r, "Failed to create join request")
			return
		}

		var req CreateJoinRequestRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				apperrors.WriteBadRequest(w, r, "Invalid request body")
				return
			}
		}
		if req.Message != nil && len(*req.Message) > 500 {
			apperrors.WriteBadRequest(w, r, "Message must be at most 500 characters")
			return
		}

		request, err := engine.CreateJoinRequest(ctx, org.ID, userID, req.Message)
		if err != nil {
			writeRequestError(w, r, err, "Failed to create join request")
			return
		}

		if err := auditor.LogOrgEvent(ctx, audit.EventJoinRequestCreated, org.ID, userID, map[string]interface{}{
			"request_id": request.ID.String(),
		}); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"request": request,
		})
	}
}

// HandleListJoinRequests handles GET /api/v1/orgs/{orgID}/join-requests
func HandleListJoinRequests(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorID := auth.GetUserID(ctx)

		orgID, err := uuid.Parse(chi.URLParam(r, "orgID"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid organization ID")
			return
		}

		status, ok := statusFilter(w, r)
		if !ok {
			return
		}

		reqs, err := engine.ListOrgJoinRequests(ctx, orgID, actorID, status)
		if err != nil {
			writeRequestError(w, r, err, "Failed to list join requests")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"requests": reqs,
		})
	}
}

type ApproveRequestRequest struct {
	Role string `json:"role"`
}

// HandleApproveRequest handles POST /api/v1/orgs/{orgID}/join-requests/{requestID}/approve
func HandleApproveRequest(engine *Engine, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorID := auth.GetUserID(ctx)

		orgID, err := uuid.Parse(chi.URLParam(r, "orgID"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid organization ID")
			return
		}
		requestID, err := uuid.Parse(chi.URLParam(r, "requestID"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request ID")
			return
		}

		role := members.RoleMember
		if r.Body != nil && r.ContentLength != 0 {
			var req ApproveRequestRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				apperrors.WriteBadRequest(w, r, "Invalid request body")
				return
			}
			if req.Role != "" {
				role, err = members.ParseRole(req.Role)
				if err != nil || role == members.RoleOwner {
					apperrors.WriteBadRequest(w, r, "Role must be ADMIN or MEMBER")
					return
				}
			}
		}

		membership, err := engine.ApproveRequest(ctx, orgID, actorID, requestID, role)
		if err != nil {
			writeRequestError(w, r, err, "Failed to approve join request")
			return
		}

		if err := auditor.LogOrgEvent(ctx, audit.EventJoinRequestApproved, orgID, actorID, map[string]interface{}{
			"request_id": requestID.String(),
			"user_id":    membership.UserID.String(),
			"role":       string(membership.Role),
		}); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"membership": membership,
		})
	}
}

// HandleRejectRequest handles POST /api/v1/orgs/{orgID}/join-requests/{requestID}/reject
func HandleRejectRequest(engine *Engine, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorID := auth.GetUserID(ctx)

		orgID, err := uuid.Parse(chi.URLParam(r, "orgID"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid organization ID")
			return
		}
		requestID, err := uuid.Parse(chi.URLParam(r, "requestID"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request ID")
			return
		}

		request, err := engine.RejectRequest(ctx, orgID, actorID, requestID)
		if err != nil {
			writeRequestError(w, r, err, "Failed to reject join request")
			return
		}

		if err := auditor.LogOrgEvent(ctx, audit.EventJoinRequestRejected, orgID, actorID, map[string]interface{}{
			"request_id": request.ID.String(),
		}); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"request": request,
		})
	}
}

// HandleMyJoinRequests handles GET /api/v1/me/join-requests
func HandleMyJoinRequests(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		reqs, err := engine.ListMyJoinRequests(ctx, userID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list join requests")
			apperrors.WriteInternalError(w, r, "Failed to list join requests")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"requests": reqs,
		})
	}
}

// HandleCancelRequest handles DELETE /api/v1/me/join-requests/{requestID}
func HandleCancelRequest(engine *Engine, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		requestID, err := uuid.Parse(chi.URLParam(r, "requestID"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request ID")
			return
		}

		request, err := engine.CancelRequest(ctx, requestID, userID)
		if err != nil {
			writeRequestError(w, r, err, "Failed to cancel join request")
			return
		}

		if err := auditor.LogOrgEvent(ctx, audit.EventJoinRequestCancelled, request.OrgID, userID, map[string]interface{}{
			"request_id": request.ID.String(),
		}); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"request": request,
		})
	}
}

// statusFilter parses the optional ?status= query parameter. Returns false
// after writing a 400 if the value is not a known status.
func statusFilter(w http.ResponseWriter, r *http.Request) (*RequestStatus, bool) {
	raw := r.URL.Query().Get("status")
	if raw == "" {
		return nil, true
	}
	status, err := ParseStatus(raw)
	if err != nil {
		apperrors.WriteBadRequest(w, r, "Unknown status filter")
		return nil, false
	}
	return &status, true
}

// writeRequestError maps engine errors to HTTP responses
func writeRequestError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, ErrRequestNotFound):
		apperrors.WriteNotFound(w, r, "Membership request not found")
	case errors.Is(err, users.ErrUserNotFound):
		apperrors.WriteNotFound(w, r, "User not found")
	case errors.Is(err, ErrNotPending):
		apperrors.WriteConflict(w, r, "Membership request is no longer pending")
	case errors.Is(err, ErrWrongType):
		apperrors.WriteBadRequest(w, r, "Membership request has a different type")
	case errors.Is(err, ErrNotAddressee):
		apperrors.WriteForbidden(w, r, "This membership request is not yours")
	case errors.Is(err, ErrPendingInviteExists):
		apperrors.WriteConflict(w, r, "User already has a pending invite")
	case errors.Is(err, ErrPendingRequestExists):
		apperrors.WriteConflict(w, r, "You already have a pending join request")
	case errors.Is(err, ErrInviteAwaitsUser):
		apperrors.WriteConflict(w, r, "You have a pending invite to this organization, accept or decline it instead")
	case errors.Is(err, members.ErrMembershipExists):
		apperrors.WriteConflict(w, r, "User is already a member of this organization")
	case errors.Is(err, members.ErrNotMember):
		apperrors.WriteForbidden(w, r, "You are not a member of this organization")
	case errors.Is(err, members.ErrForbidden):
		apperrors.WriteForbidden(w, r, "Insufficient role for this operation")
	case errors.Is(err, members.ErrInvalidRole):
		apperrors.WriteBadRequest(w, r, "Role must be one of OWNER, ADMIN, MEMBER")
	default:
		log.Error().Err(err).Msg(fallback)
		apperrors.WriteInternalError(w, r, fallback)
	}
}
