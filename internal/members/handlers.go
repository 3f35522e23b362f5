package members

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/taskhive/taskhive/internal/apperrors"
	"github.com/taskhive/taskhive/internal/audit"
	"github.com/taskhive/taskhive/internal/auth"
)

// HandleListMembers handles GET /api/v1/orgs/{orgID}/members
func HandleListMembers(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorID := auth.GetUserID(ctx)

		orgID, err := uuid.Parse(chi.URLParam(r, "orgID"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid organization ID")
			return
		}

		members, err := svc.ListMembers(ctx, orgID, actorID)
		if err != nil {
			if errors.Is(err, ErrNotMember) {
				apperrors.WriteForbidden(w, r, "You are not a member of this organization")
				return
			}
			log.Error().Err(err).Str("org_id", orgID.String()).Msg("Failed to list members")
			apperrors.WriteInternalError(w, r, "Failed to list members")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"members": members,
		})
	}
}

type UpdateRoleRequest struct {
	Role string `json:"role"`
}

// HandleUpdateMemberRole handles PATCH /api/v1/orgs/{orgID}/members/{membershipID}
func HandleUpdateMemberRole(svc *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorID := auth.GetUserID(ctx)

		orgID, err := uuid.Parse(chi.URLParam(r, "orgID"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid organization ID")
			return
		}
		membershipID, err := uuid.Parse(chi.URLParam(r, "membershipID"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid membership ID")
			return
		}

		var req UpdateRoleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		role, err := ParseRole(req.Role)
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Role must be one of OWNER, ADMIN, MEMBER")
			return
		}

		updated, err := svc.UpdateMemberRole(ctx, orgID, actorID, membershipID, role)
		if err != nil {
			writeMemberError(w, r, err, "Failed to update member role")
			return
		}

		if err := auditor.LogOrgEvent(ctx, audit.EventMemberRoleUpdated, orgID, actorID, map[string]interface{}{
			"membership_id": updated.ID.String(),
			"user_id":       updated.UserID.String(),
			"role":          string(updated.Role),
		}); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		log.Info().
			Str("org_id", orgID.String()).
			Str("membership_id", updated.ID.String()).
			Str("role", string(updated.Role)).
			Msg("Member role updated")

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"member": updated,
		})
	}
}

// HandleRemoveMember handles DELETE /api/v1/orgs/{orgID}/members/{membershipID}
func HandleRemoveMember(svc *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorID := auth.GetUserID(ctx)

		orgID, err := uuid.Parse(chi.URLParam(r, "orgID"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid organization ID")
			return
		}
		membershipID, err := uuid.Parse(chi.URLParam(r, "membershipID"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid membership ID")
			return
		}

		removed, err := svc.RemoveMember(ctx, orgID, actorID, membershipID)
		if err != nil {
			writeMemberError(w, r, err, "Failed to remove member")
			return
		}

		if err := auditor.LogOrgEvent(ctx, audit.EventMemberRemoved, orgID, actorID, map[string]interface{}{
			"membership_id": removed.ID.String(),
			"user_id":       removed.UserID.String(),
		}); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		log.Info().
			Str("org_id", orgID.String()).
			Str("membership_id", removed.ID.String()).
			Str("user_id", removed.UserID.String()).
			Msg("Member removed")

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"removed": true,
		})
	}
}

// writeMemberError maps the package's sentinel errors to HTTP responses
func writeMemberError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, ErrNotMember):
		apperrors.WriteForbidden(w, r, "You are not a member of this organization")
	case errors.Is(err, ErrForbidden):
		apperrors.WriteForbidden(w, r, "Only owners can manage members")
	case errors.Is(err, ErrMemberNotFound), errors.Is(err, ErrOrgMismatch):
		// A membership in another org is indistinguishable from a missing one
		apperrors.WriteNotFound(w, r, "Member not found")
	case errors.Is(err, ErrInvalidRole):
		apperrors.WriteBadRequest(w, r, "Role must be one of OWNER, ADMIN, MEMBER")
	case errors.Is(err, ErrCannotDemoteLastOwner):
		apperrors.WriteForbidden(w, r, "Cannot demote the last owner of an organization")
	case errors.Is(err, ErrCannotRemoveLastOwner):
		apperrors.WriteForbidden(w, r, "Cannot remove the last owner of an organization")
	case errors.Is(err, ErrCannotRemoveSelf):
		apperrors.WriteForbidden(w, r, "You cannot remove yourself from the organization")
	default:
		log.Error().Err(err).Msg(fallback)
		apperrors.WriteInternalError(w, r, fallback)
	}
}
