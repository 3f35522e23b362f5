package orgs

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
)

type CreateOrgRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

// HandleCreateOrg handles POST /api/v1/orgs
func HandleCreateOrg(svc *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		var req CreateOrgRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" || len(req.Name) > 100 {
			apperrors.WriteBadRequest(w, r, "Name is required and must be at most 100 characters")
			return
		}

		org, err := svc.CreateWithOwner(ctx, req.Name, req.Description, userID)
		if err != nil {
			if errors.Is(err, ErrNameTaken) {
				apperrors.WriteConflict(w, r, "Organization name already exists")
				return
			}
			log.Error().Err(err).Msg("Failed to create organization")
			apperrors.WriteInternalError(w, r, "Failed to create organization")
			return
		}

		if err := auditor.LogOrgCreated(ctx, org.ID, userID, org.Slug); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"organization": org,
		})
	}
}

// HandleListOrgs handles GET /api/v1/orgs
func HandleListOrgs(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		orgs, err := svc.ListUserOrgs(ctx, userID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list organizations")
			apperrors.WriteInternalError(w, r, "Failed to list organizations")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"organizations": orgs,
		})
	}
}

// HandleGetOrg handles GET /api/v1/orgs/{orgID}
func HandleGetOrg(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		orgID, err := uuid.Parse(chi.URLParam(r, "orgID"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid organization ID")
			return
		}

		org, err := svc.GetByID(ctx, orgID, userID)
		if err != nil {
			writeOrgError(w, r, err, "Failed to load organization")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"organization": org,
		})
	}
}

type UpdateOrgRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// HandleUpdateOrg handles PATCH /api/v1/orgs/{orgID}
func HandleUpdateOrg(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		orgID, err := uuid.Parse(chi.URLParam(r, "orgID"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid organization ID")
			return
		}

		var req UpdateOrgRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		if req.Name != nil {
			trimmed := strings.TrimSpace(*req.Name)
			if trimmed == "" || len(trimmed) > 100 {
				apperrors.WriteBadRequest(w, r, "Name must be 1-100 characters")
				return
			}
			req.Name = &trimmed
		}
		if req.Name == nil && req.Description == nil {
			apperrors.WriteBadRequest(w, r, "Nothing to update")
			return
		}

		org, err := svc.Update(ctx, orgID, userID, req.Name, req.Description)
		if err != nil {
			if errors.Is(err, ErrNameTaken) {
				apperrors.WriteConflict(w, r, "Organization name already exists")
				return
			}
			writeOrgError(w, r, err, "Failed to update organization")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"organization": org,
		})
	}
}

func writeOrgError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, ErrOrgNotFound):
		apperrors.WriteNotFound(w, r, "Organization not found")
	case errors.Is(err, members.ErrNotMember):
		apperrors.WriteForbidden(w, r, "You are not a member of this organization")
	case errors.Is(err, members.ErrForbidden):
		apperrors.WriteForbidden(w, r, "Only owners can modify the organization")
	default:
		log.Error().Err(err).Msg(fallback)
		apperrors.WriteInternalError(w, r, fallback)
	}
}
