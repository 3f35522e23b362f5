package tasks

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

// HandleListTasks handles GET /api/v1/orgs/{orgID}/tasks
func HandleListTasks(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorID := auth.GetUserID(ctx)

		orgID, err := uuid.Parse(chi.URLParam(r, "orgID"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid organization ID")
			return
		}

		tasks, err := svc.List(ctx, orgID, actorID)
		if err != nil {
			writeTaskError(w, r, err, "Failed to list tasks")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"tasks": tasks,
		})
	}
}

type CreateTaskRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
}

// HandleCreateTask handles POST /api/v1/orgs/{orgID}/tasks
func HandleCreateTask(svc *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorID := auth.GetUserID(ctx)

		orgID, err := uuid.Parse(chi.URLParam(r, "orgID"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid organization ID")
			return
		}

		var req CreateTaskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		req.Title = strings.TrimSpace(req.Title)
		if req.Title == "" || len(req.Title) > 200 {
			apperrors.WriteBadRequest(w, r, "Title is required and must be at most 200 characters")
			return
		}

		task, err := svc.Create(ctx, orgID, actorID, req.Title, req.Description)
		if err != nil {
			writeTaskError(w, r, err, "Failed to create task")
			return
		}

		if err := auditor.LogOrgEvent(ctx, audit.EventTaskCreated, orgID, actorID, map[string]interface{}{
			"task_id": task.ID.String(),
		}); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"task": task,
		})
	}
}

type UpdateTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	IsDone      *bool   `json:"is_done"`
	IsPinned    *bool   `json:"is_pinned"`
}

// HandleUpdateTask handles PATCH /api/v1/orgs/{orgID}/tasks/{taskID}
func HandleUpdateTask(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorID := auth.GetUserID(ctx)

		orgID, err := uuid.Parse(chi.URLParam(r, "orgID"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid organization ID")
			return
		}
		taskID, err := uuid.Parse(chi.URLParam(r, "taskID"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid task ID")
			return
		}

		var req UpdateTaskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		if req.Title != nil {
			trimmed := strings.TrimSpace(*req.Title)
			if trimmed == "" || len(trimmed) > 200 {
				apperrors.WriteBadRequest(w, r, "Title must be 1-200 characters")
				return
			}
			req.Title = &trimmed
		}
		if req.Title == nil && req.Description == nil && req.IsDone == nil && req.IsPinned == nil {
			apperrors.WriteBadRequest(w, r, "Nothing to update")
			return
		}

		task, err := svc.Update(ctx, orgID, actorID, taskID, UpdateParams{
			Title:       req.Title,
			Description: req.Description,
			IsDone:      req.IsDone,
			IsPinned:    req.IsPinned,
		})
		if err != nil {
			writeTaskError(w, r, err, "Failed to update task")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"task": task,
		})
	}
}

// HandleDeleteTask handles DELETE /api/v1/orgs/{orgID}/tasks/{taskID}
func HandleDeleteTask(svc *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorID := auth.GetUserID(ctx)

		orgID, err := uuid.Parse(chi.URLParam(r, "orgID"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid organization ID")
			return
		}
		taskID, err := uuid.Parse(chi.URLParam(r, "taskID"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid task ID")
			return
		}

		if err := svc.Delete(ctx, orgID, actorID, taskID); err != nil {
			writeTaskError(w, r, err, "Failed to delete task")
			return
		}

		if err := auditor.LogOrgEvent(ctx, audit.EventTaskDeleted, orgID, actorID, map[string]interface{}{
			"task_id": taskID.String(),
		}); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"deleted": true,
		})
	}
}

func writeTaskError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, ErrTaskNotFound):
		apperrors.WriteNotFound(w, r, "Task not found")
	case errors.Is(err, ErrNotTaskCreator):
		apperrors.WriteForbidden(w, r, "You can only delete tasks you created")
	case errors.Is(err, members.ErrNotMember):
		apperrors.WriteForbidden(w, r, "You are not a member of this organization")
	default:
		log.Error().Err(err).Msg(fallback)
		apperrors.WriteInternalError(w, r, fallback)
	}
}
