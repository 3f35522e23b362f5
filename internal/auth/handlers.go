package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/taskhive/taskhive/internal/apperrors"
	"github.com/taskhive/taskhive/internal/audit"
	"github.com/taskhive/taskhive/internal/cache"
	"github.com/taskhive/taskhive/internal/users"
)

type SignupRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type SessionResponse struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Name   string    `json:"name"`
}

// HandleSignup handles POST /api/v1/auth/signup
func HandleSignup(pool *pgxpool.Pool, auditor *audit.Writer, jwtSecret string, sessionDays int, isProduction bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req SignupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		req.Email = strings.TrimSpace(req.Email)
		req.Name = strings.TrimSpace(req.Name)

		if !isValidEmail(req.Email) {
			apperrors.WriteBadRequest(w, r, "Invalid email address")
			return
		}
		if req.Name == "" || len(req.Name) > 120 {
			apperrors.WriteBadRequest(w, r, "Name is required and must be at most 120 characters")
			return
		}
		if len(req.Password) < 8 {
			apperrors.WriteBadRequest(w, r, "Password must be at least 8 characters")
			return
		}

		passwordHash, err := HashPassword(req.Password)
		if err != nil {
			log.Error().Err(err).Msg("Failed to hash password")
			apperrors.WriteInternalError(w, r, "Failed to create account")
			return
		}

		store := users.NewStore(pool)
		user, err := store.Create(ctx, req.Email, req.Name, passwordHash)
		if err != nil {
			if errors.Is(err, users.ErrEmailTaken) {
				apperrors.WriteConflict(w, r, "Email address already registered")
				return
			}
			log.Error().Err(err).Str("email", req.Email).Msg("Failed to insert user")
			apperrors.WriteInternalError(w, r, "Failed to create account")
			return
		}

		if err := auditor.LogUserSignup(ctx, user.ID, user.Email); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		if err := startSession(w, user.ID, jwtSecret, sessionDays, isProduction); err != nil {
			log.Error().Err(err).Msg("Failed to create session")
			apperrors.WriteInternalError(w, r, "Failed to create session")
			return
		}

		log.Info().
			Str("user_id", user.ID.String()).
			Str("email", user.Email).
			Msg("User signed up")

		apperrors.WriteSuccess(w, r, http.StatusCreated, SessionResponse{
			UserID: user.ID,
			Email:  user.Email,
			Name:   user.Name,
		})
	}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleLogin handles POST /api/v1/auth/login
func HandleLogin(pool *pgxpool.Pool, auditor *audit.Writer, jwtSecret string, sessionDays int, isProduction bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		req.Email = strings.TrimSpace(req.Email)
		if req.Email == "" || req.Password == "" {
			apperrors.WriteBadRequest(w, r, "Email and password are required")
			return
		}

		store := users.NewStore(pool)
		user, err := store.FindByEmail(ctx, req.Email)
		if err != nil {
			if errors.Is(err, users.ErrUserNotFound) {
				// Same response as a wrong password to avoid leaking which
				// emails are registered.
				if err := auditor.LogLoginFailed(ctx, req.Email); err != nil {
					log.Error().Err(err).Msg("Failed to log audit event")
				}
				apperrors.WriteUnauthorized(w, r, "Invalid email or password")
				return
			}
			log.Error().Err(err).Msg("Failed to load user for login")
			apperrors.WriteInternalError(w, r, "Failed to log in")
			return
		}

		if err := VerifyPassword(user.PasswordHash, req.Password); err != nil {
			if err := auditor.LogLoginFailed(ctx, req.Email); err != nil {
				log.Error().Err(err).Msg("Failed to log audit event")
			}
			apperrors.WriteUnauthorized(w, r, "Invalid email or password")
			return
		}

		if err := startSession(w, user.ID, jwtSecret, sessionDays, isProduction); err != nil {
			log.Error().Err(err).Msg("Failed to create session")
			apperrors.WriteInternalError(w, r, "Failed to create session")
			return
		}

		log.Info().Str("user_id", user.ID.String()).Msg("User logged in")

		apperrors.WriteSuccess(w, r, http.StatusOK, SessionResponse{
			UserID: user.ID,
			Email:  user.Email,
			Name:   user.Name,
		})
	}
}

// HandleLogout handles POST /api/v1/auth/logout
func HandleLogout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ClearSessionCookie(w)
		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"logged_out": true,
		})
	}
}

// HandleMe handles GET /api/v1/auth/me
// Serves the enriched identity view through the user:{id} cache.
func HandleMe(pool *pgxpool.Pool, c cache.Cache, ttl time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := GetUserID(ctx)

		key := cache.UserKey(userID)

		var current users.CurrentUser
		hit, err := c.Get(ctx, key, &current)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Cache read failed, falling back to store")
		}
		if hit {
			apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"user": current})
			return
		}

		store := users.NewStore(pool)
		fresh, err := store.FindByIDWithMemberships(ctx, userID)
		if err != nil {
			if errors.Is(err, users.ErrUserNotFound) {
				ClearSessionCookie(w)
				apperrors.WriteUnauthorized(w, r, "User not found")
				return
			}
			log.Error().Err(err).Msg("Failed to load current user")
			apperrors.WriteInternalError(w, r, "Failed to load current user")
			return
		}

		if err := c.Set(ctx, key, fresh, ttl); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"user": fresh})
	}
}

func startSession(w http.ResponseWriter, userID uuid.UUID, jwtSecret string, sessionDays int, isProduction bool) error {
	token, err := CreateToken(userID, jwtSecret, sessionDays)
	if err != nil {
		return err
	}
	SetSessionCookie(w, token, sessionDays, isProduction)

	csrfToken, err := GenerateCSRFToken()
	if err != nil {
		return err
	}
	SetCSRFCookie(w, csrfToken, isProduction)
	return nil
}

// isValidEmail validates an email address (RFC 5322 simplified)
func isValidEmail(email string) bool {
	if email == "" || len(email) > 320 {
		return false
	}
	_, err := mail.ParseAddress(email)
	return err == nil
}
