package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskhive/taskhive/internal/apperrors"
	"github.com/taskhive/taskhive/internal/audit"
	"github.com/taskhive/taskhive/internal/auth"
	"github.com/taskhive/taskhive/internal/cache"
	"github.com/taskhive/taskhive/internal/config"
	"github.com/taskhive/taskhive/internal/members"
	"github.com/taskhive/taskhive/internal/orgs"
	"github.com/taskhive/taskhive/internal/requests"
	"github.com/taskhive/taskhive/internal/tasks"
)

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(pool *pgxpool.Pool, c cache.Cache, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	isProduction := !cfg.IsDev()
	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second

	// Middleware stack
	r.Use(middleware.RealIP)
	r.Use(apperrors.RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.BaseURL},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(auth.Middleware(cfg.JWTSecret))

	// Shared services
	auditor := audit.NewWriter(pool)
	orgSvc := orgs.NewService(pool, c)
	memberSvc := members.NewService(pool, c, cacheTTL)
	engine := requests.NewEngine(pool, c)
	taskSvc := tasks.NewService(pool, c, cacheTTL)

	// Health check routes (no authentication required)
	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(pool, c))

	// Authentication
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/signup", auth.HandleSignup(pool, auditor, cfg.JWTSecret, cfg.SessionDays, isProduction))
		r.With(LoginRateLimitMiddleware()).Post("/login", auth.HandleLogin(pool, auditor, cfg.JWTSecret, cfg.SessionDays, isProduction))
		r.With(auth.RequireAuth, CSRFMiddleware()).Post("/logout", auth.HandleLogout())
		r.With(auth.RequireAuth).Get("/me", auth.HandleMe(pool, c, cacheTTL))
	})

	// Everything below requires a session; mutations also need the CSRF token
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(auth.RequireAuth)
		r.Use(CSRFMiddleware())
		r.Use(APIRateLimitMiddleware(cfg.RateLimitRPM))

		// Organizations
		r.Post("/orgs", orgs.HandleCreateOrg(orgSvc, auditor))
		r.Get("/orgs", orgs.HandleListOrgs(orgSvc))
		r.Get("/orgs/{orgID}", orgs.HandleGetOrg(orgSvc))
		r.Patch("/orgs/{orgID}", orgs.HandleUpdateOrg(orgSvc))

		// Members
		r.Get("/orgs/{orgID}/members", members.HandleListMembers(memberSvc))
		r.Patch("/orgs/{orgID}/members/{membershipID}", members.HandleUpdateMemberRole(memberSvc, auditor))
		r.Delete("/orgs/{orgID}/members/{membershipID}", members.HandleRemoveMember(memberSvc, auditor))

		// Invites (org side)
		r.Post("/orgs/{orgID}/invites", requests.HandleCreateInvite(engine, auditor))
		r.Get("/orgs/{orgID}/invites", requests.HandleListOrgInvites(engine))
		r.Delete("/orgs/{orgID}/invites/{inviteID}", requests.HandleRevokeInvite(engine, auditor))

		// Invites (user side)
		r.Get("/me/invites", requests.HandleMyInvites(engine))
		r.Post("/me/invites/{inviteID}/accept", requests.HandleAcceptInvite(engine, auditor))
		r.Post("/me/invites/{inviteID}/decline", requests.HandleDeclineInvite(engine, auditor))

		// Join requests (org side)
		r.Get("/orgs/{orgID}/join-requests", requests.HandleListJoinRequests(engine))
		r.Post("/orgs/{orgID}/join-requests/{requestID}/approve", requests.HandleApproveRequest(engine, auditor))
		r.Post("/orgs/{orgID}/join-requests/{requestID}/reject", requests.HandleRejectRequest(engine, auditor))

		// Join requests (user side); orgs are addressed by public slug here
		r.Post("/orgs/slug/{slug}/join-requests", requests.HandleCreateJoinRequest(engine, orgSvc, auditor))
		r.Get("/me/join-requests", requests.HandleMyJoinRequests(engine))
		r.Delete("/me/join-requests/{requestID}", requests.HandleCancelRequest(engine, auditor))

		// Tasks
		r.Get("/orgs/{orgID}/tasks", tasks.HandleListTasks(taskSvc))
		r.Post("/orgs/{orgID}/tasks", tasks.HandleCreateTask(taskSvc, auditor))
		r.Patch("/orgs/{orgID}/tasks/{taskID}", tasks.HandleUpdateTask(taskSvc))
		r.Delete("/orgs/{orgID}/tasks/{taskID}", tasks.HandleDeleteTask(taskSvc, auditor))
	})

	return r
}

// handleHealthz returns a simple liveness check
func handleHealthz(w http.ResponseWriter, r *http.Request) {
	apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleReadyz returns a readiness check covering the database and the cache.
// Returns 200 if the service is ready to accept traffic, 503 if not.
func handleReadyz(pool *pgxpool.Pool, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			apperrors.WriteServiceUnavailable(w, r, "Database connection failed")
			return
		}
		if err := c.Ping(r.Context()); err != nil {
			apperrors.WriteServiceUnavailable(w, r, "Cache connection failed")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]string{
			"status": "ready",
			"db":     "ok",
			"cache":  "ok",
		})
	}
}
