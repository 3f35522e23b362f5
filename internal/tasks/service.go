package tasks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/taskhive/taskhive/internal/cache"
	"github.com/taskhive/taskhive/internal/members"
)

// Service provides task operations with the org-scoped cache discipline
type Service struct {
	pool  *pgxpool.Pool
	guard *members.Guard
	cache cache.Cache
	ttl   time.Duration
}

// NewService creates a task service
func NewService(pool *pgxpool.Pool, c cache.Cache, ttl time.Duration) *Service {
	return &Service{
		pool:  pool,
		guard: members.NewGuard(pool),
		cache: c,
		ttl:   ttl,
	}
}

// List returns the org's tasks. Read-through on tasks:{orgId}; any member
// may list.
func (s *Service) List(ctx context.Context, orgID, actorID uuid.UUID) ([]Task, error) {
	if _, err := s.guard.Membership(ctx, actorID, orgID); err != nil {
		return nil, err
	}

	key := cache.TasksKey(orgID)

	var cached []Task
	hit, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Cache read failed, falling back to store")
	}
	if hit {
		return cached, nil
	}

	tasks, err := NewStore(s.pool).FindByOrgID(ctx, orgID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, tasks, s.ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}

	return tasks, nil
}

// Create adds a task. Any member may create.
func (s *Service) Create(ctx context.Context, orgID, actorID uuid.UUID, title string, description *string) (*Task, error) {
	if _, err := s.guard.Membership(ctx, actorID, orgID); err != nil {
		return nil, err
	}

	task, err := NewStore(s.pool).Create(ctx, orgID, actorID, title, description)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, orgID)
	return task, nil
}

// Update patches a task. Any member may update.
func (s *Service) Update(ctx context.Context, orgID, actorID, taskID uuid.UUID, params UpdateParams) (*Task, error) {
	if _, err := s.guard.Membership(ctx, actorID, orgID); err != nil {
		return nil, err
	}

	task, err := NewStore(s.pool).Update(ctx, taskID, orgID, params)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, orgID)
	return task, nil
}

// Delete removes a task. Owners may delete any task, everyone else only
// their own.
func (s *Service) Delete(ctx context.Context, orgID, actorID, taskID uuid.UUID) error {
	membership, err := s.guard.Membership(ctx, actorID, orgID)
	if err != nil {
		return err
	}

	store := NewStore(s.pool)
	task, err := store.FindByID(ctx, taskID, orgID)
	if err != nil {
		return err
	}

	if membership.Role != members.RoleOwner && (task.CreatedBy == nil || *task.CreatedBy != actorID) {
		return ErrNotTaskCreator
	}

	deleted, err := store.Delete(ctx, taskID, orgID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrTaskNotFound
	}

	s.invalidate(ctx, orgID)
	return nil
}

func (s *Service) invalidate(ctx context.Context, orgID uuid.UUID) {
	key := cache.TasksKey(orgID)
	if err := s.cache.Del(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Cache invalidation failed")
	}
}
