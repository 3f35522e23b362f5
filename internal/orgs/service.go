package orgs

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/taskhive/taskhive/internal/cache"
	"github.com/taskhive/taskhive/internal/db"
	"github.com/taskhive/taskhive/internal/members"
)

// Service provides organization operations
type Service struct {
	pool  *pgxpool.Pool
	guard *members.Guard
	cache cache.Cache
}

// NewService creates an organization service
func NewService(pool *pgxpool.Pool, c cache.Cache) *Service {
	return &Service{
		pool:  pool,
		guard: members.NewGuard(pool),
		cache: c,
	}
}

// CreateWithOwner creates an organization and its creator's OWNER membership
// in one transaction. The slug is derived from the name; a collision gets a
// random suffix rather than an error.
func (s *Service) CreateWithOwner(ctx context.Context, name string, description *string, userID uuid.UUID) (*Organization, error) {
	taken, err := NewStore(s.pool).NameExists(ctx, name, nil)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrNameTaken
	}

	slug, err := s.availableSlug(ctx, name, nil)
	if err != nil {
		return nil, err
	}

	var org *Organization
	err = db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		org, err = NewStore(tx).Create(ctx, name, slug, description)
		if err != nil {
			return err
		}
		_, err = members.NewStore(tx).Create(ctx, userID, org.ID, members.RoleOwner)
		return err
	})
	if err != nil {
		return nil, err
	}

	// The identity view lists the user's orgs, so it is stale now
	key := cache.UserKey(userID)
	if err := s.cache.Del(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Cache invalidation failed")
	}

	log.Info().
		Str("org_id", org.ID.String()).
		Str("slug", org.Slug).
		Str("user_id", userID.String()).
		Msg("Organization created")

	return org, nil
}

// GetByID retrieves an organization the caller belongs to
func (s *Service) GetByID(ctx context.Context, orgID, userID uuid.UUID) (*Organization, error) {
	org, err := NewStore(s.pool).FindByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if _, err := s.guard.Membership(ctx, userID, orgID); err != nil {
		return nil, err
	}
	return org, nil
}

// GetBySlug retrieves an organization by slug. No membership check: the
// join-request flow needs to resolve orgs the caller does not belong to yet.
func (s *Service) GetBySlug(ctx context.Context, slug string) (*Organization, error) {
	return NewStore(s.pool).FindBySlug(ctx, slug)
}

// ListUserOrgs retrieves the caller's organizations with their roles
func (s *Service) ListUserOrgs(ctx context.Context, userID uuid.UUID) ([]OrgWithRole, error) {
	return NewStore(s.pool).FindByUserID(ctx, userID)
}

// Update patches an organization's name and description. Owner only. A name
// change regenerates the slug.
func (s *Service) Update(ctx context.Context, orgID, userID uuid.UUID, name, description *string) (*Organization, error) {
	if _, err := s.guard.Require(ctx, userID, orgID, members.RoleOwner); err != nil {
		return nil, err
	}

	params := UpdateParams{Description: description}
	if name != nil {
		store := NewStore(s.pool)
		taken, err := store.NameExists(ctx, *name, &orgID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrNameTaken
		}

		slug, err := s.availableSlug(ctx, *name, &orgID)
		if err != nil {
			return nil, err
		}
		params.Name = name
		params.Slug = &slug
	}

	return NewStore(s.pool).Update(ctx, orgID, params)
}

// availableSlug derives a slug from the name and suffixes it when the plain
// form is already taken by another org
func (s *Service) availableSlug(ctx context.Context, name string, excludeID *uuid.UUID) (string, error) {
	slug := GenerateSlug(name)
	if slug == "" {
		slug = suffixSlug("org")
		return slug, nil
	}

	exists, err := NewStore(s.pool).SlugExists(ctx, slug, excludeID)
	if err != nil {
		return "", err
	}
	if exists {
		slug = suffixSlug(slug)
	}
	return slug, nil
}
