package members

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/taskhive/taskhive/internal/cache"
	"github.com/taskhive/taskhive/internal/db"
)

// Service implements the member-facing operations: listing the org member
// list through the cache, role updates, and removal, with the owner
// protection rules.
type Service struct {
	pool  *pgxpool.Pool
	guard *Guard
	cache cache.Cache
	ttl   time.Duration
}

// NewService creates a member service. All dependencies are injected; the
// service holds no process-wide state.
func NewService(pool *pgxpool.Pool, c cache.Cache, ttl time.Duration) *Service {
	return &Service{
		pool:  pool,
		guard: NewGuard(pool),
		cache: c,
		ttl:   ttl,
	}
}

// ListMembers returns the org's member list, enriched with user display
// fields. Read-through on members:{orgId}; any member may list.
func (s *Service) ListMembers(ctx context.Context, orgID, actorID uuid.UUID) ([]MemberWithUser, error) {
	if _, err := s.guard.Membership(ctx, actorID, orgID); err != nil {
		return nil, err
	}

	key := cache.MembersKey(orgID)

	var cached []MemberWithUser
	hit, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Cache read failed, falling back to store")
	}
	if hit {
		return cached, nil
	}

	members, err := NewStore(s.pool).FindByOrgID(ctx, orgID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, members, s.ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}

	return members, nil
}

// UpdateMemberRole changes a member's role. Owner only. Demoting the last
// remaining owner is refused; the owner rows are locked for the duration of
// the transaction so concurrent demotions cannot slip past the check.
func (s *Service) UpdateMemberRole(ctx context.Context, orgID, actorID, membershipID uuid.UUID, newRole Role) (*Membership, error) {
	if !newRole.IsValid() {
		return nil, ErrInvalidRole
	}

	if _, err := s.guard.Require(ctx, actorID, orgID, RoleOwner); err != nil {
		return nil, err
	}

	var updated *Membership
	var affectedUserID uuid.UUID

	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		store := NewStore(tx)

		current, err := store.FindByIDForUpdate(ctx, membershipID)
		if err != nil {
			return err
		}
		if current.OrgID != orgID {
			return ErrOrgMismatch
		}

		if current.Role == RoleOwner && newRole != RoleOwner {
			owners, err := store.lockOwners(ctx, orgID)
			if err != nil {
				return err
			}
			if owners <= 1 {
				return ErrCannotDemoteLastOwner
			}
		}

		updated, err = store.UpdateRole(ctx, membershipID, newRole)
		if err != nil {
			return err
		}
		affectedUserID = updated.UserID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, orgID, affectedUserID)
	return updated, nil
}

// RemoveMember deletes a membership. Owner only. Callers may not remove
// themselves, and the last remaining owner may not be removed.
func (s *Service) RemoveMember(ctx context.Context, orgID, actorID, membershipID uuid.UUID) (*Membership, error) {
	if _, err := s.guard.Require(ctx, actorID, orgID, RoleOwner); err != nil {
		return nil, err
	}

	var removed *Membership

	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		store := NewStore(tx)

		current, err := store.FindByIDForUpdate(ctx, membershipID)
		if err != nil {
			return err
		}
		if current.OrgID != orgID {
			return ErrOrgMismatch
		}
		if current.UserID == actorID {
			return ErrCannotRemoveSelf
		}

		if current.Role == RoleOwner {
			owners, err := store.lockOwners(ctx, orgID)
			if err != nil {
				return err
			}
			if owners <= 1 {
				return ErrCannotRemoveLastOwner
			}
		}

		deleted, err := store.Delete(ctx, membershipID)
		if err != nil {
			return err
		}
		if !deleted {
			return ErrMemberNotFound
		}

		removed = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, orgID, removed.UserID)
	return removed, nil
}

// invalidate drops the cache keys derived from the org's membership set and
// from the affected user's identity. Called after commit. Failures are logged,
// never propagated; staleness is bounded by the TTL.
func (s *Service) invalidate(ctx context.Context, orgID, userID uuid.UUID) {
	keys := []string{cache.MembersKey(orgID), cache.UserKey(userID)}
	if err := s.cache.Del(ctx, keys...); err != nil {
		log.Warn().Err(err).Strs("keys", keys).Msg("Cache invalidation failed")
	}
}
