package members

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/taskhive/taskhive/internal/db"
)

// Guard answers "what is this caller allowed to do in this organization".
// Every role-gated operation loads the caller's membership through it.
type Guard struct {
	store *Store
}

// NewGuard creates an authorization guard over the membership store
func NewGuard(q db.Querier) *Guard {
	return &Guard{store: NewStore(q)}
}

// Membership loads the caller's membership for the active organization.
// Returns ErrNotMember if the caller does not belong to the org.
func (g *Guard) Membership(ctx context.Context, userID, orgID uuid.UUID) (*Membership, error) {
	m, err := g.store.FindByUserAndOrg(ctx, userID, orgID)
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			log.Debug().
				Str("user_id", userID.String()).
				Str("org_id", orgID.String()).
				Msg("Authorization: user is not a member of organization")
			return nil, ErrNotMember
		}
		return nil, err
	}
	return m, nil
}

// Require loads the caller's membership and checks the role against the
// allowed set. Returns ErrNotMember if the caller does not belong to the org
// and ErrForbidden if their role is not in the set.
func (g *Guard) Require(ctx context.Context, userID, orgID uuid.UUID, allowed ...Role) (*Membership, error) {
	m, err := g.Membership(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}

	for _, role := range allowed {
		if m.Role == role {
			return m, nil
		}
	}

	log.Warn().
		Str("user_id", userID.String()).
		Str("org_id", orgID.String()).
		Str("role", string(m.Role)).
		Msg("Authorization: insufficient role")
	return nil, ErrForbidden
}
