package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/internal/cache"
	"github.com/taskhive/taskhive/internal/members"
	"github.com/taskhive/taskhive/internal/orgs"
	"github.com/taskhive/taskhive/internal/requests"
	"github.com/taskhive/taskhive/internal/users"
)

func seedUser(t *testing.T, ctx context.Context, pool *pgxpool.Pool, email, name string) uuid.UUID {
	t.Helper()
	user, err := users.NewStore(pool).Create(ctx, email, name, "x")
	require.NoError(t, err)
	return user.ID
}

func TestApproveRequest_ConcurrentResolversOneWinner(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mem := cache.NewMemory()
	orgSvc := orgs.NewService(pool, mem)
	engine := requests.NewEngine(pool, mem)

	ownerID := seedUser(t, ctx, pool, "owner@example.com", "Owner")
	requesterID := seedUser(t, ctx, pool, "requester@example.com", "Requester")

	org, err := orgSvc.CreateWithOwner(ctx, "Acme", nil, ownerID)
	require.NoError(t, err)

	request, err := engine.CreateJoinRequest(ctx, org.ID, requesterID, nil)
	require.NoError(t, err)

	const resolvers = 8
	var wg sync.WaitGroup
	errs := make([]error, resolvers)

	for i := 0; i < resolvers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.ApproveRequest(ctx, org.ID, ownerID, request.ID, members.RoleMember)
		}(i)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, requests.ErrNotPending)
			losses++
		}
	}
	require.Equal(t, 1, wins, "exactly one resolver must win")
	require.Equal(t, resolvers-1, losses)

	// One winner means exactly one membership
	m, err := members.NewStore(pool).FindByUserAndOrg(ctx, requesterID, org.ID)
	require.NoError(t, err)
	require.Equal(t, members.RoleMember, m.Role)

	resolved, err := requests.NewStore(pool).FindByID(ctx, request.ID)
	require.NoError(t, err)
	require.Equal(t, requests.StatusAccepted, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
}

func TestUpdateMemberRole_ConcurrentDemotionsKeepAnOwner(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mem := cache.NewMemory()
	orgSvc := orgs.NewService(pool, mem)
	memberSvc := members.NewService(pool, mem, 5*time.Minute)

	aliceID := seedUser(t, ctx, pool, "alice@example.com", "Alice")
	bobID := seedUser(t, ctx, pool, "bob@example.com", "Bob")

	org, err := orgSvc.CreateWithOwner(ctx, "Acme", nil, aliceID)
	require.NoError(t, err)

	bobMembership, err := members.NewStore(pool).Create(ctx, bobID, org.ID, members.RoleOwner)
	require.NoError(t, err)
	aliceMembership, err := members.NewStore(pool).FindByUserAndOrg(ctx, aliceID, org.ID)
	require.NoError(t, err)

	// Each owner tries to demote the other at the same time
	var wg sync.WaitGroup
	results := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, results[0] = memberSvc.UpdateMemberRole(ctx, org.ID, aliceID, bobMembership.ID, members.RoleMember)
	}()
	go func() {
		defer wg.Done()
		_, results[1] = memberSvc.UpdateMemberRole(ctx, org.ID, bobID, aliceMembership.ID, members.RoleMember)
	}()
	wg.Wait()

	owners, err := members.NewStore(pool).CountOwnersByOrgID(ctx, org.ID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, owners, 1, "an org must always keep an owner")

	// A loser hits the owner-count guard, loses its own OWNER role to the
	// winner first, or gets its transaction aborted by the row-lock cycle.
	// What matters is that both demotions cannot succeed.
	var failures int
	for _, err := range results {
		if err != nil {
			failures++
		}
	}
	require.GreaterOrEqual(t, failures, 1, "both demotions cannot succeed")
}

func TestAcceptInvite_ConcurrentAcceptsSingleMembership(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mem := cache.NewMemory()
	orgSvc := orgs.NewService(pool, mem)
	engine := requests.NewEngine(pool, mem)

	ownerID := seedUser(t, ctx, pool, "owner@example.com", "Owner")
	inviteeID := seedUser(t, ctx, pool, "invitee@example.com", "Invitee")

	org, err := orgSvc.CreateWithOwner(ctx, "Acme", nil, ownerID)
	require.NoError(t, err)

	invite, err := engine.CreateInvite(ctx, org.ID, ownerID, inviteeID, members.RoleMember)
	require.NoError(t, err)

	const accepts = 4
	var wg sync.WaitGroup
	errs := make([]error, accepts)
	for i := 0; i < accepts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.AcceptInvite(ctx, invite.ID, inviteeID)
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, requests.ErrNotPending)
		}
	}
	require.Equal(t, 1, wins)

	memberships, err := members.NewStore(pool).FindByOrgID(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, memberships, 2)
}
