package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/internal/cache"
	"github.com/taskhive/taskhive/internal/members"
	"github.com/taskhive/taskhive/internal/orgs"
	"github.com/taskhive/taskhive/internal/requests"
	"github.com/taskhive/taskhive/internal/tasks"
	"github.com/taskhive/taskhive/internal/users"
)

func TestMemberList_CacheAsideAndInvalidation(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mem := cache.NewMemory()
	orgSvc := orgs.NewService(pool, mem)
	memberSvc := members.NewService(pool, mem, 5*time.Minute)
	engine := requests.NewEngine(pool, mem)

	ownerID := seedUser(t, ctx, pool, "owner@example.com", "Owner")
	inviteeID := seedUser(t, ctx, pool, "invitee@example.com", "Invitee")

	org, err := orgSvc.CreateWithOwner(ctx, "Acme", nil, ownerID)
	require.NoError(t, err)

	// First list fills the cache
	list, err := memberSvc.ListMembers(ctx, org.ID, ownerID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	// Accepting an invite invalidates members:{orgId}, so the next list
	// sees the new member immediately
	invite, err := engine.CreateInvite(ctx, org.ID, ownerID, inviteeID, members.RoleMember)
	require.NoError(t, err)
	_, err = engine.AcceptInvite(ctx, invite.ID, inviteeID)
	require.NoError(t, err)

	list, err = memberSvc.ListMembers(ctx, org.ID, ownerID)
	require.NoError(t, err)
	require.Len(t, list, 2)

	// A write that bypasses the services leaves the cached view stale
	// until the TTL; that staleness is the documented trade
	_, err = pool.Exec(ctx, `DELETE FROM memberships WHERE user_id = $1`, inviteeID)
	require.NoError(t, err)

	list, err = memberSvc.ListMembers(ctx, org.ID, ownerID)
	require.NoError(t, err)
	require.Len(t, list, 2, "cached view survives out-of-band writes")

	require.NoError(t, mem.Del(ctx, cache.MembersKey(org.ID)))

	list, err = memberSvc.ListMembers(ctx, org.ID, ownerID)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestOrgCreation_InvalidatesIdentityView(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mem := cache.NewMemory()
	orgSvc := orgs.NewService(pool, mem)

	userID := seedUser(t, ctx, pool, "user@example.com", "User")

	// Simulate a cached /me response with no orgs
	key := cache.UserKey(userID)
	require.NoError(t, mem.Set(ctx, key, users.CurrentUser{}, 5*time.Minute))

	_, err := orgSvc.CreateWithOwner(ctx, "Acme", nil, userID)
	require.NoError(t, err)

	var stale users.CurrentUser
	hit, err := mem.Get(ctx, key, &stale)
	require.NoError(t, err)
	require.False(t, hit, "creating an org must drop the user's identity view")
}

func TestTasks_CacheFollowsWrites(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mem := cache.NewMemory()
	orgSvc := orgs.NewService(pool, mem)
	taskSvc := tasks.NewService(pool, mem, 5*time.Minute)

	ownerID := seedUser(t, ctx, pool, "owner@example.com", "Owner")
	org, err := orgSvc.CreateWithOwner(ctx, "Acme", nil, ownerID)
	require.NoError(t, err)

	list, err := taskSvc.List(ctx, org.ID, ownerID)
	require.NoError(t, err)
	require.Empty(t, list)

	_, err = taskSvc.Create(ctx, org.ID, ownerID, "Ship the release", nil)
	require.NoError(t, err)

	list, err = taskSvc.List(ctx, org.ID, ownerID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	pinned := true
	_, err = taskSvc.Update(ctx, org.ID, ownerID, list[0].ID, tasks.UpdateParams{IsPinned: &pinned})
	require.NoError(t, err)

	list, err = taskSvc.List(ctx, org.ID, ownerID)
	require.NoError(t, err)
	require.True(t, list[0].IsPinned)

	require.NoError(t, taskSvc.Delete(ctx, org.ID, ownerID, list[0].ID))

	list, err = taskSvc.List(ctx, org.ID, ownerID)
	require.NoError(t, err)
	require.Empty(t, list)
}
