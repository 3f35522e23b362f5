package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/internal/cache"
	"github.com/taskhive/taskhive/internal/orgs"
	"github.com/taskhive/taskhive/internal/requests"
	"github.com/taskhive/taskhive/internal/retention"
)

func TestRetentionJob_PrunesResolvedAndKeepsPending(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mem := cache.NewMemory()
	orgSvc := orgs.NewService(pool, mem)
	engine := requests.NewEngine(pool, mem)

	ownerID := seedUser(t, ctx, pool, "owner@example.com", "Owner")
	oldRequesterID := seedUser(t, ctx, pool, "old@example.com", "Old Requester")
	freshRequesterID := seedUser(t, ctx, pool, "fresh@example.com", "Fresh Requester")
	pendingRequesterID := seedUser(t, ctx, pool, "pending@example.com", "Pending Requester")

	org, err := orgSvc.CreateWithOwner(ctx, "Acme", nil, ownerID)
	require.NoError(t, err)

	// Resolved 200 days ago: past the 180-day window
	oldRequest, err := engine.CreateJoinRequest(ctx, org.ID, oldRequesterID, nil)
	require.NoError(t, err)
	_, err = engine.RejectRequest(ctx, org.ID, ownerID, oldRequest.ID)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `UPDATE membership_requests SET resolved_at = NOW() - interval '200 days' WHERE id = $1`, oldRequest.ID)
	require.NoError(t, err)

	// Resolved recently: inside the window
	freshRequest, err := engine.CreateJoinRequest(ctx, org.ID, freshRequesterID, nil)
	require.NoError(t, err)
	_, err = engine.RejectRequest(ctx, org.ID, ownerID, freshRequest.ID)
	require.NoError(t, err)

	// Pending but ancient: retention must not touch it
	pendingRequest, err := engine.CreateJoinRequest(ctx, org.ID, pendingRequesterID, nil)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `UPDATE membership_requests SET created_at = NOW() - interval '400 days' WHERE id = $1`, pendingRequest.ID)
	require.NoError(t, err)

	// One audit entry past the 365-day window, one inside it
	_, err = pool.Exec(ctx, `
		INSERT INTO audit_log (org_id, actor_user_id, action, created_at)
		VALUES ($1, $2, 'org.created', NOW() - interval '400 days'),
		       ($1, $2, 'membership.request_rejected', NOW() - interval '10 days')`,
		org.ID, ownerID)
	require.NoError(t, err)

	var auditBefore int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&auditBefore))
	require.Equal(t, 2, auditBefore)

	require.NoError(t, retention.RunRetentionJob(ctx, pool, retention.DefaultRequestDays, retention.DefaultAuditDays))

	store := requests.NewStore(pool)

	_, err = store.FindByID(ctx, oldRequest.ID)
	require.ErrorIs(t, err, requests.ErrRequestNotFound)

	kept, err := store.FindByID(ctx, freshRequest.ID)
	require.NoError(t, err)
	require.Equal(t, requests.StatusRejected, kept.Status)

	stillPending, err := store.FindByID(ctx, pendingRequest.ID)
	require.NoError(t, err)
	require.Equal(t, requests.StatusPending, stillPending.Status)

	var auditAfter int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&auditAfter))
	require.Equal(t, auditBefore-1, auditAfter)

	// The job is idempotent
	require.NoError(t, retention.RunRetentionJob(ctx, pool, retention.DefaultRequestDays, retention.DefaultAuditDays))

	var requestCount int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM membership_requests`).Scan(&requestCount))
	require.Equal(t, 2, requestCount)
}
