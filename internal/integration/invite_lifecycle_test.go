package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/internal/app"
	"github.com/taskhive/taskhive/internal/cache"
)

type memberInfo struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"user_id"`
	OrgID  uuid.UUID `json:"org_id"`
	Role   string    `json:"role"`
}

type inviteInfo struct {
	ID     uuid.UUID `json:"id"`
	OrgID  uuid.UUID `json:"org_id"`
	Status string    `json:"status"`
	Role   string    `json:"role"`
}

func TestInviteLifecycle_AcceptAndOwnerGuards(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	srv := httptest.NewServer(app.NewRouter(pool, cache.NewMemory(), testConfig()))
	t.Cleanup(srv.Close)

	owner := newClient(t)
	invitee := newClient(t)

	ownerID := signup(t, owner, srv.URL, "owner@example.com", "Owner", "password123")
	inviteeID := signup(t, invitee, srv.URL, "invitee@example.com", "Invitee", "password123")
	ownerCSRF := csrfToken(t, owner, srv.URL)
	inviteeCSRF := csrfToken(t, invitee, srv.URL)

	org := createOrg(t, owner, srv.URL, ownerCSRF, "Acme Corp")

	// Invite the second user
	env := doJSONExpectSuccess(t, owner, http.MethodPost, srv.URL+"/api/v1/orgs/"+org.ID.String()+"/invites", ownerCSRF, http.StatusCreated, map[string]any{
		"user_id": inviteeID.String(),
	})
	var created struct {
		Invite inviteInfo `json:"invite"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.Equal(t, "PENDING", created.Invite.Status)

	// A second pending invite for the same user is refused
	errEnv := doJSONExpectError(t, owner, http.MethodPost, srv.URL+"/api/v1/orgs/"+org.ID.String()+"/invites", ownerCSRF, http.StatusConflict, map[string]any{
		"user_id": inviteeID.String(),
	})
	require.Equal(t, "conflict", errEnv.Error.Code)

	// The invitee sees the invite
	env = doJSONExpectSuccess(t, invitee, http.MethodGet, srv.URL+"/api/v1/me/invites", "", http.StatusOK, nil)
	var myInvites struct {
		Invites []inviteInfo `json:"invites"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &myInvites))
	require.Len(t, myInvites.Invites, 1)

	// Only the addressee may accept
	errEnv = doJSONExpectError(t, owner, http.MethodPost, srv.URL+"/api/v1/me/invites/"+created.Invite.ID.String()+"/accept", ownerCSRF, http.StatusForbidden, nil)
	require.Equal(t, "forbidden", errEnv.Error.Code)

	// Accept grants the membership
	doJSONExpectSuccess(t, invitee, http.MethodPost, srv.URL+"/api/v1/me/invites/"+created.Invite.ID.String()+"/accept", inviteeCSRF, http.StatusOK, nil)

	// Replaying the accept hits the resolved record
	errEnv = doJSONExpectError(t, invitee, http.MethodPost, srv.URL+"/api/v1/me/invites/"+created.Invite.ID.String()+"/accept", inviteeCSRF, http.StatusConflict, nil)
	require.Equal(t, "conflict", errEnv.Error.Code)

	members := listMembers(t, owner, srv.URL, org.ID)
	require.Len(t, members, 2)

	var ownerMembership, inviteeMembership memberInfo
	for _, m := range members {
		switch m.UserID {
		case ownerID:
			ownerMembership = m
		case inviteeID:
			inviteeMembership = m
		}
	}
	require.Equal(t, "OWNER", ownerMembership.Role)
	require.Equal(t, "MEMBER", inviteeMembership.Role)

	// Promote the invitee
	doJSONExpectSuccess(t, owner, http.MethodPatch, srv.URL+"/api/v1/orgs/"+org.ID.String()+"/members/"+inviteeMembership.ID.String(), ownerCSRF, http.StatusOK, map[string]any{
		"role": "ADMIN",
	})

	// The only owner cannot demote themselves
	errEnv = doJSONExpectError(t, owner, http.MethodPatch, srv.URL+"/api/v1/orgs/"+org.ID.String()+"/members/"+ownerMembership.ID.String(), ownerCSRF, http.StatusForbidden, map[string]any{
		"role": "MEMBER",
	})
	require.Equal(t, "forbidden", errEnv.Error.Code)

	// Nor remove themselves
	errEnv = doJSONExpectError(t, owner, http.MethodDelete, srv.URL+"/api/v1/orgs/"+org.ID.String()+"/members/"+ownerMembership.ID.String(), ownerCSRF, http.StatusForbidden, nil)
	require.Equal(t, "forbidden", errEnv.Error.Code)

	// Removing the other member works, and a repeat is a 404
	doJSONExpectSuccess(t, owner, http.MethodDelete, srv.URL+"/api/v1/orgs/"+org.ID.String()+"/members/"+inviteeMembership.ID.String(), ownerCSRF, http.StatusOK, nil)
	doJSONExpectError(t, owner, http.MethodDelete, srv.URL+"/api/v1/orgs/"+org.ID.String()+"/members/"+inviteeMembership.ID.String(), ownerCSRF, http.StatusNotFound, nil)

	// The lifecycle left an audit trail
	requireAuditActions(t, pool, org.ID,
		"org.created",
		"membership.invite_created",
		"membership.invite_accepted",
		"member.role_updated",
		"member.removed",
	)
}

func TestInviteLifecycle_DeclineAndRevoke(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	srv := httptest.NewServer(app.NewRouter(pool, cache.NewMemory(), testConfig()))
	t.Cleanup(srv.Close)

	owner := newClient(t)
	invitee := newClient(t)

	signup(t, owner, srv.URL, "owner@example.com", "Owner", "password123")
	inviteeID := signup(t, invitee, srv.URL, "invitee@example.com", "Invitee", "password123")
	ownerCSRF := csrfToken(t, owner, srv.URL)
	inviteeCSRF := csrfToken(t, invitee, srv.URL)

	org := createOrg(t, owner, srv.URL, ownerCSRF, "Beta Inc")

	inviteID := createInvite(t, owner, srv.URL, ownerCSRF, org.ID, inviteeID)

	// Decline resolves the invite; accept afterwards is refused
	doJSONExpectSuccess(t, invitee, http.MethodPost, srv.URL+"/api/v1/me/invites/"+inviteID.String()+"/decline", inviteeCSRF, http.StatusOK, nil)
	doJSONExpectError(t, invitee, http.MethodPost, srv.URL+"/api/v1/me/invites/"+inviteID.String()+"/accept", inviteeCSRF, http.StatusConflict, nil)

	// A declined invite does not block a fresh one
	inviteID = createInvite(t, owner, srv.URL, ownerCSRF, org.ID, inviteeID)

	// Revoke resolves it from the org side
	doJSONExpectSuccess(t, owner, http.MethodDelete, srv.URL+"/api/v1/orgs/"+org.ID.String()+"/invites/"+inviteID.String(), ownerCSRF, http.StatusOK, nil)
	doJSONExpectError(t, invitee, http.MethodPost, srv.URL+"/api/v1/me/invites/"+inviteID.String()+"/accept", inviteeCSRF, http.StatusConflict, nil)

	// The member list never gained anyone
	members := listMembers(t, owner, srv.URL, org.ID)
	require.Len(t, members, 1)
}

func createInvite(t *testing.T, client *http.Client, baseURL, csrf string, orgID, userID uuid.UUID) uuid.UUID {
	t.Helper()

	env := doJSONExpectSuccess(t, client, http.MethodPost, baseURL+"/api/v1/orgs/"+orgID.String()+"/invites", csrf, http.StatusCreated, map[string]any{
		"user_id": userID.String(),
	})

	var parsed struct {
		Invite inviteInfo `json:"invite"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &parsed))
	require.NotEqual(t, uuid.Nil, parsed.Invite.ID)

	return parsed.Invite.ID
}

func listMembers(t *testing.T, client *http.Client, baseURL string, orgID uuid.UUID) []memberInfo {
	t.Helper()

	env := doJSONExpectSuccess(t, client, http.MethodGet, baseURL+"/api/v1/orgs/"+orgID.String()+"/members", "", http.StatusOK, nil)

	var parsed struct {
		Members []memberInfo `json:"members"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &parsed))

	return parsed.Members
}

func requireAuditActions(t *testing.T, pool *pgxpool.Pool, orgID uuid.UUID, actions ...string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rows, err := pool.Query(ctx, `SELECT action FROM audit_log WHERE org_id = $1`, orgID)
	require.NoError(t, err)
	defer rows.Close()

	seen := make(map[string]bool)
	for rows.Next() {
		var action string
		require.NoError(t, rows.Scan(&action))
		seen[action] = true
	}
	require.NoError(t, rows.Err())

	for _, action := range actions {
		require.True(t, seen[action], "missing audit event %s", action)
	}
}
