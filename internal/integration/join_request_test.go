package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/taskhive/taskhive/internal/app"
	"github.com/taskhive/taskhive/internal/cache"
)

type requestInfo struct {
	ID      uuid.UUID `json:"id"`
	OrgID   uuid.UUID `json:"org_id"`
	Status  string    `json:"status"`
	Message *string   `json:"message"`
}

func TestJoinRequestLifecycle(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	srv := httptest.NewServer(app.NewRouter(pool, cache.NewMemory(), testConfig()))
	t.Cleanup(srv.Close)

	owner := newClient(t)
	requester := newClient(t)

	signup(t, owner, srv.URL, "owner@example.com", "Owner", "password123")
	requesterID := signup(t, requester, srv.URL, "requester@example.com", "Requester", "password123")
	ownerCSRF := csrfToken(t, owner, srv.URL)
	requesterCSRF := csrfToken(t, requester, srv.URL)

	org := createOrg(t, owner, srv.URL, ownerCSRF, "Gamma LLC")

	// File a join request against the public slug
	env := doJSONExpectSuccess(t, requester, http.MethodPost, srv.URL+"/api/v1/orgs/slug/"+org.Slug+"/join-requests", requesterCSRF, http.StatusCreated, map[string]any{
		"message": "let me in",
	})
	var created struct {
		Request requestInfo `json:"request"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.Equal(t, "PENDING", created.Request.Status)

	// Unknown slug is a 404, duplicate pending request a conflict
	doJSONExpectError(t, requester, http.MethodPost, srv.URL+"/api/v1/orgs/slug/no-such-org/join-requests", requesterCSRF, http.StatusNotFound, nil)
	doJSONExpectError(t, requester, http.MethodPost, srv.URL+"/api/v1/orgs/slug/"+org.Slug+"/join-requests", requesterCSRF, http.StatusConflict, nil)

	// Members cannot request to join again
	doJSONExpectError(t, owner, http.MethodPost, srv.URL+"/api/v1/orgs/slug/"+org.Slug+"/join-requests", ownerCSRF, http.StatusConflict, nil)

	// The requester is not a member yet
	doJSONExpectError(t, requester, http.MethodGet, srv.URL+"/api/v1/orgs/"+org.ID.String()+"/members", "", http.StatusForbidden, nil)

	// The org side sees the pending request
	env = doJSONExpectSuccess(t, owner, http.MethodGet, srv.URL+"/api/v1/orgs/"+org.ID.String()+"/join-requests?status=PENDING", "", http.StatusOK, nil)
	var listed struct {
		Requests []requestInfo `json:"requests"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &listed))
	require.Len(t, listed.Requests, 1)

	// Approve with an elevated role
	env = doJSONExpectSuccess(t, owner, http.MethodPost, srv.URL+"/api/v1/orgs/"+org.ID.String()+"/join-requests/"+created.Request.ID.String()+"/approve", ownerCSRF, http.StatusOK, map[string]any{
		"role": "ADMIN",
	})
	var approved struct {
		Membership memberInfo `json:"membership"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &approved))
	require.Equal(t, requesterID, approved.Membership.UserID)
	require.Equal(t, "ADMIN", approved.Membership.Role)

	// Replaying the approval hits the resolved record
	doJSONExpectError(t, owner, http.MethodPost, srv.URL+"/api/v1/orgs/"+org.ID.String()+"/join-requests/"+created.Request.ID.String()+"/approve", ownerCSRF, http.StatusConflict, nil)

	// The new admin may now read the member list
	members := listMembers(t, requester, srv.URL, org.ID)
	require.Len(t, members, 2)

	requireAuditActions(t, pool, org.ID,
		"membership.request_created",
		"membership.request_approved",
	)
}

func TestJoinRequest_RejectCancelAndInviteRedirect(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)

	srv := httptest.NewServer(app.NewRouter(pool, cache.NewMemory(), testConfig()))
	t.Cleanup(srv.Close)

	owner := newClient(t)
	requester := newClient(t)

	signup(t, owner, srv.URL, "owner@example.com", "Owner", "password123")
	requesterID := signup(t, requester, srv.URL, "requester@example.com", "Requester", "password123")
	ownerCSRF := csrfToken(t, owner, srv.URL)
	requesterCSRF := csrfToken(t, requester, srv.URL)

	org := createOrg(t, owner, srv.URL, ownerCSRF, "Delta Co")

	// Reject flow
	requestID := createJoinRequest(t, requester, srv.URL, requesterCSRF, org.Slug)
	doJSONExpectSuccess(t, owner, http.MethodPost, srv.URL+"/api/v1/orgs/"+org.ID.String()+"/join-requests/"+requestID.String()+"/reject", ownerCSRF, http.StatusOK, nil)

	// A rejected request does not block a new one; cancel that one
	requestID = createJoinRequest(t, requester, srv.URL, requesterCSRF, org.Slug)

	// Only the requester may cancel
	doJSONExpectError(t, owner, http.MethodDelete, srv.URL+"/api/v1/me/join-requests/"+requestID.String(), ownerCSRF, http.StatusForbidden, nil)
	doJSONExpectSuccess(t, requester, http.MethodDelete, srv.URL+"/api/v1/me/join-requests/"+requestID.String(), requesterCSRF, http.StatusOK, nil)

	// With a pending invite outstanding, a join request is redirected to it
	createInvite(t, owner, srv.URL, ownerCSRF, org.ID, requesterID)
	errEnv := doJSONExpectError(t, requester, http.MethodPost, srv.URL+"/api/v1/orgs/slug/"+org.Slug+"/join-requests", requesterCSRF, http.StatusConflict, nil)
	require.Contains(t, errEnv.Error.Message, "pending invite")

	// The full history shows up user-side regardless of status
	env := doJSONExpectSuccess(t, requester, http.MethodGet, srv.URL+"/api/v1/me/join-requests", "", http.StatusOK, nil)
	var mine struct {
		Requests []requestInfo `json:"requests"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &mine))
	require.Len(t, mine.Requests, 2)

	requireAuditActions(t, pool, org.ID,
		"membership.request_rejected",
		"membership.request_cancelled",
	)
}

func createJoinRequest(t *testing.T, client *http.Client, baseURL, csrf, slug string) uuid.UUID {
	t.Helper()

	env := doJSONExpectSuccess(t, client, http.MethodPost, baseURL+"/api/v1/orgs/slug/"+slug+"/join-requests", csrf, http.StatusCreated, nil)

	var parsed struct {
		Request requestInfo `json:"request"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &parsed))
	require.NotEqual(t, uuid.Nil, parsed.Request.ID)

	return parsed.Request.ID
}
