package requests

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRequestStatus_IsTerminal(t *testing.T) {
	require.False(t, StatusPending.IsTerminal())
	require.True(t, StatusAccepted.IsTerminal())
	require.True(t, StatusDeclined.IsTerminal())
	require.True(t, StatusRejected.IsTerminal())
	require.True(t, StatusRevoked.IsTerminal())
	require.False(t, RequestStatus("EXPIRED").IsTerminal())
}

func TestParseStatus(t *testing.T) {
	status, err := ParseStatus("pending")
	require.NoError(t, err)
	require.Equal(t, StatusPending, status)

	status, err = ParseStatus(" Accepted ")
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, status)

	_, err = ParseStatus("done")
	require.ErrorIs(t, err, ErrInvalidStatus)

	_, err = ParseStatus("")
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestRequestType_IsValid(t *testing.T) {
	require.True(t, TypeInvite.IsValid())
	require.True(t, TypeRequest.IsValid())
	require.False(t, RequestType("invite").IsValid())
	require.False(t, RequestType("").IsValid())
}

func TestMembershipRequest_SubjectUserID(t *testing.T) {
	invited := uuid.New()
	requester := uuid.New()

	invite := MembershipRequest{Type: TypeInvite, InvitedUserID: &invited}
	require.Equal(t, invited, invite.SubjectUserID())

	request := MembershipRequest{Type: TypeRequest, RequesterID: &requester}
	require.Equal(t, requester, request.SubjectUserID())

	require.Equal(t, uuid.Nil, (&MembershipRequest{Type: TypeInvite}).SubjectUserID())
}
