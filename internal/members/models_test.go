package members

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	role, err := ParseRole("owner")
	require.NoError(t, err)
	require.Equal(t, RoleOwner, role)

	role, err = ParseRole("  Admin ")
	require.NoError(t, err)
	require.Equal(t, RoleAdmin, role)

	role, err = ParseRole("MEMBER")
	require.NoError(t, err)
	require.Equal(t, RoleMember, role)

	_, err = ParseRole("superuser")
	require.ErrorIs(t, err, ErrInvalidRole)

	_, err = ParseRole("")
	require.ErrorIs(t, err, ErrInvalidRole)
}

func TestRole_IsValid(t *testing.T) {
	require.True(t, RoleOwner.IsValid())
	require.True(t, RoleAdmin.IsValid())
	require.True(t, RoleMember.IsValid())
	require.False(t, Role("owner").IsValid())
	require.False(t, Role("").IsValid())
}
