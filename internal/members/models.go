package members

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role represents a user's role within an organization
type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

// IsValid reports whether r is one of the known roles
func (r Role) IsValid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// ParseRole converts external input into a Role. Validation happens here,
// once, at the boundary; internally roles are always carried as typed values.
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !role.IsValid() {
		return "", ErrInvalidRole
	}
	return role, nil
}

var (
	// ErrInvalidRole is returned when a role string is not a known role
	ErrInvalidRole = errors.New("invalid role")

	// ErrNotMember is returned when a user is not a member of an organization
	ErrNotMember = errors.New("not a member of this organization")

	// ErrForbidden is returned when a member's role is insufficient
	ErrForbidden = errors.New("insufficient permissions")

	// ErrMemberNotFound is returned when a membership does not exist
	ErrMemberNotFound = errors.New("membership not found")

	// ErrMembershipExists is returned when the (user, org) pair already has a membership
	ErrMembershipExists = errors.New("user is already a member of this organization")

	// ErrOrgMismatch is returned when a membership belongs to a different organization
	ErrOrgMismatch = errors.New("membership does not belong to this organization")

	// ErrCannotDemoteLastOwner protects the invariant that every organization
	// keeps at least one owner
	ErrCannotDemoteLastOwner = errors.New("cannot demote the last owner")

	// ErrCannotRemoveLastOwner protects the same invariant on removal
	ErrCannotRemoveLastOwner = errors.New("cannot remove the last owner")

	// ErrCannotRemoveSelf is returned when a member tries to remove their own membership
	ErrCannotRemoveSelf = errors.New("cannot remove yourself from the organization")
)

// Membership represents a user's standing in one organization
type Membership struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	OrgID     uuid.UUID `db:"org_id" json:"org_id"`
	Role      Role      `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// MemberWithUser is a membership enriched with user display fields,
// as served by the org member list
type MemberWithUser struct {
	Membership
	UserName  string `db:"user_name" json:"user_name"`
	UserEmail string `db:"user_email" json:"user_email"`
}
