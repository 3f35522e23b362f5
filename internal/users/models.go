package users

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrUserNotFound is returned when a user does not exist
	ErrUserNotFound = errors.New("user not found")

	// ErrEmailTaken is returned when the email is already registered
	ErrEmailTaken = errors.New("email already registered")
)

// User represents an account in the system
type User struct {
	ID           uuid.UUID `db:"id"`
	Email        string    `db:"email"`
	Name         string    `db:"name"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// MembershipSummary is one entry of a user's org list in the identity view
type MembershipSummary struct {
	MembershipID uuid.UUID `json:"membership_id"`
	OrgID        uuid.UUID `json:"org_id"`
	OrgName      string    `json:"org_name"`
	OrgSlug      string    `json:"org_slug"`
	Role         string    `json:"role"`
	JoinedAt     time.Time `json:"joined_at"`
}

// CurrentUser is the enriched identity view served by /auth/me and cached
// under user:{id}.
type CurrentUser struct {
	ID          uuid.UUID           `json:"id"`
	Email       string              `json:"email"`
	Name        string              `json:"name"`
	CreatedAt   time.Time           `json:"created_at"`
	Memberships []MembershipSummary `json:"memberships"`
}
