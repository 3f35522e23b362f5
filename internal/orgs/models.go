// Package orgs owns the organizations table: the tenant directory. Every
// other org-scoped resource hangs off an organization ID resolved here.
package orgs

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive/internal/members"
)

var (
	// ErrOrgNotFound is returned when an organization does not exist
	ErrOrgNotFound = errors.New("organization not found")

	// ErrNameTaken is returned when an organization name is already in use
	ErrNameTaken = errors.New("organization name already exists")

	// ErrSlugConflict is returned when a slug collides even after suffixing
	ErrSlugConflict = errors.New("organization slug already exists")
)

// Organization represents a tenant
type Organization struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Slug        string    `db:"slug" json:"slug"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// OrgWithRole combines an organization with the viewing user's role in it
type OrgWithRole struct {
	Organization
	Role members.Role `db:"role" json:"role"`
}
