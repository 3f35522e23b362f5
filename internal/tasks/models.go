// Package tasks owns the tasks table. Tasks are org-scoped; the list view is
// served through the tasks:{orgId} cache entry and every write drops it.
package tasks

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrTaskNotFound is returned when a task does not exist in the org
	ErrTaskNotFound = errors.New("task not found")

	// ErrNotTaskCreator is returned when a non-owner tries to delete a task
	// someone else created
	ErrNotTaskCreator = errors.New("only the creator or an owner can delete this task")
)

// Task represents one task in an organization
type Task struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	OrgID       uuid.UUID  `db:"org_id" json:"org_id"`
	CreatedBy   *uuid.UUID `db:"created_by" json:"created_by,omitempty"`
	Title       string     `db:"title" json:"title"`
	Description *string    `db:"description" json:"description,omitempty"`
	IsDone      bool       `db:"is_done" json:"is_done"`
	IsPinned    bool       `db:"is_pinned" json:"is_pinned"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// UpdateParams carries the fields Update may change; nil fields are kept
type UpdateParams struct {
	Title       *string
	Description *string
	IsDone      *bool
	IsPinned    *bool
}
