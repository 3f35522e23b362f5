package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taskhive/taskhive/internal/db"
)

const taskColumns = `id, org_id, created_by, title, description, is_done, is_pinned, created_at, updated_at`

// Store provides access to task records
type Store struct {
	db db.Querier
}

// NewStore creates a task store on top of a pool or transaction
func NewStore(q db.Querier) *Store {
	return &Store{db: q}
}

// Create inserts a task
func (s *Store) Create(ctx context.Context, orgID, createdBy uuid.UUID, title string, description *string) (*Task, error) {
	query := fmt.Sprintf(`
		INSERT INTO tasks (org_id, created_by, title, description)
		VALUES ($1, $2, $3, $4)
		RETURNING %s
	`, taskColumns)

	task, err := scanTask(s.db.QueryRow(ctx, query, orgID, createdBy, title, description))
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return task, nil
}

// FindByID retrieves a task by ID scoped to an org
func (s *Store) FindByID(ctx context.Context, id, orgID uuid.UUID) (*Task, error) {
	query := fmt.Sprintf(`SELECT %s FROM tasks WHERE id = $1 AND org_id = $2`, taskColumns)

	task, err := scanTask(s.db.QueryRow(ctx, query, id, orgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// FindByOrgID retrieves an org's tasks, pinned first, then newest first
func (s *Store) FindByOrgID(ctx context.Context, orgID uuid.UUID) ([]Task, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM tasks
		WHERE org_id = $1
		ORDER BY is_pinned DESC, created_at DESC
	`, taskColumns)

	rows, err := s.db.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []Task{}
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.OrgID, &t.CreatedBy, &t.Title, &t.Description, &t.IsDone, &t.IsPinned, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	return tasks, nil
}

// Update patches a task and returns the updated row
func (s *Store) Update(ctx context.Context, id, orgID uuid.UUID, params UpdateParams) (*Task, error) {
	query := fmt.Sprintf(`
		UPDATE tasks
		SET title = COALESCE($3, title),
		    description = COALESCE($4, description),
		    is_done = COALESCE($5, is_done),
		    is_pinned = COALESCE($6, is_pinned),
		    updated_at = NOW()
		WHERE id = $1 AND org_id = $2
		RETURNING %s
	`, taskColumns)

	task, err := scanTask(s.db.QueryRow(ctx, query, id, orgID, params.Title, params.Description, params.IsDone, params.IsPinned))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	return task, nil
}

// Delete removes a task. Returns false if no row was deleted.
func (s *Store) Delete(ctx context.Context, id, orgID uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1 AND org_id = $2`, id, orgID)
	if err != nil {
		return false, fmt.Errorf("failed to delete task: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.OrgID, &t.CreatedBy, &t.Title, &t.Description, &t.IsDone, &t.IsPinned, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
