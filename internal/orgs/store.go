package orgs

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/taskhive/taskhive/internal/db"
)

const orgColumns = `id, name, slug, description, created_at, updated_at`

// Store provides access to organization records
type Store struct {
	db db.Querier
}

// NewStore creates an organization store on top of a pool or transaction
func NewStore(q db.Querier) *Store {
	return &Store{db: q}
}

// Create inserts an organization
func (s *Store) Create(ctx context.Context, name, slug string, description *string) (*Organization, error) {
	query := fmt.Sprintf(`
		INSERT INTO organizations (name, slug, description)
		VALUES ($1, $2, $3)
		RETURNING %s
	`, orgColumns)

	org, err := scanOrg(s.db.QueryRow(ctx, query, name, slug, description))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			if pgErr.ConstraintName == "organizations_name_key" {
				return nil, ErrNameTaken
			}
			return nil, ErrSlugConflict
		}
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}
	return org, nil
}

// FindByID retrieves an organization by ID
func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (*Organization, error) {
	query := fmt.Sprintf(`SELECT %s FROM organizations WHERE id = $1`, orgColumns)
	return s.findOne(ctx, query, id)
}

// FindBySlug retrieves an organization by slug
func (s *Store) FindBySlug(ctx context.Context, slug string) (*Organization, error) {
	query := fmt.Sprintf(`SELECT %s FROM organizations WHERE slug = $1`, orgColumns)
	return s.findOne(ctx, query, slug)
}

func (s *Store) findOne(ctx context.Context, query string, arg any) (*Organization, error) {
	org, err := scanOrg(s.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrgNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

// FindByUserID retrieves the organizations a user belongs to with their role,
// newest membership first
func (s *Store) FindByUserID(ctx context.Context, userID uuid.UUID) ([]OrgWithRole, error) {
	query := `
		SELECT o.id, o.name, o.slug, o.description, o.created_at, o.updated_at, m.role
		FROM organizations o
		INNER JOIN memberships m ON m.org_id = o.id
		WHERE m.user_id = $1
		ORDER BY m.created_at DESC
	`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user organizations: %w", err)
	}
	defer rows.Close()

	orgs := []OrgWithRole{}
	for rows.Next() {
		var o OrgWithRole
		if err := rows.Scan(&o.ID, &o.Name, &o.Slug, &o.Description, &o.CreatedAt, &o.UpdatedAt, &o.Role); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating organization rows: %w", err)
	}

	return orgs, nil
}

// NameExists reports whether another organization already uses the name
func (s *Store) NameExists(ctx context.Context, name string, excludeID *uuid.UUID) (bool, error) {
	return s.exists(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM organizations
			WHERE name = $1 AND ($2::uuid IS NULL OR id <> $2)
		)
	`, name, excludeID)
}

// SlugExists reports whether another organization already uses the slug
func (s *Store) SlugExists(ctx context.Context, slug string, excludeID *uuid.UUID) (bool, error) {
	return s.exists(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM organizations
			WHERE slug = $1 AND ($2::uuid IS NULL OR id <> $2)
		)
	`, slug, excludeID)
}

func (s *Store) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var exists bool
	if err := s.db.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check organization existence: %w", err)
	}
	return exists, nil
}

// UpdateParams carries the fields Update may change; nil fields are kept
type UpdateParams struct {
	Name        *string
	Slug        *string
	Description *string
}

// Update patches an organization and returns the updated row
func (s *Store) Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*Organization, error) {
	query := fmt.Sprintf(`
		UPDATE organizations
		SET name = COALESCE($2, name),
		    slug = COALESCE($3, slug),
		    description = COALESCE($4, description),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING %s
	`, orgColumns)

	org, err := scanOrg(s.db.QueryRow(ctx, query, id, params.Name, params.Slug, params.Description))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrgNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if pgErr.ConstraintName == "organizations_name_key" {
				return nil, ErrNameTaken
			}
			return nil, ErrSlugConflict
		}
		return nil, fmt.Errorf("failed to update organization: %w", err)
	}
	return org, nil
}

func scanOrg(row pgx.Row) (*Organization, error) {
	var o Organization
	err := row.Scan(&o.ID, &o.Name, &o.Slug, &o.Description, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
