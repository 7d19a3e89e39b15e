package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/twgov-oa/question-tracker/internal/models"
)

// RoleRepository provides database access for roles and their permission
// sets.
type RoleRepository struct {
	db *sqlx.DB
}

// NewRoleRepository creates a new instance of RoleRepository.
func NewRoleRepository(db *sqlx.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

const roleColumns = `id, name, description, permissions, created_at, updated_at`

// List returns all roles ordered by name.
func (r *RoleRepository) List(ctx context.Context) ([]models.Role, error) {
	query := fmt.Sprintf(`SELECT %s FROM roles ORDER BY name`, roleColumns)
	var roles []models.Role
	if err := r.db.SelectContext(ctx, &roles, query); err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

// FindByID returns a role by identifier.
func (r *RoleRepository) FindByID(ctx context.Context, id int64) (*models.Role, error) {
	query := fmt.Sprintf(`SELECT %s FROM roles WHERE id = $1 LIMIT 1`, roleColumns)
	var role models.Role
	if err := r.db.GetContext(ctx, &role, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find role by id: %w", err)
	}
	return &role, nil
}

// FindByName returns a role by its unique name.
func (r *RoleRepository) FindByName(ctx context.Context, name string) (*models.Role, error) {
	query := fmt.Sprintf(`SELECT %s FROM roles WHERE name = $1 LIMIT 1`, roleColumns)
	var role models.Role
	if err := r.db.GetContext(ctx, &role, query, name); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find role by name: %w", err)
	}
	return &role, nil
}

// Create inserts a new role and fills in the generated ID.
func (r *RoleRepository) Create(ctx context.Context, role *models.Role) error {
	now := time.Now().UTC()
	role.CreatedAt = now
	role.UpdatedAt = now
	const query = `INSERT INTO roles (name, description, permissions, created_at, updated_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query, role.Name, role.Description, role.Permissions, role.CreatedAt, role.UpdatedAt).Scan(&role.ID); err != nil {
		return fmt.Errorf("create role: %w", err)
	}
	return nil
}

// Update modifies a role's name, description and permission set.
func (r *RoleRepository) Update(ctx context.Context, role *models.Role) error {
	role.UpdatedAt = time.Now().UTC()
	const query = `UPDATE roles SET name = :name, description = :description, permissions = :permissions, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, role); err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	return nil
}

// Delete removes a role. Callers must verify it is unreferenced first.
func (r *RoleRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM roles WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	return nil
}

// CountUsers returns how many users currently hold the role.
func (r *RoleRepository) CountUsers(ctx context.Context, roleID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM user_roles WHERE role_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, roleID); err != nil {
		return 0, fmt.Errorf("count role users: %w", err)
	}
	return count, nil
}
