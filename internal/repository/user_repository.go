package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/twgov-oa/question-tracker/internal/models"
)

// UserRepository provides database access for accounts and their role and
// department memberships. It is the only producer of hydrated Principal
// values.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, full_name, password_hash, email, is_active, created_at, updated_at`

// FindByUsername returns a user record by username.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE username = $1 LIMIT 1`, userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, username); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by username: %w", err)
	}
	return &user, nil
}

// FindByID returns a user record by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1 LIMIT 1`, userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// FindPrincipalByUsername loads a user with roles and departments eagerly
// attached. Authorization predicates must only ever see principals built
// here.
func (r *UserRepository) FindPrincipalByUsername(ctx context.Context, username string) (*models.Principal, error) {
	user, err := r.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return r.hydrate(ctx, user)
}

// FindPrincipalByID loads a user with roles and departments eagerly
// attached.
func (r *UserRepository) FindPrincipalByID(ctx context.Context, id int64) (*models.Principal, error) {
	user, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.hydrate(ctx, user)
}

func (r *UserRepository) hydrate(ctx context.Context, user *models.User) (*models.Principal, error) {
	roles, err := r.rolesFor(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	depts, err := r.departmentsFor(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &models.Principal{User: *user, Roles: roles, Departments: depts}, nil
}

func (r *UserRepository) rolesFor(ctx context.Context, userID int64) ([]models.Role, error) {
	const query = `SELECT r.id, r.name, r.description, r.permissions, r.created_at, r.updated_at
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.name`
	var roles []models.Role
	if err := r.db.SelectContext(ctx, &roles, query, userID); err != nil {
		return nil, fmt.Errorf("load user roles: %w", err)
	}
	return roles, nil
}

func (r *UserRepository) departmentsFor(ctx context.Context, userID int64) ([]models.Department, error) {
	const query = `SELECT d.id, d.code, d.name, d.parent_id, d.created_at, d.updated_at
		FROM departments d
		JOIN user_departments ud ON ud.department_id = d.id
		WHERE ud.user_id = $1
		ORDER BY d.code`
	var depts []models.Department
	if err := r.db.SelectContext(ctx, &depts, query, userID); err != nil {
		return nil, fmt.Errorf("load user departments: %w", err)
	}
	return depts, nil
}

// List returns users matching the filter with a total count.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	baseQuery := `FROM users WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(username) LIKE $%d OR LOWER(full_name) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY username LIMIT %d OFFSET %d", userColumns, baseQuery, pageSize, offset)

	var users []models.User
	if err := r.db.SelectContext(ctx, &users, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	return users, total, nil
}

// Create inserts a user together with its role and department links.
func (r *UserRepository) Create(ctx context.Context, user *models.User, roleIDs, departmentIDs []int64) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create user: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insertUser = `INSERT INTO users (username, full_name, password_hash, email, is_active, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	if err := tx.QueryRowxContext(ctx, insertUser, user.Username, user.FullName, user.PasswordHash, user.Email, user.IsActive, user.CreatedAt, user.UpdatedAt).Scan(&user.ID); err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	if err := insertLinks(ctx, tx, "user_roles", "role_id", user.ID, roleIDs); err != nil {
		return err
	}
	if err := insertLinks(ctx, tx, "user_departments", "department_id", user.ID, departmentIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create user: %w", err)
	}
	return nil
}

// Update modifies a user and replaces its role and department links.
func (r *UserRepository) Update(ctx context.Context, user *models.User, roleIDs, departmentIDs []int64) error {
	user.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update user: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const updateUser = `UPDATE users SET full_name = $2, email = $3, is_active = $4, updated_at = $5 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, updateUser, user.ID, user.FullName, user.Email, user.IsActive, user.UpdatedAt); err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	for _, link := range []struct {
		table  string
		column string
		ids    []int64
	}{
		{"user_roles", "role_id", roleIDs},
		{"user_departments", "department_id", departmentIDs},
	} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE user_id = $1", link.table), user.ID); err != nil {
			return fmt.Errorf("clear %s: %w", link.table, err)
		}
		if err := insertLinks(ctx, tx, link.table, link.column, user.ID, link.ids); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update user: %w", err)
	}
	return nil
}

// UpdatePassword updates the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, passwordHash, updatedAt); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// Delete removes a user and its membership links.
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete user: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range []string{"user_roles", "user_departments"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE user_id = $1", table), id); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete user: %w", err)
	}
	return nil
}

// AttachRole links a role to a user, ignoring duplicates.
func (r *UserRepository) AttachRole(ctx context.Context, userID, roleID int64) error {
	const query = `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, userID, roleID); err != nil {
		return fmt.Errorf("attach role: %w", err)
	}
	return nil
}

// AttachDepartment links a department to a user, ignoring duplicates. Used
// by the SSO sync when the identity provider reports a new unit code.
func (r *UserRepository) AttachDepartment(ctx context.Context, userID, departmentID int64) error {
	const query = `INSERT INTO user_departments (user_id, department_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, userID, departmentID); err != nil {
		return fmt.Errorf("attach department: %w", err)
	}
	return nil
}

func insertLinks(ctx context.Context, tx *sqlx.Tx, table, column string, userID int64, ids []int64) error {
	for _, id := range ids {
		query := fmt.Sprintf("INSERT INTO %s (user_id, %s) VALUES ($1, $2) ON CONFLICT DO NOTHING", table, column)
		if _, err := tx.ExecContext(ctx, query, userID, id); err != nil {
			return fmt.Errorf("insert %s link: %w", table, err)
		}
	}
	return nil
}
