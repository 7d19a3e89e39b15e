package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/twgov-oa/question-tracker/internal/models"
)

// DepartmentRepository provides database access for the department
// directory.
type DepartmentRepository struct {
	db *sqlx.DB
}

// NewDepartmentRepository creates a new instance of DepartmentRepository.
func NewDepartmentRepository(db *sqlx.DB) *DepartmentRepository {
	return &DepartmentRepository{db: db}
}

const departmentColumns = `id, code, name, parent_id, created_at, updated_at`

// List returns the full department directory ordered by code.
func (r *DepartmentRepository) List(ctx context.Context) ([]models.Department, error) {
	query := fmt.Sprintf(`SELECT %s FROM departments ORDER BY code`, departmentColumns)
	var depts []models.Department
	if err := r.db.SelectContext(ctx, &depts, query); err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return depts, nil
}

// ListBureaus returns bureau level departments only.
func (r *DepartmentRepository) ListBureaus(ctx context.Context) ([]models.Department, error) {
	query := fmt.Sprintf(`SELECT %s FROM departments WHERE code LIKE '%%00' ORDER BY code`, departmentColumns)
	var depts []models.Department
	if err := r.db.SelectContext(ctx, &depts, query); err != nil {
		return nil, fmt.Errorf("list bureaus: %w", err)
	}
	return depts, nil
}

// FindByID returns a department by identifier.
func (r *DepartmentRepository) FindByID(ctx context.Context, id int64) (*models.Department, error) {
	query := fmt.Sprintf(`SELECT %s FROM departments WHERE id = $1 LIMIT 1`, departmentColumns)
	var dept models.Department
	if err := r.db.GetContext(ctx, &dept, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find department by id: %w", err)
	}
	return &dept, nil
}

// FindByCode returns a department by its four digit code.
func (r *DepartmentRepository) FindByCode(ctx context.Context, code string) (*models.Department, error) {
	query := fmt.Sprintf(`SELECT %s FROM departments WHERE code = $1 LIMIT 1`, departmentColumns)
	var dept models.Department
	if err := r.db.GetContext(ctx, &dept, query, code); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find department by code: %w", err)
	}
	return &dept, nil
}

// Create inserts a new department and fills in the generated ID.
func (r *DepartmentRepository) Create(ctx context.Context, dept *models.Department) error {
	now := time.Now().UTC()
	dept.CreatedAt = now
	dept.UpdatedAt = now
	const query = `INSERT INTO departments (code, name, parent_id, created_at, updated_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query, dept.Code, dept.Name, dept.ParentID, dept.CreatedAt, dept.UpdatedAt).Scan(&dept.ID); err != nil {
		return fmt.Errorf("create department: %w", err)
	}
	return nil
}

// Update renames or reparents a department. The code is immutable.
func (r *DepartmentRepository) Update(ctx context.Context, dept *models.Department) error {
	dept.UpdatedAt = time.Now().UTC()
	const query = `UPDATE departments SET name = :name, parent_id = :parent_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, dept); err != nil {
		return fmt.Errorf("update department: %w", err)
	}
	return nil
}

// Delete removes a department. Callers must check DependentCounts first.
func (r *DepartmentRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM departments WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete department: %w", err)
	}
	return nil
}

// DependentCounts describes how many records still reference a department.
type DependentCounts struct {
	Children      int `db:"children"`
	QuestionLinks int `db:"question_links"`
	UserLinks     int `db:"user_links"`
}

// HasDependents reports whether any reference remains.
func (c DependentCounts) HasDependents() bool {
	return c.Children > 0 || c.QuestionLinks > 0 || c.UserLinks > 0
}

// DependentCounts gathers the delete preconditions in one round trip.
func (r *DepartmentRepository) DependentCounts(ctx context.Context, id int64) (*DependentCounts, error) {
	const query = `
		SELECT
			(SELECT COUNT(*) FROM departments WHERE parent_id = $1) AS children,
			(SELECT COUNT(*) FROM question_report_departments WHERE department_id = $1)
			+ (SELECT COUNT(*) FROM question_answer_departments WHERE department_id = $1) AS question_links,
			(SELECT COUNT(*) FROM user_departments WHERE department_id = $1) AS user_links`
	var counts DependentCounts
	if err := r.db.GetContext(ctx, &counts, query, id); err != nil {
		return nil, fmt.Errorf("department dependent counts: %w", err)
	}
	return &counts, nil
}
