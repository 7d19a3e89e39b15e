package models

import "time"

// User represents an account stored in the users table. Role and department
// membership live exclusively in the user_roles / user_departments junction
// tables; there is no scalar role or department column.
type User struct {
	ID           int64     `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	FullName     string    `db:"full_name" json:"full_name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Email        *string   `db:"email" json:"email,omitempty"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Principal is a fully hydrated user: roles (with permission sets) and
// department memberships are loaded before any authorization predicate
// runs. Only the user repository constructs values of this type, which
// makes eager loading a precondition the compiler can see.
type Principal struct {
	User
	Roles       []Role       `json:"roles"`
	Departments []Department `json:"departments"`
}

// DepartmentIDs returns the IDs of the principal's departments.
func (p *Principal) DepartmentIDs() []int64 {
	ids := make([]int64, 0, len(p.Departments))
	for _, d := range p.Departments {
		ids = append(ids, d.ID)
	}
	return ids
}

// BelongsToDepartment reports direct membership of a department.
func (p *Principal) BelongsToDepartment(departmentID int64) bool {
	for _, d := range p.Departments {
		if d.ID == departmentID {
			return true
		}
	}
	return false
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Search   string
	Active   *bool
	Page     int
	PageSize int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
