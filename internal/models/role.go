package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Capability is a named permission granted through role membership.
type Capability string

// The closed capability catalog. Role editors must not invent tokens
// outside this list.
const (
	CapReadQuestion      Capability = "read_question"
	CapCreateQuestion    Capability = "create_question"
	CapEditQuestion      Capability = "edit_question"
	CapCloseQuestion     Capability = "close_question"
	CapReadReport        Capability = "read_report"
	CapCreateReport      Capability = "create_report"
	CapEditReport        Capability = "edit_report"
	CapExportQuestions   Capability = "export_questions"
	CapExportReports     Capability = "export_reports"
	CapManageUsers       Capability = "manage_users"
	CapManageRoles       Capability = "manage_roles"
	CapManageDepartments Capability = "manage_departments"
	CapManageAll         Capability = "manage_all"
)

// AllCapabilities lists every capability token the system recognises.
var AllCapabilities = []Capability{
	CapReadQuestion, CapCreateQuestion, CapEditQuestion, CapCloseQuestion,
	CapReadReport, CapCreateReport, CapEditReport,
	CapExportQuestions, CapExportReports,
	CapManageUsers, CapManageRoles, CapManageDepartments, CapManageAll,
}

// IsValid reports whether the capability belongs to the catalog.
func (c Capability) IsValid() bool {
	for _, known := range AllCapabilities {
		if c == known {
			return true
		}
	}
	return false
}

// PermissionSet is the set of capabilities a role grants, stored as a JSON
// array. Order is irrelevant and duplicates carry no meaning.
type PermissionSet []Capability

// Contains reports membership of a capability in the set.
func (p PermissionSet) Contains(c Capability) bool {
	for _, cap := range p {
		if cap == c {
			return true
		}
	}
	return false
}

// Value implements driver.Valuer for the jsonb permissions column.
func (p PermissionSet) Value() (driver.Value, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner for the jsonb permissions column.
func (p *PermissionSet) Scan(src interface{}) error {
	if src == nil {
		*p = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported permissions source type %T", src)
	}
	return json.Unmarshal(raw, p)
}

// Role groups a set of capabilities under a name.
type Role struct {
	ID          int64         `db:"id" json:"id"`
	Name        string        `db:"name" json:"name"`
	Description string        `db:"description" json:"description"`
	Permissions PermissionSet `db:"permissions" json:"permissions"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}
