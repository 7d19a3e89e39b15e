package models

import "time"

// Audit actions recorded for operator diagnosis.
const (
	AuditActionLogin            = "auth.login"
	AuditActionLogout           = "auth.logout"
	AuditActionSSOLogin         = "auth.sso_login"
	AuditActionUserCreate       = "users.create"
	AuditActionUserUpdate       = "users.update"
	AuditActionUserDelete       = "users.delete"
	AuditActionRoleCreate       = "roles.create"
	AuditActionRoleUpdate       = "roles.update"
	AuditActionRoleDelete       = "roles.delete"
	AuditActionDepartmentCreate = "departments.create"
	AuditActionDepartmentUpdate = "departments.update"
	AuditActionDepartmentDelete = "departments.delete"
	AuditActionQuestionClose    = "questions.close"
)

// AuditLog records a mutation or auth event.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *int64    `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent  string    `db:"user_agent" json:"user_agent,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
