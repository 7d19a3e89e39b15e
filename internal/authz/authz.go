// Package authz holds the pure authorization predicates. Every route guard
// and service funnels its permission and department-scoping decisions
// through this package; the traversal logic is never duplicated elsewhere.
package authz

import "github.com/twgov-oa/question-tracker/internal/models"

// DepartmentLookup resolves a department by ID. A nil result means the
// department does not exist.
type DepartmentLookup func(id int64) *models.Department

// HasPermission reports whether the capability is present in the union of
// permission sets across the principal's roles. A principal with no roles
// has no permissions.
func HasPermission(p *models.Principal, cap models.Capability) bool {
	if p == nil {
		return false
	}
	for _, role := range p.Roles {
		if role.Permissions.Contains(cap) {
			return true
		}
	}
	return false
}

// CanAccessDepartment decides whether the principal may act on the target
// department. The precedence and short-circuit order is fixed:
//
//  1. manage_all grants access to everything.
//  2. A target that does not exist is never accessible.
//  3. Direct membership of the target grants access.
//  4. Membership of the bureau whose code prefix matches the target grants
//     access. Membership of a sibling section does not: the member
//     department itself must be bureau level.
//  5. manage_departments grants access as an administration override.
func CanAccessDepartment(p *models.Principal, targetID int64, lookup DepartmentLookup) bool {
	if HasPermission(p, models.CapManageAll) {
		return true
	}

	target := lookup(targetID)
	if target == nil {
		return false
	}

	for _, d := range p.Departments {
		if d.ID == target.ID {
			return true
		}
		if d.IsBureau() && d.BureauCode() == target.BureauCode() {
			return true
		}
	}

	return HasPermission(p, models.CapManageDepartments)
}

// CanAccessQuestion reports whether the principal may open a question:
// manage_all, or access to at least one of its report or answer
// departments.
func CanAccessQuestion(p *models.Principal, reportDepts, answerDepts []models.Department, lookup DepartmentLookup) bool {
	if HasPermission(p, models.CapManageAll) {
		return true
	}
	for _, d := range reportDepts {
		if CanAccessDepartment(p, d.ID, lookup) {
			return true
		}
	}
	for _, d := range answerDepts {
		if CanAccessDepartment(p, d.ID, lookup) {
			return true
		}
	}
	return false
}

// AccessibleDepartmentIDs filters the directory down to departments the
// principal can act on. Used for list scoping and export filtering.
func AccessibleDepartmentIDs(p *models.Principal, directory []models.Department) []int64 {
	byID := make(map[int64]*models.Department, len(directory))
	for i := range directory {
		byID[directory[i].ID] = &directory[i]
	}
	lookup := func(id int64) *models.Department { return byID[id] }

	var ids []int64
	for _, d := range directory {
		if CanAccessDepartment(p, d.ID, lookup) {
			ids = append(ids, d.ID)
		}
	}
	return ids
}
