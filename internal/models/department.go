package models

import (
	"fmt"
	"strings"
	"time"
)

// DepartmentCodeLength is the fixed width of organizational codes.
const DepartmentCodeLength = 4

// Department is an organizational unit. The four digit code encodes a two
// level hierarchy: the first two digits identify the bureau, the last two
// the section. A code ending in "00" is the bureau itself.
type Department struct {
	ID        int64     `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	ParentID  *int64    `db:"parent_id" json:"parent_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// IsBureau reports whether the department is a bureau level unit.
func (d Department) IsBureau() bool {
	return strings.HasSuffix(d.Code, "00")
}

// BureauCode returns the first two digits of the code.
func (d Department) BureauCode() string {
	if len(d.Code) < 2 {
		return d.Code
	}
	return d.Code[:2]
}

// SectionCode returns the last two digits of the code.
func (d Department) SectionCode() string {
	if len(d.Code) < 2 {
		return ""
	}
	return d.Code[2:]
}

// ImpliedBureauCode returns the code of the bureau a section code belongs
// to, e.g. "0201" -> "0200".
func ImpliedBureauCode(code string) string {
	if len(code) < 2 {
		return code
	}
	return code[:2] + "00"
}

// ValidateDepartmentCode checks the fixed four-digit format. Repositories
// and predicates rely on this invariant being enforced at creation time.
func ValidateDepartmentCode(code string) error {
	if len(code) != DepartmentCodeLength {
		return fmt.Errorf("department code must be exactly %d digits", DepartmentCodeLength)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return fmt.Errorf("department code must contain only digits")
		}
	}
	return nil
}
