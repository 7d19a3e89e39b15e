package models

import "time"

// Report is a department's reply to a question. At most one reply per
// (question, department) pair is accepted.
type Report struct {
	ID           int64     `db:"id" json:"id"`
	QuestionID   int64     `db:"question_id" json:"question_id"`
	ReplyContent string    `db:"reply_content" json:"reply_content"`
	ReplyDate    time.Time `db:"reply_date" json:"reply_date"`
	UserID       int64     `db:"user_id" json:"user_id"`
	DepartmentID int64     `db:"department_id" json:"department_id"`
}

// ReportView is a report joined with author and department names for
// presentation. The department comes from the report's own department_id
// column, not from the author's current membership.
type ReportView struct {
	Report
	Username       string `db:"username" json:"username"`
	DepartmentName string `db:"department_name" json:"department_name"`
}
