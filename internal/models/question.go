package models

import "time"

// QuestionStatus is the stored lifecycle state of a question.
type QuestionStatus string

const (
	StatusPending  QuestionStatus = "pending"
	StatusAnswered QuestionStatus = "answered"
	StatusClosed   QuestionStatus = "closed"
)

// DisplayStatus is the derived, presentation-facing status.
type DisplayStatus string

const (
	DisplayPending  DisplayStatus = "PENDING"
	DisplayAnswered DisplayStatus = "ANSWERED"
	DisplayClosed   DisplayStatus = "CLOSED"
)

// Question is a tracked inquiry filed by one set of departments and
// answered by another.
type Question struct {
	ID           int64          `db:"id" json:"id"`
	Title        string         `db:"title" json:"title"`
	Content      string         `db:"content" json:"content"`
	Year         *int           `db:"year" json:"year,omitempty"`
	QuestionDate *time.Time     `db:"question_date" json:"question_date,omitempty"`
	CreatedDate  time.Time      `db:"created_date" json:"created_date"`
	Status       QuestionStatus `db:"status" json:"status"`
	Summary      *string        `db:"summary" json:"summary,omitempty"`
	ClosedDate   *time.Time     `db:"closed_date" json:"closed_date,omitempty"`
	CreatorID    int64          `db:"creator_id" json:"creator_id"`
}

// DeriveDisplayStatus maps stored state to the display form. A question
// marked closed without a close date is a known inconsistent state; it is
// reported from reply presence instead of the stored flag.
func DeriveDisplayStatus(q *Question, hasAnyReply bool) DisplayStatus {
	if q.Status == StatusClosed {
		if q.ClosedDate != nil {
			return DisplayClosed
		}
		if hasAnyReply {
			return DisplayAnswered
		}
		return DisplayPending
	}
	if q.Status == StatusAnswered {
		return DisplayAnswered
	}
	return DisplayPending
}

// QuestionDetail is a question with its associations resolved.
type QuestionDetail struct {
	Question
	DisplayStatus     DisplayStatus `json:"display_status"`
	ReportDepartments []Department  `json:"report_departments"`
	AnswerDepartments []Department  `json:"answer_departments"`
	Reports           []ReportView  `json:"reports,omitempty"`
	CanReply          bool          `json:"can_reply"`
}

// QuestionSummary is the list representation of a question.
type QuestionSummary struct {
	Question
	DisplayStatus     DisplayStatus `json:"display_status"`
	ReportDepartments []Department  `json:"report_departments"`
	AnswerDepartments []Department  `json:"answer_departments"`
}

// QuestionFilter captures list/export filtering criteria.
type QuestionFilter struct {
	Status       string
	DepartmentID *int64
	Year         *int
	Keyword      string
	Page         int
	PageSize     int
}
