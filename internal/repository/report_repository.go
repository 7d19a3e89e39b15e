package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/twgov-oa/question-tracker/internal/models"
)

// ReportRepository provides database access for question replies.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository creates a new instance of ReportRepository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create inserts a reply and fills in the generated ID.
func (r *ReportRepository) Create(ctx context.Context, report *models.Report) error {
	if report.ReplyDate.IsZero() {
		report.ReplyDate = time.Now().UTC()
	}
	const query = `INSERT INTO reports (question_id, reply_content, reply_date, user_id, department_id)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query,
		report.QuestionID, report.ReplyContent, report.ReplyDate, report.UserID, report.DepartmentID,
	).Scan(&report.ID); err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

// FindByID returns a reply by identifier.
func (r *ReportRepository) FindByID(ctx context.Context, id int64) (*models.Report, error) {
	const query = `SELECT id, question_id, reply_content, reply_date, user_id, department_id FROM reports WHERE id = $1 LIMIT 1`
	var report models.Report
	if err := r.db.GetContext(ctx, &report, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find report by id: %w", err)
	}
	return &report, nil
}

// ListByQuestion returns every reply to a question joined with the author's
// username and the replying department's name. The department join goes
// through the report's own department_id column.
func (r *ReportRepository) ListByQuestion(ctx context.Context, questionID int64) ([]models.ReportView, error) {
	const query = `SELECT rp.id, rp.question_id, rp.reply_content, rp.reply_date, rp.user_id, rp.department_id,
			u.username AS username, d.name AS department_name
		FROM reports rp
		JOIN users u ON u.id = rp.user_id
		JOIN departments d ON d.id = rp.department_id
		WHERE rp.question_id = $1
		ORDER BY rp.reply_date, rp.id`
	var views []models.ReportView
	if err := r.db.SelectContext(ctx, &views, query, questionID); err != nil {
		return nil, fmt.Errorf("list question reports: %w", err)
	}
	return views, nil
}

// ExistsForDepartment reports whether a department has already replied to
// the question.
func (r *ReportRepository) ExistsForDepartment(ctx context.Context, questionID, departmentID int64) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM reports WHERE question_id = $1 AND department_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, questionID, departmentID); err != nil {
		return false, fmt.Errorf("check report exists: %w", err)
	}
	return exists, nil
}

// Update replaces a reply's content and refreshes the reply date.
func (r *ReportRepository) Update(ctx context.Context, report *models.Report) error {
	report.ReplyDate = time.Now().UTC()
	const query = `UPDATE reports SET reply_content = :reply_content, reply_date = :reply_date WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, report); err != nil {
		return fmt.Errorf("update report: %w", err)
	}
	return nil
}

// Delete removes a reply.
func (r *ReportRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM reports WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	return nil
}

// DepartmentIDsByQuestion returns the distinct departments that replied.
func (r *ReportRepository) DepartmentIDsByQuestion(ctx context.Context, questionID int64) ([]int64, error) {
	const query = `SELECT DISTINCT department_id FROM reports WHERE question_id = $1`
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, query, questionID); err != nil {
		return nil, fmt.Errorf("list report departments: %w", err)
	}
	return ids, nil
}
