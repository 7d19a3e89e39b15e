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

// DepartmentLinkKind selects one of the two question/department junction
// tables.
type DepartmentLinkKind string

const (
	LinkReport DepartmentLinkKind = "report"
	LinkAnswer DepartmentLinkKind = "answer"
)

func (k DepartmentLinkKind) table() string {
	if k == LinkAnswer {
		return "question_answer_departments"
	}
	return "question_report_departments"
}

// QuestionRepository provides database access for questions and their
// department links.
type QuestionRepository struct {
	db *sqlx.DB
}

// NewQuestionRepository creates a new instance of QuestionRepository.
func NewQuestionRepository(db *sqlx.DB) *QuestionRepository {
	return &QuestionRepository{db: db}
}

const questionColumns = `id, title, content, year, question_date, created_date, status, summary, closed_date, creator_id`

// Create inserts a question with its report and answer department links in
// one transaction.
func (r *QuestionRepository) Create(ctx context.Context, q *models.Question, reportDeptIDs, answerDeptIDs []int64) error {
	q.CreatedDate = time.Now().UTC()
	if q.Status == "" {
		q.Status = models.StatusPending
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create question: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insertQuestion = `INSERT INTO questions (title, content, year, question_date, created_date, status, summary, closed_date, creator_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
	if err := tx.QueryRowxContext(ctx, insertQuestion,
		q.Title, q.Content, q.Year, q.QuestionDate, q.CreatedDate, q.Status, q.Summary, q.ClosedDate, q.CreatorID,
	).Scan(&q.ID); err != nil {
		return fmt.Errorf("create question: %w", err)
	}

	if err := insertQuestionLinks(ctx, tx, LinkReport, q.ID, reportDeptIDs); err != nil {
		return err
	}
	if err := insertQuestionLinks(ctx, tx, LinkAnswer, q.ID, answerDeptIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create question: %w", err)
	}
	return nil
}

// FindByID returns a question by identifier.
func (r *QuestionRepository) FindByID(ctx context.Context, id int64) (*models.Question, error) {
	query := fmt.Sprintf(`SELECT %s FROM questions WHERE id = $1 LIMIT 1`, questionColumns)
	var q models.Question
	if err := r.db.GetContext(ctx, &q, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find question by id: %w", err)
	}
	return &q, nil
}

// List returns questions visible to the given department scope, with a
// total count. A nil accessibleDeptIDs means no scoping (operators holding
// the global override); an empty non-nil slice matches nothing.
func (r *QuestionRepository) List(ctx context.Context, filter models.QuestionFilter, accessibleDeptIDs []int64) ([]models.Question, int, error) {
	var conditions []string
	var args []interface{}

	if accessibleDeptIDs != nil {
		if len(accessibleDeptIDs) == 0 {
			return []models.Question{}, 0, nil
		}
		conditions = append(conditions, `q.id IN (
			SELECT question_id FROM question_report_departments WHERE department_id IN (?)
			UNION
			SELECT question_id FROM question_answer_departments WHERE department_id IN (?)
		)`)
		args = append(args, accessibleDeptIDs, accessibleDeptIDs)
	}
	if filter.Status != "" {
		conditions = append(conditions, "q.status = ?")
		args = append(args, filter.Status)
	}
	if filter.Year != nil {
		conditions = append(conditions, "q.year = ?")
		args = append(args, *filter.Year)
	}
	if filter.DepartmentID != nil {
		conditions = append(conditions, `q.id IN (
			SELECT question_id FROM question_report_departments WHERE department_id = ?
			UNION
			SELECT question_id FROM question_answer_departments WHERE department_id = ?
		)`)
		args = append(args, *filter.DepartmentID, *filter.DepartmentID)
	}
	if filter.Keyword != "" {
		conditions = append(conditions, "(q.title ILIKE ? OR q.content ILIKE ?)")
		kw := "%" + filter.Keyword + "%"
		args = append(args, kw, kw)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
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

	listQuery := fmt.Sprintf(
		"SELECT %s FROM questions q%s ORDER BY q.created_date DESC, q.id DESC LIMIT %d OFFSET %d",
		qualify(questionColumns, "q"), where, pageSize, offset,
	)
	listQuery, listArgs, err := sqlx.In(listQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("expand question list query: %w", err)
	}
	listQuery = r.db.Rebind(listQuery)

	var questions []models.Question
	if err := r.db.SelectContext(ctx, &questions, listQuery, listArgs...); err != nil {
		return nil, 0, fmt.Errorf("list questions: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM questions q" + where
	countQuery, countArgs, err := sqlx.In(countQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("expand question count query: %w", err)
	}
	countQuery = r.db.Rebind(countQuery)

	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count questions: %w", err)
	}

	return questions, total, nil
}

// DepartmentsFor returns the departments linked to a question on the given
// side.
func (r *QuestionRepository) DepartmentsFor(ctx context.Context, questionID int64, kind DepartmentLinkKind) ([]models.Department, error) {
	query := fmt.Sprintf(`SELECT d.id, d.code, d.name, d.parent_id, d.created_at, d.updated_at
		FROM departments d
		JOIN %s l ON l.department_id = d.id
		WHERE l.question_id = $1
		ORDER BY d.code`, kind.table())
	var depts []models.Department
	if err := r.db.SelectContext(ctx, &depts, query, questionID); err != nil {
		return nil, fmt.Errorf("load question %s departments: %w", kind, err)
	}
	return depts, nil
}

// ReplaceDepartments swaps a question's department links on one side.
func (r *QuestionRepository) ReplaceDepartments(ctx context.Context, questionID int64, kind DepartmentLinkKind, departmentIDs []int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace question departments: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE question_id = $1", kind.table()), questionID); err != nil {
		return fmt.Errorf("clear question %s departments: %w", kind, err)
	}
	if err := insertQuestionLinks(ctx, tx, kind, questionID, departmentIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace question departments: %w", err)
	}
	return nil
}

// UpdateContent edits the question's core fields. Status and close state
// have dedicated mutations.
func (r *QuestionRepository) UpdateContent(ctx context.Context, q *models.Question) error {
	const query = `UPDATE questions SET title = $2, content = $3, year = $4, question_date = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, q.ID, q.Title, q.Content, q.Year, q.QuestionDate); err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	return nil
}

// SetStatus changes the stored lifecycle state.
func (r *QuestionRepository) SetStatus(ctx context.Context, id int64, status models.QuestionStatus) error {
	const query = `UPDATE questions SET status = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status); err != nil {
		return fmt.Errorf("set question status: %w", err)
	}
	return nil
}

// Close marks the question closed, stamping the close date and storing the
// closing summary in a single statement so a failure leaves the question
// untouched.
func (r *QuestionRepository) Close(ctx context.Context, id int64, closedAt time.Time, summary string) error {
	const query = `UPDATE questions SET status = $2, closed_date = $3, summary = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.StatusClosed, closedAt, summary); err != nil {
		return fmt.Errorf("close question: %w", err)
	}
	return nil
}

// UpdateSummary sets or clears the progress summary.
func (r *QuestionRepository) UpdateSummary(ctx context.Context, id int64, summary *string) error {
	const query = `UPDATE questions SET summary = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, summary); err != nil {
		return fmt.Errorf("update question summary: %w", err)
	}
	return nil
}

// HasReplies reports whether any department has replied to the question.
func (r *QuestionRepository) HasReplies(ctx context.Context, questionID int64) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM reports WHERE question_id = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, questionID); err != nil {
		return false, fmt.Errorf("check question replies: %w", err)
	}
	return exists, nil
}

func insertQuestionLinks(ctx context.Context, tx *sqlx.Tx, kind DepartmentLinkKind, questionID int64, departmentIDs []int64) error {
	query := fmt.Sprintf("INSERT INTO %s (question_id, department_id) VALUES ($1, $2) ON CONFLICT DO NOTHING", kind.table())
	for _, id := range departmentIDs {
		if _, err := tx.ExecContext(ctx, query, questionID, id); err != nil {
			return fmt.Errorf("insert question %s link: %w", kind, err)
		}
	}
	return nil
}

// qualify prefixes each column in a comma separated list with an alias.
func qualify(columns, alias string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}
