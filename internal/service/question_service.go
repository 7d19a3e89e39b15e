package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/twgov-oa/question-tracker/internal/authz"
	"github.com/twgov-oa/question-tracker/internal/models"
	"github.com/twgov-oa/question-tracker/internal/repository"
	appErrors "github.com/twgov-oa/question-tracker/pkg/errors"
)

type questionRepository interface {
	Create(ctx context.Context, q *models.Question, reportDeptIDs, answerDeptIDs []int64) error
	FindByID(ctx context.Context, id int64) (*models.Question, error)
	List(ctx context.Context, filter models.QuestionFilter, accessibleDeptIDs []int64) ([]models.Question, int, error)
	DepartmentsFor(ctx context.Context, questionID int64, kind repository.DepartmentLinkKind) ([]models.Department, error)
	ReplaceDepartments(ctx context.Context, questionID int64, kind repository.DepartmentLinkKind, departmentIDs []int64) error
	UpdateContent(ctx context.Context, q *models.Question) error
	Close(ctx context.Context, id int64, closedAt time.Time, summary string) error
	UpdateSummary(ctx context.Context, id int64, summary *string) error
	HasReplies(ctx context.Context, questionID int64) (bool, error)
}

type questionReportRepository interface {
	ListByQuestion(ctx context.Context, questionID int64) ([]models.ReportView, error)
	ExistsForDepartment(ctx context.Context, questionID, departmentID int64) (bool, error)
}

type directoryProvider interface {
	Lookup(ctx context.Context) (authz.DepartmentLookup, []models.Department, error)
}

// CreateQuestionRequest carries input for filing a question.
type CreateQuestionRequest struct {
	Title               string     `json:"title" validate:"required,max=200"`
	Content             string     `json:"content" validate:"required"`
	Year                *int       `json:"year"`
	QuestionDate        *time.Time `json:"question_date"`
	ReportDepartmentIDs []int64    `json:"report_department_ids" validate:"required,min=1"`
	AnswerDepartmentIDs []int64    `json:"answer_department_ids" validate:"required,min=1"`
}

// UpdateQuestionRequest carries input for editing a question's content.
type UpdateQuestionRequest struct {
	Title        string     `json:"title" validate:"required,max=200"`
	Content      string     `json:"content" validate:"required"`
	Year         *int       `json:"year"`
	QuestionDate *time.Time `json:"question_date"`
}

// CloseQuestionRequest carries the closing summary.
type CloseQuestionRequest struct {
	Summary string `json:"summary" validate:"required"`
}

// QuestionService manages the question lifecycle: filing, scoped listing,
// detail resolution, editing and closing.
type QuestionService struct {
	questions questionRepository
	reports   questionReportRepository
	depts     directoryProvider
	audit     auditWriter
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewQuestionService constructs a QuestionService.
func NewQuestionService(questions questionRepository, reports questionReportRepository, depts directoryProvider, audit auditWriter, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *QuestionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &QuestionService{
		questions: questions,
		reports:   reports,
		depts:     depts,
		audit:     audit,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// Create files a question. Both department sets must name existing
// bureau-level departments and must not overlap.
func (s *QuestionService) Create(ctx context.Context, principal *models.Principal, req CreateQuestionRequest) (*models.Question, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid question payload")
	}

	lookup, _, err := s.depts.Lookup(ctx)
	if err != nil {
		return nil, err
	}

	if err := validateBureauSet(lookup, req.ReportDepartmentIDs, "report"); err != nil {
		return nil, err
	}
	if err := validateBureauSet(lookup, req.AnswerDepartmentIDs, "answer"); err != nil {
		return nil, err
	}
	if overlap := intersect(req.ReportDepartmentIDs, req.AnswerDepartmentIDs); len(overlap) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "report and answer departments must not overlap")
	}

	q := &models.Question{
		Title:        req.Title,
		Content:      req.Content,
		Year:         req.Year,
		QuestionDate: req.QuestionDate,
		Status:       models.StatusPending,
		CreatorID:    principal.ID,
	}
	if err := s.questions.Create(ctx, q, req.ReportDepartmentIDs, req.AnswerDepartmentIDs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create question")
	}

	s.metrics.RecordQuestionFiled()
	s.logger.Info("question created", zap.Int64("id", q.ID), zap.Int64("creator_id", principal.ID))
	return q, nil
}

// List returns the questions visible to the principal. Holders of the
// global override see everything; everyone else is scoped to the
// departments the access predicate admits.
func (s *QuestionService) List(ctx context.Context, principal *models.Principal, filter models.QuestionFilter) ([]models.QuestionSummary, *models.Pagination, error) {
	_, directory, err := s.depts.Lookup(ctx)
	if err != nil {
		return nil, nil, err
	}

	var scope []int64
	if !authz.HasPermission(principal, models.CapManageAll) {
		scope = authz.AccessibleDepartmentIDs(principal, directory)
		if scope == nil {
			scope = []int64{}
		}
	}

	questions, total, err := s.questions.List(ctx, filter, scope)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list questions")
	}

	summaries := make([]models.QuestionSummary, 0, len(questions))
	for i := range questions {
		summary, err := s.summarize(ctx, &questions[i])
		if err != nil {
			return nil, nil, err
		}
		summaries = append(summaries, *summary)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return summaries, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Detail resolves a question with its departments, replies and the
// principal's reply eligibility. Principals outside both department sets
// are refused.
func (s *QuestionService) Detail(ctx context.Context, principal *models.Principal, id int64) (*models.QuestionDetail, error) {
	q, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	reportDepts, answerDepts, err := s.departmentSets(ctx, id)
	if err != nil {
		return nil, err
	}

	lookup, _, err := s.depts.Lookup(ctx)
	if err != nil {
		return nil, err
	}
	if !authz.CanAccessQuestion(principal, reportDepts, answerDepts, lookup) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "no access to this question")
	}

	views, err := s.reports.ListByQuestion(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list replies")
	}

	canReply := false
	if q.Status != models.StatusClosed && authz.HasPermission(principal, models.CapCreateReport) {
		if dept := s.replyDepartment(ctx, principal, id, answerDepts, lookup); dept != nil {
			canReply = true
		}
	}

	detail := &models.QuestionDetail{
		Question:          *q,
		DisplayStatus:     models.DeriveDisplayStatus(q, len(views) > 0),
		ReportDepartments: reportDepts,
		AnswerDepartments: answerDepts,
		Reports:           views,
		CanReply:          canReply,
	}
	return detail, nil
}

// Update edits a question's content. Closed questions are immutable.
func (s *QuestionService) Update(ctx context.Context, principal *models.Principal, id int64, req UpdateQuestionRequest) (*models.Question, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid question payload")
	}

	q, err := s.authorizeMutation(ctx, principal, id)
	if err != nil {
		return nil, err
	}

	q.Title = req.Title
	q.Content = req.Content
	q.Year = req.Year
	q.QuestionDate = req.QuestionDate
	if err := s.questions.UpdateContent(ctx, q); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update question")
	}
	return q, nil
}

// Close marks a question closed with a summary and stamps the close date.
func (s *QuestionService) Close(ctx context.Context, principal *models.Principal, id int64, req CloseQuestionRequest, ip, userAgent string) (*models.Question, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "closing summary is required")
	}

	q, err := s.authorizeMutation(ctx, principal, id)
	if err != nil {
		return nil, err
	}

	closedAt := time.Now().UTC()
	if err := s.questions.Close(ctx, id, closedAt, req.Summary); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close question")
	}

	q.Status = models.StatusClosed
	q.ClosedDate = &closedAt
	q.Summary = &req.Summary

	if s.audit != nil {
		resourceID := strconv.FormatInt(id, 10)
		entry := &models.AuditLog{
			UserID:     &principal.ID,
			Action:     models.AuditActionQuestionClose,
			Resource:   "questions",
			ResourceID: &resourceID,
			IPAddress:  ip,
			UserAgent:  userAgent,
		}
		if err := s.audit.Create(ctx, entry); err != nil {
			s.logger.Warn("failed to write audit log", zap.Error(err))
		}
	}

	s.metrics.RecordQuestionClosed()
	s.logger.Info("question closed", zap.Int64("id", id), zap.Int64("actor_id", principal.ID))
	return q, nil
}

// SummaryRequest carries a progress summary edit.
type SummaryRequest struct {
	Summary string `json:"summary" validate:"required"`
}

// UpdateSummary edits the progress summary of an open question. Only the
// creator may change it.
func (s *QuestionService) UpdateSummary(ctx context.Context, principal *models.Principal, id int64, req SummaryRequest) (*models.Question, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "summary is required")
	}

	q, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if q.Status == models.StatusClosed {
		return nil, appErrors.Clone(appErrors.ErrQuestionClosed, "")
	}
	if q.CreatorID != principal.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the creator may edit the summary")
	}

	if err := s.questions.UpdateSummary(ctx, id, &req.Summary); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update summary")
	}
	q.Summary = &req.Summary
	return q, nil
}

// ReplyDepartmentFor returns the answer department the principal would
// reply under, or nil when none is eligible. Used by the report service.
func (s *QuestionService) ReplyDepartmentFor(ctx context.Context, principal *models.Principal, questionID int64) (*models.Department, error) {
	_, answerDepts, err := s.departmentSets(ctx, questionID)
	if err != nil {
		return nil, err
	}
	lookup, _, err := s.depts.Lookup(ctx)
	if err != nil {
		return nil, err
	}
	return s.replyDepartment(ctx, principal, questionID, answerDepts, lookup), nil
}

func (s *QuestionService) find(ctx context.Context, id int64) (*models.Question, error) {
	q, err := s.questions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "question not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch question")
	}
	return q, nil
}

// authorizeMutation loads a question and verifies the principal may change
// it: access through either department set, and not already closed.
func (s *QuestionService) authorizeMutation(ctx context.Context, principal *models.Principal, id int64) (*models.Question, error) {
	q, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if q.Status == models.StatusClosed {
		return nil, appErrors.Clone(appErrors.ErrQuestionClosed, "")
	}

	reportDepts, answerDepts, err := s.departmentSets(ctx, id)
	if err != nil {
		return nil, err
	}
	lookup, _, err := s.depts.Lookup(ctx)
	if err != nil {
		return nil, err
	}
	if !authz.CanAccessQuestion(principal, reportDepts, answerDepts, lookup) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "no access to this question")
	}
	return q, nil
}

func (s *QuestionService) departmentSets(ctx context.Context, questionID int64) ([]models.Department, []models.Department, error) {
	reportDepts, err := s.questions.DepartmentsFor(ctx, questionID, repository.LinkReport)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report departments")
	}
	answerDepts, err := s.questions.DepartmentsFor(ctx, questionID, repository.LinkAnswer)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load answer departments")
	}
	return reportDepts, answerDepts, nil
}

func (s *QuestionService) summarize(ctx context.Context, q *models.Question) (*models.QuestionSummary, error) {
	reportDepts, answerDepts, err := s.departmentSets(ctx, q.ID)
	if err != nil {
		return nil, err
	}

	hasReply := false
	if q.Status == models.StatusClosed && q.ClosedDate == nil {
		hasReply, err = s.questions.HasReplies(ctx, q.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check replies")
		}
	}

	return &models.QuestionSummary{
		Question:          *q,
		DisplayStatus:     models.DeriveDisplayStatus(q, hasReply),
		ReportDepartments: reportDepts,
		AnswerDepartments: answerDepts,
	}, nil
}

// replyDepartment picks the first answer department the principal can act
// on that has not replied yet.
func (s *QuestionService) replyDepartment(ctx context.Context, principal *models.Principal, questionID int64, answerDepts []models.Department, lookup authz.DepartmentLookup) *models.Department {
	for i := range answerDepts {
		if !authz.CanAccessDepartment(principal, answerDepts[i].ID, lookup) {
			continue
		}
		replied, err := s.reports.ExistsForDepartment(ctx, questionID, answerDepts[i].ID)
		if err != nil {
			s.logger.Warn("failed to check existing reply", zap.Error(err))
			continue
		}
		if !replied {
			return &answerDepts[i]
		}
	}
	return nil
}

func validateBureauSet(lookup authz.DepartmentLookup, ids []int64, side string) error {
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate %s department %d", side, id))
		}
		seen[id] = true

		dept := lookup(id)
		if dept == nil {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s department %d does not exist", side, id))
		}
		if !dept.IsBureau() {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s department %s is not bureau level", side, dept.Code))
		}
	}
	return nil
}

func intersect(a, b []int64) []int64 {
	inA := make(map[int64]bool, len(a))
	for _, id := range a {
		inA[id] = true
	}
	var both []int64
	for _, id := range b {
		if inA[id] {
			both = append(both, id)
		}
	}
	return both
}
