package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/twgov-oa/question-tracker/internal/authz"
	"github.com/twgov-oa/question-tracker/internal/models"
	appErrors "github.com/twgov-oa/question-tracker/pkg/errors"
)

type reportRepository interface {
	Create(ctx context.Context, report *models.Report) error
	FindByID(ctx context.Context, id int64) (*models.Report, error)
	ListByQuestion(ctx context.Context, questionID int64) ([]models.ReportView, error)
	ExistsForDepartment(ctx context.Context, questionID, departmentID int64) (bool, error)
	Update(ctx context.Context, report *models.Report) error
}

type reportQuestionGateway interface {
	FindByID(ctx context.Context, id int64) (*models.Question, error)
	SetStatus(ctx context.Context, id int64, status models.QuestionStatus) error
}

type replyResolver interface {
	ReplyDepartmentFor(ctx context.Context, principal *models.Principal, questionID int64) (*models.Department, error)
}

// ReplyRequest carries a department's reply to a question.
type ReplyRequest struct {
	Content string `json:"content" validate:"required"`
}

// ReportService manages replies. Each answer department files at most one
// reply per question; the first reply moves the question to answered.
type ReportService struct {
	reports   reportRepository
	questions reportQuestionGateway
	resolver  replyResolver
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewReportService constructs a ReportService.
func NewReportService(reports reportRepository, questions reportQuestionGateway, resolver replyResolver, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ReportService{
		reports:   reports,
		questions: questions,
		resolver:  resolver,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// Reply files a reply on behalf of the principal's eligible answer
// department.
func (s *ReportService) Reply(ctx context.Context, principal *models.Principal, questionID int64, req ReplyRequest) (*models.Report, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "reply content is required")
	}

	question, err := s.questions.FindByID(ctx, questionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "question not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch question")
	}
	if question.Status == models.StatusClosed {
		return nil, appErrors.Clone(appErrors.ErrQuestionClosed, "")
	}

	dept, err := s.resolver.ReplyDepartmentFor(ctx, principal, questionID)
	if err != nil {
		return nil, err
	}
	if dept == nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "no eligible answer department for this question")
	}

	report := &models.Report{
		QuestionID:   questionID,
		ReplyContent: req.Content,
		ReplyDate:    time.Now().UTC(),
		UserID:       principal.ID,
		DepartmentID: dept.ID,
	}
	if err := s.reports.Create(ctx, report); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store reply")
	}

	if question.Status == models.StatusPending {
		if err := s.questions.SetStatus(ctx, questionID, models.StatusAnswered); err != nil {
			s.logger.Warn("failed to advance question status", zap.Int64("question_id", questionID), zap.Error(err))
		}
	}

	s.metrics.RecordReplyFiled()
	s.logger.Info("reply filed",
		zap.Int64("question_id", questionID),
		zap.Int64("department_id", dept.ID),
		zap.Int64("user_id", principal.ID),
	)
	return report, nil
}

// Update edits an existing reply. Only the reply's original author or a
// manage-level role may edit, and not after the question closes.
func (s *ReportService) Update(ctx context.Context, principal *models.Principal, reportID int64, req ReplyRequest) (*models.Report, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "reply content is required")
	}

	report, err := s.reports.FindByID(ctx, reportID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "reply not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch reply")
	}

	question, err := s.questions.FindByID(ctx, report.QuestionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch question")
	}
	if question.Status == models.StatusClosed {
		return nil, appErrors.Clone(appErrors.ErrQuestionClosed, "")
	}

	if !s.canEdit(principal, report) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "no access to this reply")
	}

	report.ReplyContent = req.Content
	if err := s.reports.Update(ctx, report); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update reply")
	}
	return report, nil
}

func (s *ReportService) canEdit(principal *models.Principal, report *models.Report) bool {
	if report.UserID == principal.ID {
		return true
	}
	return authz.HasPermission(principal, models.CapManageRoles) ||
		authz.HasPermission(principal, models.CapManageAll)
}
