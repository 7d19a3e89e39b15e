package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twgov-oa/question-tracker/internal/models"
	appErrors "github.com/twgov-oa/question-tracker/pkg/errors"
)

type mockReportRepo struct {
	reports map[int64]*models.Report
	created *models.Report
}

func (m *mockReportRepo) Create(ctx context.Context, report *models.Report) error {
	report.ID = 21
	m.created = report
	return nil
}

func (m *mockReportRepo) FindByID(ctx context.Context, id int64) (*models.Report, error) {
	r, ok := m.reports[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *r
	return &copied, nil
}

func (m *mockReportRepo) ListByQuestion(ctx context.Context, questionID int64) ([]models.ReportView, error) {
	return nil, nil
}

func (m *mockReportRepo) ExistsForDepartment(ctx context.Context, questionID, departmentID int64) (bool, error) {
	return false, nil
}

func (m *mockReportRepo) Update(ctx context.Context, report *models.Report) error {
	m.reports[report.ID] = report
	return nil
}

type mockQuestionGateway struct {
	questions map[int64]*models.Question
	statusSet *models.QuestionStatus
}

func (m *mockQuestionGateway) FindByID(ctx context.Context, id int64) (*models.Question, error) {
	q, ok := m.questions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *q
	return &copied, nil
}

func (m *mockQuestionGateway) SetStatus(ctx context.Context, id int64, status models.QuestionStatus) error {
	m.statusSet = &status
	if q, ok := m.questions[id]; ok {
		q.Status = status
	}
	return nil
}

type mockResolver struct {
	dept *models.Department
}

func (m *mockResolver) ReplyDepartmentFor(ctx context.Context, principal *models.Principal, questionID int64) (*models.Department, error) {
	return m.dept, nil
}

func TestReplyAdvancesPendingQuestion(t *testing.T) {
	repo := &mockReportRepo{}
	gateway := &mockQuestionGateway{questions: map[int64]*models.Question{
		5: {ID: 5, Status: models.StatusPending},
	}}
	resolver := &mockResolver{dept: &models.Department{ID: 3, Code: "0300"}}
	svc := NewReportService(repo, gateway, resolver, nil, nil, nil)
	p := principalWith([]models.Capability{models.CapCreateReport}, models.Department{ID: 3, Code: "0300"})

	report, err := svc.Reply(context.Background(), p, 5, ReplyRequest{Content: "Work completed."})
	require.NoError(t, err)
	assert.Equal(t, int64(21), report.ID)
	assert.Equal(t, int64(3), report.DepartmentID)
	assert.Equal(t, int64(9), report.UserID)
	require.NotNil(t, gateway.statusSet)
	assert.Equal(t, models.StatusAnswered, *gateway.statusSet)
}

func TestReplyKeepsAnsweredStatus(t *testing.T) {
	repo := &mockReportRepo{}
	gateway := &mockQuestionGateway{questions: map[int64]*models.Question{
		5: {ID: 5, Status: models.StatusAnswered},
	}}
	resolver := &mockResolver{dept: &models.Department{ID: 4, Code: "0400"}}
	svc := NewReportService(repo, gateway, resolver, nil, nil, nil)
	p := principalWith([]models.Capability{models.CapCreateReport}, models.Department{ID: 4, Code: "0400"})

	_, err := svc.Reply(context.Background(), p, 5, ReplyRequest{Content: "Second department reply."})
	require.NoError(t, err)
	assert.Nil(t, gateway.statusSet)
}

func TestReplyRejectsClosedQuestion(t *testing.T) {
	closedAt := time.Now().UTC()
	gateway := &mockQuestionGateway{questions: map[int64]*models.Question{
		5: {ID: 5, Status: models.StatusClosed, ClosedDate: &closedAt},
	}}
	svc := NewReportService(&mockReportRepo{}, gateway, &mockResolver{}, nil, nil, nil)
	p := principalWith([]models.Capability{models.CapCreateReport})

	_, err := svc.Reply(context.Background(), p, 5, ReplyRequest{Content: "Too late."})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrQuestionClosed.Code, appErrors.FromError(err).Code)
}

func TestReplyRequiresEligibleDepartment(t *testing.T) {
	gateway := &mockQuestionGateway{questions: map[int64]*models.Question{
		5: {ID: 5, Status: models.StatusPending},
	}}
	svc := NewReportService(&mockReportRepo{}, gateway, &mockResolver{dept: nil}, nil, nil, nil)
	p := principalWith([]models.Capability{models.CapCreateReport}, models.Department{ID: 1, Code: "0200"})

	_, err := svc.Reply(context.Background(), p, 5, ReplyRequest{Content: "Not my question."})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestUpdateReplyByAuthor(t *testing.T) {
	repo := &mockReportRepo{reports: map[int64]*models.Report{
		21: {ID: 21, QuestionID: 5, UserID: 9, DepartmentID: 3, ReplyContent: "Original"},
	}}
	gateway := &mockQuestionGateway{questions: map[int64]*models.Question{
		5: {ID: 5, Status: models.StatusAnswered},
	}}
	svc := NewReportService(repo, gateway, &mockResolver{}, nil, nil, nil)
	p := principalWith([]models.Capability{models.CapEditReport, models.CapManageRoles}, models.Department{ID: 3, Code: "0300"})

	report, err := svc.Update(context.Background(), p, 21, ReplyRequest{Content: "Amended"})
	require.NoError(t, err)
	assert.Equal(t, "Amended", report.ReplyContent)
}

func TestUpdateReplyForbiddenForColleague(t *testing.T) {
	// Same department as the filing user, but not the author.
	repo := &mockReportRepo{reports: map[int64]*models.Report{
		21: {ID: 21, QuestionID: 5, UserID: 7, DepartmentID: 3, ReplyContent: "Original"},
	}}
	gateway := &mockQuestionGateway{questions: map[int64]*models.Question{
		5: {ID: 5, Status: models.StatusAnswered},
	}}
	svc := NewReportService(repo, gateway, &mockResolver{}, nil, nil, nil)
	p := principalWith([]models.Capability{models.CapEditReport}, models.Department{ID: 3, Code: "0300"})

	_, err := svc.Update(context.Background(), p, 21, ReplyRequest{Content: "Hijacked"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestUpdateReplyByRoleManager(t *testing.T) {
	repo := &mockReportRepo{reports: map[int64]*models.Report{
		21: {ID: 21, QuestionID: 5, UserID: 7, DepartmentID: 3, ReplyContent: "Original"},
	}}
	gateway := &mockQuestionGateway{questions: map[int64]*models.Question{
		5: {ID: 5, Status: models.StatusAnswered},
	}}
	svc := NewReportService(repo, gateway, &mockResolver{}, nil, nil, nil)
	p := principalWith([]models.Capability{models.CapEditReport, models.CapManageRoles}, models.Department{ID: 4, Code: "0400"})

	report, err := svc.Update(context.Background(), p, 21, ReplyRequest{Content: "Corrected by admin"})
	require.NoError(t, err)
	assert.Equal(t, "Corrected by admin", report.ReplyContent)
}
