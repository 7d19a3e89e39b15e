package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/twgov-oa/question-tracker/internal/models"
	appErrors "github.com/twgov-oa/question-tracker/pkg/errors"
	"github.com/twgov-oa/question-tracker/pkg/export"
)

// ExportFormat selects the download encoding.
type ExportFormat string

const (
	FormatCSV ExportFormat = "csv"
	FormatPDF ExportFormat = "pdf"
)

const exportPageSize = 100

type questionLister interface {
	List(ctx context.Context, principal *models.Principal, filter models.QuestionFilter) ([]models.QuestionSummary, *models.Pagination, error)
	Detail(ctx context.Context, principal *models.Principal, id int64) (*models.QuestionDetail, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportFile is a rendered download.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders the principal's visible question listing as CSV or
// PDF. The same department scoping as the list view applies; an export can
// never leak a question the caller could not open.
type ExportService struct {
	questions questionLister
	csv       datasetRenderer
	pdf       datasetRenderer
	logger    *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(questions questionLister, csv, pdf datasetRenderer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{questions: questions, csv: csv, pdf: pdf, logger: logger}
}

// Questions exports every visible question matching the filter.
func (s *ExportService) Questions(ctx context.Context, principal *models.Principal, filter models.QuestionFilter, format ExportFormat) (*ExportFile, error) {
	summaries, err := s.collect(ctx, principal, filter)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Title:   "Question Listing",
		Headers: []string{"ID", "Title", "Year", "Status", "Report Departments", "Answer Departments", "Created", "Closed"},
	}
	for _, q := range summaries {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"ID":                 strconv.FormatInt(q.ID, 10),
			"Title":              q.Title,
			"Year":               formatYear(q.Year),
			"Status":             string(q.DisplayStatus),
			"Report Departments": departmentNames(q.ReportDepartments),
			"Answer Departments": departmentNames(q.AnswerDepartments),
			"Created":            q.CreatedDate.Format("2006-01-02"),
			"Closed":             formatDate(q.ClosedDate),
		})
	}

	return s.render(dataset, "questions", format)
}

// Reports exports one question's replies. Access is enforced by the same
// check as the detail view.
func (s *ExportService) Reports(ctx context.Context, principal *models.Principal, questionID int64, format ExportFormat) (*ExportFile, error) {
	detail, err := s.questions.Detail(ctx, principal, questionID)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Title:   fmt.Sprintf("Replies to Question #%d", questionID),
		Headers: []string{"ID", "Department", "Author", "Reply Date", "Content"},
	}
	for _, r := range detail.Reports {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"ID":         strconv.FormatInt(r.ID, 10),
			"Department": r.DepartmentName,
			"Author":     r.Username,
			"Reply Date": r.ReplyDate.Format("2006-01-02"),
			"Content":    r.ReplyContent,
		})
	}

	return s.render(dataset, fmt.Sprintf("question-%d-reports", questionID), format)
}

func (s *ExportService) collect(ctx context.Context, principal *models.Principal, filter models.QuestionFilter) ([]models.QuestionSummary, error) {
	filter.Page = 1
	filter.PageSize = exportPageSize

	var all []models.QuestionSummary
	for {
		page, pagination, err := s.questions.List(ctx, principal, filter)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(all) >= pagination.TotalCount || len(page) == 0 {
			return all, nil
		}
		filter.Page++
	}
}

func (s *ExportService) render(dataset export.Dataset, stem string, format ExportFormat) (*ExportFile, error) {
	timestamp := time.Now().UTC().Format("20060102-150405")
	switch format {
	case FormatCSV:
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv export")
		}
		return &ExportFile{
			Filename:    fmt.Sprintf("%s-%s.csv", stem, timestamp),
			ContentType: "text/csv; charset=utf-8",
			Data:        data,
		}, nil
	case FormatPDF:
		data, err := s.pdf.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf export")
		}
		return &ExportFile{
			Filename:    fmt.Sprintf("%s-%s.pdf", stem, timestamp),
			ContentType: "application/pdf",
			Data:        data,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}

func departmentNames(depts []models.Department) string {
	names := make([]string, 0, len(depts))
	for _, d := range depts {
		names = append(names, d.Name)
	}
	return strings.Join(names, "; ")
}

func formatYear(year *int) string {
	if year == nil {
		return ""
	}
	return strconv.Itoa(*year)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
