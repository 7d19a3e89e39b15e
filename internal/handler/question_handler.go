package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/twgov-oa/question-tracker/internal/models"
	"github.com/twgov-oa/question-tracker/internal/service"
	appErrors "github.com/twgov-oa/question-tracker/pkg/errors"
	"github.com/twgov-oa/question-tracker/pkg/response"
)

// QuestionHandler exposes the question and reply endpoints.
type QuestionHandler struct {
	questions *service.QuestionService
	reports   *service.ReportService
}

// NewQuestionHandler constructs QuestionHandler.
func NewQuestionHandler(questions *service.QuestionService, reports *service.ReportService) *QuestionHandler {
	return &QuestionHandler{questions: questions, reports: reports}
}

// List godoc
// @Summary List questions visible to the signed-in account
// @Tags Questions
// @Produce json
// @Param status query string false "Filter by stored status"
// @Param year query int false "Filter by session year"
// @Param department_id query int false "Filter by linked department"
// @Param keyword query string false "Search in title and content"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /questions [get]
func (h *QuestionHandler) List(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := questionFilter(c)
	questions, pagination, err := h.questions.List(c.Request.Context(), principal, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, questions, pagination)
}

// Get godoc
// @Summary Get question detail with its reports
// @Tags Questions
// @Produce json
// @Param id path int true "Question ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /questions/{id} [get]
func (h *QuestionHandler) Get(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	id, err := pathID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	detail, err := h.questions.Detail(c.Request.Context(), principal, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Create godoc
// @Summary File a question
// @Tags Questions
// @Accept json
// @Produce json
// @Param payload body service.CreateQuestionRequest true "Question payload"
// @Success 201 {object} response.Envelope
// @Router /questions [post]
func (h *QuestionHandler) Create(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CreateQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	question, err := h.questions.Create(c.Request.Context(), principal, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, question)
}

// Update godoc
// @Summary Edit a question's content and department links
// @Tags Questions
// @Accept json
// @Produce json
// @Param id path int true "Question ID"
// @Param payload body service.UpdateQuestionRequest true "Question payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /questions/{id} [put]
func (h *QuestionHandler) Update(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	id, err := pathID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.UpdateQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	question, err := h.questions.Update(c.Request.Context(), principal, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, question, nil)
}

// Close godoc
// @Summary Close a question
// @Description Stamps the closed date and freezes further replies and edits.
// @Tags Questions
// @Accept json
// @Produce json
// @Param id path int true "Question ID"
// @Param payload body service.CloseQuestionRequest true "Closing summary"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /questions/{id}/close [post]
func (h *QuestionHandler) Close(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	id, err := pathID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.CloseQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	question, err := h.questions.Close(c.Request.Context(), principal, id, req, c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, question, nil)
}

// UpdateSummary godoc
// @Summary Edit a question's progress summary
// @Description Only the question's creator may edit the summary while open.
// @Tags Questions
// @Accept json
// @Produce json
// @Param id path int true "Question ID"
// @Param payload body service.SummaryRequest true "Summary payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /questions/{id}/summary [put]
func (h *QuestionHandler) UpdateSummary(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	id, err := pathID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.SummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	question, err := h.questions.UpdateSummary(c.Request.Context(), principal, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, question, nil)
}

// Reply godoc
// @Summary File a report answering a question
// @Description The reply is attributed to the caller's first eligible answer department.
// @Tags Reports
// @Accept json
// @Produce json
// @Param id path int true "Question ID"
// @Param payload body service.ReplyRequest true "Report payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /questions/{id}/reports [post]
func (h *QuestionHandler) Reply(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	id, err := pathID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.ReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	report, err := h.reports.Reply(c.Request.Context(), principal, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, report)
}

// UpdateReport godoc
// @Summary Edit an existing report
// @Tags Reports
// @Accept json
// @Produce json
// @Param id path int true "Report ID"
// @Param payload body service.ReplyRequest true "Report payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /reports/{id} [put]
func (h *QuestionHandler) UpdateReport(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	id, err := pathID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.ReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	report, err := h.reports.Update(c.Request.Context(), principal, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// ListByDepartment godoc
// @Summary List questions linked to one department
// @Description The department access check runs before the handler; the
// @Description listing is additionally scoped to the caller's visibility.
// @Tags Questions
// @Produce json
// @Param id path int true "Department ID"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /departments/{id}/questions [get]
func (h *QuestionHandler) ListByDepartment(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	id, err := pathID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	filter := questionFilter(c)
	filter.DepartmentID = &id
	questions, pagination, err := h.questions.List(c.Request.Context(), principal, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, questions, pagination)
}

func questionFilter(c *gin.Context) models.QuestionFilter {
	var filter models.QuestionFilter
	filter.Status = strings.TrimSpace(c.Query("status"))
	filter.Keyword = strings.TrimSpace(c.Query("keyword"))
	if year, err := strconv.Atoi(c.Query("year")); err == nil {
		filter.Year = &year
	}
	if deptID, err := strconv.ParseInt(c.Query("department_id"), 10, 64); err == nil {
		filter.DepartmentID = &deptID
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	return filter
}
