package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/twgov-oa/question-tracker/internal/service"
	appErrors "github.com/twgov-oa/question-tracker/pkg/errors"
	"github.com/twgov-oa/question-tracker/pkg/response"
)

// ExportHandler streams question listings as downloadable files.
type ExportHandler struct {
	exports *service.ExportService
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports *service.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Questions godoc
// @Summary Export the visible question listing
// @Description Accepts the same filters as the listing endpoint. The export
// @Description only contains questions the caller could open individually.
// @Tags Exports
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Param status query string false "Filter by stored status"
// @Param year query int false "Filter by session year"
// @Param department_id query int false "Filter by linked department"
// @Param keyword query string false "Search in title and content"
// @Success 200 {file} file
// @Router /questions/export [get]
func (h *ExportHandler) Questions(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	format := service.ExportFormat(c.DefaultQuery("format", string(service.FormatCSV)))
	if format != service.FormatCSV && format != service.FormatPDF {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf"))
		return
	}

	filter := questionFilter(c)
	file, err := h.exports.Questions(c.Request.Context(), principal, filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.send(c, file)
}

// Reports godoc
// @Summary Export one question's replies
// @Tags Exports
// @Produce text/csv
// @Produce application/pdf
// @Param id path int true "Question ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /questions/{id}/reports/export [get]
func (h *ExportHandler) Reports(c *gin.Context) {
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

	format := service.ExportFormat(c.DefaultQuery("format", string(service.FormatCSV)))
	if format != service.FormatCSV && format != service.FormatPDF {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf"))
		return
	}

	file, err := h.exports.Reports(c.Request.Context(), principal, id, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.send(c, file)
}

func (h *ExportHandler) send(c *gin.Context, file *service.ExportFile) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
