package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/twgov-oa/question-tracker/internal/repository"
	"github.com/twgov-oa/question-tracker/pkg/response"
)

// AuditHandler exposes the audit trail to operators.
type AuditHandler struct {
	audit *repository.AuditRepository
}

// NewAuditHandler constructs AuditHandler.
func NewAuditHandler(audit *repository.AuditRepository) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// List godoc
// @Summary List recent audit entries
// @Tags Audit
// @Produce json
// @Param limit query int false "Entry count, capped at 500"
// @Success 200 {object} response.Envelope
// @Router /audit-logs [get]
func (h *AuditHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	entries, err := h.audit.ListRecent(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
