package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/twgov-oa/question-tracker/internal/service"
	appErrors "github.com/twgov-oa/question-tracker/pkg/errors"
	"github.com/twgov-oa/question-tracker/pkg/response"
)

// DepartmentHandler exposes department directory endpoints.
type DepartmentHandler struct {
	depts *service.DepartmentService
}

// NewDepartmentHandler constructs DepartmentHandler.
func NewDepartmentHandler(depts *service.DepartmentService) *DepartmentHandler {
	return &DepartmentHandler{depts: depts}
}

// List godoc
// @Summary List the department directory
// @Tags Departments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /departments [get]
func (h *DepartmentHandler) List(c *gin.Context) {
	depts, err := h.depts.Directory(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, depts, nil)
}

// Bureaus godoc
// @Summary List bureau-level departments
// @Tags Departments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /departments/bureaus [get]
func (h *DepartmentHandler) Bureaus(c *gin.Context) {
	depts, err := h.depts.ListBureaus(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, depts, nil)
}

// Get godoc
// @Summary Get department detail
// @Tags Departments
// @Produce json
// @Param id path int true "Department ID"
// @Success 200 {object} response.Envelope
// @Router /departments/{id} [get]
func (h *DepartmentHandler) Get(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	dept, err := h.depts.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dept, nil)
}

// Create godoc
// @Summary Create a department
// @Description Section codes require their bureau to exist first.
// @Tags Departments
// @Accept json
// @Produce json
// @Param payload body service.CreateDepartmentRequest true "Department payload"
// @Success 201 {object} response.Envelope
// @Router /departments [post]
func (h *DepartmentHandler) Create(c *gin.Context) {
	var req service.CreateDepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	dept, err := h.depts.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dept)
}

// Update godoc
// @Summary Rename or reparent a department
// @Tags Departments
// @Accept json
// @Produce json
// @Param id path int true "Department ID"
// @Param payload body service.UpdateDepartmentRequest true "Department payload"
// @Success 200 {object} response.Envelope
// @Router /departments/{id} [put]
func (h *DepartmentHandler) Update(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.UpdateDepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	dept, err := h.depts.Update(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dept, nil)
}

// Delete godoc
// @Summary Delete a department
// @Description Refused while child departments, question links or user memberships remain.
// @Tags Departments
// @Produce json
// @Param id path int true "Department ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /departments/{id} [delete]
func (h *DepartmentHandler) Delete(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.depts.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
