package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/twgov-oa/question-tracker/internal/service"
	appErrors "github.com/twgov-oa/question-tracker/pkg/errors"
	"github.com/twgov-oa/question-tracker/pkg/response"
)

// RoleHandler exposes role administration endpoints.
type RoleHandler struct {
	roles *service.RoleService
}

// NewRoleHandler constructs RoleHandler.
func NewRoleHandler(roles *service.RoleService) *RoleHandler {
	return &RoleHandler{roles: roles}
}

// List godoc
// @Summary List roles
// @Tags Roles
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /roles [get]
func (h *RoleHandler) List(c *gin.Context) {
	roles, err := h.roles.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roles, nil)
}

// Capabilities godoc
// @Summary List the permission catalog
// @Tags Roles
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /roles/capabilities [get]
func (h *RoleHandler) Capabilities(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.roles.Capabilities(), nil)
}

// Get godoc
// @Summary Get role detail
// @Tags Roles
// @Produce json
// @Param id path int true "Role ID"
// @Success 200 {object} response.Envelope
// @Router /roles/{id} [get]
func (h *RoleHandler) Get(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	role, err := h.roles.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, role, nil)
}

// Create godoc
// @Summary Create a role
// @Tags Roles
// @Accept json
// @Produce json
// @Param payload body service.RoleRequest true "Role payload"
// @Success 201 {object} response.Envelope
// @Router /roles [post]
func (h *RoleHandler) Create(c *gin.Context) {
	var req service.RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	role, err := h.roles.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, role)
}

// Update godoc
// @Summary Edit a role
// @Tags Roles
// @Accept json
// @Produce json
// @Param id path int true "Role ID"
// @Param payload body service.RoleRequest true "Role payload"
// @Success 200 {object} response.Envelope
// @Router /roles/{id} [put]
func (h *RoleHandler) Update(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	role, err := h.roles.Update(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, role, nil)
}

// Delete godoc
// @Summary Delete a role
// @Description Refused while any account still holds the role.
// @Tags Roles
// @Produce json
// @Param id path int true "Role ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /roles/{id} [delete]
func (h *RoleHandler) Delete(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.roles.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
