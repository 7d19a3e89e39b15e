package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/twgov-oa/question-tracker/internal/authz"
	"github.com/twgov-oa/question-tracker/internal/models"
	"github.com/twgov-oa/question-tracker/internal/service"
	appErrors "github.com/twgov-oa/question-tracker/pkg/errors"
	"github.com/twgov-oa/question-tracker/pkg/response"
)

// HomePath is where browser clients are sent when a route is forbidden.
const HomePath = "/"

// RequirePermission gates a route on a capability. Authentication must
// already have run; a missing principal is treated as unauthenticated.
func RequirePermission(capability models.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := Principal(c)
		if !ok {
			reject(c, appErrors.ErrUnauthorized)
			return
		}
		if !authz.HasPermission(principal, capability) {
			forbid(c)
			return
		}
		c.Next()
	}
}

// RequireDepartmentAccess additionally gates a route on access to the
// department named by the given route parameter.
func RequireDepartmentAccess(capability models.Capability, param string, depts *service.DepartmentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := Principal(c)
		if !ok {
			reject(c, appErrors.ErrUnauthorized)
			return
		}
		if !authz.HasPermission(principal, capability) {
			forbid(c)
			return
		}

		targetID, err := strconv.ParseInt(c.Param(param), 10, 64)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid department id"))
			c.Abort()
			return
		}

		lookup, _, err := depts.Lookup(c.Request.Context())
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		if !authz.CanAccessDepartment(principal, targetID, lookup) {
			forbid(c)
			return
		}
		c.Next()
	}
}

func forbid(c *gin.Context) {
	if prefersHTML(c) {
		response.Redirect(c, HomePath)
	} else {
		response.Error(c, appErrors.ErrForbidden)
	}
	c.Abort()
}
