package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/twgov-oa/question-tracker/internal/middleware"
	"github.com/twgov-oa/question-tracker/internal/models"
)

func principalFromContext(c *gin.Context) *models.Principal {
	principal, ok := middleware.Principal(c)
	if !ok {
		return nil
	}
	return principal
}
