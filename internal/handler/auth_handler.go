package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/twgov-oa/question-tracker/internal/models"
	"github.com/twgov-oa/question-tracker/internal/service"
	appErrors "github.com/twgov-oa/question-tracker/pkg/errors"
	"github.com/twgov-oa/question-tracker/pkg/response"
)

// CookieConfig describes the session cookie the handler issues.
type CookieConfig struct {
	Name   string
	MaxAge int
	Secure bool
}

// AuthHandler exposes authentication endpoints.
type AuthHandler struct {
	auth   *service.AuthService
	cookie CookieConfig
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *service.AuthService, cookie CookieConfig) *AuthHandler {
	return &AuthHandler{auth: auth, cookie: cookie}
}

// Login godoc
// @Summary Sign in with username and password
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.LoginRequest true "Credentials"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.IP = c.ClientIP()
	req.UserAgent = c.GetHeader("User-Agent")

	resp, err := h.auth.Login(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	h.setSessionCookie(c, resp.AccessToken)
	response.JSON(c, http.StatusOK, resp, nil)
}

// SSOCallback godoc
// @Summary Complete gateway single sign-on
// @Description Exchanges the gateway artifact and establishes a session.
// @Tags Authentication
// @Produce json
// @Param ssoToken1 query string false "Gateway artifact"
// @Param SAMLart query string false "Gateway artifact (SAML form)"
// @Success 303
// @Failure 401 {object} response.Envelope
// @Router /auth/sso [get]
func (h *AuthHandler) SSOCallback(c *gin.Context) {
	artifact := c.Query("ssoToken1")
	if artifact == "" {
		artifact = c.Query("SAMLart")
	}

	resp, err := h.auth.SSOLogin(c.Request.Context(), artifact, c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		if prefersHTML(c) {
			response.Redirect(c, "/login")
			return
		}
		response.Error(c, err)
		return
	}

	h.setSessionCookie(c, resp.AccessToken)
	if prefersHTML(c) {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// Logout godoc
// @Summary Sign out
// @Tags Authentication
// @Produce json
// @Success 204
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetCookie(h.cookie.Name, "", -1, "/", "", h.cookie.Secure, true)
	if prefersHTML(c) {
		c.Redirect(http.StatusSeeOther, "/login")
		return
	}
	response.NoContent(c)
}

// Me godoc
// @Summary Get the signed-in account
// @Tags Authentication
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	response.JSON(c, http.StatusOK, principal, nil)
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, token string) {
	c.SetCookie(h.cookie.Name, "Bearer "+token, h.cookie.MaxAge, "/", "", h.cookie.Secure, true)
}

func prefersHTML(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "text/html")
}
