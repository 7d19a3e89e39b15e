package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/twgov-oa/question-tracker/internal/models"
	"github.com/twgov-oa/question-tracker/internal/service"
	appErrors "github.com/twgov-oa/question-tracker/pkg/errors"
	"github.com/twgov-oa/question-tracker/pkg/response"
)

// ContextPrincipalKey is the gin context key storing the resolved principal.
const ContextPrincipalKey = "currentPrincipal"

// LoginPath is where browser clients are sent on authentication failure.
const LoginPath = "/login"

// Authenticate resolves the principal for a request. The access token is
// carried in the session cookie as "Bearer <token>" with a plain
// Authorization header fallback for API clients. Browser clients, detected
// by an Accept header preferring HTML, are redirected to the login page
// instead of receiving a structured error.
func Authenticate(authService *service.AuthService, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c, cookieName)
		if token == "" {
			reject(c, appErrors.ErrUnauthorized)
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			reject(c, err)
			return
		}

		principal, err := authService.ResolvePrincipal(c.Request.Context(), claims.Subject)
		if err != nil {
			reject(c, err)
			return
		}

		c.Set(ContextPrincipalKey, principal)
		c.Next()
	}
}

// Principal returns the resolved principal from the context. The second
// return is false on unauthenticated routes.
func Principal(c *gin.Context) (*models.Principal, bool) {
	value, ok := c.Get(ContextPrincipalKey)
	if !ok {
		return nil, false
	}
	principal, ok := value.(*models.Principal)
	return principal, ok
}

func extractToken(c *gin.Context, cookieName string) string {
	if cookie, err := c.Cookie(cookieName); err == nil && cookie != "" {
		return strings.TrimPrefix(cookie, "Bearer ")
	}
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// prefersHTML reports whether the client negotiated for a browser-style
// response.
func prefersHTML(c *gin.Context) bool {
	accept := c.GetHeader("Accept")
	return strings.Contains(accept, "text/html")
}

func reject(c *gin.Context, err error) {
	if prefersHTML(c) {
		response.Redirect(c, LoginPath)
	} else {
		response.Error(c, err)
	}
	c.Abort()
}
