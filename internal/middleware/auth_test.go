package middleware

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/twgov-oa/question-tracker/internal/models"
	"github.com/twgov-oa/question-tracker/internal/service"
)

type stubUserRepo struct {
	principal *models.Principal
}

func (s *stubUserRepo) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	if s.principal == nil || s.principal.Username != username {
		return nil, sql.ErrNoRows
	}
	user := s.principal.User
	return &user, nil
}

func (s *stubUserRepo) FindPrincipalByUsername(ctx context.Context, username string) (*models.Principal, error) {
	if s.principal == nil || s.principal.Username != username {
		return nil, sql.ErrNoRows
	}
	return s.principal, nil
}

func (s *stubUserRepo) Create(ctx context.Context, user *models.User, roleIDs, departmentIDs []int64) error {
	return nil
}

func (s *stubUserRepo) AttachDepartment(ctx context.Context, userID, departmentID int64) error {
	return nil
}

type stubRoleRepo struct{}

func (stubRoleRepo) FindByName(ctx context.Context, name string) (*models.Role, error) {
	return nil, sql.ErrNoRows
}

type stubDeptRepo struct{}

func (stubDeptRepo) FindByCode(ctx context.Context, code string) (*models.Department, error) {
	return nil, sql.ErrNoRows
}

func newTestAuth(t *testing.T) (*service.AuthService, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hash, err := bcrypt.GenerateFromPassword([]byte("secret-pass"), bcrypt.MinCost)
	require.NoError(t, err)

	principal := &models.Principal{
		User: models.User{ID: 1, Username: "chen", FullName: "Chen Li", PasswordHash: string(hash), IsActive: true},
		Roles: []models.Role{{
			ID:          1,
			Name:        "clerk",
			Permissions: models.PermissionSet{models.CapReadQuestion},
		}},
	}

	svc := service.NewAuthService(&stubUserRepo{principal: principal}, stubRoleRepo{}, stubDeptRepo{}, nil, nil, nil, nil, nil, service.AuthConfig{
		Secret:     "test-secret",
		Expiration: time.Minute,
		Issuer:     "question-tracker",
	})

	resp, err := svc.Login(context.Background(), models.LoginRequest{Username: "chen", Password: "secret-pass"})
	require.NoError(t, err)
	return svc, resp.AccessToken
}

func protectedRouter(svc *service.AuthService, extra ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers := append([]gin.HandlerFunc{Authenticate(svc, "access_token")}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/questions", handlers...)
	return r
}

func TestAuthenticateWithCookie(t *testing.T) {
	svc, token := newTestAuth(t)
	r := protectedRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/questions", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "Bearer " + token})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthenticateWithAuthorizationHeader(t *testing.T) {
	svc, token := newTestAuth(t)
	r := protectedRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/questions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthenticateMissingTokenJSONClient(t *testing.T) {
	svc, _ := newTestAuth(t)
	r := protectedRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/questions", nil)
	req.Header.Set("Accept", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthenticateMissingTokenBrowserClient(t *testing.T) {
	svc, _ := newTestAuth(t)
	r := protectedRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/questions", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, LoginPath, w.Header().Get("Location"))
}

func TestAuthenticateGarbageToken(t *testing.T) {
	svc, _ := newTestAuth(t)
	r := protectedRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/questions", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "Bearer not-a-token"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequirePermissionForbiddenJSONClient(t *testing.T) {
	svc, token := newTestAuth(t)
	r := protectedRouter(svc, RequirePermission(models.CapManageUsers))

	req := httptest.NewRequest(http.MethodGet, "/questions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequirePermissionForbiddenBrowserClient(t *testing.T) {
	svc, token := newTestAuth(t)
	r := protectedRouter(svc, RequirePermission(models.CapManageUsers))

	req := httptest.NewRequest(http.MethodGet, "/questions", nil)
	req.Header.Set("Accept", "text/html")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, HomePath, w.Header().Get("Location"))
}

func TestRequirePermissionGranted(t *testing.T) {
	svc, token := newTestAuth(t)
	r := protectedRouter(svc, RequirePermission(models.CapReadQuestion))

	req := httptest.NewRequest(http.MethodGet, "/questions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
