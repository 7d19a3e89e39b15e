package handler

import (
	"bytes"
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
	"github.com/twgov-oa/question-tracker/internal/sso"
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

type stubProvider struct {
	profile *sso.Profile
	err     error
}

func (s *stubProvider) GetUserProfile(ctx context.Context, artifact string) (*sso.Profile, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.profile, nil
}

func newAuthHandler(t *testing.T, provider sso.IdentityProvider) *AuthHandler {
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

	svc := service.NewAuthService(&stubUserRepo{principal: principal}, stubRoleRepo{}, stubDeptRepo{}, nil, provider, nil, nil, nil, service.AuthConfig{
		Secret:     "test-secret",
		Expiration: time.Minute,
		Issuer:     "question-tracker",
	})

	return NewAuthHandler(svc, CookieConfig{Name: "access_token", MaxAge: 60})
}

func authRouter(h *AuthHandler) *gin.Engine {
	r := gin.New()
	r.POST("/auth/login", h.Login)
	r.GET("/auth/sso", h.SSOCallback)
	r.POST("/auth/logout", h.Logout)
	return r
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == "access_token" {
			return c
		}
	}
	return nil
}

func TestLoginSetsSessionCookie(t *testing.T) {
	r := authRouter(newAuthHandler(t, nil))

	body := bytes.NewBufferString(`{"username":"chen","password":"secret-pass"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	cookie := sessionCookie(t, w)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Contains(t, cookie.Value, "Bearer")
}

func TestLoginWrongPassword(t *testing.T) {
	r := authRouter(newAuthHandler(t, nil))

	body := bytes.NewBufferString(`{"username":"chen","password":"nope"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Nil(t, sessionCookie(t, w))
}

func TestSSOCallbackBrowserRedirectsHome(t *testing.T) {
	provider := &stubProvider{profile: &sso.Profile{Account: "chen", FullName: "Chen Li", UnitCode: "0200"}}
	r := authRouter(newAuthHandler(t, provider))

	req := httptest.NewRequest(http.MethodGet, "/auth/sso?ssoToken1=artifact-1", nil)
	req.Header.Set("Accept", "text/html")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
	require.NotNil(t, sessionCookie(t, w))
}

func TestSSOCallbackDisabledBrowserRedirectsToLogin(t *testing.T) {
	r := authRouter(newAuthHandler(t, nil))

	req := httptest.NewRequest(http.MethodGet, "/auth/sso?SAMLart=artifact-1", nil)
	req.Header.Set("Accept", "text/html")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestSSOCallbackDisabledJSONClient(t *testing.T) {
	r := authRouter(newAuthHandler(t, nil))

	req := httptest.NewRequest(http.MethodGet, "/auth/sso?SAMLart=artifact-1", nil)
	req.Header.Set("Accept", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogoutBrowserRedirectsToLogin(t *testing.T) {
	r := authRouter(newAuthHandler(t, nil))

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Accept", "text/html")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
	cookie := sessionCookie(t, w)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
}

func TestLogoutJSONClient(t *testing.T) {
	r := authRouter(newAuthHandler(t, nil))

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
}
