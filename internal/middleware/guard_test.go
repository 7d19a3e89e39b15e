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
	"github.com/twgov-oa/question-tracker/internal/repository"
	"github.com/twgov-oa/question-tracker/internal/service"
)

type stubDirectoryRepo struct {
	depts []models.Department
}

func (s *stubDirectoryRepo) List(ctx context.Context) ([]models.Department, error) {
	return s.depts, nil
}

func (s *stubDirectoryRepo) ListBureaus(ctx context.Context) ([]models.Department, error) {
	var bureaus []models.Department
	for _, d := range s.depts {
		if d.IsBureau() {
			bureaus = append(bureaus, d)
		}
	}
	return bureaus, nil
}

func (s *stubDirectoryRepo) FindByID(ctx context.Context, id int64) (*models.Department, error) {
	for i := range s.depts {
		if s.depts[i].ID == id {
			return &s.depts[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubDirectoryRepo) FindByCode(ctx context.Context, code string) (*models.Department, error) {
	for i := range s.depts {
		if s.depts[i].Code == code {
			return &s.depts[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubDirectoryRepo) Create(ctx context.Context, dept *models.Department) error { return nil }
func (s *stubDirectoryRepo) Update(ctx context.Context, dept *models.Department) error { return nil }
func (s *stubDirectoryRepo) Delete(ctx context.Context, id int64) error                { return nil }

func (s *stubDirectoryRepo) DependentCounts(ctx context.Context, id int64) (*repository.DependentCounts, error) {
	return &repository.DependentCounts{}, nil
}

func scopedRouter(t *testing.T) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hash, err := bcrypt.GenerateFromPassword([]byte("secret-pass"), bcrypt.MinCost)
	require.NoError(t, err)

	principal := &models.Principal{
		User: models.User{ID: 1, Username: "chen", PasswordHash: string(hash), IsActive: true},
		Roles: []models.Role{{
			ID:          1,
			Name:        "clerk",
			Permissions: models.PermissionSet{models.CapReadQuestion},
		}},
		Departments: []models.Department{{ID: 1, Code: "0200", Name: "Civil Affairs"}},
	}

	authSvc := service.NewAuthService(&stubUserRepo{principal: principal}, stubRoleRepo{}, stubDeptRepo{}, nil, nil, nil, nil, nil, service.AuthConfig{
		Secret:     "test-secret",
		Expiration: time.Minute,
		Issuer:     "question-tracker",
	})
	resp, err := authSvc.Login(context.Background(), models.LoginRequest{Username: "chen", Password: "secret-pass"})
	require.NoError(t, err)

	deptSvc := service.NewDepartmentService(&stubDirectoryRepo{depts: []models.Department{
		{ID: 1, Code: "0200", Name: "Civil Affairs"},
		{ID: 2, Code: "0201", Name: "Household Registration"},
		{ID: 3, Code: "0300", Name: "Public Works"},
	}}, nil, nil, nil, nil)

	r := gin.New()
	r.GET("/departments/:id/questions",
		Authenticate(authSvc, "access_token"),
		RequireDepartmentAccess(models.CapReadQuestion, "id", deptSvc),
		func(c *gin.Context) { c.Status(http.StatusOK) },
	)
	return r, resp.AccessToken
}

func TestRequireDepartmentAccessOwnBureauSection(t *testing.T) {
	r, token := scopedRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/departments/2/questions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireDepartmentAccessOtherBureau(t *testing.T) {
	r, token := scopedRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/departments/3/questions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireDepartmentAccessOtherBureauBrowserClient(t *testing.T) {
	r, token := scopedRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/departments/3/questions", nil)
	req.Header.Set("Accept", "text/html")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, HomePath, w.Header().Get("Location"))
}

func TestRequireDepartmentAccessBadParam(t *testing.T) {
	r, token := scopedRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/departments/abc/questions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
