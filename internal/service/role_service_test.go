package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twgov-oa/question-tracker/internal/models"
	appErrors "github.com/twgov-oa/question-tracker/pkg/errors"
)

type mockRoleRepo struct {
	byID      map[int64]*models.Role
	byName    map[string]*models.Role
	userCount int
	created   *models.Role
	deleted   []int64
}

func (m *mockRoleRepo) List(ctx context.Context) ([]models.Role, error) {
	var out []models.Role
	for _, r := range m.byID {
		out = append(out, *r)
	}
	return out, nil
}

func (m *mockRoleRepo) FindByID(ctx context.Context, id int64) (*models.Role, error) {
	r, ok := m.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *r
	return &copied, nil
}

func (m *mockRoleRepo) FindByName(ctx context.Context, name string) (*models.Role, error) {
	r, ok := m.byName[name]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *r
	return &copied, nil
}

func (m *mockRoleRepo) Create(ctx context.Context, role *models.Role) error {
	role.ID = 7
	m.created = role
	return nil
}

func (m *mockRoleRepo) Update(ctx context.Context, role *models.Role) error {
	m.byID[role.ID] = role
	return nil
}

func (m *mockRoleRepo) Delete(ctx context.Context, id int64) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockRoleRepo) CountUsers(ctx context.Context, roleID int64) (int, error) {
	return m.userCount, nil
}

func newRoleRepoFixture() *mockRoleRepo {
	admin := &models.Role{ID: 1, Name: "admin", Permissions: models.PermissionSet{models.CapManageAll}}
	return &mockRoleRepo{
		byID:   map[int64]*models.Role{1: admin},
		byName: map[string]*models.Role{"admin": admin},
	}
}

func TestCreateRoleRejectsUnknownPermission(t *testing.T) {
	svc := NewRoleService(newRoleRepoFixture(), nil, nil)

	_, err := svc.Create(context.Background(), RoleRequest{
		Name:        "weird",
		Permissions: []string{"read_question", "launch_rockets"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "launch_rockets")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateRoleDeduplicatesPermissions(t *testing.T) {
	repo := newRoleRepoFixture()
	svc := NewRoleService(repo, nil, nil)

	role, err := svc.Create(context.Background(), RoleRequest{
		Name:        "clerk",
		Permissions: []string{"read_question", "read_question", "create_report"},
	})
	require.NoError(t, err)
	assert.Len(t, role.Permissions, 2)
	assert.True(t, role.Permissions.Contains(models.CapReadQuestion))
	assert.True(t, role.Permissions.Contains(models.CapCreateReport))
}

func TestCreateRoleRejectsDuplicateName(t *testing.T) {
	svc := NewRoleService(newRoleRepoFixture(), nil, nil)

	_, err := svc.Create(context.Background(), RoleRequest{Name: "admin"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestDeleteRoleGuardedWhileAssigned(t *testing.T) {
	repo := newRoleRepoFixture()
	repo.userCount = 3
	svc := NewRoleService(repo, nil, nil)

	err := svc.Delete(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)
}

func TestDeleteUnassignedRole(t *testing.T) {
	repo := newRoleRepoFixture()
	svc := NewRoleService(repo, nil, nil)

	require.NoError(t, svc.Delete(context.Background(), 1))
	assert.Equal(t, []int64{1}, repo.deleted)
}

func TestCapabilitiesCatalog(t *testing.T) {
	svc := NewRoleService(newRoleRepoFixture(), nil, nil)
	caps := svc.Capabilities()
	assert.Len(t, caps, 13)
	assert.Contains(t, caps, models.CapManageAll)
}
