package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twgov-oa/question-tracker/internal/models"
)

func newRoleMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestRoleRepositoryList(t *testing.T) {
	db, mock, cleanup := newRoleMock(t)
	defer cleanup()
	repo := NewRoleRepository(db)

	rows := sqlmock.NewRows([]string{"id", "name", "description", "permissions", "created_at", "updated_at"}).
		AddRow(1, "admin", "Full access", []byte(`["manage_all"]`), time.Now(), time.Now()).
		AddRow(2, "viewer", "Read only", []byte(`["read_question"]`), time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, description, permissions, created_at, updated_at FROM roles ORDER BY name")).
		WillReturnRows(rows)

	roles, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.True(t, roles[0].Permissions.Contains(models.CapManageAll))
	assert.False(t, roles[1].Permissions.Contains(models.CapManageAll))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRoleMock(t)
	defer cleanup()
	repo := NewRoleRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO roles")).
		WithArgs("editor", "Edit questions", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))

	role := &models.Role{
		Name:        "editor",
		Description: "Edit questions",
		Permissions: models.PermissionSet{models.CapReadQuestion, models.CapEditQuestion},
	}
	require.NoError(t, repo.Create(context.Background(), role))
	assert.Equal(t, int64(3), role.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleRepositoryCountUsers(t *testing.T) {
	db, mock, cleanup := newRoleMock(t)
	defer cleanup()
	repo := NewRoleRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM user_roles WHERE role_id = $1")).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := repo.CountUsers(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
