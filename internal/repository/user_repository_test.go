package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twgov-oa/question-tracker/internal/models"
)

func newUserMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "username", "full_name", "password_hash", "email", "is_active", "created_at", "updated_at"})
}

func TestUserRepositoryFindPrincipalByUsername(t *testing.T) {
	db, mock, cleanup := newUserMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE username = $1")).
		WithArgs("chen").
		WillReturnRows(userRows().AddRow(1, "chen", "Chen Li", "hash", nil, true, time.Now(), time.Now()))
	mock.ExpectQuery("JOIN user_roles ur ON ur.role_id = r.id").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "permissions", "created_at", "updated_at"}).
			AddRow(2, "clerk", "", []byte(`["read_question","create_report"]`), time.Now(), time.Now()))
	mock.ExpectQuery("JOIN user_departments ud ON ud.department_id = d.id").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "code", "name", "parent_id", "created_at", "updated_at"}).
			AddRow(3, "0201", "Road Maintenance Section", 1, time.Now(), time.Now()))

	p, err := repo.FindPrincipalByUsername(context.Background(), "chen")
	require.NoError(t, err)
	assert.Equal(t, "chen", p.Username)
	require.Len(t, p.Roles, 1)
	assert.True(t, p.Roles[0].Permissions.Contains(models.CapCreateReport))
	require.Len(t, p.Departments, 1)
	assert.Equal(t, "0201", p.Departments[0].Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryFindByUsernameNotFound(t *testing.T) {
	db, mock, cleanup := newUserMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE username = $1")).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newUserMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs("wang", "Wang Mei", "hash", nil, true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO user_roles")).
		WithArgs(int64(5), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO user_departments")).
		WithArgs(int64(5), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	user := &models.User{Username: "wang", FullName: "Wang Mei", PasswordHash: "hash", IsActive: true}
	require.NoError(t, repo.Create(context.Background(), user, []int64{2}, []int64{3}))
	assert.Equal(t, int64(5), user.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryAttachDepartmentIdempotent(t *testing.T) {
	db, mock, cleanup := newUserMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO user_departments (user_id, department_id) VALUES ($1, $2) ON CONFLICT DO NOTHING")).
		WithArgs(int64(5), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.AttachDepartment(context.Background(), 5, 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}
