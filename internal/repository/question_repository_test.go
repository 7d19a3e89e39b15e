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

func newQuestionMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func questionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "title", "content", "year", "question_date", "created_date", "status", "summary", "closed_date", "creator_id"})
}

func TestQuestionRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newQuestionMock(t)
	defer cleanup()
	repo := NewQuestionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO questions")).
		WithArgs("Flood control budget", "Details", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), models.StatusPending, sqlmock.AnyArg(), sqlmock.AnyArg(), int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO question_report_departments")).
		WithArgs(int64(11), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO question_answer_departments")).
		WithArgs(int64(11), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	q := &models.Question{Title: "Flood control budget", Content: "Details", CreatorID: 9}
	require.NoError(t, repo.Create(context.Background(), q, []int64{1}, []int64{2}))
	assert.Equal(t, int64(11), q.ID)
	assert.Equal(t, models.StatusPending, q.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuestionRepositoryListUnscoped(t *testing.T) {
	db, mock, cleanup := newQuestionMock(t)
	defer cleanup()
	repo := NewQuestionRepository(db)

	rows := questionRows().
		AddRow(1, "Road repair", "Content", 2025, time.Now(), time.Now(), "pending", nil, nil, 9)
	mock.ExpectQuery("SELECT q.id, q.title, .* FROM questions q ORDER BY q.created_date DESC").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM questions q")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	questions, total, err := repo.List(context.Background(), models.QuestionFilter{}, nil)
	require.NoError(t, err)
	assert.Len(t, questions, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuestionRepositoryListScoped(t *testing.T) {
	db, mock, cleanup := newQuestionMock(t)
	defer cleanup()
	repo := NewQuestionRepository(db)

	rows := questionRows().
		AddRow(2, "Budget review", "Content", 2025, time.Now(), time.Now(), "answered", nil, nil, 9)
	mock.ExpectQuery("FROM questions q WHERE q.id IN").
		WithArgs(int64(1), int64(3), int64(1), int64(3)).
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(int64(1), int64(3), int64(1), int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	questions, total, err := repo.List(context.Background(), models.QuestionFilter{}, []int64{1, 3})
	require.NoError(t, err)
	assert.Len(t, questions, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuestionRepositoryListScopedEmpty(t *testing.T) {
	db, _, cleanup := newQuestionMock(t)
	defer cleanup()
	repo := NewQuestionRepository(db)

	questions, total, err := repo.List(context.Background(), models.QuestionFilter{}, []int64{})
	require.NoError(t, err)
	assert.Empty(t, questions)
	assert.Zero(t, total)
}

func TestQuestionRepositoryClose(t *testing.T) {
	db, mock, cleanup := newQuestionMock(t)
	defer cleanup()
	repo := NewQuestionRepository(db)

	closedAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE questions SET status = $2, closed_date = $3, summary = $4 WHERE id = $1")).
		WithArgs(int64(5), models.StatusClosed, closedAt, "resolved").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Close(context.Background(), 5, closedAt, "resolved"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuestionRepositoryHasReplies(t *testing.T) {
	db, mock, cleanup := newQuestionMock(t)
	defer cleanup()
	repo := NewQuestionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM reports WHERE question_id = $1)")).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	has, err := repo.HasReplies(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, has)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuestionRepositoryReplaceDepartments(t *testing.T) {
	db, mock, cleanup := newQuestionMock(t)
	defer cleanup()
	repo := NewQuestionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM question_answer_departments WHERE question_id = $1")).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO question_answer_departments")).
		WithArgs(int64(5), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.ReplaceDepartments(context.Background(), 5, LinkAnswer, []int64{4}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
