package folders

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/qfolders/qfolders/internal/common"
	"github.com/qfolders/qfolders/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

func TestCreate(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	now := time.Now()
	mock.ExpectQuery(`(?s)^\s*INSERT\s+INTO\s+folders\s*\(user_id,\s*name\)\s*VALUES\s*\(\$1,\s*\$2\)\s*RETURNING\s+id,\s*created_at\s*$`).
		WithArgs("u1", "Graphs").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("f1", now))

	got, err := repo.Create(context.Background(), &models.Folder{UserID: "u1", Name: "Graphs"})
	require.NoError(t, err)
	assert.Equal(t, "f1", got.ID)
	assert.True(t, got.CreatedAt.Equal(now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`INSERT\s+INTO\s+folders`).WillReturnError(errors.New("boom"))

	_, err := repo.Create(context.Background(), &models.Folder{UserID: "u1", Name: "x"})
	require.ErrorContains(t, err, "db error: boom")
}

func TestList_NewestFirst(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	t1 := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	t0 := t1.Add(-time.Hour)
	mock.ExpectQuery(`(?s)SELECT\s+id,\s*user_id,\s*name,\s*created_at\s+FROM\s+folders\s+ORDER\s+BY\s+created_at\s+DESC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "created_at"}).
			AddRow("f2", "u1", "B", t1).
			AddRow("f1", "u1", "A", t0))

	got, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "f2", got[0].ID)
	assert.Equal(t, "A", got[1].Name)
}

func TestList_ScanError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`FROM\s+folders`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("f1"))

	_, err := repo.List(context.Background())
	require.Error(t, err)
}

func TestGet(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`(?s)FROM\s+folders\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("f1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "created_at"}).AddRow("f1", "u1", "A", time.Now()))
	mock.ExpectQuery(`(?s)FROM\s+folders\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	got, err := repo.Get(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, "A", got.Name)

	_, err = repo.Get(context.Background(), "nope")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestDelete(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`DELETE\s+FROM\s+folders\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("f1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE\s+FROM\s+folders\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("f2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Delete(context.Background(), "f1"))
	require.ErrorIs(t, repo.Delete(context.Background(), "f2"), common.ErrorNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
