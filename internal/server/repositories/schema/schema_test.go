package schema

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasColumn(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	q := `(?s)SELECT\s+EXISTS\s*\(.*information_schema\.columns.*table_name\s*=\s*\$1\s+AND\s+column_name\s*=\s*\$2`
	mock.ExpectQuery(q).WithArgs("questions", "terminal_output").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(q).WithArgs("questions", "nope").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(q).WithArgs("questions", "err").
		WillReturnError(errors.New("down"))

	i := NewPostgresInspector(db)

	ok, err := i.HasColumn(context.Background(), "questions", "terminal_output")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = i.HasColumn(context.Background(), "questions", "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = i.HasColumn(context.Background(), "questions", "err")
	require.Error(t, err)
}
