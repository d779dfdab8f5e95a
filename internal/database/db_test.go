package database

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatementsCoversEveryTable(t *testing.T) {
	stmts := splitStatements(schema)
	require.Len(t, stmts, 5)
	for i, table := range []string{"users", "refresh_tokens", "parking_spaces", "reservations", "reviews"} {
		assert.Contains(t, stmts[i], "CREATE TABLE IF NOT EXISTS "+table+" ")
	}
}

func TestMigrateExecutesEachStatement(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"users", "refresh_tokens", "parking_spaces", "reservations", "reviews"} {
		mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS " + table)).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}
	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
