package db

import (
	"context"
	"path/filepath"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialectFor(t *testing.T) {
	tests := []struct {
		dsn  string
		want Dialect
	}{
		{"postgres://u:p@localhost:5432/db?sslmode=disable", Postgres},
		{"POSTGRESQL://localhost/db", Postgres},
		{"./Inshokuten.sqlite3", SQLite},
		{":memory:", SQLite},
		{"file:test.db?cache=shared", SQLite},
	}

	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			assert.Equal(t, tt.want, DialectFor(tt.dsn))
		})
	}
}

func TestPlaceholder(t *testing.T) {
	assert.Equal(t, sq.Dollar, Postgres.Placeholder())
	assert.Equal(t, sq.Question, SQLite.Placeholder())
}

func TestQuoteTable(t *testing.T) {
	assert.Equal(t, `"TestTable"`, QuoteTable("TestTable"))
	assert.Equal(t, `"odd""name"`, QuoteTable(`odd"name`))
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	ctx := context.Background()
	d, err := Open(ctx, filepath.Join(t.TempDir(), "items.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	assert.Equal(t, SQLite, d.Dialect)

	require.NoError(t, EnsureSchema(ctx, d, "TestTable"))
	_, err = d.ExecContext(ctx, `INSERT INTO "TestTable" (ID, Name, Price) VALUES (1, 'Coffee', 300)`)
	require.NoError(t, err)

	require.NoError(t, EnsureSchema(ctx, d, "TestTable"))

	var count int
	require.NoError(t, d.QueryRowContext(ctx, `SELECT COUNT(*) FROM "TestTable"`).Scan(&count))
	assert.Equal(t, 1, count, "existing rows survive a second bootstrap")
}
