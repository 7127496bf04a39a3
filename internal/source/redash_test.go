package source

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/leapstack-labs/leaplineage/internal/config"
	"github.com/leapstack-labs/leaplineage/internal/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func redashDeps(t *testing.T, env map[string]string) (Deps, sqlmock.Sqlmock, *string) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	var gotDSN string
	return Deps{
		OpenDB: func(dsn string) (*sql.DB, error) {
			gotDSN = dsn
			return db, nil
		},
		Getenv: func(key string) string { return env[key] },
	}, mock, &gotDSN
}

func TestRedashSource(t *testing.T) {
	ctx := context.Background()
	deps, mock, dsn := redashDeps(t, map[string]string{
		"REDASH_DATABASE_URL": "postgres://redash@localhost/redash",
	})

	mock.ExpectQuery(`SELECT queries.id, queries.name, queries.query, data_sources.name`).
		WithArgs("metadata").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "query", "name"}).
			AddRow(7, "Daily orders", "SELECT * FROM {{ params.DS }}.orders", "metadata").
			AddRow(9, "Users", "SELECT * FROM app.users", "metadata"))
	mock.ExpectClose()

	src, err := DefaultRegistry().Open(config.Include{
		TemplateSourceType: "redash",
		DataSourceName:     "metadata",
		DefaultTablePrefix: "P.D",
	}, deps)
	require.NoError(t, err)

	templates, err := src.Templates(ctx)
	require.NoError(t, err)
	require.Len(t, templates, 2)
	assert.Equal(t, "postgres://redash@localhost/redash", *dsn)

	first := templates[0]
	assert.Equal(t, "7", first.Key())
	assert.Equal(t, "Daily orders", first.URI())
	assert.Equal(t, KindBIQuery, first.Kind())
	assert.Equal(t, TypeRedash, first.Type())
	assert.Equal(t, "metadata", first.DataSourceName())
	assert.Equal(t, "P.D", first.DefaultTablePrefix())

	rendered, err := first.Render(ctx, params.Set{"params": params.Set{"DS": "sales"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM sales.orders", rendered)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedashSource_QueryIds(t *testing.T) {
	deps, mock, _ := redashDeps(t, map[string]string{"META_DB": "postgres://meta"})

	mock.ExpectQuery(`queries\.id IN \(\$2, \$3\)`).
		WithArgs("metadata", 1, 3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "query", "name"}))
	mock.ExpectClose()

	src, err := DefaultRegistry().Open(config.Include{
		TemplateSourceType:             "Redash",
		DataSourceName:                 "metadata",
		DatabaseUrlEnvironmentVariable: "META_DB",
		QueryIds:                       []int{1, 3},
	}, deps)
	require.NoError(t, err)

	templates, err := src.Templates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, templates)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedashSource_Errors(t *testing.T) {
	t.Run("missing environment variable", func(t *testing.T) {
		deps, _, _ := redashDeps(t, nil)
		src, err := DefaultRegistry().Open(config.Include{TemplateSourceType: "Redash", DataSourceName: "metadata"}, deps)
		require.NoError(t, err)

		_, err = src.Templates(context.Background())
		assert.ErrorContains(t, err, "REDASH_DATABASE_URL is not set")
	})

	t.Run("query failure", func(t *testing.T) {
		deps, mock, _ := redashDeps(t, map[string]string{"REDASH_DATABASE_URL": "postgres://x"})
		mock.ExpectQuery(`SELECT`).WillReturnError(errors.New("connection refused"))
		mock.ExpectClose()

		src, err := DefaultRegistry().Open(config.Include{TemplateSourceType: "Redash", DataSourceName: "metadata"}, deps)
		require.NoError(t, err)

		_, err = src.Templates(context.Background())
		assert.ErrorContains(t, err, "query redash: connection refused")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
