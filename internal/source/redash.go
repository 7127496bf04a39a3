package source

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leaplineage/internal/config"
	"github.com/leapstack-labs/leaplineage/internal/params"
)

// DefaultRedashDatabaseURLEnv names the variable holding the Redash
// metadata database URL when the include does not set one.
const DefaultRedashDatabaseURLEnv = "REDASH_DATABASE_URL"

const redashQuerySQL = `SELECT queries.id, queries.name, queries.query, data_sources.name
FROM queries
INNER JOIN data_sources ON queries.data_source_id = data_sources.id`

// RedashTemplate is a saved Redash query. The query text is fetched once
// during enumeration. Its key is the query id; its URI is the query name.
type RedashTemplate struct {
	meta
	query string
}

// RawText returns the cached query text.
func (t *RedashTemplate) RawText(context.Context) (string, error) {
	return t.query, nil
}

// Render renders the cached query text.
func (t *RedashTemplate) Render(_ context.Context, values params.Set, ignore []string) (string, error) {
	return t.render(t.query, values, ignore)
}

type redashSource struct {
	inc  config.Include
	deps Deps
}

// NewRedashSource creates the source for a Redash include. Queries are
// read straight from the Redash metadata database.
func NewRedashSource(inc config.Include, deps Deps) (Source, error) {
	if inc.DataSourceName == "" {
		return nil, errors.New("DataSourceName is required for Redash")
	}
	return &redashSource{inc: inc, deps: deps}, nil
}

func (s *redashSource) dsn() (string, error) {
	env := s.inc.DatabaseUrlEnvironmentVariable
	if env == "" {
		env = DefaultRedashDatabaseURLEnv
	}
	dsn := s.deps.Getenv(env)
	if dsn == "" {
		return "", fmt.Errorf("environment variable %s is not set", env)
	}
	return dsn, nil
}

// query builds the metadata query and its arguments.
func (s *redashSource) query() (string, []any) {
	args := []any{s.inc.DataSourceName}
	where := []string{"data_sources.name = $1"}
	if len(s.inc.QueryIds) > 0 {
		placeholders := make([]string, len(s.inc.QueryIds))
		for i, id := range s.inc.QueryIds {
			args = append(args, id)
			placeholders[i] = "$" + strconv.Itoa(len(args))
		}
		where = append(where, "queries.id IN ("+strings.Join(placeholders, ", ")+")")
	}
	return redashQuerySQL + "\nWHERE " + strings.Join(where, " AND ") + "\nORDER BY queries.id", args
}

func (s *redashSource) Templates(ctx context.Context) ([]Template, error) {
	dsn, err := s.dsn()
	if err != nil {
		return nil, err
	}
	db, err := s.deps.OpenDB(dsn)
	if err != nil {
		return nil, fmt.Errorf("open redash database: %w", err)
	}
	defer db.Close()

	q, args := s.query()
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query redash: %w", err)
	}
	defer rows.Close()

	var out []Template
	for rows.Next() {
		var id int
		var name, text, dataSourceName string
		if err := rows.Scan(&id, &name, &text, &dataSourceName); err != nil {
			return nil, fmt.Errorf("scan redash query: %w", err)
		}
		out = append(out, &RedashTemplate{
			meta: meta{
				key:            strconv.Itoa(id),
				kind:           KindBIQuery,
				typ:            TypeRedash,
				uri:            name,
				dataSourceName: dataSourceName,
				prefix:         s.inc.DefaultTablePrefix,
				logger:         s.deps.Logger,
			},
			query: text,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read redash queries: %w", err)
	}
	return out, nil
}
