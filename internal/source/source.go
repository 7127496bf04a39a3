// Package source enumerates SQL templates from the places a project
// keeps them: local files, object storage buckets, Redash saved queries,
// and compiled dbt projects.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/leapstack-labs/leaplineage/internal/config"
	"github.com/leapstack-labs/leaplineage/internal/dag"
	"github.com/leapstack-labs/leaplineage/internal/params"
	"github.com/leapstack-labs/leaplineage/internal/template"
)

// Kind is the family a template source belongs to.
type Kind string

// Source kinds.
const (
	KindFile             Kind = "FILE"
	KindObjectStore      Kind = "OBJECT_STORE"
	KindBIQuery          Kind = "BI_QUERY"
	KindTransformProject Kind = "TRANSFORM_PROJECT"
)

// Type is the concrete backend, as written in TemplateSourceType.
type Type string

// Source types.
const (
	TypeFile      Type = config.SourceFile
	TypeGCS       Type = config.SourceGCS
	TypeS3        Type = config.SourceS3
	TypeAzureBlob Type = config.SourceAzureBlob
	TypeRedash    Type = config.SourceRedash
	TypeDbt       Type = config.SourceDbt
)

// Template is one SQL definition unit.
type Template interface {
	Key() string
	Kind() Kind
	Type() Type
	URI() string
	Bucket() string
	Project() string
	DataSourceName() string
	DefaultTablePrefix() string
	// RawText returns the unrendered SQL.
	RawText(ctx context.Context) (string, error)
	// Render substitutes values into the raw text. Placeholders listed
	// in ignore render as the literal "ignored".
	Render(ctx context.Context, values params.Set, ignore []string) (string, error)
}

// Ref converts t to the reference stored on graph edges.
func Ref(t Template) dag.TemplateRef {
	return dag.TemplateRef{
		Key:            t.Key(),
		SourceKind:     string(t.Kind()),
		SourceType:     string(t.Type()),
		URI:            t.URI(),
		Bucket:         t.Bucket(),
		Project:        t.Project(),
		DataSourceName: t.DataSourceName(),
	}
}

// MatchTarget converts t to the form mapping entries are matched against.
func MatchTarget(t Template) config.Target {
	return config.Target{
		SourceType:     string(t.Type()),
		Key:            t.Key(),
		URI:            t.URI(),
		DataSourceName: t.DataSourceName(),
		ProjectName:    t.Project(),
	}
}

// DefaultTableName suggests a table name for an unmapped template: the
// query name for Redash, the key's file stem otherwise.
func DefaultTableName(t Template) string {
	if t.Type() == TypeRedash {
		return t.URI()
	}
	base := path.Base(strings.ReplaceAll(t.Key(), "\\", "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}

// meta carries the identity shared by every template variant.
type meta struct {
	key            string
	kind           Kind
	typ            Type
	uri            string
	bucket         string
	project        string
	dataSourceName string
	prefix         string
	logger         *slog.Logger
}

func (m *meta) Key() string                { return m.key }
func (m *meta) Kind() Kind                 { return m.kind }
func (m *meta) Type() Type                 { return m.typ }
func (m *meta) URI() string                { return m.uri }
func (m *meta) Bucket() string             { return m.bucket }
func (m *meta) Project() string            { return m.project }
func (m *meta) DataSourceName() string     { return m.dataSourceName }
func (m *meta) DefaultTablePrefix() string { return m.prefix }

func (m *meta) render(raw string, values params.Set, ignore []string) (string, error) {
	out, err := template.Render(raw, values.AsMap(), template.Options{
		File:   m.key,
		Ignore: ignore,
		Logger: m.logger,
	})
	if err != nil {
		return "", fmt.Errorf("render %s: %w", m.key, err)
	}
	return out, nil
}

// Source enumerates the templates of one Include entry.
type Source interface {
	Templates(ctx context.Context) ([]Template, error)
}
