package source

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for the Redash metadata database

	"github.com/leapstack-labs/leaplineage/internal/config"
	"github.com/leapstack-labs/leaplineage/internal/storage"
)

// Deps are the collaborators a source may need.
type Deps struct {
	Store   *storage.Store
	Exclude []config.ExcludeRule
	Logger  *slog.Logger

	// OpenDB opens the Redash metadata database.
	OpenDB func(dsn string) (*sql.DB, error)
	// Run executes an external command such as dbt.
	Run func(ctx context.Context, dir, name string, args ...string) ([]byte, error)
	// Getenv looks up environment variables.
	Getenv func(key string) string
}

func (d Deps) withDefaults() Deps {
	if d.Store == nil {
		d.Store = storage.New(storage.Options{Logger: d.Logger})
	}
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}
	if d.OpenDB == nil {
		d.OpenDB = func(dsn string) (*sql.DB, error) { return sql.Open("pgx", dsn) }
	}
	if d.Run == nil {
		d.Run = runCommand
	}
	if d.Getenv == nil {
		d.Getenv = os.Getenv
	}
	return d
}

func runCommand(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

// Factory creates the source for one Include entry.
type Factory func(inc config.Include, deps Deps) (Source, error)

// UnknownSourceError is returned for a TemplateSourceType with no factory.
type UnknownSourceError struct {
	Type      string
	Available []string
}

func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("unknown template source type %q\nAvailable types: %v\nHint: Check TemplateSourceType in leaplineage.yaml", e.Type, e.Available)
}

// Registry maps source types to factories. It is built once and handed to
// whatever enumerates templates.
type Registry struct {
	factories map[Type]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Type]Factory)}
}

// DefaultRegistry returns a registry with every built-in source type.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(TypeFile, NewFileSource)
	r.Register(TypeGCS, NewObjectSource)
	r.Register(TypeS3, NewObjectSource)
	r.Register(TypeAzureBlob, NewObjectSource)
	r.Register(TypeRedash, NewRedashSource)
	r.Register(TypeDbt, NewDbtSource)
	return r
}

// Register adds or replaces the factory for a type.
func (r *Registry) Register(t Type, f Factory) {
	r.factories[t] = f
}

// Types returns the registered types, sorted.
func (r *Registry) Types() []string {
	names := make([]string, 0, len(r.factories))
	for t := range r.factories {
		names = append(names, string(t))
	}
	sort.Strings(names)
	return names
}

// Lookup returns the canonical type for a TemplateSourceType value,
// compared case-insensitively.
func (r *Registry) Lookup(name string) (Type, bool) {
	for t := range r.factories {
		if strings.EqualFold(string(t), name) {
			return t, true
		}
	}
	return "", false
}

// Open creates the source for inc.
func (r *Registry) Open(inc config.Include, deps Deps) (Source, error) {
	t, ok := r.Lookup(inc.TemplateSourceType)
	if !ok {
		return nil, &UnknownSourceError{Type: inc.TemplateSourceType, Available: r.Types()}
	}
	inc.TemplateSourceType = string(t)
	return r.factories[t](inc, deps.withDefaults())
}
