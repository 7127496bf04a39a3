// Package engine builds the table dependency map from a project's
// templates and answers lineage queries against it.
package engine

import (
	"log/slog"
	"sync"

	"github.com/leapstack-labs/leaplineage/internal/config"
	"github.com/leapstack-labs/leaplineage/internal/dag"
	"github.com/leapstack-labs/leaplineage/internal/source"
	"github.com/leapstack-labs/leaplineage/internal/storage"
)

// DefaultConcurrency bounds the number of templates processed at once.
const DefaultConcurrency = 8

// Engine owns one dependency map. Build replaces it, Load replaces it
// with stored maps, and queries read it.
type Engine struct {
	project     *config.ProjectConfig
	mapping     *config.MappingConfig
	registry    *source.Registry
	store       *storage.Store
	deps        source.Deps
	concurrency int
	logger      *slog.Logger

	mu       sync.RWMutex
	graph    *dag.Graph
	unmapped []UnmappedEntry
}

// Config holds engine configuration.
type Config struct {
	// Project lists the template sources. Optional for query-only use.
	Project *config.ProjectConfig
	// Mapping binds templates to tables. Optional for query-only use.
	Mapping *config.MappingConfig
	// Registry resolves TemplateSourceType values (default: source.DefaultRegistry).
	Registry *source.Registry
	// Store reads templates and maps (default: a store with no credentials).
	Store *storage.Store
	// Sources overrides the collaborators handed to sources, such as
	// the Redash database opener.
	Sources source.Deps
	// Concurrency bounds parallel template processing (default: DefaultConcurrency).
	Concurrency int
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// New creates an engine with an empty map.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	project := cfg.Project
	if project == nil {
		project = &config.ProjectConfig{}
	}
	mapping := cfg.Mapping
	if mapping == nil {
		mapping = &config.MappingConfig{}
	}
	registry := cfg.Registry
	if registry == nil {
		registry = source.DefaultRegistry()
	}
	store := cfg.Store
	if store == nil {
		store = storage.New(storage.Options{Logger: logger})
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	deps := cfg.Sources
	deps.Store = store
	deps.Exclude = project.Exclude
	deps.Logger = logger

	logger.Debug("initializing engine",
		"includes", len(project.Include),
		"mapping_entries", len(mapping.Mapping),
		"concurrency", concurrency)

	return &Engine{
		project:     project,
		mapping:     mapping,
		registry:    registry,
		store:       store,
		deps:        deps,
		concurrency: concurrency,
		logger:      logger,
		graph:       dag.NewGraph(),
	}
}

// Close releases the storage connections opened by the engine.
func (e *Engine) Close() error {
	e.logger.Debug("closing engine")
	return e.store.Close()
}

// Graph returns the current dependency map. It must not be modified.
func (e *Engine) Graph() *dag.Graph {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.graph
}

// Mapping returns the mapping config the engine builds from.
func (e *Engine) Mapping() *config.MappingConfig {
	return e.mapping
}

// Unmapped returns the diagnostics of the last build.
func (e *Engine) Unmapped() []UnmappedEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.unmapped
}

func (e *Engine) replace(g *dag.Graph, unmapped []UnmappedEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.graph = g
	e.unmapped = unmapped
}
