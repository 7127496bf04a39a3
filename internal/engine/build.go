package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leaplineage/internal/config"
	"github.com/leapstack-labs/leaplineage/internal/dag"
	"github.com/leapstack-labs/leaplineage/internal/params"
	"github.com/leapstack-labs/leaplineage/internal/source"
	"github.com/leapstack-labs/leaplineage/internal/template"
	"github.com/leapstack-labs/leaplineage/pkg/lineage"
)

// Build stages reported in BuildError.
const (
	StageEnumerate = "enumerate"
	StageFetch     = "fetch"
	StageRender    = "render"
)

// UnmappedEntry reports a template that no mapping entry selects, or
// whose placeholders the resolved parameters leave undefined.
type UnmappedEntry struct {
	Template source.Template
	// Params are the undefined dotted paths, sorted. Empty when the
	// template is not mapped at all.
	Params []string
}

// Scaffold converts u into the form the mapping template writer takes.
func (u UnmappedEntry) Scaffold() config.UnmappedTemplate {
	t := u.Template
	return config.UnmappedTemplate{
		SourceType:     string(t.Type()),
		Key:            t.Key(),
		URI:            t.URI(),
		DataSourceName: t.DataSourceName(),
		ProjectName:    t.Project(),
		TableName:      source.DefaultTableName(t),
		Params:         u.Params,
	}
}

// BuildError is a non-fatal failure for one template or source.
type BuildError struct {
	Source   string // TemplateSourceType of the include
	Template dag.TemplateRef
	Stage    string
	Err      error
}

func (e *BuildError) Error() string {
	if e.Template.Key == "" {
		return fmt.Sprintf("%s %s: %v", e.Stage, e.Source, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Template.Key, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// BuildResult contains the outcome of a build.
type BuildResult struct {
	Graph     *dag.Graph
	Unmapped  []UnmappedEntry
	Errors    []*BuildError
	Templates int
	// Cycle is one dependency cycle found in the graph, if any.
	Cycle    []string
	Duration time.Duration
}

// HasErrors returns true if any template failed.
func (r *BuildResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Summary returns a human-readable summary.
func (r *BuildResult) Summary() string {
	return fmt.Sprintf("Templates: %d | Tables: %d | Unmapped: %d | Errors: %d | Duration: %s",
		r.Templates, len(r.Graph.Tables()), len(r.Unmapped), len(r.Errors),
		r.Duration.Round(time.Millisecond))
}

// templateResult is what one worker produces for one template.
type templateResult struct {
	graph    *dag.Graph
	unmapped *UnmappedEntry
	errs     []*BuildError
}

// Build enumerates every template, renders it for each table it is
// mapped to, and assembles a fresh dependency map that replaces the
// current one. A malformed mapping fails the build; a template that
// cannot be read or rendered is reported in BuildResult.Errors.
func (e *Engine) Build(ctx context.Context) (*BuildResult, error) {
	start := time.Now()

	if err := e.project.Validate(); err != nil {
		return nil, err
	}
	if err := e.mapping.Validate(); err != nil {
		return nil, err
	}

	e.logger.Info("starting build", "includes", len(e.project.Include))

	result := &BuildResult{}
	templates, err := e.enumerate(ctx, result)
	if err != nil {
		return nil, err
	}
	result.Templates = len(templates)

	results := make([]templateResult, len(templates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, t := range templates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.buildTemplate(gctx, t)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	graph := dag.NewGraph()
	for _, r := range results {
		if r.graph != nil {
			graph.Merge(r.graph)
		}
		if r.unmapped != nil {
			result.Unmapped = append(result.Unmapped, *r.unmapped)
		}
		result.Errors = append(result.Errors, r.errs...)
	}
	graph.SortOccurrences()

	if cycle := graph.FindCycle(); cycle != nil {
		result.Cycle = cycle
		e.logger.Warn("dependency cycle detected", "cycle", cycle)
	}

	e.replace(graph, result.Unmapped)
	result.Graph = graph
	result.Duration = time.Since(start)

	e.logger.Info("build completed",
		"templates", result.Templates,
		"tables", len(graph.Tables()),
		"unmapped", len(result.Unmapped),
		"errors", len(result.Errors),
		"duration_ms", result.Duration.Milliseconds())

	return result, nil
}

// enumerate lists the templates of every include in order. An include
// whose source cannot be created is a configuration error; one whose
// listing fails is recorded and skipped.
func (e *Engine) enumerate(ctx context.Context, result *BuildResult) ([]source.Template, error) {
	var templates []source.Template
	for i, inc := range e.project.Include {
		src, err := e.registry.Open(inc, e.deps)
		if err != nil {
			return nil, fmt.Errorf("include %d (%s): %w", i, inc.TemplateSourceType, err)
		}
		found, err := src.Templates(ctx)
		if err != nil {
			e.logger.Error("failed to list templates", "source", inc.TemplateSourceType, "error", err)
			result.Errors = append(result.Errors, &BuildError{
				Source: inc.TemplateSourceType,
				Stage:  StageEnumerate,
				Err:    err,
			})
			continue
		}
		e.logger.Debug("templates listed", "source", inc.TemplateSourceType, "count", len(found))
		templates = append(templates, found...)
	}
	return templates, nil
}

// buildTemplate renders t once per mapped table and parses its
// references into a graph of its own.
func (e *Engine) buildTemplate(ctx context.Context, t source.Template) templateResult {
	var res templateResult
	ref := source.Ref(t)

	fail := func(stage string, err error) {
		e.logger.Error("template failed", "key", t.Key(), "stage", stage, "error", err)
		res.errs = append(res.errs, &BuildError{
			Source:   string(t.Type()),
			Template: ref,
			Stage:    stage,
			Err:      err,
		})
	}

	tables := e.mapping.Match(source.MatchTarget(t))
	if len(tables) == 0 {
		e.logger.Debug("template not mapped", "key", t.Key())
		if e.project.Settings.ReportUnmappedWithoutParams {
			res.unmapped = &UnmappedEntry{Template: t}
			return res
		}
		// The policy only hides templates without placeholders.
		raw, err := t.RawText(ctx)
		if err != nil {
			fail(StageFetch, err)
			return res
		}
		if len(template.ExtractPlaceholderTokens(raw)) > 0 {
			res.unmapped = &UnmappedEntry{Template: t}
		}
		return res
	}

	raw, err := t.RawText(ctx)
	if err != nil {
		fail(StageFetch, err)
		return res
	}

	res.graph = dag.NewGraph()
	undefined := make(map[string]bool)
	for _, table := range tables {
		values := params.Merge(e.mapping.Global.Parameters, table.Parameters)
		for _, p := range params.FindUndefined(raw, values, table.IgnoreParameters) {
			undefined[p] = true
		}

		rendered, err := t.Render(ctx, values, table.IgnoreParameters)
		if err != nil {
			fail(StageRender, err)
			continue
		}

		res.graph.EnsureTable(table.TableName)
		for _, r := range lineage.Parse(rendered) {
			upstream := lineage.SolveTablePrefix(r.Table, t.DefaultTablePrefix())
			res.graph.AddReference(table.TableName, upstream, ref,
				dag.Line{LineNumber: r.Line, LineString: r.LineText},
				mergeLabels(table.Labels, e.mapping.LabelsFor(upstream)))
		}
	}

	if len(undefined) > 0 {
		paths := make([]string, 0, len(undefined))
		for p := range undefined {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		res.unmapped = &UnmappedEntry{Template: t, Params: paths}
	}
	return res
}

func mergeLabels(sets ...map[string]string) map[string]string {
	var out map[string]string
	for _, set := range sets {
		for k, v := range set {
			if out == nil {
				out = make(map[string]string)
			}
			out[k] = v
		}
	}
	return out
}
