package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/leapstack-labs/leaplineage/internal/dag"
)

// ResponseKind selects what a flat query result lists.
type ResponseKind string

// Response kinds.
const (
	ResponseTable ResponseKind = "table"
	ResponseURI   ResponseKind = "uri"
)

// ParseResponseKind accepts "table", "uri", or "file" (an alias for uri),
// in any case.
func ParseResponseKind(s string) (ResponseKind, error) {
	switch strings.ToLower(s) {
	case "", "table":
		return ResponseTable, nil
	case "uri", "file":
		return ResponseURI, nil
	default:
		return "", fmt.Errorf("unknown response kind %q (want table or uri)", s)
	}
}

// QueryOptions shape a traversal query.
type QueryOptions struct {
	Recursive bool
	Verbose   bool
	Response  ResponseKind
}

// QueryResult is the answer for one start table. Verbose holds the
// nested tree when QueryOptions.Verbose is set; otherwise Tables or
// URIs holds the flat result.
type QueryResult struct {
	Table     string         `json:"table"`
	Direction string         `json:"direction"`
	Verbose   map[string]any `json:"verbose,omitempty"`
	Tables    []string       `json:"tables,omitempty"`
	URIs      []string       `json:"uris,omitempty"`

	Tree *dag.Tree `json:"-"`
}

// Upstream returns the tables table reads from.
func (e *Engine) Upstream(table string, opts QueryOptions) *QueryResult {
	return e.query(table, dag.Upstream, opts)
}

// Downstream returns the tables that read from table.
func (e *Engine) Downstream(table string, opts QueryOptions) *QueryResult {
	return e.query(table, dag.Downstream, opts)
}

func (e *Engine) query(table string, dir dag.Direction, opts QueryOptions) *QueryResult {
	tree := dag.Traverse(e.Graph(), table, dag.TraverseOptions{
		Direction: dir,
		Recursive: opts.Recursive,
		Logger:    e.logger,
	})

	res := &QueryResult{Table: table, Direction: dir.String(), Tree: tree}
	switch {
	case opts.Verbose:
		res.Verbose = tree.Verbose()
	case opts.Response == ResponseURI:
		res.URIs = tree.URIs()
	default:
		res.Tables = tree.Tables()
	}
	return res
}

// TablesByLabels returns the mapped tables carrying every key:value target.
func (e *Engine) TablesByLabels(targets []string) ([]string, error) {
	return e.mapping.TablesByLabels(targets)
}

// ListTables returns every table in the map, sorted.
func (e *Engine) ListTables() []string {
	return e.Graph().Tables()
}

// ListURIs returns every template URI in the map, sorted.
func (e *Engine) ListURIs() []string {
	return e.Graph().URIs()
}

// SaveBytes serializes the current map as indented JSON.
func (e *Engine) SaveBytes() ([]byte, error) {
	data, err := json.MarshalIndent(e.Graph(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode map: %w", err)
	}
	return data, nil
}

// LoadBytes replaces the current map with a serialized one.
func (e *Engine) LoadBytes(data []byte) error {
	g := dag.NewGraph()
	if err := json.Unmarshal(data, g); err != nil {
		return fmt.Errorf("decode map: %w", err)
	}
	e.replace(g, nil)
	return nil
}

// Save writes the current map to locator.
func (e *Engine) Save(ctx context.Context, locator string) error {
	data, err := e.SaveBytes()
	if err != nil {
		return err
	}
	if err := e.store.Write(ctx, locator, data); err != nil {
		return err
	}
	e.logger.Info("map saved", "locator", locator, "tables", len(e.ListTables()))
	return nil
}

// Load replaces the current map with the merge of the maps stored at
// locators, in order.
func (e *Engine) Load(ctx context.Context, locators ...string) error {
	graphs := make([]*dag.Graph, 0, len(locators))
	for _, loc := range locators {
		data, err := e.store.Read(ctx, loc)
		if err != nil {
			return err
		}
		g := dag.NewGraph()
		if err := json.Unmarshal(data, g); err != nil {
			return fmt.Errorf("decode map %s: %w", loc, err)
		}
		graphs = append(graphs, g)
		e.logger.Debug("map loaded", "locator", loc, "tables", g.Len())
	}
	e.replace(dag.Merge(graphs...), nil)
	return nil
}
