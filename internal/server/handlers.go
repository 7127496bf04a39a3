package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/leaplineage/internal/config"
	"github.com/leapstack-labs/leaplineage/internal/dag"
	"github.com/leapstack-labs/leaplineage/internal/engine"
	"github.com/leapstack-labs/leaplineage/internal/render"
)

type errorResponse struct {
	Error string `json:"error"`
}

type unmappedResponse struct {
	Key        string   `json:"key"`
	URI        string   `json:"uri"`
	SourceType string   `json:"source_type"`
	Params     []string `json:"params"`
}

type buildResponse struct {
	Templates int      `json:"templates"`
	Tables    int      `json:"tables"`
	Unmapped  int      `json:"unmapped"`
	Errors    []string `json:"errors"`
	Cycle     []string `json:"cycle,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func boolParam(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q", name, v)
	}
	return b, nil
}

func queryOptions(r *http.Request) (engine.QueryOptions, error) {
	var opts engine.QueryOptions
	var err error
	if opts.Recursive, err = boolParam(r, "recursive"); err != nil {
		return opts, err
	}
	if opts.Verbose, err = boolParam(r, "verbose"); err != nil {
		return opts, err
	}
	opts.Response, err = engine.ParseResponseKind(r.URL.Query().Get("response"))
	return opts, err
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTables(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.ListTables())
}

func (s *Server) handleURIs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.ListURIs())
}

func (s *Server) handleTraverse(query func(string, engine.QueryOptions) *engine.QueryResult) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts, err := queryOptions(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, query(chi.URLParam(r, "table"), opts))
	}
}

func (s *Server) handleLabels(w http.ResponseWriter, r *http.Request) {
	tables, err := s.engine.TablesByLabels(r.URL.Query()["label"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if tables == nil {
		tables = []string{}
	}
	writeJSON(w, http.StatusOK, tables)
}

func (s *Server) handleUnmapped(w http.ResponseWriter, _ *http.Request) {
	out := []unmappedResponse{}
	for _, u := range s.engine.Unmapped() {
		params := u.Params
		if params == nil {
			params = []string{}
		}
		out = append(out, unmappedResponse{
			Key:        u.Template.Key(),
			URI:        u.Template.URI(),
			SourceType: string(u.Template.Type()),
			Params:     params,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMap(w http.ResponseWriter, _ *http.Request) {
	data, err := s.engine.SaveBytes()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

// handleGraphSVG draws the whole map, or the traversal from ?table= in
// ?direction= (up or down). ?format=dot returns the DOT source.
func (s *Server) handleGraphSVG(w http.ResponseWriter, r *http.Request) {
	g := s.engine.Graph()
	q := r.URL.Query()

	var dot string
	if table := q.Get("table"); table != "" {
		dir := dag.Upstream
		switch q.Get("direction") {
		case "", "up", "upstream":
		case "down", "downstream":
			dir = dag.Downstream
		default:
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid direction %q", q.Get("direction")))
			return
		}
		tree := dag.Traverse(g, table, dag.TraverseOptions{Direction: dir, Recursive: true, Logger: s.logger})
		dot = render.TreeDOT(g, tree, render.Options{Labels: true})
	} else {
		dot = render.GraphDOT(g, render.Options{Labels: true})
	}

	if q.Get("format") == "dot" {
		w.Header().Set("Content-Type", "text/vnd.graphviz")
		_, _ = w.Write([]byte(dot))
		return
	}

	svg, err := render.SVG(r.Context(), dot)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	_, _ = w.Write(svg)
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	result, err := s.Rebuild(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err)
		return
	}

	resp := buildResponse{
		Templates: result.Templates,
		Tables:    len(result.Graph.Tables()),
		Unmapped:  len(result.Unmapped),
		Errors:    []string{},
		Cycle:     result.Cycle,
	}
	for _, e := range result.Errors {
		resp.Errors = append(resp.Errors, e.Error())
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleEvents streams a server-sent "build" event after every rebuild.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	ch := s.notifier.subscribe()
	defer s.notifier.unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			data, err := json.Marshal(ev)
			if err != nil {
				return
			}
			_, _ = fmt.Fprintf(w, "event: build\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
