package dag

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type edgeJSON struct {
	Template  TemplateRef       `json:"template"`
	Templates []TemplateRef     `json:"templates,omitempty"`
	Lines     []Line            `json:"lines"`
	Labels    map[string]string `json:"labels,omitempty"`
}

func (e *Edge) toJSON() edgeJSON {
	out := edgeJSON{
		Template: e.Template(),
		Lines:    e.Lines,
		Labels:   e.Labels,
	}
	if len(e.Templates) > 1 {
		out.Templates = e.Templates[1:]
	}
	if out.Lines == nil {
		out.Lines = []Line{}
	}
	return out
}

func (ej edgeJSON) toEdge() *Edge {
	e := &Edge{Lines: ej.Lines}
	if ej.Template != (TemplateRef{}) {
		e.Templates = append(e.Templates, ej.Template)
	}
	for _, ref := range ej.Templates {
		e.addTemplate(ref)
	}
	e.addLabels(ej.Labels)
	return e
}

// MarshalJSON writes the graph as nested objects keyed by downstream and
// then upstream table, in insertion order.
func (g *Graph) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, down := range g.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeKey(&buf, down); err != nil {
			return nil, err
		}
		buf.WriteByte('{')
		n := g.nodes[down]
		for j, up := range n.upstreams {
			if j > 0 {
				buf.WriteByte(',')
			}
			if err := writeKey(&buf, up); err != nil {
				return nil, err
			}
			b, err := json.Marshal(n.edges[up].toJSON())
			if err != nil {
				return nil, fmt.Errorf("edge %s -> %s: %w", down, up, err)
			}
			buf.Write(b)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeKey(buf *bytes.Buffer, key string) error {
	b, err := json.Marshal(key)
	if err != nil {
		return err
	}
	buf.Write(b)
	buf.WriteByte(':')
	return nil
}

// UnmarshalJSON replaces the graph with the decoded one, keeping the
// order of keys as they appear in data.
func (g *Graph) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	out := NewGraph()

	if isNull, err := openObject(dec); err != nil || isNull {
		if err != nil {
			return fmt.Errorf("decode graph: %w", err)
		}
		g.replace(out)
		return nil
	}
	for dec.More() {
		down, err := readKey(dec)
		if err != nil {
			return fmt.Errorf("decode graph: %w", err)
		}
		out.ensure(down)

		isNull, err := openObject(dec)
		if err != nil {
			return fmt.Errorf("decode %s: %w", down, err)
		}
		if isNull {
			continue
		}
		for dec.More() {
			up, err := readKey(dec)
			if err != nil {
				return fmt.Errorf("decode %s: %w", down, err)
			}
			var ej edgeJSON
			if err := dec.Decode(&ej); err != nil {
				return fmt.Errorf("decode %s -> %s: %w", down, up, err)
			}
			out.setEdge(down, up, ej.toEdge())
		}
		if err := closeObject(dec); err != nil {
			return fmt.Errorf("decode %s: %w", down, err)
		}
	}
	if err := closeObject(dec); err != nil {
		return fmt.Errorf("decode graph: %w", err)
	}

	g.replace(out)
	return nil
}

func (g *Graph) replace(other *Graph) {
	g.order = other.order
	g.nodes = other.nodes
	g.invalidate()
}

func openObject(dec *json.Decoder) (isNull bool, err error) {
	tok, err := dec.Token()
	if err != nil {
		return false, err
	}
	if tok == nil {
		return true, nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return false, fmt.Errorf("expected object, got %v", tok)
	}
	return false, nil
}

func closeObject(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '}' {
		return fmt.Errorf("expected end of object, got %v", tok)
	}
	return nil
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected key, got %v", tok)
	}
	return key, nil
}
