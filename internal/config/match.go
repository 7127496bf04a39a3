package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Target describes a template for matching against mapping entries.
type Target struct {
	SourceType     string
	Key            string
	URI            string
	DataSourceName string
	ProjectName    string
}

// Match returns the tables of every mapping entry that selects t, in
// file order.
func (m *MappingConfig) Match(t Target) []MappedTable {
	var tables []MappedTable
	for _, entry := range m.Mapping {
		if entry.matches(t) {
			tables = append(tables, entry.Tables...)
		}
	}
	return tables
}

func (e MappingEntry) matches(t Target) bool {
	if !strings.EqualFold(e.TemplateSourceType, t.SourceType) {
		return false
	}
	switch {
	case strings.EqualFold(e.TemplateSourceType, SourceFile):
		if e.FileSuffix != "" && strings.HasSuffix(t.Key, e.FileSuffix) {
			return true
		}
		return e.Uri != "" && e.Uri == t.URI
	case isObjectStore(e.TemplateSourceType):
		return e.Uri == t.URI
	case strings.EqualFold(e.TemplateSourceType, SourceRedash):
		return strconv.Itoa(e.QueryId) == t.Key && e.DataSourceName == t.DataSourceName
	case strings.EqualFold(e.TemplateSourceType, SourceDbt):
		return e.ProjectName == t.ProjectName && strings.HasSuffix(t.Key, e.FileSuffix)
	}
	return false
}

// LabelsFor returns the labels that ExtraLabels declare for table.
func (m *MappingConfig) LabelsFor(table string) map[string]string {
	var out map[string]string
	for _, extra := range m.ExtraLabels {
		if extra.TableName != table {
			continue
		}
		if out == nil {
			out = make(map[string]string, len(extra.Labels))
		}
		for k, v := range extra.Labels {
			out[k] = v
		}
	}
	return out
}

// TablesByLabels returns the tables carrying every key:value target,
// looking at mapped tables first and then ExtraLabels. Each table is
// listed once, in the order it is first found. Targets repeating a key
// with different values match nothing. No targets select no tables.
func (m *MappingConfig) TablesByLabels(targets []string) ([]string, error) {
	want := make([][2]string, 0, len(targets))
	for _, target := range targets {
		key, value, ok := strings.Cut(target, ":")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid label %q: expected key:value", target)
		}
		want = append(want, [2]string{key, value})
	}

	var tables []string
	seen := make(map[string]bool)
	add := func(name string, labels map[string]string) {
		if seen[name] || !hasLabels(labels, want) {
			return
		}
		seen[name] = true
		tables = append(tables, name)
	}

	for _, entry := range m.Mapping {
		for _, table := range entry.Tables {
			add(table.TableName, table.Labels)
		}
	}
	for _, extra := range m.ExtraLabels {
		add(extra.TableName, extra.Labels)
	}
	return tables, nil
}

// hasLabels reports whether labels holds every key:value pair in want.
// An empty want matches nothing, so a label query without targets selects
// no tables.
func hasLabels(labels map[string]string, want [][2]string) bool {
	if len(labels) == 0 || len(want) == 0 {
		return false
	}
	for _, kv := range want {
		if got, ok := labels[kv[0]]; !ok || got != kv[1] {
			return false
		}
	}
	return true
}
