// Package params resolves template parameters: it merges the global and
// per-table parameter trees and reports which placeholders a template
// uses that the resolved tree does not define.
package params

import (
	"fmt"
	"sort"
	"strings"

	"github.com/leapstack-labs/leaplineage/internal/template"
)

// Set is a parameter tree. Values are scalars or nested Sets.
// Trees decoded from YAML may carry map[string]any branches; both are
// treated as branches.
type Set map[string]any

// AsMap returns s as a plain map for packages that do not know Set.
func (s Set) AsMap() map[string]any { return s }

// Merge returns the deep union of global and perTable. Leaves in perTable
// win on conflicting paths. Neither input is modified.
func Merge(global, perTable Set) Set {
	out := Clone(global)
	if out == nil {
		out = Set{}
	}
	mergeInto(out, perTable)
	return out
}

func mergeInto(dst Set, src Set) {
	for k, v := range src {
		srcBranch, srcIsBranch := asSet(v)
		if !srcIsBranch {
			dst[k] = v
			continue
		}
		dstBranch, dstIsBranch := asSet(dst[k])
		if !dstIsBranch {
			dst[k] = Clone(srcBranch)
			continue
		}
		merged := Clone(dstBranch)
		mergeInto(merged, srcBranch)
		dst[k] = merged
	}
}

// Clone returns a deep copy of s with every branch normalized to Set.
func Clone(s Set) Set {
	if s == nil {
		return nil
	}
	out := make(Set, len(s))
	for k, v := range s {
		if branch, ok := asSet(v); ok {
			out[k] = Clone(branch)
			continue
		}
		out[k] = v
	}
	return out
}

func asSet(v any) (Set, bool) {
	switch m := v.(type) {
	case Set:
		return m, true
	case map[string]any:
		return Set(m), true
	case map[any]any:
		out := make(Set, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}

// Flatten returns one dotted path per leaf, sorted.
// An empty branch counts as a leaf.
func Flatten(s Set) []string {
	var paths []string
	var walk func(prefix string, node Set)
	walk = func(prefix string, node Set) {
		for k, v := range node {
			path := k
			if prefix != "" {
				path = prefix + "." + k
			}
			if branch, ok := asSet(v); ok && len(branch) > 0 {
				walk(path, branch)
				continue
			}
			paths = append(paths, path)
		}
	}
	walk("", s)
	sort.Strings(paths)
	return paths
}

// Lookup returns the value at a dotted path.
func (s Set) Lookup(path string) (any, bool) {
	var node any = s
	for _, key := range strings.Split(path, ".") {
		branch, ok := asSet(node)
		if !ok {
			return nil, false
		}
		node, ok = branch[key]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

// FindUndefined returns the placeholder tokens of raw that are neither
// leaves of resolved nor listed in ignore, sorted.
func FindUndefined(raw string, resolved Set, ignore []string) []string {
	defined := make(map[string]bool)
	for _, p := range Flatten(resolved) {
		defined[p] = true
	}
	for _, p := range ignore {
		defined[p] = true
	}

	var undefined []string
	for _, tok := range template.ExtractPlaceholderTokens(raw) {
		if !defined[tok] {
			undefined = append(undefined, tok)
		}
	}
	sort.Strings(undefined)
	return undefined
}

// FromPaths builds a tree from dotted paths, creating intermediate
// branches as needed. Leaves are nil. A path that runs through an
// existing leaf replaces the leaf with a branch.
func FromPaths(paths []string) Set {
	root := Set{}
	for _, path := range paths {
		node := root
		keys := strings.Split(path, ".")
		for i, key := range keys {
			if i == len(keys)-1 {
				if _, exists := node[key]; !exists {
					node[key] = nil
				}
				break
			}
			next, ok := node[key].(Set)
			if !ok {
				next = Set{}
				node[key] = next
			}
			node = next
		}
	}
	return root
}
