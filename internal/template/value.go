package template

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// toGlobals exposes each top-level parameter as a Starlark global.
// Nested maps become structs so templates can write params.PROJECT.
func toGlobals(values map[string]any) (starlark.StringDict, error) {
	globals := make(starlark.StringDict, len(values))
	for k, v := range values {
		sv, err := goToStarlark(k, v)
		if err != nil {
			return nil, err
		}
		globals[k] = sv
	}
	return globals, nil
}

func goToStarlark(name string, v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case string:
		return starlark.String(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case uint64:
		return starlark.MakeUint64(val), nil
	case float64:
		return starlark.Float(val), nil
	case bool:
		return starlark.Bool(val), nil
	case []string:
		list := make([]starlark.Value, len(val))
		for i, s := range val {
			list[i] = starlark.String(s)
		}
		return starlark.NewList(list), nil
	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := goToStarlark(name, item)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", name, i, err)
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil
	}

	if m, ok := asMap(v); ok {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fields := make(starlark.StringDict, len(m))
		for _, k := range keys {
			sv, err := goToStarlark(name+"."+k, m[k])
			if err != nil {
				return nil, err
			}
			fields[k] = sv
		}
		return starlarkstruct.FromStringDict(starlark.String(name), fields), nil
	}

	return starlark.String(fmt.Sprint(v)), nil
}

// asMap accepts the map shapes produced by YAML and koanf decoding.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}

	// named map types such as params.Set
	if conv, ok := v.(interface{ AsMap() map[string]any }); ok {
		return conv.AsMap(), true
	}
	return nil, false
}
