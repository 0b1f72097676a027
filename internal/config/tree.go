// Package config provides the dotted-key configuration tree shared by
// every composite storage backend. A backend's child configuration may
// be written either as a nested subtree or as flat keys prefixed with
// the child's name and a separator, and the two forms may be mixed.
package config

import "strings"

// Tree is an immutable view over a configuration subtree. The
// underlying data is a plain map[string]any as produced by viper's
// AllSettings/Get, so construction never needs its own parser.
type Tree struct {
	data map[string]any
}

// New wraps a raw settings map as a Tree. A nil map is treated as empty.
func New(data map[string]any) Tree {
	if data == nil {
		data = map[string]any{}
	}
	return Tree{data: data}
}

// Get returns a string-valued key at the top level of the tree, or
// ("", false) if absent or not a string.
func (t Tree) Get(key string) (string, bool) {
	v, ok := t.data[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetString returns a string-valued key, or def if absent.
func (t Tree) GetString(key, def string) string {
	if s, ok := t.Get(key); ok {
		return s
	}
	return def
}

// GetInt returns an integer-valued key, or def if absent or not a
// number. Accepts int, int64 and float64 since both viper and JSON
// decoding can produce any of those for a numeric config value.
func (t Tree) GetInt(key string, def int) int {
	v, ok := t.data[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}

// GetBool returns a bool-valued key, or def if absent or not a bool.
func (t Tree) GetBool(key string, def bool) bool {
	v, ok := t.data[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// Keys returns the top-level keys of the tree.
func (t Tree) Keys() []string {
	out := make([]string, 0, len(t.data))
	for k := range t.data {
		out = append(out, k)
	}
	return out
}

// Subtree resolves the configuration for a named child, merging a
// nested map under name (if present) with flattened keys of the form
// "name.key" or "name;key" found at this level. The ';' form exists so
// a child name that itself contains a literal '.' does not collide
// with the flattening separator.
//
// Flat keys take precedence over same-named keys from the nested map,
// matching the behavior of the storage backends this mirrors: explicit
// per-key overrides win over whatever the nested block already set.
func (t Tree) Subtree(name string) Tree {
	merged := map[string]any{}

	if nested, ok := t.data[name]; ok {
		if m, ok := asMap(nested); ok {
			for k, v := range m {
				merged[k] = v
			}
		}
	}

	for _, sep := range []string{".", ";"} {
		prefix := name + sep
		for k, v := range t.data {
			if strings.HasPrefix(k, prefix) {
				sub := strings.TrimPrefix(k, prefix)
				if sub != "" {
					merged[sub] = v
				}
			}
		}
	}

	return Tree{data: merged}
}

// Has reports whether a key named name (with any value, not only a
// nested map) or any flattened key prefixed with name exists.
func (t Tree) Has(name string) bool {
	if _, ok := t.data[name]; ok {
		return true
	}
	for _, sep := range []string{".", ";"} {
		prefix := name + sep
		for k := range t.data {
			if strings.HasPrefix(k, prefix) {
				return true
			}
		}
	}
	return false
}

// Raw exposes the underlying map for callers (such as the backend
// registry) that need to hand a subtree to a decoding library.
func (t Tree) Raw() map[string]any {
	return t.data
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			if ks, ok := k.(string); ok {
				out[ks] = val
			}
		}
		return out, true
	default:
		return nil, false
	}
}
