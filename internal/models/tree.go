package models

import (
	"strings"
)

// GetPath resolves a dotted path in a JSON tree.
func GetPath(tree map[string]any, path string) (any, bool) {
	var cur any = tree
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// SetPath writes value at a dotted path, creating intermediate objects.
func SetPath(tree map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	cur := tree
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

// IsEmpty treats nil, blank strings, zero numbers, empty collections and objects
// whose leaves are all empty as absent.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case float64:
		return t == 0
	case int:
		return t == 0
	case bool:
		return !t
	case []any:
		return len(t) == 0
	case []Item:
		return len(t) == 0
	case map[string]any:
		for _, child := range t {
			if !IsEmpty(child) {
				return false
			}
		}
		return true
	case Item:
		return IsEmpty(map[string]any(t))
	default:
		return false
	}
}

// PathEmpty reports whether path is missing or empty in tree.
func PathEmpty(tree map[string]any, path string) bool {
	v, ok := GetPath(tree, path)
	return !ok || IsEmpty(v)
}

// ItemsAt returns the list at path as items; non-object entries are dropped.
func ItemsAt(tree map[string]any, path string) []Item {
	v, ok := GetPath(tree, path)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []Item:
		return t
	case []any:
		out := make([]Item, 0, len(t))
		for _, e := range t {
			if m, ok := e.(map[string]any); ok {
				out = append(out, Item(m))
			}
		}
		return out
	default:
		return nil
	}
}

// ItemsToAny converts items into the []any form encoding/json produces.
func ItemsToAny(items []Item) []any {
	out := make([]any, len(items))
	for i, it := range items {
		out[i] = map[string]any(it)
	}
	return out
}

// Clone returns a deep copy of an item.
func (it Item) Clone() Item {
	out := make(Item, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}
