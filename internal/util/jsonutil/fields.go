package jsonutil

import "strings"

// Dig walks nested objects along path and returns the value found, or nil.
func Dig(obj map[string]any, path ...string) any {
	var cur any = obj
	for _, p := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[p]
	}
	return cur
}

// Str returns the first non-blank string stored under one of keys, trimmed.
func Str(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// List returns v as a slice. A lone non-blank string becomes a one-item list.
func List(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		return []any{t}
	}
	return nil
}

// Strings keeps the non-blank string items of List(v). It never returns nil.
func Strings(v any) []string {
	out := []string{}
	for _, item := range List(v) {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}
