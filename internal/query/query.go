// Package query implements the pure list utilities applied to record slices
// before they leave a handler: filter, keyword search, sort and paginate.
// Composition order is always filter -> search -> sort -> paginate.
package query

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"qitp/pkg/domain"
)

// DefaultPageSize applies when a caller passes a non-positive page size.
const DefaultPageSize = 10

// Lookup resolves a dotted path ("inspector.name") through nested maps.
func Lookup(r domain.Record, path string) (any, bool) {
	if r == nil || path == "" {
		return nil, false
	}
	var current any = map[string]any(r)
	for _, part := range strings.Split(path, ".") {
		var (
			next any
			ok   bool
		)
		switch node := current.(type) {
		case map[string]any:
			next, ok = node[part]
		case domain.Record:
			next, ok = node[part]
		default:
			return nil, false
		}
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// Filter keeps the records matching every non-empty condition. Empty
// conditions (nil or "") are ignored. The input slice is not modified.
func Filter(items []domain.Record, conditions map[string]any) []domain.Record {
	out := make([]domain.Record, 0, len(items))
	for _, item := range items {
		if Matches(item, conditions) {
			out = append(out, item)
		}
	}
	return out
}

// Matches reports whether r satisfies every non-empty condition.
func Matches(r domain.Record, conditions map[string]any) bool {
	for field, want := range conditions {
		if isEmpty(want) {
			continue
		}
		got, ok := Lookup(r, field)
		if !ok || got == nil {
			return false
		}
		if !matchValue(got, want) {
			return false
		}
	}
	return true
}

// Search keeps the records where any of fields contains keyword
// case-insensitively. An empty keyword or field list keeps everything.
func Search(items []domain.Record, keyword string, fields ...string) []domain.Record {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" || len(fields) == 0 {
		out := make([]domain.Record, len(items))
		copy(out, items)
		return out
	}
	needle := strings.ToLower(keyword)
	out := make([]domain.Record, 0, len(items))
	for _, item := range items {
		for _, field := range fields {
			v, ok := Lookup(item, field)
			if ok && v != nil && strings.Contains(strings.ToLower(stringify(v)), needle) {
				out = append(out, item)
				break
			}
		}
	}
	return out
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	default:
		return false
	}
}

func matchValue(got, want any) bool {
	if s, ok := want.(string); ok {
		return strings.Contains(strings.ToLower(stringify(got)), strings.ToLower(s))
	}
	if wf, ok := toFloat(want); ok {
		gf, ok := toFloat(got)
		return ok && gf == wf
	}
	return reflect.DeepEqual(got, want)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any, []any, domain.Record:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		if f, ok := toFloat(t); ok {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return fmt.Sprint(t)
	}
}
