// Package domain defines the record model, table catalogue and persistence
// contract shared by the qitp store backends and HTTP handlers.
package domain

import (
	"errors"
	"fmt"
)

// Record is an untyped row. Values follow JSON shapes: string, float64, bool,
// nil, map[string]any and []any.
type Record map[string]any

// Reserved record fields maintained by the store.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// ID returns the record identifier or "" when absent.
func (r Record) ID() string {
	id, _ := r[FieldID].(string)
	return id
}

// String returns the string value stored under key.
func (r Record) String(key string) string {
	v, _ := r[key].(string)
	return v
}

// Bool returns the boolean value stored under key.
func (r Record) Bool(key string) bool {
	v, _ := r[key].(bool)
	return v
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies nested maps and slices; scalars are returned as-is.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = CloneValue(inner)
		}
		return out
	case Record:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = CloneValue(inner)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// CloneRecords deep-copies a record slice.
func CloneRecords(in []Record) []Record {
	out := make([]Record, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}

// Where is a flat condition map applied by FindMany and Count.
type Where map[string]any

// ErrDuplicateID is returned when a caller-assigned id already exists in the table.
var ErrDuplicateID = errors.New("duplicate record id")

// ErrUnknownTable is returned for operations on tables outside the catalogue.
var ErrUnknownTable = errors.New("unknown table")

// UnknownTableError wraps ErrUnknownTable with the offending name.
func UnknownTableError(t Table) error {
	return fmt.Errorf("%w: %s", ErrUnknownTable, t)
}
