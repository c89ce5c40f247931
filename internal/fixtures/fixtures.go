// Package fixtures loads seed records into a record store on start-up.
package fixtures

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"qitp/pkg/domain"
)

//go:embed seed.yaml
var defaultSeed []byte

// File is the on-disk fixture layout.
type File struct {
	Version int                         `yaml:"version"`
	Tables  map[string][]map[string]any `yaml:"tables"`
}

// Parse decodes fixture YAML into a snapshot with JSON-shaped values.
func Parse(b []byte) (domain.Snapshot, error) {
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("fixtures: decode: %w", err)
	}
	if f.Version != 1 {
		return nil, errors.New("fixtures: unsupported version")
	}
	snap := make(domain.Snapshot, len(f.Tables))
	for name, rows := range f.Tables {
		table := domain.Table(name)
		if !table.Known() {
			return nil, fmt.Errorf("fixtures: %w", domain.UnknownTableError(table))
		}
		records := make([]domain.Record, 0, len(rows))
		for i, row := range rows {
			rec, _ := normalize(row).(map[string]any)
			if id, _ := rec[domain.FieldID].(string); id == "" {
				return nil, fmt.Errorf("fixtures: %s[%d]: missing id", name, i)
			}
			records = append(records, domain.Record(rec))
		}
		snap[table] = records
	}
	return snap, nil
}

// Load reads and parses a fixture file.
func Load(path string) (domain.Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Default returns the embedded seed data.
func Default() (domain.Snapshot, error) {
	return Parse(defaultSeed)
}

// Seed creates the snapshot's records in tables that are currently empty.
// Tables that already hold data are left alone so a persistent backend is
// not re-seeded on every start. It returns the number of records created
// per table.
func Seed(ctx context.Context, store domain.RecordStore, snap domain.Snapshot) (map[domain.Table]int, error) {
	created := make(map[domain.Table]int)
	for _, table := range domain.Tables() {
		records := snap[table]
		if len(records) == 0 {
			continue
		}
		n, err := store.Count(ctx, table, nil)
		if err != nil {
			return created, fmt.Errorf("count %s: %w", table, err)
		}
		if n > 0 {
			continue
		}
		for _, rec := range records {
			if _, err := store.Create(ctx, table, rec); err != nil {
				return created, fmt.Errorf("seed %s %s: %w", table, rec.ID(), err)
			}
			created[table]++
		}
	}
	return created, nil
}

// normalize converts YAML-decoded values into the shapes encoding/json
// produces: float64 numbers, RFC3339 strings, map[string]any and []any.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = normalize(inner)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[fmt.Sprint(k)] = normalize(inner)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = normalize(inner)
		}
		return out
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	default:
		return v
	}
}
