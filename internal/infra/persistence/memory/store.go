// Package memory provides the in-memory implementation of the record store.
// It is the process-lifetime default and the base the sqlite and postgres
// snapshot stores wrap.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"qitp/internal/query"
	"qitp/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var (
	_ domain.RecordStore = (*Store)(nil)
	_ domain.StateStore  = (*Store)(nil)
)

type (
	// Record aliases domain.Record for in-memory persistence operations.
	Record = domain.Record
	// Table aliases domain.Table.
	Table = domain.Table
	// Snapshot aliases domain.Snapshot.
	Snapshot = domain.Snapshot
)

// Store is a mutex-guarded table -> ordered records map.
type Store struct {
	mu     sync.RWMutex
	tables map[Table][]Record
	nowFn  func() time.Time
	newID  func() (string, error)
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// WithIDGenerator overrides identifier generation.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// NewStore constructs an empty store holding every catalogue table.
func NewStore(opts ...Option) *Store {
	s := &Store{
		tables: newTables(),
		nowFn:  func() time.Time { return time.Now().UTC() },
		newID:  newUUIDv7,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newTables() map[Table][]Record {
	tables := make(map[Table][]Record, len(domain.Tables()))
	for _, t := range domain.Tables() {
		tables[t] = nil
	}
	return tables
}

func newUUIDv7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (s *Store) timestamp() string {
	return s.nowFn().UTC().Format(time.RFC3339)
}

func checkTable(t Table) error {
	if !t.Known() {
		return domain.UnknownTableError(t)
	}
	return nil
}

func indexOf(records []Record, id string) int {
	for i, r := range records {
		if r.ID() == id {
			return i
		}
	}
	return -1
}

// Create stores a copy of data under a generated identifier unless data
// carries a non-empty string id. createdAt/updatedAt supplied by the caller
// are kept so seeded fixtures retain their history.
func (s *Store) Create(ctx context.Context, table Table, data Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkTable(table); err != nil {
		return nil, err
	}
	record := data.Clone()
	if record == nil {
		record = Record{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := record.ID()
	if id == "" {
		generated, err := s.newID()
		if err != nil {
			return nil, fmt.Errorf("generate id: %w", err)
		}
		id = generated
	}
	if indexOf(s.tables[table], id) >= 0 {
		return nil, fmt.Errorf("%w: %s %s", domain.ErrDuplicateID, table, id)
	}
	record[domain.FieldID] = id
	now := s.timestamp()
	if record.String(domain.FieldCreatedAt) == "" {
		record[domain.FieldCreatedAt] = now
	}
	if record.String(domain.FieldUpdatedAt) == "" {
		record[domain.FieldUpdatedAt] = now
	}
	s.tables[table] = append(s.tables[table], record)
	return record.Clone(), nil
}

// FindFirst returns a copy of the record with the given id.
func (s *Store) FindFirst(ctx context.Context, table Table, id string) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if err := checkTable(table); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.tables[table]
	if idx := indexOf(records, id); idx >= 0 {
		return records[idx].Clone(), true, nil
	}
	return nil, false, nil
}

// FindMany returns copies of the records matching where, in insertion order.
func (s *Store) FindMany(ctx context.Context, table Table, where domain.Where) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkTable(table); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.CloneRecords(query.Filter(s.tables[table], where)), nil
}

// Update shallow-merges patch into the record with the given id.
func (s *Store) Update(ctx context.Context, table Table, id string, patch Record) (Record, bool, error) {
	return s.Mutate(ctx, table, id, func(Record) (Record, error) { return patch, nil })
}

// Mutate locates the record, hands fn a copy and merges the returned patch
// while holding the write lock. An error from fn leaves the record untouched.
func (s *Store) Mutate(ctx context.Context, table Table, id string, fn func(current Record) (Record, error)) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if err := checkTable(table); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.tables[table]
	idx := indexOf(records, id)
	if idx < 0 {
		return nil, false, nil
	}
	patch, err := fn(records[idx].Clone())
	if err != nil {
		return nil, true, err
	}
	updated := records[idx].Clone()
	for k, v := range patch {
		if k == domain.FieldID || k == domain.FieldCreatedAt {
			continue
		}
		updated[k] = domain.CloneValue(v)
	}
	updated[domain.FieldUpdatedAt] = s.timestamp()
	records[idx] = updated
	return updated.Clone(), true, nil
}

// Delete removes the record with the given id.
func (s *Store) Delete(ctx context.Context, table Table, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := checkTable(table); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.tables[table]
	idx := indexOf(records, id)
	if idx < 0 {
		return false, nil
	}
	s.tables[table] = append(records[:idx:idx], records[idx+1:]...)
	return true, nil
}

// Count returns the number of records matching where.
func (s *Store) Count(ctx context.Context, table Table, where domain.Where) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := checkTable(table); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(where) == 0 {
		return len(s.tables[table]), nil
	}
	n := 0
	for _, r := range s.tables[table] {
		if query.Matches(r, where) {
			n++
		}
	}
	return n, nil
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(Snapshot, len(s.tables))
	for t, records := range s.tables {
		out[t] = domain.CloneRecords(records)
	}
	return out
}

// ExportTable clones a single table.
func (s *Store) ExportTable(table Table) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.CloneRecords(s.tables[table])
}

// ImportState replaces the store state with the provided snapshot. Tables
// outside the catalogue are dropped; catalogue tables missing from the
// snapshot become empty.
func (s *Store) ImportState(snapshot Snapshot) {
	tables := newTables()
	for t, records := range snapshot {
		if !t.Known() {
			continue
		}
		tables[t] = domain.CloneRecords(records)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = tables
}

// RestoreTable replaces one table with records, leaving the others as they
// are. Unknown tables are ignored.
func (s *Store) RestoreTable(table Table, records []Record) {
	if !table.Known() {
		return
	}
	cloned := domain.CloneRecords(records)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table] = cloned
}

// Close is a no-op; the memory store holds no external resources.
func (s *Store) Close() error { return nil }
