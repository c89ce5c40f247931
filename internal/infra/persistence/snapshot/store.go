// Package snapshot layers durable persistence over the in-memory record
// store. Every successful mutation rewrites the mutated table as one JSON
// array in a key/value backend; opening the store hydrates memory from it.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"qitp/internal/infra/persistence/memory"
	"qitp/pkg/domain"
)

// Compile-time contract assertions.
var (
	_ domain.RecordStore = (*Store)(nil)
	_ domain.StateStore  = (*Store)(nil)
)

// Backend stores one payload per bucket. Bucket names are table names.
type Backend interface {
	Load(ctx context.Context) (map[string][]byte, error)
	Save(ctx context.Context, bucket string, payload []byte) error
	Close() error
}

// Store is a memory.Store whose writes are mirrored to a Backend.
type Store struct {
	*memory.Store
	backend Backend
	// writeMu orders mutation and snapshot so a slower writer can never
	// overwrite a newer table image with an older one.
	writeMu sync.Mutex
}

// Open hydrates a memory store from backend and returns the wrapper.
func Open(ctx context.Context, backend Backend, opts ...memory.Option) (*Store, error) {
	raw, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	state, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	mem := memory.NewStore(opts...)
	mem.ImportState(state)
	return &Store{Store: mem, backend: backend}, nil
}

// Decode turns bucket payloads into a Snapshot, skipping unknown buckets.
func Decode(raw map[string][]byte) (domain.Snapshot, error) {
	state := domain.Snapshot{}
	for bucket, payload := range raw {
		table := domain.Table(bucket)
		if !table.Known() || len(payload) == 0 {
			continue
		}
		var records []domain.Record
		if err := json.Unmarshal(payload, &records); err != nil {
			return nil, fmt.Errorf("decode %s: %w", bucket, err)
		}
		state[table] = records
	}
	return state, nil
}

func (s *Store) persist(ctx context.Context, table domain.Table) error {
	records := s.ExportTable(table)
	if records == nil {
		records = []domain.Record{}
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode %s: %w", table, err)
	}
	if err := s.backend.Save(ctx, string(table), payload); err != nil {
		return fmt.Errorf("save %s: %w", table, err)
	}
	return nil
}

// commit snapshots table after a successful in-memory write. When the
// backend rejects it, the table image taken before the write is restored so
// memory never holds state the backend lacks.
func (s *Store) commit(ctx context.Context, table domain.Table, before []domain.Record) error {
	if err := s.persist(ctx, table); err != nil {
		s.RestoreTable(table, before)
		return err
	}
	return nil
}

// Create stores the record and snapshots its table.
func (s *Store) Create(ctx context.Context, table domain.Table, data domain.Record) (domain.Record, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	before := s.ExportTable(table)
	rec, err := s.Store.Create(ctx, table, data)
	if err != nil {
		return nil, err
	}
	if err := s.commit(ctx, table, before); err != nil {
		return nil, err
	}
	return rec, nil
}

// Update merges patch and snapshots the table when the record existed.
func (s *Store) Update(ctx context.Context, table domain.Table, id string, patch domain.Record) (domain.Record, bool, error) {
	return s.Mutate(ctx, table, id, func(domain.Record) (domain.Record, error) { return patch, nil })
}

// Mutate runs fn under the memory store lock and snapshots the table.
func (s *Store) Mutate(ctx context.Context, table domain.Table, id string, fn func(domain.Record) (domain.Record, error)) (domain.Record, bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	before := s.ExportTable(table)
	rec, ok, err := s.Store.Mutate(ctx, table, id, fn)
	if err != nil || !ok {
		return rec, ok, err
	}
	if err := s.commit(ctx, table, before); err != nil {
		return nil, true, err
	}
	return rec, true, nil
}

// Delete removes the record and snapshots the table when it existed.
func (s *Store) Delete(ctx context.Context, table domain.Table, id string) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	before := s.ExportTable(table)
	ok, err := s.Store.Delete(ctx, table, id)
	if err != nil || !ok {
		return ok, err
	}
	if err := s.commit(ctx, table, before); err != nil {
		return false, err
	}
	return true, nil
}

// Flush writes every table. ImportState does not write through, so callers
// replacing the whole state follow it with Flush.
func (s *Store) Flush(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	for _, table := range domain.Tables() {
		if err := s.persist(ctx, table); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
