package core

import (
	"context"
	"time"

	"qitp/pkg/domain"
)

// MetricsRecorder receives one observation per store operation. Operation
// names have the form "<table>.<op>", e.g. "enterprise.create".
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// InstrumentedStore decorates a Store with per-operation metrics. A lookup
// that finds nothing still counts as a success.
type InstrumentedStore struct {
	next    Store
	metrics MetricsRecorder
	now     func() time.Time
}

var _ Store = (*InstrumentedStore)(nil)

// Instrument wraps next. A nil recorder returns next unchanged.
func Instrument(next Store, metrics MetricsRecorder) Store {
	if metrics == nil {
		return next
	}
	return &InstrumentedStore{next: next, metrics: metrics, now: time.Now}
}

func (s *InstrumentedStore) observe(ctx context.Context, table domain.Table, op string, start time.Time, err error) {
	s.metrics.Observe(ctx, string(table)+"."+op, err == nil, s.now().Sub(start))
}

// Create implements domain.RecordStore.
func (s *InstrumentedStore) Create(ctx context.Context, table domain.Table, data domain.Record) (domain.Record, error) {
	start := s.now()
	rec, err := s.next.Create(ctx, table, data)
	s.observe(ctx, table, "create", start, err)
	return rec, err
}

// FindFirst implements domain.RecordStore.
func (s *InstrumentedStore) FindFirst(ctx context.Context, table domain.Table, id string) (domain.Record, bool, error) {
	start := s.now()
	rec, ok, err := s.next.FindFirst(ctx, table, id)
	s.observe(ctx, table, "find_first", start, err)
	return rec, ok, err
}

// FindMany implements domain.RecordStore.
func (s *InstrumentedStore) FindMany(ctx context.Context, table domain.Table, where domain.Where) ([]domain.Record, error) {
	start := s.now()
	recs, err := s.next.FindMany(ctx, table, where)
	s.observe(ctx, table, "find_many", start, err)
	return recs, err
}

// Update implements domain.RecordStore.
func (s *InstrumentedStore) Update(ctx context.Context, table domain.Table, id string, patch domain.Record) (domain.Record, bool, error) {
	start := s.now()
	rec, ok, err := s.next.Update(ctx, table, id, patch)
	s.observe(ctx, table, "update", start, err)
	return rec, ok, err
}

// Mutate implements domain.RecordStore.
func (s *InstrumentedStore) Mutate(ctx context.Context, table domain.Table, id string, fn func(domain.Record) (domain.Record, error)) (domain.Record, bool, error) {
	start := s.now()
	rec, ok, err := s.next.Mutate(ctx, table, id, fn)
	s.observe(ctx, table, "mutate", start, err)
	return rec, ok, err
}

// Delete implements domain.RecordStore.
func (s *InstrumentedStore) Delete(ctx context.Context, table domain.Table, id string) (bool, error) {
	start := s.now()
	ok, err := s.next.Delete(ctx, table, id)
	s.observe(ctx, table, "delete", start, err)
	return ok, err
}

// Count implements domain.RecordStore.
func (s *InstrumentedStore) Count(ctx context.Context, table domain.Table, where domain.Where) (int, error) {
	start := s.now()
	n, err := s.next.Count(ctx, table, where)
	s.observe(ctx, table, "count", start, err)
	return n, err
}

// ExportState implements domain.StateStore.
func (s *InstrumentedStore) ExportState() domain.Snapshot { return s.next.ExportState() }

// ImportState implements domain.StateStore.
func (s *InstrumentedStore) ImportState(snapshot domain.Snapshot) { s.next.ImportState(snapshot) }

// Close releases the wrapped store.
func (s *InstrumentedStore) Close() error { return s.next.Close() }
