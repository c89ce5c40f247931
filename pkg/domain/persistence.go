package domain

import "context"

// Snapshot is a point-in-time copy of every table, in insertion order.
type Snapshot map[Table][]Record

// Clone deep-copies the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for t, records := range s {
		out[t] = CloneRecords(records)
	}
	return out
}

// RecordStore is the table-oriented persistence contract used by the HTTP
// handlers. A missing record is reported through the boolean result, never
// through an error; errors are reserved for backend failures, unknown tables
// and identifier collisions.
type RecordStore interface {
	// Create assigns an identifier (unless data carries one), stamps
	// createdAt/updatedAt and appends the record.
	Create(ctx context.Context, table Table, data Record) (Record, error)
	// FindFirst returns the record with the given id.
	FindFirst(ctx context.Context, table Table, id string) (Record, bool, error)
	// FindMany returns the table in insertion order, pre-filtered by where.
	FindMany(ctx context.Context, table Table, where Where) ([]Record, error)
	// Update shallow-merges patch into the record with the given id.
	Update(ctx context.Context, table Table, id string, patch Record) (Record, bool, error)
	// Mutate runs fn against a copy of the record and merges the patch it
	// returns; the lookup and the merge happen under one lock.
	Mutate(ctx context.Context, table Table, id string, fn func(current Record) (Record, error)) (Record, bool, error)
	// Delete removes the record with the given id.
	Delete(ctx context.Context, table Table, id string) (bool, error)
	// Count returns the number of records matching where.
	Count(ctx context.Context, table Table, where Where) (int, error)
}

// StateStore is implemented by stores that can export and import their full state.
type StateStore interface {
	RecordStore
	ExportState() Snapshot
	ImportState(Snapshot)
}
