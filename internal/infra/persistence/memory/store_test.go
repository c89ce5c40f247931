package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"qitp/pkg/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func fixedClock(ts string) func() time.Time {
	parsed, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return parsed }
}

func sequentialIDs() func() (string, error) {
	var n int
	return func() (string, error) {
		n++
		return fmt.Sprintf("id-%d", n), nil
	}
}

func TestStoreCreateFindUpdateDelete(t *testing.T) {
	ctx := context.Background()
	store := NewStore(WithClock(fixedClock("2024-03-01T08:00:00Z")))

	created, err := store.Create(ctx, domain.TableEnterprise, Record{"name": "X", "code": "E1"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID())
	require.Equal(t, "2024-03-01T08:00:00Z", created.String(domain.FieldCreatedAt))

	found, ok, err := store.FindFirst(ctx, domain.TableEnterprise, created.ID())
	require.NoError(t, err)
	require.True(t, ok)
	if diff := cmp.Diff(created, found); diff != "" {
		t.Fatalf("find mismatch (-created +found):\n%s", diff)
	}

	updated, ok, err := store.Update(ctx, domain.TableEnterprise, created.ID(), Record{"name": "Y", "id": "ignored"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Y", updated.String("name"))
	require.Equal(t, created.ID(), updated.ID())
	require.Equal(t, "E1", updated.String("code"))

	found, ok, err = store.FindFirst(ctx, domain.TableEnterprise, created.ID())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Y", found.String("name"))

	deleted, err := store.Delete(ctx, domain.TableEnterprise, created.ID())
	require.NoError(t, err)
	require.True(t, deleted)

	_, ok, err = store.FindFirst(ctx, domain.TableEnterprise, created.ID())
	require.NoError(t, err)
	require.False(t, ok)

	deleted, err = store.Delete(ctx, domain.TableEnterprise, created.ID())
	require.NoError(t, err)
	require.False(t, deleted)
}

func TestStoreGeneratesTimeOrderedIDs(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	first, err := store.Create(ctx, domain.TableSample, Record{})
	require.NoError(t, err)
	second, err := store.Create(ctx, domain.TableSample, Record{})
	require.NoError(t, err)
	require.NotEqual(t, first.ID(), second.ID())
	require.Len(t, first.ID(), 36)
}

func TestStoreCallerAssignedID(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	rec, err := store.Create(ctx, domain.TableEnterprise, Record{"id": "ent-1", "createdAt": "2023-01-01T00:00:00Z"})
	require.NoError(t, err)
	require.Equal(t, "ent-1", rec.ID())
	require.Equal(t, "2023-01-01T00:00:00Z", rec.String(domain.FieldCreatedAt))

	_, err = store.Create(ctx, domain.TableEnterprise, Record{"id": "ent-1"})
	require.ErrorIs(t, err, domain.ErrDuplicateID)

	// The same id is free in another table.
	_, err = store.Create(ctx, domain.TableReport, Record{"id": "ent-1"})
	require.NoError(t, err)
}

func TestStoreUnknownTable(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_, err := store.Create(ctx, Table("bogus"), Record{})
	require.ErrorIs(t, err, domain.ErrUnknownTable)
	_, _, err = store.FindFirst(ctx, Table("bogus"), "x")
	require.ErrorIs(t, err, domain.ErrUnknownTable)
	_, err = store.FindMany(ctx, Table("bogus"), nil)
	require.ErrorIs(t, err, domain.ErrUnknownTable)
	_, err = store.Count(ctx, Table("bogus"), nil)
	require.ErrorIs(t, err, domain.ErrUnknownTable)
	_, err = store.Delete(ctx, Table("bogus"), "x")
	require.ErrorIs(t, err, domain.ErrUnknownTable)
}

func TestStoreReturnsClones(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	input := Record{"name": "X", "tags": []any{"a"}, "contact": map[string]any{"phone": "1"}}
	created, err := store.Create(ctx, domain.TableEnterprise, input)
	require.NoError(t, err)

	input["name"] = "mutated input"
	created["name"] = "mutated output"
	created["tags"].([]any)[0] = "z"
	created["contact"].(map[string]any)["phone"] = "9"

	found, ok, err := store.FindFirst(ctx, domain.TableEnterprise, created.ID())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "X", found.String("name"))
	require.Equal(t, []any{"a"}, found["tags"])
	require.Equal(t, map[string]any{"phone": "1"}, found["contact"])

	list, err := store.FindMany(ctx, domain.TableEnterprise, nil)
	require.NoError(t, err)
	list[0]["name"] = "changed"
	again, _, _ := store.FindFirst(ctx, domain.TableEnterprise, created.ID())
	require.Equal(t, "X", again.String("name"))
}

func TestStoreFindManyAndCount(t *testing.T) {
	ctx := context.Background()
	store := NewStore(WithIDGenerator(sequentialIDs()))
	for _, r := range []Record{
		{"name": "Green Seeds", "status": "ACTIVE", "score": 3.0},
		{"name": "Blue Harbor", "status": "SUSPENDED", "score": 5.0},
		{"name": "green valley", "status": "ACTIVE", "score": 5.0},
	} {
		_, err := store.Create(ctx, domain.TableEnterprise, r)
		require.NoError(t, err)
	}

	all, err := store.FindMany(ctx, domain.TableEnterprise, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"id-1", "id-2", "id-3"}, ids(all))

	green, err := store.FindMany(ctx, domain.TableEnterprise, domain.Where{"name": "GREEN"})
	require.NoError(t, err)
	require.Equal(t, []string{"id-1", "id-3"}, ids(green))

	fives, err := store.FindMany(ctx, domain.TableEnterprise, domain.Where{"score": 5})
	require.NoError(t, err)
	require.Equal(t, []string{"id-2", "id-3"}, ids(fives))

	n, err := store.Count(ctx, domain.TableEnterprise, domain.Where{"status": "ACTIVE"})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = store.Count(ctx, domain.TableEnterprise, nil)
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestStoreMutate(t *testing.T) {
	ctx := context.Background()
	clock := fixedClock("2024-03-01T08:00:00Z")
	store := NewStore(WithClock(clock))
	created, err := store.Create(ctx, domain.TableLaboratoryTask, Record{"status": "PENDING"})
	require.NoError(t, err)

	updated, ok, err := store.Mutate(ctx, domain.TableLaboratoryTask, created.ID(), func(current Record) (Record, error) {
		require.Equal(t, "PENDING", current.String("status"))
		current["status"] = "scratch"
		return Record{"status": "IN_PROGRESS", "inspector": "Li"}, nil
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "IN_PROGRESS", updated.String("status"))
	require.Equal(t, "Li", updated.String("inspector"))

	boom := errors.New("not allowed")
	_, ok, err = store.Mutate(ctx, domain.TableLaboratoryTask, created.ID(), func(Record) (Record, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	require.True(t, ok)
	found, _, _ := store.FindFirst(ctx, domain.TableLaboratoryTask, created.ID())
	require.Equal(t, "IN_PROGRESS", found.String("status"))

	_, ok, err = store.Mutate(ctx, domain.TableLaboratoryTask, "missing", func(Record) (Record, error) {
		t.Fatalf("mutator must not run for a missing record")
		return nil, nil
	})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStoreSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_, err := store.Create(ctx, domain.TableDecision, Record{"title": "D1"})
	require.NoError(t, err)

	snapshot := store.ExportState()
	require.Len(t, snapshot[domain.TableDecision], 1)
	require.Contains(t, snapshot, domain.TableRelease)

	store.ImportState(Snapshot{})
	n, err := store.Count(ctx, domain.TableDecision, nil)
	require.NoError(t, err)
	require.Zero(t, n)

	snapshot[Table("legacy")] = []Record{{"id": "x"}}
	store.ImportState(snapshot)
	n, err = store.Count(ctx, domain.TableDecision, nil)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	_, err = store.Count(ctx, Table("legacy"), nil)
	require.ErrorIs(t, err, domain.ErrUnknownTable)
}

func TestStoreConcurrentMutations(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	created, err := store.Create(ctx, domain.TableIsolationTask, Record{"counter": 0.0})
	require.NoError(t, err)

	const workers = 32
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, _, err := store.Mutate(ctx, domain.TableIsolationTask, created.ID(), func(current Record) (Record, error) {
				n, _ := current["counter"].(float64)
				return Record{"counter": n + 1}, nil
			})
			if err != nil {
				t.Errorf("mutate: %v", err)
			}
		}()
	}
	wg.Wait()

	found, _, _ := store.FindFirst(ctx, domain.TableIsolationTask, created.ID())
	require.Equal(t, float64(workers), found["counter"])
}

func TestStoreHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := NewStore()
	_, err := store.Create(ctx, domain.TableEnterprise, Record{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestStoreIDGeneratorFailure(t *testing.T) {
	store := NewStore(WithIDGenerator(func() (string, error) { return "", errors.New("entropy") }))
	_, err := store.Create(context.Background(), domain.TableEnterprise, Record{})
	require.ErrorContains(t, err, "entropy")
}

func ids(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID()
	}
	return out
}

func TestRestoreTableReplacesOnlyThatTable(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_, err := store.Create(ctx, domain.TableEnterprise, Record{"id": "e1"})
	require.NoError(t, err)
	before := store.ExportTable(domain.TableEnterprise)
	_, err = store.Create(ctx, domain.TableEnterprise, Record{"id": "e2"})
	require.NoError(t, err)
	_, err = store.Create(ctx, domain.TableSample, Record{"id": "s1"})
	require.NoError(t, err)

	store.RestoreTable(domain.TableEnterprise, before)
	store.RestoreTable(Table("legacy"), before)

	n, err := store.Count(ctx, domain.TableEnterprise, nil)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	n, err = store.Count(ctx, domain.TableSample, nil)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	before[0]["name"] = "mutated after restore"
	rec, _, err := store.FindFirst(ctx, domain.TableEnterprise, "e1")
	require.NoError(t, err)
	require.Empty(t, rec.String("name"))
}
