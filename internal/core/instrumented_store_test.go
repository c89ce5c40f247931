package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qitp/internal/infra/persistence/memory"
	"qitp/pkg/domain"
)

type observation struct {
	operation string
	success   bool
}

type recordingMetrics struct {
	mu   sync.Mutex
	seen []observation
}

func (r *recordingMetrics) Observe(_ context.Context, operation string, success bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, observation{operation: operation, success: success})
}

func TestInstrumentNilRecorderReturnsStore(t *testing.T) {
	base := memory.NewStore()
	assert.Same(t, base, Instrument(base, nil))
}

func TestInstrumentedStoreObservesEveryOperation(t *testing.T) {
	ctx := context.Background()
	metrics := &recordingMetrics{}
	store := Instrument(memory.NewStore(), metrics)

	rec, err := store.Create(ctx, domain.TableEnterprise, domain.Record{"name": "X", "code": "E1"})
	require.NoError(t, err)
	_, ok, err := store.FindFirst(ctx, domain.TableEnterprise, rec.ID())
	require.NoError(t, err)
	require.True(t, ok)
	_, err = store.FindMany(ctx, domain.TableEnterprise, nil)
	require.NoError(t, err)
	_, _, err = store.Update(ctx, domain.TableEnterprise, rec.ID(), domain.Record{"status": "ACTIVE"})
	require.NoError(t, err)
	_, _, err = store.Mutate(ctx, domain.TableEnterprise, rec.ID(), func(domain.Record) (domain.Record, error) {
		return nil, errors.New("rejected")
	})
	require.Error(t, err)
	n, err := store.Count(ctx, domain.TableEnterprise, nil)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	_, err = store.Delete(ctx, domain.TableEnterprise, rec.ID())
	require.NoError(t, err)
	_, err = store.Create(ctx, domain.Table("bogus"), domain.Record{})
	require.Error(t, err)

	assert.Equal(t, []observation{
		{"enterprise.create", true},
		{"enterprise.find_first", true},
		{"enterprise.find_many", true},
		{"enterprise.update", true},
		{"enterprise.mutate", false},
		{"enterprise.count", true},
		{"enterprise.delete", true},
		{"bogus.create", false},
	}, metrics.seen)
}

func TestInstrumentedStoreStatePassthrough(t *testing.T) {
	ctx := context.Background()
	store := Instrument(memory.NewStore(), &recordingMetrics{})
	store.ImportState(domain.Snapshot{domain.TableReport: {{"id": "r1", "title": "月报"}}})
	snap := store.ExportState()
	require.Len(t, snap[domain.TableReport], 1)
	got, ok, err := store.FindFirst(ctx, domain.TableReport, "r1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "月报", got.String("title"))
	require.NoError(t, store.Close())
}
