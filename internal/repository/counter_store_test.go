package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisCounters(t *testing.T) CounterStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCounterStore(client, "counters:dashboard")
}

func TestRedisCounterStoreIncrementIsCommutative(t *testing.T) {
	store := newMiniredisCounters(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			delta := int64(1)
			if i%4 == 0 {
				delta = -1
			}
			_, err := store.Increment(ctx, fmt.Sprintf("evt-%d", i), map[string]int64{"pendingAccounts": delta})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	values, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), values["pendingAccounts"])
}

func TestRedisCounterStoreAppliesTokenOnce(t *testing.T) {
	store := newMiniredisCounters(t)
	ctx := context.Background()

	applied, err := store.Increment(ctx, "evt-1", map[string]int64{"pendingArrival": 1})
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = store.Increment(ctx, "evt-1", map[string]int64{"pendingArrival": 1})
	require.NoError(t, err)
	assert.False(t, applied)

	values, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"pendingArrival": 1}, values)
}

func TestRedisCounterStoreGetReportsPresentFieldsOnly(t *testing.T) {
	store := newMiniredisCounters(t)
	ctx := context.Background()

	values, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, values)

	_, err = store.Increment(ctx, "", map[string]int64{"pendingArrival": 2, "pendingDeparture": 0})
	require.NoError(t, err)
	values, err = store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"pendingArrival": 2}, values)
}

func TestRedisCounterStoreOverwrite(t *testing.T) {
	store := newMiniredisCounters(t)
	ctx := context.Background()

	_, err := store.Increment(ctx, "", map[string]int64{"pendingAccounts": 7})
	require.NoError(t, err)
	require.NoError(t, store.Overwrite(ctx, map[string]int64{"pendingAccounts": 3, "pendingArrival": 0}))

	values, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), values["pendingAccounts"])
	v, ok := values["pendingArrival"]
	assert.True(t, ok)
	assert.Zero(t, v)
}

func TestMemoryCounterStore(t *testing.T) {
	store := NewMemoryCounterStore()
	ctx := context.Background()
	_, err := store.Increment(ctx, "a1", map[string]int64{"a": 2})
	require.NoError(t, err)
	_, err = store.Increment(ctx, "a2", map[string]int64{"a": -1})
	require.NoError(t, err)
	applied, err := store.Increment(ctx, "a2", map[string]int64{"a": -1})
	require.NoError(t, err)
	assert.False(t, applied)

	values, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), values["a"])
}
