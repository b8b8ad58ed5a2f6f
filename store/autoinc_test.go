package store_test

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/antler/store"
)

func TestSaveNext_StartsAtZero(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	next, err := store.NextKey(ctx, f.orgs)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), next)

	org := &Organization{ID: 500, Name: "first"}
	key, err := store.SaveNext(ctx, f.orgs, org)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), key)
	assert.Equal(t, uint32(0), org.ID)

	got, err := f.orgs.Get(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Name)
}

func TestSaveNext_StrictlyIncreasing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var keys []uint32
	for i := 0; i < 3; i++ {
		key, err := store.SaveNext(ctx, f.orgs, &Organization{})
		require.NoError(t, err)
		keys = append(keys, key)
	}
	assert.Equal(t, []uint32{0, 1, 2}, keys)

	// Deleting the last key does not hand it out again.
	require.NoError(t, f.orgs.Remove(ctx, 2))
	key, err := store.SaveNext(ctx, f.orgs, &Organization{})
	require.NoError(t, err)
	assert.Equal(t, uint32(3), key)

	// Keys saved by hand above the mark are skipped.
	require.NoError(t, f.orgs.Save(ctx, &Organization{ID: 10}))
	key, err = store.SaveNext(ctx, f.orgs, &Organization{})
	require.NoError(t, err)
	assert.Equal(t, uint32(11), key)
}

func TestSaveNext_EmptiedStore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for i := 0; i < 2; i++ {
		_, err := store.SaveNext(ctx, f.orgs, &Organization{})
		require.NoError(t, err)
	}
	_, err := f.orgs.FilterRemove(ctx, func(*Organization) bool { return true })
	require.NoError(t, err)

	key, err := store.SaveNext(ctx, f.orgs, &Organization{})
	require.NoError(t, err)
	assert.Equal(t, uint32(2), key)
}

func TestSaveNext_Exhausted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.orgs.Save(ctx, &Organization{ID: math.MaxUint32}))
	_, err := store.SaveNext(ctx, f.orgs, &Organization{})
	assert.ErrorIs(t, err, store.ErrKeySpaceExhausted)
}

func TestSaveNext_Concurrent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	const workers = 8
	const perWorker = 25

	var wg sync.WaitGroup
	keys := make(chan uint32, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key, err := store.SaveNext(ctx, f.orgs, &Organization{})
				if err != nil {
					t.Error(err)
					return
				}
				keys <- key
			}
		}()
	}
	wg.Wait()
	close(keys)

	seen := make(map[uint32]bool)
	for k := range keys {
		assert.False(t, seen[k], "key %d assigned twice", k)
		seen[k] = true
	}
	assert.Len(t, seen, workers*perWorker)

	n, err := f.orgs.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, workers*perWorker, n)
}
