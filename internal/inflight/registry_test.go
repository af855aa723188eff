package inflight

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryAcquireRelease(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()

	ok, err := r.TryAcquire(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.TryAcquire(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok, "second acquire of a held id must fail")

	ok, _ = r.TryAcquire(ctx, "b")
	assert.True(t, ok, "other ids are independent")
	assert.Equal(t, 2, r.Len())

	require.NoError(t, r.Release(ctx, "a"))
	ok, _ = r.TryAcquire(ctx, "a")
	assert.True(t, ok, "released id can be acquired again")
}

func TestRegistryConcurrentAcquireSingleWinner(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := r.TryAcquire(ctx, "same"); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}
