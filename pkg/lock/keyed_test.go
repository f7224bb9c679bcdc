package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedSerializesSameKey(t *testing.T) {
	k := NewKeyed()
	var inside int32
	var maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := k.Lock(context.Background(), "instructor-1:2025:3")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, k.Size())
}

func TestKeyedDistinctKeysDoNotBlock(t *testing.T) {
	k := NewKeyed()
	release, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	releaseB, err := k.Lock(ctx, "b")
	require.NoError(t, err)
	releaseB()
}

func TestKeyedHonoursContext(t *testing.T) {
	k := NewKeyed()
	release, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = k.Lock(ctx, "a")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release()
	assert.Equal(t, 0, k.Size())
}

func TestLockAllDeduplicatesAndOrders(t *testing.T) {
	k := NewKeyed()
	release, err := LockAll(context.Background(), k, "b", "a", "b")
	require.NoError(t, err)
	assert.Equal(t, 2, k.Size())
	release()
	assert.Equal(t, 0, k.Size())
}
