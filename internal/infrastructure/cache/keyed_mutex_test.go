package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(ctx, "stock|widget|wh1")
			require.NoError(t, err)
			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, m.Len(), "slots are dropped once nobody holds or waits")
}

func TestKeyedMutex_DifferentKeysDoNotContend(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	unlockA, err := m.Lock(ctx, "stock|a|wh1")
	require.NoError(t, err)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB, err := m.Lock(ctx, "stock|b|wh1")
		if err == nil {
			unlockB()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestKeyedMutex_ContextCancel(t *testing.T) {
	m := NewKeyedMutex()

	unlock, err := m.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Lock(ctx, "k")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, m.Len(), "the waiter released its reference")

	unlock()
	assert.Equal(t, 0, m.Len())

	t.Run("already cancelled context never acquires", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := m.Lock(ctx, "free")
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, m.Len())
	})
}

func TestKeyedMutex_UnlockIsIdempotent(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	unlock, err := m.Lock(ctx, "k")
	require.NoError(t, err)
	unlock()
	unlock()

	unlock2, err := m.Lock(ctx, "k")
	require.NoError(t, err)
	unlock2()
	assert.Equal(t, 0, m.Len())
}

func TestAcquireLock_TimeoutWithKeyedMutex(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	unlock, err := m.Lock(ctx, "stock|widget|wh1")
	require.NoError(t, err)
	defer unlock()

	_, err = shared.AcquireLock(ctx, m, "stock|widget|wh1", 20*time.Millisecond)
	require.ErrorIs(t, err, shared.ErrLockTimeout)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = shared.AcquireLock(cancelled, m, "stock|widget|wh1", time.Second)
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, shared.ErrLockTimeout)
}
