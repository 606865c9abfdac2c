package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireSerialisesSameKey(t *testing.T) {
	l := NewKeyedLocker(time.Second)

	var inside int32
	var maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), Key("course", "c-1"))
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
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
	assert.Equal(t, 0, l.held())
}

func TestAcquireTimesOut(t *testing.T) {
	var observed []error
	var mu sync.Mutex
	l := NewKeyedLocker(20*time.Millisecond, WithObserver(func(scope string, waited time.Duration, err error) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "claim", scope)
		observed = append(observed, err)
	}))

	release, err := l.Acquire(context.Background(), Key("claim", "x"))
	require.NoError(t, err)
	defer release()

	_, err = l.Acquire(context.Background(), Key("claim", "x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, observed, 2)
	assert.NoError(t, observed[0])
	assert.Error(t, observed[1])
}

func TestAcquireHonoursCancellation(t *testing.T) {
	l := NewKeyedLocker(time.Second)
	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Acquire(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDifferentKeysDoNotBlock(t *testing.T) {
	l := NewKeyedLocker(10 * time.Millisecond)
	r1, err := l.Acquire(context.Background(), Key("course", "a"))
	require.NoError(t, err)
	defer r1()
	r2, err := l.Acquire(context.Background(), Key("course", "b"))
	require.NoError(t, err)
	r2()
}

func TestReleaseTwiceDropsIdleEntry(t *testing.T) {
	l := NewKeyedLocker(10 * time.Millisecond)
	release, err := l.Acquire(context.Background(), Key("claim", "c1"))
	require.NoError(t, err)
	assert.Equal(t, 1, l.held())

	release()
	release()
	assert.Equal(t, 0, l.held())

	again, err := l.Acquire(context.Background(), Key("claim", "c1"))
	require.NoError(t, err)
	again()
}
