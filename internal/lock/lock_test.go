package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredislib "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertMutualExclusion(t *testing.T, l Locker) {
	t.Helper()
	ctx := context.Background()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock(ctx, "trade:1", func(context.Context) error {
				n := inside.Add(1)
				for {
					m := maxInside.Load()
					if n <= m || maxInside.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				inside.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	k := NewKeyedMutex()
	assertMutualExclusion(t, k)
	assert.Zero(t, k.Len())
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	k := NewKeyedMutex()
	ctx := context.Background()

	err := k.WithLock(ctx, "trade:1", func(ctx context.Context) error {
		return k.WithLock(ctx, "trade:2", func(context.Context) error { return nil })
	})
	require.NoError(t, err)
}

func TestKeyedMutexPropagatesErrorAndContext(t *testing.T) {
	k := NewKeyedMutex()
	boom := errors.New("boom")

	err := k.WithLock(context.Background(), "a", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	assert.ErrorIs(t, k.WithLock(context.Background(), "", func(context.Context) error { return nil }), ErrEmptyKey)
	assert.ErrorIs(t, k.WithLock(context.Background(), "a", nil), ErrNilFn)

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = k.WithLock(context.Background(), "a", func(context.Context) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = k.WithLock(ctx, "a", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(done)
}

func TestRedisLockerSerializesSameKey(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredislib.NewClient(&goredislib.Options{Addr: mr.Addr()})
	defer client.Close()

	opts := DefaultRedisOptions()
	opts.RetryDelay = 5 * time.Millisecond
	opts.Tries = 500
	l, err := NewRedisLocker(client, opts, nil)
	require.NoError(t, err)

	assertMutualExclusion(t, l)
	assert.False(t, mr.Exists(opts.Prefix+"trade:1"))
}

func TestNewRedisLockerValidatesOptions(t *testing.T) {
	_, err := NewRedisLocker(nil, DefaultRedisOptions(), nil)
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	client := goredislib.NewClient(&goredislib.Options{Addr: mr.Addr()})
	defer client.Close()

	opts := DefaultRedisOptions()
	opts.Tries = 0
	_, err = NewRedisLocker(client, opts, nil)
	assert.Error(t, err)
}
