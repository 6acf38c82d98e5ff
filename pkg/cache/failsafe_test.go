package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyCache 可注入故障的内存缓存
type flakyCache struct {
	mu      sync.Mutex
	values  map[string]string
	err     error
	latency time.Duration
}

func newFlakyCache() *flakyCache {
	return &flakyCache{values: make(map[string]string)}
}

func (c *flakyCache) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *flakyCache) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	err, latency := c.err, c.latency
	c.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	val, ok := c.values[key]
	if !ok {
		return "", ErrMiss
	}
	return val, nil
}

func (c *flakyCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.values[key] = value.(string)
	return nil
}

func (c *flakyCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	delete(c.values, key)
	return nil
}

func (c *flakyCache) Close() error { return nil }

func TestFailsafe_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("正常读写", func(t *testing.T) {
		inner := newFlakyCache()
		fs := NewFailsafe(inner, nil, log.DefaultLogger)

		require.NoError(t, fs.Set(ctx, "k", "v", time.Minute))
		val, err := fs.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "v", val)
	})

	t.Run("真实未命中返回ErrMiss", func(t *testing.T) {
		fs := NewFailsafe(newFlakyCache(), nil, log.DefaultLogger)

		_, err := fs.Get(ctx, "absent")
		assert.ErrorIs(t, err, ErrMiss)
	})

	t.Run("空字符串值不等于未命中", func(t *testing.T) {
		inner := newFlakyCache()
		fs := NewFailsafe(inner, nil, log.DefaultLogger)

		require.NoError(t, fs.Set(ctx, "k", "", time.Minute))
		val, err := fs.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "", val)
	})

	t.Run("故障退化为未命中", func(t *testing.T) {
		inner := newFlakyCache()
		fs := NewFailsafe(inner, nil, log.DefaultLogger)
		inner.fail(errors.New("connection refused"))

		_, err := fs.Get(ctx, "k")
		assert.ErrorIs(t, err, ErrMiss)
	})

	t.Run("慢操作被超时截断", func(t *testing.T) {
		inner := newFlakyCache()
		inner.latency = time.Second
		fs := NewFailsafe(inner, &FailsafeConfig{OpTimeout: 20 * time.Millisecond}, log.DefaultLogger)

		start := time.Now()
		_, err := fs.Get(ctx, "k")
		assert.ErrorIs(t, err, ErrMiss)
		assert.Less(t, time.Since(start), 500*time.Millisecond)
	})
}

func TestFailsafe_WriteNeverFails(t *testing.T) {
	ctx := context.Background()
	inner := newFlakyCache()
	fs := NewFailsafe(inner, nil, log.DefaultLogger)
	inner.fail(errors.New("connection refused"))

	assert.NoError(t, fs.Set(ctx, "k", "v", time.Minute))
	assert.NoError(t, fs.Delete(ctx, "k"))
}

func TestFailsafe_CircuitBreaker(t *testing.T) {
	ctx := context.Background()
	inner := newFlakyCache()
	fs := NewFailsafe(inner, &FailsafeConfig{
		OpTimeout:        50 * time.Millisecond,
		BreakerTimeout:   time.Minute,
		FailureThreshold: 0.5,
		MinRequests:      3,
	}, log.DefaultLogger)

	inner.fail(errors.New("connection refused"))
	for i := 0; i < 5; i++ {
		_, err := fs.Get(ctx, "k")
		assert.ErrorIs(t, err, ErrMiss)
	}

	// 熔断打开后后端恢复也暂时短路，但对调用方仍只是未命中
	inner.fail(nil)
	_, err := fs.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestFailsafe_RecoveryAfterFault(t *testing.T) {
	ctx := context.Background()
	inner := newFlakyCache()
	// MinRequests 足够大，单次故障不触发熔断
	fs := NewFailsafe(inner, &FailsafeConfig{MinRequests: 100}, log.DefaultLogger)

	require.NoError(t, fs.Set(ctx, "k", "v", time.Minute))

	inner.fail(errors.New("timeout"))
	_, err := fs.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)

	inner.fail(nil)
	val, err := fs.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)
}
