package ratelimit

import (
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
)

func TestLocalStore_Check(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	window := time.Minute

	t.Run("窗口内按计数放行", func(t *testing.T) {
		store := NewLocalStore(time.Minute, log.DefaultLogger)

		for i := 0; i < 3; i++ {
			result := store.Check("k", 3, window, base.Add(time.Duration(i)*time.Second))
			assert.True(t, result.Allowed, "request %d", i)
		}

		result := store.Check("k", 3, window, base.Add(3*time.Second))
		assert.False(t, result.Allowed)
		assert.Greater(t, result.RetryAfterMs, int64(0))
		assert.LessOrEqual(t, result.RetryAfterMs, window.Milliseconds())
	})

	t.Run("窗口过期后重置", func(t *testing.T) {
		store := NewLocalStore(time.Minute, log.DefaultLogger)

		for i := 0; i < 2; i++ {
			store.Check("k", 2, window, base)
		}
		assert.False(t, store.Check("k", 2, window, base.Add(time.Second)).Allowed)

		// 越过 resetAt 后重新开窗
		result := store.Check("k", 2, window, base.Add(window+time.Second))
		assert.True(t, result.Allowed)
	})

	t.Run("不同key互不影响", func(t *testing.T) {
		store := NewLocalStore(time.Minute, log.DefaultLogger)

		assert.True(t, store.Check("a", 1, window, base).Allowed)
		assert.False(t, store.Check("a", 1, window, base).Allowed)
		assert.True(t, store.Check("b", 1, window, base).Allowed)
	})

	t.Run("retryAfter不为负", func(t *testing.T) {
		store := NewLocalStore(time.Minute, log.DefaultLogger)

		store.Check("k", 1, window, base)
		// 正好在 resetAt 边界上
		result := store.Check("k", 1, window, base.Add(window))
		if !result.Allowed {
			assert.GreaterOrEqual(t, result.RetryAfterMs, int64(0))
		}
	})
}

func TestLocalStore_Sweep(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewLocalStore(time.Minute, log.DefaultLogger)

	store.Check("a", 5, time.Minute, base)
	store.Check("b", 5, time.Minute, base)
	store.Check("c", 5, 10*time.Minute, base)
	assert.Equal(t, 3, store.size())

	// 只有过期窗口被清除
	store.sweep(base.Add(2 * time.Minute))
	assert.Equal(t, 1, store.size())

	store.sweep(base.Add(time.Hour))
	assert.Equal(t, 0, store.size())
}

func TestLocalStore_StartStop(t *testing.T) {
	store := NewLocalStore(10 * time.Millisecond, log.DefaultLogger)
	store.Start()

	store.Check("k", 5, time.Millisecond, time.Now())
	time.Sleep(50 * time.Millisecond)

	// Stop 幂等且等待后台任务退出
	store.Stop()
	store.Stop()
	assert.Equal(t, 0, store.size())
}
