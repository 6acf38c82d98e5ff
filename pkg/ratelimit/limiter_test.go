package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRules() []Rule {
	return []Rule{
		{PathPrefix: "/api/v1/generate", MaxRequests: 3, Window: time.Second},
		{PathPrefix: "/api/v1", MaxRequests: 100, Window: time.Minute},
	}
}

func TestLimiter_Match(t *testing.T) {
	limiter := NewLimiter(nil, testRules(), NewLocalStore(time.Minute, log.DefaultLogger), log.DefaultLogger)

	t.Run("第一条匹配的前缀生效", func(t *testing.T) {
		rule, ok := limiter.match("/api/v1/generate/ads")
		require.True(t, ok)
		assert.Equal(t, 3, rule.MaxRequests)

		rule, ok = limiter.match("/api/v1/tenants/t1/balance")
		require.True(t, ok)
		assert.Equal(t, 100, rule.MaxRequests)
	})

	t.Run("未匹配路径不限流", func(t *testing.T) {
		_, ok := limiter.match("/health")
		assert.False(t, ok)

		result := limiter.Check(context.Background(), "tenant-1", "/health")
		assert.True(t, result.Allowed)
		assert.Equal(t, SourceNone, result.Source)
	})
}

func TestLimiter_LocalFallback(t *testing.T) {
	// 指向不存在的 Redis：每次检查都应降级到本地窗口而不是报错
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 10 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	local := NewLocalStore(time.Minute, log.DefaultLogger)
	limiter := NewLimiter(client, []Rule{{PathPrefix: "/api", MaxRequests: 2, Window: time.Minute}}, local, log.DefaultLogger)

	ctx := context.Background()
	first := limiter.Check(ctx, "t1", "/api/x")
	assert.True(t, first.Allowed)
	assert.Equal(t, SourceFallback, first.Source)
	assert.True(t, limiter.Check(ctx, "t1", "/api/x").Allowed)

	result := limiter.Check(ctx, "t1", "/api/x")
	assert.False(t, result.Allowed)
	assert.Greater(t, result.RetryAfterMs, int64(0))

	// 回退窗口按 (identity, prefix) 维度计数
	assert.True(t, limiter.Check(ctx, "t2", "/api/x").Allowed)
}

func TestLimiter_SlidingWindow(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   1,
	})
	ctx := context.Background()
	if _, err := client.Ping(ctx).Result(); err != nil {
		t.Skip("Redis not available, skipping integration test")
	}
	defer client.FlushDB(ctx)
	defer client.Close()

	t.Run("窗口内超额拒绝", func(t *testing.T) {
		rules := []Rule{{PathPrefix: "/api/v1/generate", MaxRequests: 5, Window: time.Minute}}
		limiter := NewLimiter(client, rules, NewLocalStore(time.Minute, log.DefaultLogger), log.DefaultLogger)

		identity := fmt.Sprintf("tenant-%d", time.Now().UnixNano())
		for i := 0; i < 5; i++ {
			result := limiter.Check(ctx, identity, "/api/v1/generate/video")
			assert.True(t, result.Allowed, "request %d", i)
			assert.Equal(t, SourceRedis, result.Source)
		}

		result := limiter.Check(ctx, identity, "/api/v1/generate/video")
		assert.False(t, result.Allowed)
		assert.Greater(t, result.RetryAfterMs, int64(0))
		assert.LessOrEqual(t, result.RetryAfterMs, time.Minute.Milliseconds())
	})

	t.Run("窗口滑动后恢复", func(t *testing.T) {
		rules := []Rule{{PathPrefix: "/api/v1/generate", MaxRequests: 2, Window: 200 * time.Millisecond}}
		limiter := NewLimiter(client, rules, NewLocalStore(time.Minute, log.DefaultLogger), log.DefaultLogger)

		identity := fmt.Sprintf("tenant-%d", time.Now().UnixNano())
		assert.True(t, limiter.Check(ctx, identity, "/api/v1/generate/x").Allowed)
		assert.True(t, limiter.Check(ctx, identity, "/api/v1/generate/x").Allowed)
		assert.False(t, limiter.Check(ctx, identity, "/api/v1/generate/x").Allowed)

		time.Sleep(250 * time.Millisecond)
		assert.True(t, limiter.Check(ctx, identity, "/api/v1/generate/x").Allowed)
	})

	t.Run("不同身份独立计数", func(t *testing.T) {
		rules := []Rule{{PathPrefix: "/api/v1/generate", MaxRequests: 1, Window: time.Minute}}
		limiter := NewLimiter(client, rules, NewLocalStore(time.Minute, log.DefaultLogger), log.DefaultLogger)

		a := fmt.Sprintf("a-%d", time.Now().UnixNano())
		b := fmt.Sprintf("b-%d", time.Now().UnixNano())
		assert.True(t, limiter.Check(ctx, a, "/api/v1/generate/x").Allowed)
		assert.False(t, limiter.Check(ctx, a, "/api/v1/generate/x").Allowed)
		assert.True(t, limiter.Check(ctx, b, "/api/v1/generate/x").Allowed)
	})
}
