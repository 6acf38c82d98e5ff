package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// Rule 路由限流规则
// 请求路径由第一条匹配的前缀规则约束；未匹配的路径无条件放行。
type Rule struct {
	PathPrefix  string        // 路由前缀
	MaxRequests int           // 窗口内最大请求数
	Window      time.Duration // 滑动窗口长度
}

// 判定来源
const (
	SourceRedis    = "redis"
	SourceFallback = "fallback"
	SourceNone     = "none" // 未匹配任何规则
)

// Result 限流判定结果
type Result struct {
	Allowed      bool  `json:"allowed"`
	RetryAfterMs int64 `json:"retry_after_ms"`

	// Source 做出判定的存储（观测用，不序列化）
	Source string `json:"-"`
}

// Limiter 分布式限流器
//
// 共享存储（Redis）上实现真滑动窗口；单次检查中任何 Redis 错误
// 只把这一次检查降级到进程内的固定窗口回退存储，永远不会因为
// 基础设施故障拒绝调用方的请求。
type Limiter struct {
	redis     *redis.Client
	rules     []Rule
	local     *LocalStore
	opTimeout time.Duration
	logger    *log.Helper
	now       func() time.Time
	seq       atomic.Int64
}

// NewLimiter 创建限流器
// local 为必需的本地回退存储；调用方负责其 Start/Stop 生命周期。
func NewLimiter(client *redis.Client, rules []Rule, local *LocalStore, logger log.Logger) *Limiter {
	return &Limiter{
		redis:     client,
		rules:     rules,
		local:     local,
		opTimeout: 250 * time.Millisecond,
		logger:    log.NewHelper(log.With(logger, "module", "ratelimit")),
		now:       time.Now,
	}
}

// Check 检查 (identity, path) 是否放行
func (l *Limiter) Check(ctx context.Context, identity, path string) Result {
	rule, ok := l.match(path)
	if !ok {
		// 未配置的路径不限流
		return Result{Allowed: true, Source: SourceNone}
	}

	key := fmt.Sprintf("ratelimit:%s:%s", identity, rule.PathPrefix)

	result, err := l.checkRedis(ctx, key, rule)
	if err != nil {
		// 只降级这一次检查，不影响后续请求走共享存储
		l.logger.Warnf("redis check failed, falling back to local window: key=%s err=%v", key, err)
		result = l.local.Check(key, rule.MaxRequests, rule.Window, l.now())
		result.Source = SourceFallback
		return result
	}

	result.Source = SourceRedis
	return result
}

// match 返回第一条前缀匹配的规则
func (l *Limiter) match(path string) (Rule, bool) {
	for _, rule := range l.rules {
		if strings.HasPrefix(path, rule.PathPrefix) {
			return rule, true
		}
	}
	return Rule{}, false
}

// checkRedis 滑动窗口检查
//
// 以单个事务管道执行：清除窗口外的时间戳、写入当前时间戳、
// 统计剩余数量、刷新键的过期时间（回收空闲键）。单批执行
// 避免并发检查之间的交错。
func (l *Limiter) checkRedis(ctx context.Context, key string, rule Rule) (Result, error) {
	now := l.now()
	nowMs := now.UnixMilli()
	windowMs := rule.Window.Milliseconds()

	opCtx, cancel := context.WithTimeout(ctx, l.opTimeout)
	defer cancel()

	// 同一毫秒内的并发检查各自需要独立的成员
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + strconv.FormatInt(l.seq.Add(1), 10)

	pipe := l.redis.TxPipeline()
	pipe.ZRemRangeByScore(opCtx, key, "0", strconv.FormatInt(nowMs-windowMs, 10))
	pipe.ZAdd(opCtx, key, redis.Z{Score: float64(nowMs), Member: member})
	countCmd := pipe.ZCard(opCtx, key)
	oldestCmd := pipe.ZRangeWithScores(opCtx, key, 0, 0)
	pipe.PExpire(opCtx, key, rule.Window)

	if _, err := pipe.Exec(opCtx); err != nil {
		return Result{}, err
	}

	count := countCmd.Val()
	if count <= int64(rule.MaxRequests) {
		return Result{Allowed: true}, nil
	}

	// 超限：用最旧的存活时间戳推算重试时间
	retryAfterMs := windowMs
	if oldest := oldestCmd.Val(); len(oldest) > 0 {
		retryAfterMs = int64(oldest[0].Score) + windowMs - nowMs
		if retryAfterMs < 0 {
			retryAfterMs = 0
		}
	}

	return Result{Allowed: false, RetryAfterMs: retryAfterMs}, nil
}
