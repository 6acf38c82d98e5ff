package cache

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/sony/gobreaker"
)

// FailsafeConfig 降级缓存配置
type FailsafeConfig struct {
	// OpTimeout 单次缓存操作的超时上限
	OpTimeout time.Duration
	// BreakerName 熔断器名称
	BreakerName string
	// BreakerTimeout 熔断后恢复时间
	BreakerTimeout time.Duration
	// FailureThreshold 失败率阈值（0.0-1.0）
	FailureThreshold float64
	// MinRequests 最小请求数（达到后才计算失败率）
	MinRequests uint32
}

// Failsafe 降级缓存包装器
//
// 缓存连接故障时所有操作在限定超时内退化为未命中/空操作：
// Get 返回 ErrMiss，Set/Delete 返回 nil。调用方永远不会
// 因为缓存不可用而失败。连续故障会触发熔断，避免每次
// 请求都等待一次完整的连接超时。
type Failsafe struct {
	inner   Cache
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	logger  *log.Helper
}

// NewFailsafe 创建降级缓存
func NewFailsafe(inner Cache, cfg *FailsafeConfig, logger log.Logger) *Failsafe {
	if cfg == nil {
		cfg = &FailsafeConfig{}
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 150 * time.Millisecond
	}
	if cfg.BreakerName == "" {
		cfg.BreakerName = "cache"
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 0.5
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = 5
	}

	logHelper := log.NewHelper(log.With(logger, "module", "cache-failsafe"))

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    cfg.BreakerName,
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logHelper.Warnf("cache circuit breaker state change: %s -> %s", from, to)
		},
	})

	return &Failsafe{
		inner:   inner,
		breaker: breaker,
		timeout: cfg.OpTimeout,
		logger:  logHelper,
	}
}

type getResult struct {
	val string
	hit bool
}

// Get 获取缓存值；任何基础设施故障都表现为 ErrMiss
func (f *Failsafe) Get(ctx context.Context, key string) (string, error) {
	result, err := f.breaker.Execute(func() (interface{}, error) {
		opCtx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()

		val, err := f.inner.Get(opCtx, key)
		if err == ErrMiss {
			// 真实未命中不算故障
			return getResult{}, nil
		}
		if err != nil {
			return getResult{}, err
		}
		return getResult{val: val, hit: true}, nil
	})
	if err != nil {
		f.logger.Warnf("cache get degraded to miss: key=%s err=%v", key, err)
		return "", ErrMiss
	}

	r := result.(getResult)
	if !r.hit {
		return "", ErrMiss
	}
	return r.val, nil
}

// Set 设置缓存值；故障时静默丢弃
func (f *Failsafe) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	_, err := f.breaker.Execute(func() (interface{}, error) {
		opCtx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()
		return nil, f.inner.Set(opCtx, key, value, ttl)
	})
	if err != nil {
		f.logger.Warnf("cache set dropped: key=%s err=%v", key, err)
	}
	return nil
}

// Delete 删除缓存；故障时静默丢弃
func (f *Failsafe) Delete(ctx context.Context, key string) error {
	_, err := f.breaker.Execute(func() (interface{}, error) {
		opCtx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()
		return nil, f.inner.Delete(opCtx, key)
	})
	if err != nil {
		f.logger.Warnf("cache delete dropped: key=%s err=%v", key, err)
	}
	return nil
}

// Close 关闭底层缓存
func (f *Failsafe) Close() error {
	return f.inner.Close()
}
