package data

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"creditgate/cmd/credit-service/internal/domain"
	"creditgate/cmd/credit-service/internal/metrics"
	"creditgate/pkg/cache"

	"github.com/go-kratos/kratos/v2/log"
)

// defaultBalanceTTL 余额缓存过期时间
// 短 TTL 加上每次变更后的失效，把陈旧窗口压到秒级。
const defaultBalanceTTL = 10 * time.Second

// BalanceCache 余额缓存实现
type BalanceCache struct {
	cache  cache.Cache
	ttl    time.Duration
	logger *log.Helper
}

// NewBalanceCache 创建余额缓存
func NewBalanceCache(c cache.Cache, logger log.Logger) domain.BalanceCache {
	return &BalanceCache{
		cache:  c,
		ttl:    defaultBalanceTTL,
		logger: log.NewHelper(log.With(logger, "module", "balance-cache")),
	}
}

// balanceKey 生成余额缓存键
func balanceKey(tenantID string) string {
	return fmt.Sprintf("balance:%s", tenantID)
}

// GetBalance 读取缓存余额；任何故障或坏数据都表现为未命中
func (c *BalanceCache) GetBalance(ctx context.Context, tenantID string) (int64, bool) {
	val, err := c.cache.Get(ctx, balanceKey(tenantID))
	if err != nil {
		metrics.ObserveBalanceCache("miss")
		return 0, false
	}

	balance, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		c.logger.Warnf("corrupt cached balance, treating as miss: tenant=%s val=%q", tenantID, val)
		metrics.ObserveBalanceCache("miss")
		return 0, false
	}

	metrics.ObserveBalanceCache("hit")
	return balance, true
}

// SetBalance 回填缓存余额
func (c *BalanceCache) SetBalance(ctx context.Context, tenantID string, balance int64) {
	if err := c.cache.Set(ctx, balanceKey(tenantID), strconv.FormatInt(balance, 10), c.ttl); err != nil {
		c.logger.Warnf("balance cache set failed: tenant=%s err=%v", tenantID, err)
	}
}

// Invalidate 使缓存失效（尽力而为，失败绝不影响触发它的账本操作）
func (c *BalanceCache) Invalidate(ctx context.Context, tenantID string) {
	if err := c.cache.Delete(ctx, balanceKey(tenantID)); err != nil {
		c.logger.Warnf("balance cache invalidation failed: tenant=%s err=%v", tenantID, err)
	}
}
