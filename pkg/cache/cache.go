package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss 缓存未命中
// 调用方必须容忍未命中并回退到持久化存储。
var ErrMiss = errors.New("cache: miss")

// Cache 缓存接口
// 缓存永远不是数据源；所有值都可以从持久化存储重建。
type Cache interface {
	// Get 获取缓存值，未命中返回 ErrMiss
	Get(ctx context.Context, key string) (string, error)

	// Set 设置缓存值
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete 删除缓存
	Delete(ctx context.Context, key string) error

	// Close 关闭连接
	Close() error
}

// Options 缓存选项
type Options struct {
	// 默认过期时间
	DefaultTTL time.Duration

	// 键前缀
	KeyPrefix string
}
