//go:build wireinject
// +build wireinject

package main

import (
	"creditgate/cmd/credit-service/internal/biz"
	"creditgate/cmd/credit-service/internal/data"
	"creditgate/cmd/credit-service/internal/server"
	"creditgate/cmd/credit-service/internal/service"
	"creditgate/pkg/cache"
	"creditgate/pkg/ratelimit"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// AppComponents 包含应用组件和资源
type AppComponents struct {
	Server *server.HTTPServer
	DB     *gorm.DB
}

// provideFailsafeCache 在Redis缓存外包一层降级保护
func provideFailsafeCache(client *redis.Client, opts *cache.Options, logger log.Logger) cache.Cache {
	return cache.NewFailsafe(cache.NewRedisCacheWithClient(client, opts), nil, logger)
}

// initApp 初始化应用
func initApp(
	dbConfig *data.DBConfig,
	redisClient *redis.Client,
	cacheOpts *cache.Options,
	rules []ratelimit.Rule,
	local *ratelimit.LocalStore,
	logger log.Logger,
) (*AppComponents, error) {
	panic(wire.Build(
		// Data 层
		data.NewDB,
		data.NewLedgerRepository,
		data.NewBalanceCache,
		provideFailsafeCache,

		// Biz 层
		biz.NewBudgetGuard,
		biz.NewLedgerUsecase,

		// Service 层
		service.NewCreditService,

		// Server 层
		ratelimit.NewLimiter,
		server.NewHTTPServer,

		// 组装 AppComponents
		wire.Struct(new(AppComponents), "*"),
	))
}
