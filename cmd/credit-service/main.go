package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"creditgate/cmd/credit-service/internal/biz"
	"creditgate/cmd/credit-service/internal/data"
	"creditgate/cmd/credit-service/internal/server"
	"creditgate/cmd/credit-service/internal/service"
	"creditgate/pkg/cache"
	"creditgate/pkg/config"
	"creditgate/pkg/observability"
	"creditgate/pkg/ratelimit"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"
)

// ruleConfig 限流规则配置项
type ruleConfig struct {
	PathPrefix  string `mapstructure:"path_prefix"`
	MaxRequests int    `mapstructure:"max_requests"`
	WindowMs    int    `mapstructure:"window_ms"`
}

func main() {
	zlog, _ := zap.NewProduction()
	defer zlog.Sync() //nolint:errcheck

	// 加载本地配置文件（环境变量优先级最高）
	configPath := config.GetEnv("CONFIG_PATH", "./configs/credit-service.yaml")
	cfg := config.NewManager()
	if err := cfg.LoadConfig(configPath); err != nil {
		zlog.Warn("config file not loaded, using environment variables only", zap.Error(err))
	}

	logger := log.With(log.NewStdLogger(os.Stdout),
		"ts", log.DefaultTimestamp,
		"service", "credit-service",
	)

	// 追踪
	tracingShutdown, err := observability.InitTracing(context.Background(), observability.TracingConfig{
		ServiceName:  "credit-service",
		Environment:  config.GetEnv("ENVIRONMENT", "development"),
		Endpoint:     config.GetEnv("OTLP_ENDPOINT", "localhost:4317"),
		SamplingRate: 1.0,
		Enabled:      config.GetEnvAsBool("TRACING_ENABLED", false),
	})
	if err != nil {
		zlog.Fatal("failed to init tracing", zap.Error(err))
	}

	// 数据库
	dbConfig := &data.DBConfig{
		Host:     config.GetEnv("DB_HOST", orDefault(cfg.GetString("data.database.host"), "localhost")),
		Port:     config.GetEnvAsInt("DB_PORT", orDefaultInt(cfg.GetInt("data.database.port"), 5432)),
		User:     config.GetEnv("DB_USER", orDefault(cfg.GetString("data.database.user"), "postgres")),
		Password: config.GetEnv("DB_PASSWORD", orDefault(cfg.GetString("data.database.password"), "postgres")),
		Database: config.GetEnv("DB_NAME", orDefault(cfg.GetString("data.database.database"), "creditgate")),
	}

	db, err := data.NewDB(dbConfig, logger)
	if err != nil {
		zlog.Fatal("failed to connect database", zap.Error(err))
	}

	// Redis（共享缓存 + 限流存储）
	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.GetEnv("REDIS_ADDR", orDefault(cfg.GetString("data.redis.addr"), "localhost:6379")),
		Password: config.GetEnv("REDIS_PASSWORD", cfg.GetString("data.redis.password")),
		DB:       config.GetEnvAsInt("REDIS_DB", cfg.GetInt("data.redis.db")),
	})

	// 缓存：Redis 外面包一层降级，故障时退化为未命中
	redisCache := cache.NewRedisCacheWithClient(redisClient, &cache.Options{
		DefaultTTL: 10 * time.Second,
		KeyPrefix:  "creditgate",
	})
	failsafeCache := cache.NewFailsafe(redisCache, nil, logger)

	// 账本
	repo := data.NewLedgerRepository(db)
	balanceCache := data.NewBalanceCache(failsafeCache, logger)
	ledgerUC := biz.NewLedgerUsecase(repo, balanceCache, biz.NewBudgetGuard(), logger)
	svc := service.NewCreditService(ledgerUC, logger)

	// 限流器（本地回退存储有自己的启停生命周期）
	localStore := ratelimit.NewLocalStore(time.Minute, logger)
	localStore.Start()

	limiter := ratelimit.NewLimiter(redisClient, loadRules(cfg), localStore, logger)

	httpSrv := server.NewHTTPServer(svc, limiter, logger)

	addr := config.GetEnv("HTTP_ADDR", orDefault(cfg.GetString("server.http.addr"), ":8080"))
	go func() {
		if err := httpSrv.Start(addr); err != nil {
			zlog.Info("http server stopped", zap.Error(err))
		}
	}()

	zlog.Info("credit service started", zap.String("addr", addr))

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		zlog.Warn("http shutdown error", zap.Error(err))
	}

	localStore.Stop()

	if err := tracingShutdown(ctx); err != nil {
		zlog.Warn("tracing shutdown error", zap.Error(err))
	}
	if err := redisClient.Close(); err != nil {
		zlog.Warn("redis close error", zap.Error(err))
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close() //nolint:errcheck
	}
}

// loadRules 从配置加载限流规则
func loadRules(cfg *config.Manager) []ratelimit.Rule {
	var ruleConfigs []ruleConfig
	if err := cfg.UnmarshalKey("ratelimit.rules", &ruleConfigs); err != nil || len(ruleConfigs) == 0 {
		// 默认规则：昂贵的扣减路径收紧，其余 API 宽松
		return []ratelimit.Rule{
			{PathPrefix: "/api/v1/tenants", MaxRequests: 300, Window: time.Minute},
		}
	}

	rules := make([]ratelimit.Rule, 0, len(ruleConfigs))
	for _, rc := range ruleConfigs {
		if rc.PathPrefix == "" || rc.MaxRequests <= 0 || rc.WindowMs <= 0 {
			continue
		}
		rules = append(rules, ratelimit.Rule{
			PathPrefix:  rc.PathPrefix,
			MaxRequests: rc.MaxRequests,
			Window:      time.Duration(rc.WindowMs) * time.Millisecond,
		})
	}
	return rules
}

func orDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

func orDefaultInt(value, defaultValue int) int {
	if value == 0 {
		return defaultValue
	}
	return value
}
