package middleware

import (
	"fmt"
	"net/http"

	"creditgate/cmd/credit-service/internal/metrics"
	"creditgate/pkg/ratelimit"

	"github.com/gin-gonic/gin"
)

// RateLimit 限流中间件
//
// 按 (identity, 路由前缀) 做滑动窗口准入控制。限流器内部保证
// 基础设施故障只会降级到本地回退，绝不拒绝请求，所以这里
// 不存在错误分支。
func RateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 跳过健康检查和指标
		path := c.Request.URL.Path
		if path == "/health" || path == "/metrics" {
			c.Next()
			return
		}

		identity := c.GetHeader("X-Tenant-ID")
		if identity == "" {
			// 未标识的调用方按来源 IP 限流
			identity = c.ClientIP()
		}

		result := limiter.Check(c.Request.Context(), identity, path)
		if !result.Allowed {
			metrics.ObserveRateLimit("denied", result.Source)
			c.Header("Retry-After", fmt.Sprintf("%d", (result.RetryAfterMs+999)/1000))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"code":           429,
				"message":        "too many requests",
				"retry_after_ms": result.RetryAfterMs,
			})
			c.Abort()
			return
		}

		metrics.ObserveRateLimit("allowed", result.Source)
		c.Next()
	}
}
