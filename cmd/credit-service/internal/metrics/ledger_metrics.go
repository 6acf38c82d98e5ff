package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 账本操作计数
	ledgerOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creditgate_ledger_operations_total",
			Help: "Total number of ledger operations",
		},
		[]string{"operation", "outcome"},
	)

	// 扣减延迟
	deductDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "creditgate_deduct_duration_seconds",
			Help:    "Deduct operation latency",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"outcome"},
	)

	// 限流判定计数
	rateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creditgate_ratelimit_decisions_total",
			Help: "Rate limit decisions by outcome and deciding store",
		},
		[]string{"outcome", "source"},
	)

	// 余额缓存命中/未命中
	balanceCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creditgate_balance_cache_lookups_total",
			Help: "Balance cache lookups by result",
		},
		[]string{"result"},
	)
)

// ObserveLedgerOp 记录一次账本操作
func ObserveLedgerOp(operation, outcome string) {
	ledgerOperations.WithLabelValues(operation, outcome).Inc()
}

// ObserveDeduct 记录一次扣减及其耗时
func ObserveDeduct(outcome string, elapsed time.Duration) {
	ledgerOperations.WithLabelValues("deduct", outcome).Inc()
	deductDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveRateLimit 记录一次限流判定
func ObserveRateLimit(outcome, source string) {
	rateLimitDecisions.WithLabelValues(outcome, source).Inc()
}

// ObserveBalanceCache 记录一次余额缓存查询
func ObserveBalanceCache(result string) {
	balanceCacheLookups.WithLabelValues(result).Inc()
}
