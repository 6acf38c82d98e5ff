package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"creditgate/cmd/credit-service/internal/domain"
	"creditgate/cmd/credit-service/internal/middleware"
	"creditgate/cmd/credit-service/internal/service"
	"creditgate/pkg/ratelimit"

	"github.com/gin-gonic/gin"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPServer HTTP 服务器
type HTTPServer struct {
	engine  *gin.Engine
	server  *http.Server
	service *service.CreditService
	logger  *log.Helper
}

// NewHTTPServer 创建 HTTP 服务器
func NewHTTPServer(srv *service.CreditService, limiter *ratelimit.Limiter, logger log.Logger) *HTTPServer {
	engine := gin.New()

	s := &HTTPServer{
		engine:  engine,
		service: srv,
		logger:  log.NewHelper(log.With(logger, "module", "http-server")),
	}

	// 全局中间件
	engine.Use(gin.Recovery())
	engine.Use(middleware.Metrics())
	engine.Use(middleware.RateLimit(limiter))

	s.registerRoutes()

	return s
}

// registerRoutes 注册路由
func (s *HTTPServer) registerRoutes() {
	api := s.engine.Group("/api/v1")

	tenants := api.Group("/tenants")
	{
		tenants.POST("", s.createAccount)
		tenants.GET("/:id", s.getAccount)
		tenants.GET("/:id/balance", s.getBalance)
		tenants.GET("/:id/usage", s.getUsage)
		tenants.GET("/:id/transactions", s.listTransactions)
		tenants.POST("/:id/deduct", s.deduct)
		tenants.POST("/:id/credit", s.credit)
		tenants.POST("/:id/refund", s.refund)
		tenants.POST("/:id/preflight", s.preflight)
	}

	// 健康检查
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	// Prometheus 指标
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// createAccount 开户
func (s *HTTPServer) createAccount(c *gin.Context) {
	var req struct {
		TenantID      string `json:"tenant_id" binding:"required"`
		PlanTier      string `json:"plan_tier" binding:"required"`
		MonthlyBudget int64  `json:"monthly_budget"`
		InitialGrant  int64  `json:"initial_grant"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Code: 400, Message: err.Error()})
		return
	}

	account, err := s.service.CreateAccount(
		c.Request.Context(),
		req.TenantID,
		domain.PlanTier(req.PlanTier),
		req.MonthlyBudget,
		req.InitialGrant,
	)
	if err != nil {
		Error(c, err)
		return
	}

	Created(c, account)
}

// getAccount 查询账户
func (s *HTTPServer) getAccount(c *gin.Context) {
	account, err := s.service.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, account)
}

// getBalance 查询余额
func (s *HTTPServer) getBalance(c *gin.Context) {
	balance, err := s.service.GetBalance(c.Request.Context(), c.Param("id"))
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, gin.H{"balance": balance})
}

// getUsage 查询当月用量
func (s *HTTPServer) getUsage(c *gin.Context) {
	tenantID := c.Param("id")

	usage, err := s.service.GetMonthlyUsage(c.Request.Context(), tenantID)
	if err != nil {
		Error(c, err)
		return
	}

	account, err := s.service.GetAccount(c.Request.Context(), tenantID)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, gin.H{
		"monthly_used":   usage,
		"monthly_budget": account.MonthlyBudget,
		"balance":        account.Balance,
	})
}

// listTransactions 分页列出流水
func (s *HTTPServer) listTransactions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	entries, total, err := s.service.ListTransactions(c.Request.Context(), c.Param("id"), page, pageSize)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, gin.H{
		"transactions": entries,
		"total":        total,
		"page":         page,
		"page_size":    pageSize,
	})
}

// mutationRequest 扣减/加款请求体
type mutationRequest struct {
	Amount      int64      `json:"amount" binding:"required"`
	Reason      string     `json:"reason"`
	UserID      string     `json:"user_id"`
	Description string     `json:"description"`
	ReferenceID string     `json:"reference_id"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

func (r *mutationRequest) options() domain.EntryOptions {
	return domain.EntryOptions{
		UserID:      r.UserID,
		Description: r.Description,
		ReferenceID: r.ReferenceID,
		ExpiresAt:   r.ExpiresAt,
	}
}

// deduct 扣减代币
func (s *HTTPServer) deduct(c *gin.Context) {
	var req mutationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Code: 400, Message: err.Error()})
		return
	}

	result, err := s.service.Deduct(
		c.Request.Context(),
		c.Param("id"),
		req.Amount,
		domain.Reason(req.Reason),
		req.options(),
	)
	if err != nil {
		Error(c, err)
		return
	}

	if !result.Success {
		// 业务拒绝：类型化结果，不是服务错误
		c.JSON(http.StatusPaymentRequired, Response{
			Code:    402,
			Message: string(result.Code),
			Data:    result,
		})
		return
	}

	Success(c, result)
}

// credit 加款
func (s *HTTPServer) credit(c *gin.Context) {
	var req mutationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Code: 400, Message: err.Error()})
		return
	}

	result, err := s.service.Credit(
		c.Request.Context(),
		c.Param("id"),
		req.Amount,
		domain.Reason(req.Reason),
		req.options(),
	)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, result)
}

// refund 退款
func (s *HTTPServer) refund(c *gin.Context) {
	var req mutationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Code: 400, Message: err.Error()})
		return
	}

	result, err := s.service.Refund(c.Request.Context(), c.Param("id"), req.Amount, req.options())
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, result)
}

// preflight 预检（不扣费）
func (s *HTTPServer) preflight(c *gin.Context) {
	var req struct {
		Amount int64 `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Code: 400, Message: err.Error()})
		return
	}

	result, err := s.service.Preflight(c.Request.Context(), c.Param("id"), req.Amount)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, result)
}

// Start 启动服务器
func (s *HTTPServer) Start(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Infof("http server listening on %s", addr)
	return s.server.ListenAndServe()
}

// Shutdown 优雅关闭服务器
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
