package service

import (
	"context"
	"time"

	"creditgate/cmd/credit-service/internal/biz"
	"creditgate/cmd/credit-service/internal/domain"
	"creditgate/cmd/credit-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// CreditService 代币治理服务
type CreditService struct {
	ledger *biz.LedgerUsecase
	logger *log.Helper
}

// NewCreditService 创建代币治理服务
func NewCreditService(ledger *biz.LedgerUsecase, logger log.Logger) *CreditService {
	return &CreditService{
		ledger: ledger,
		logger: log.NewHelper(log.With(logger, "module", "credit-service")),
	}
}

// CreateAccount 开户
func (s *CreditService) CreateAccount(ctx context.Context, tenantID string, tier domain.PlanTier, monthlyBudget, initialGrant int64) (*domain.Account, error) {
	account, err := s.ledger.CreateAccount(ctx, tenantID, tier, monthlyBudget, initialGrant)
	if err != nil {
		metrics.ObserveLedgerOp("create_account", "error")
		return nil, err
	}
	metrics.ObserveLedgerOp("create_account", "success")
	return account, nil
}

// Deduct 扣减
func (s *CreditService) Deduct(ctx context.Context, tenantID string, amount int64, reason domain.Reason, opts domain.EntryOptions) (*biz.DeductResult, error) {
	start := time.Now()

	result, err := s.ledger.Deduct(ctx, tenantID, amount, reason, opts)
	if err != nil {
		metrics.ObserveDeduct("error", time.Since(start))
		return nil, err
	}

	if result.Success {
		metrics.ObserveDeduct("success", time.Since(start))
	} else {
		// 业务拒绝是预期结果，不记录为错误
		metrics.ObserveDeduct(string(result.Code), time.Since(start))
		s.logger.Debugf("deduct rejected: tenant=%s amount=%d code=%s", tenantID, amount, result.Code)
	}

	return result, nil
}

// Credit 加款
func (s *CreditService) Credit(ctx context.Context, tenantID string, amount int64, reason domain.Reason, opts domain.EntryOptions) (*biz.CreditResult, error) {
	result, err := s.ledger.Credit(ctx, tenantID, amount, reason, opts)
	if err != nil {
		metrics.ObserveLedgerOp("credit", "error")
		return nil, err
	}
	metrics.ObserveLedgerOp("credit", "success")
	return result, nil
}

// Refund 退款
func (s *CreditService) Refund(ctx context.Context, tenantID string, amount int64, opts domain.EntryOptions) (*biz.CreditResult, error) {
	result, err := s.ledger.Refund(ctx, tenantID, amount, opts)
	if err != nil {
		metrics.ObserveLedgerOp("refund", "error")
		return nil, err
	}
	metrics.ObserveLedgerOp("refund", "success")
	return result, nil
}

// GetBalance 查询余额
func (s *CreditService) GetBalance(ctx context.Context, tenantID string) (int64, error) {
	return s.ledger.GetBalance(ctx, tenantID)
}

// GetMonthlyUsage 查询当月用量
func (s *CreditService) GetMonthlyUsage(ctx context.Context, tenantID string) (int64, error) {
	return s.ledger.GetMonthlyUsage(ctx, tenantID)
}

// GetAccount 查询账户
func (s *CreditService) GetAccount(ctx context.Context, tenantID string) (*domain.Account, error) {
	return s.ledger.GetAccount(ctx, tenantID)
}

// Preflight 预检
func (s *CreditService) Preflight(ctx context.Context, tenantID string, amount int64) (*biz.PreflightResult, error) {
	return s.ledger.Preflight(ctx, tenantID, amount)
}

// ListTransactions 分页列出流水
func (s *CreditService) ListTransactions(ctx context.Context, tenantID string, page, pageSize int) ([]*domain.LedgerEntry, int64, error) {
	return s.ledger.ListTransactions(ctx, tenantID, page, pageSize)
}
