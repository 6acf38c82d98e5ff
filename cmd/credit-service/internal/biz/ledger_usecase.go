package biz

import (
	"context"
	"fmt"
	"time"

	"creditgate/cmd/credit-service/internal/domain"
	"creditgate/pkg/observability"

	"github.com/go-kratos/kratos/v2/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "credit-service/ledger"

// FailureCode 业务拒绝码
type FailureCode string

const (
	// FailureInsufficientTokens 余额不足
	FailureInsufficientTokens FailureCode = "INSUFFICIENT_TOKENS"
	// FailureBudgetExceeded 超出月度预算
	FailureBudgetExceeded FailureCode = "BUDGET_EXCEEDED"
)

// DeductResult 扣减结果
// 余额不足/预算超限是预期的业务结果，以类型化结果返回而非错误。
type DeductResult struct {
	Success       bool        `json:"success"`
	NewBalance    int64       `json:"new_balance,omitempty"`
	TransactionID string      `json:"transaction_id,omitempty"`
	Code          FailureCode `json:"code,omitempty"`
	Balance       int64       `json:"balance,omitempty"`  // 拒绝时的当前余额
	Required      int64       `json:"required,omitempty"` // 拒绝时的所需金额
}

// CreditResult 加款结果
type CreditResult struct {
	NewBalance    int64  `json:"new_balance"`
	TransactionID string `json:"transaction_id"`
}

// PreflightResult 预检结果（只读，不产生任何扣费）
type PreflightResult struct {
	Allowed bool        `json:"allowed"`
	Code    FailureCode `json:"code,omitempty"`
	Balance int64       `json:"balance"`
	Used    int64       `json:"monthly_used"`
	Budget  int64       `json:"monthly_budget"`
}

// LedgerUsecase 代币账本用例
//
// 并发安全、可审计的租户余额变更与查询。所有跨进程一致的状态
// 都在持久化存储里；缓存只加速读取，每次变更后失效。
type LedgerUsecase struct {
	repo   domain.LedgerRepository
	cache  domain.BalanceCache
	guard  *BudgetGuard
	logger *log.Helper
	now    func() time.Time
}

// NewLedgerUsecase 创建账本用例
func NewLedgerUsecase(
	repo domain.LedgerRepository,
	cache domain.BalanceCache,
	guard *BudgetGuard,
	logger log.Logger,
) *LedgerUsecase {
	return &LedgerUsecase{
		repo:   repo,
		cache:  cache,
		guard:  guard,
		logger: log.NewHelper(log.With(logger, "module", "ledger")),
		now:    time.Now,
	}
}

// CreateAccount 开户
// initialGrant > 0 时以 PLAN_ALLOCATION 入账初始额度。
func (uc *LedgerUsecase) CreateAccount(ctx context.Context, tenantID string, tier domain.PlanTier, monthlyBudget, initialGrant int64) (*domain.Account, error) {
	if !tier.Valid() {
		return nil, domain.ErrInvalidPlanTier
	}
	if initialGrant < 0 || monthlyBudget < 0 {
		return nil, domain.ErrInvalidAmount
	}

	account := domain.NewAccount(tenantID, tier, monthlyBudget)
	if err := uc.repo.CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	if initialGrant > 0 {
		result, err := uc.Credit(ctx, tenantID, initialGrant, domain.ReasonPlanAllocation, domain.EntryOptions{
			Description: fmt.Sprintf("initial %s plan allocation", tier),
		})
		if err != nil {
			return nil, err
		}
		account.Balance = result.NewBalance
	}

	uc.logger.Infof("account created: tenant=%s tier=%s budget=%d grant=%d",
		tenantID, tier, monthlyBudget, initialGrant)

	return account, nil
}

// Deduct 扣减代币
//
// 顺序：预算守卫（建议性）→ 单条条件更新（硬性，失败关闭）→
// 同事务追加 DEBIT 流水 → 尽力而为的缓存失效。
func (uc *LedgerUsecase) Deduct(ctx context.Context, tenantID string, amount int64, reason domain.Reason, opts domain.EntryOptions) (*DeductResult, error) {
	ctx, span := observability.Tracer(tracerName).Start(ctx, "ledger.deduct",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.Int64("ledger.amount", amount),
			attribute.String("ledger.reason", string(reason)),
		))
	defer span.End()

	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if !reason.Valid() {
		return nil, domain.ErrInvalidReason
	}

	account, err := uc.repo.GetAccount(ctx, tenantID)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	// 月度预算检查（建议性，失败开放仅指基础设施；这里读的是持久化存储，
	// 读取失败视为致命）
	if account.MonthlyBudget > 0 {
		used, err := uc.repo.SumDebits(ctx, tenantID, domain.MonthStart(uc.now()))
		if err != nil {
			observability.RecordError(span, err)
			return nil, err
		}
		if !uc.guard.Allow(used, amount, account.MonthlyBudget) {
			span.SetAttributes(attribute.String("ledger.outcome", "budget_exceeded"))
			return &DeductResult{
				Success:  false,
				Code:     FailureBudgetExceeded,
				Balance:  account.Balance,
				Required: amount,
			}, nil
		}
	}

	entry := domain.NewEntry(tenantID, domain.EntryDebit, amount, reason, opts)

	applied, balance, err := uc.repo.DeductWithEntry(ctx, tenantID, amount, entry)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	if !applied {
		span.SetAttributes(attribute.String("ledger.outcome", "insufficient_tokens"))
		return &DeductResult{
			Success:  false,
			Code:     FailureInsufficientTokens,
			Balance:  balance,
			Required: amount,
		}, nil
	}

	// 缓存失效是尽力而为：失败绝不阻塞或撤销已提交的变更
	uc.cache.Invalidate(ctx, tenantID)

	span.SetAttributes(attribute.String("ledger.outcome", "success"))
	return &DeductResult{
		Success:       true,
		NewBalance:    balance,
		TransactionID: entry.ID,
	}, nil
}

// Credit 加款
// 永远成功（账户存在时）；读-加-写与流水追加在一个原子单元内执行，
// 避免并发加款丢失更新。
func (uc *LedgerUsecase) Credit(ctx context.Context, tenantID string, amount int64, reason domain.Reason, opts domain.EntryOptions) (*CreditResult, error) {
	ctx, span := observability.Tracer(tracerName).Start(ctx, "ledger.credit",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.Int64("ledger.amount", amount),
			attribute.String("ledger.reason", string(reason)),
		))
	defer span.End()

	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if !reason.Valid() {
		return nil, domain.ErrInvalidReason
	}

	entry := domain.NewEntry(tenantID, domain.EntryCredit, amount, reason, opts)

	balance, err := uc.repo.CreditWithEntry(ctx, tenantID, amount, entry)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	uc.cache.Invalidate(ctx, tenantID)

	return &CreditResult{
		NewBalance:    balance,
		TransactionID: entry.ID,
	}, nil
}

// Refund 退款 = 以 REFUND 原因入账
func (uc *LedgerUsecase) Refund(ctx context.Context, tenantID string, amount int64, opts domain.EntryOptions) (*CreditResult, error) {
	return uc.Credit(ctx, tenantID, amount, domain.ReasonRefund, opts)
}

// GetBalance 查询余额（读穿缓存）
// 命中直接返回；未命中读持久化存储并以短 TTL 回填。
func (uc *LedgerUsecase) GetBalance(ctx context.Context, tenantID string) (int64, error) {
	if balance, ok := uc.cache.GetBalance(ctx, tenantID); ok {
		return balance, nil
	}

	balance, err := uc.repo.GetBalance(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	uc.cache.SetBalance(ctx, tenantID, balance)
	return balance, nil
}

// GetMonthlyUsage 查询当月已用量（DEBIT 金额之和，UTC 月初起算）
func (uc *LedgerUsecase) GetMonthlyUsage(ctx context.Context, tenantID string) (int64, error) {
	return uc.repo.SumDebits(ctx, tenantID, domain.MonthStart(uc.now()))
}

// Preflight 预检：预算 + 余额的只读检查，不产生任何扣费
func (uc *LedgerUsecase) Preflight(ctx context.Context, tenantID string, amount int64) (*PreflightResult, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	account, err := uc.repo.GetAccount(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	used := int64(0)
	if account.MonthlyBudget > 0 {
		used, err = uc.repo.SumDebits(ctx, tenantID, domain.MonthStart(uc.now()))
		if err != nil {
			return nil, err
		}
	}

	result := &PreflightResult{
		Allowed: true,
		Balance: account.Balance,
		Used:    used,
		Budget:  account.MonthlyBudget,
	}

	if !uc.guard.Allow(used, amount, account.MonthlyBudget) {
		result.Allowed = false
		result.Code = FailureBudgetExceeded
		return result, nil
	}
	if account.Balance < amount {
		result.Allowed = false
		result.Code = FailureInsufficientTokens
	}

	return result, nil
}

// ListTransactions 分页列出流水（倒序）
func (uc *LedgerUsecase) ListTransactions(ctx context.Context, tenantID string, page, pageSize int) ([]*domain.LedgerEntry, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 20
	}

	offset := (page - 1) * pageSize
	return uc.repo.ListEntries(ctx, tenantID, pageSize, offset)
}

// GetAccount 查询账户
func (uc *LedgerUsecase) GetAccount(ctx context.Context, tenantID string) (*domain.Account, error) {
	return uc.repo.GetAccount(ctx, tenantID)
}
