package domain

import (
	"time"
)

// PlanTier 套餐等级
type PlanTier string

const (
	// TierFree 免费套餐
	TierFree PlanTier = "free"
	// TierPremium 高级套餐
	TierPremium PlanTier = "premium"
	// TierEnterprise 企业套餐
	TierEnterprise PlanTier = "enterprise"
)

// Valid 检查套餐等级是否合法
func (t PlanTier) Valid() bool {
	switch t {
	case TierFree, TierPremium, TierEnterprise:
		return true
	}
	return false
}

// Account 租户账户
//
// 不变量：Balance 永远 >= 0，且等于该租户全部 CREDIT 金额之和
// 减去全部 DEBIT 金额之和。余额只通过账本操作变更。
type Account struct {
	TenantID      string    `json:"tenant_id"`
	Balance       int64     `json:"balance"`
	MonthlyBudget int64     `json:"monthly_budget"` // 0 表示未配置月度预算
	PlanTier      PlanTier  `json:"plan_tier"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewAccount 创建账户
func NewAccount(tenantID string, tier PlanTier, monthlyBudget int64) *Account {
	now := time.Now().UTC()
	return &Account{
		TenantID:      tenantID,
		Balance:       0,
		MonthlyBudget: monthlyBudget,
		PlanTier:      tier,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// MonthStart 返回 t 所在月份的第一个瞬间（UTC）
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
