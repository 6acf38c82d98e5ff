package domain

import (
	"time"

	"github.com/google/uuid"
)

// EntryType 流水类型
type EntryType string

const (
	// EntryCredit 入账
	EntryCredit EntryType = "CREDIT"
	// EntryDebit 出账
	EntryDebit EntryType = "DEBIT"
)

// Reason 流水原因（封闭枚举）
type Reason string

const (
	ReasonPlanAllocation Reason = "PLAN_ALLOCATION"
	ReasonTopupPurchase  Reason = "TOPUP_PURCHASE"
	ReasonAdminGrant     Reason = "ADMIN_GRANT"
	ReasonGenerateAds    Reason = "GENERATE_ADS"
	ReasonGenerateVideo  Reason = "GENERATE_VIDEO"
	ReasonRender         Reason = "RENDER"
	ReasonRefund         Reason = "REFUND"
	ReasonExpiry         Reason = "EXPIRY"
	ReasonAdjustment     Reason = "ADJUSTMENT"
)

// Valid 检查原因码是否在枚举内
func (r Reason) Valid() bool {
	switch r {
	case ReasonPlanAllocation, ReasonTopupPurchase, ReasonAdminGrant,
		ReasonGenerateAds, ReasonGenerateVideo, ReasonRender,
		ReasonRefund, ReasonExpiry, ReasonAdjustment:
		return true
	}
	return false
}

// LedgerEntry 账本流水
//
// 不可变、只追加：每次成功的余额变更恰好产生一条流水，
// 之后永不更新或删除。同一租户的流水按创建时间构成全序。
type LedgerEntry struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenant_id"`
	UserID       string     `json:"user_id,omitempty"` // 系统流水为空
	Type         EntryType  `json:"type"`
	Amount       int64      `json:"amount"` // 恒为正数
	BalanceAfter int64      `json:"balance_after"`
	Reason       Reason     `json:"reason"`
	Description  string     `json:"description,omitempty"`
	ReferenceID  string     `json:"reference_id,omitempty"` // 外部关联单号
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// EntryOptions 流水可选字段
type EntryOptions struct {
	UserID      string
	Description string
	ReferenceID string
	ExpiresAt   *time.Time
}

// NewEntry 创建流水（BalanceAfter 在持久化时由仓储填充）
func NewEntry(tenantID string, entryType EntryType, amount int64, reason Reason, opts EntryOptions) *LedgerEntry {
	return &LedgerEntry{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		UserID:      opts.UserID,
		Type:        entryType,
		Amount:      amount,
		Reason:      reason,
		Description: opts.Description,
		ReferenceID: opts.ReferenceID,
		ExpiresAt:   opts.ExpiresAt,
		CreatedAt:   time.Now().UTC(),
	}
}
