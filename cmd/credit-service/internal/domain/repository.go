package domain

import (
	"context"
	"time"
)

// LedgerRepository 账本仓储
//
// 扣减/加款与流水追加必须在同一个数据库事务内提交或回滚，
// 余额与审计日志永远不会分叉。
type LedgerRepository interface {
	// CreateAccount 创建账户
	CreateAccount(ctx context.Context, account *Account) error

	// GetAccount 获取账户
	GetAccount(ctx context.Context, tenantID string) (*Account, error)

	// DeductWithEntry 条件原子扣减并追加一条 DEBIT 流水。
	// 仅当当前余额 >= amount 时扣减（单条条件更新消除读写间隙）。
	// applied=false 表示余额不足，此时不产生任何写入，
	// balance 返回重读后的当前余额。
	DeductWithEntry(ctx context.Context, tenantID string, amount int64, entry *LedgerEntry) (applied bool, balance int64, err error)

	// CreditWithEntry 原子加款并追加一条 CREDIT 流水，返回新余额。
	CreditWithEntry(ctx context.Context, tenantID string, amount int64, entry *LedgerEntry) (balance int64, err error)

	// GetBalance 读取当前余额
	GetBalance(ctx context.Context, tenantID string) (int64, error)

	// SumDebits 统计 since 起（含）的 DEBIT 金额之和
	SumDebits(ctx context.Context, tenantID string, since time.Time) (int64, error)

	// ListEntries 按创建时间倒序分页列出流水
	ListEntries(ctx context.Context, tenantID string, limit, offset int) ([]*LedgerEntry, int64, error)
}

// BalanceCache 余额缓存
//
// 永远不是数据源；实现必须把基础设施故障表现为未命中，
// 不得向调用方抛出错误或阻塞关键路径。
type BalanceCache interface {
	// GetBalance 读取缓存余额，未命中返回 ok=false
	GetBalance(ctx context.Context, tenantID string) (balance int64, ok bool)

	// SetBalance 写入缓存余额（短 TTL）
	SetBalance(ctx context.Context, tenantID string, balance int64)

	// Invalidate 使缓存失效（尽力而为）
	Invalidate(ctx context.Context, tenantID string)
}
