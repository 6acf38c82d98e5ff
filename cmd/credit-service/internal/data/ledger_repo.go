package data

import (
	"context"
	"errors"
	"time"

	"creditgate/cmd/credit-service/internal/domain"

	"gorm.io/gorm"
)

// AccountDO 账户数据对象
type AccountDO struct {
	ID            string `gorm:"primaryKey"`
	Balance       int64  `gorm:"not null;default:0;check:balance >= 0"`
	MonthlyBudget int64  `gorm:"not null;default:0"`
	PlanTier      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName 指定表名
func (AccountDO) TableName() string {
	return "accounts"
}

// LedgerEntryDO 流水数据对象
type LedgerEntryDO struct {
	ID           string `gorm:"primaryKey"`
	TenantID     string `gorm:"index:idx_entries_tenant_created,priority:1"`
	UserID       string
	Type         string `gorm:"index"`
	Amount       int64  `gorm:"not null;check:amount > 0"`
	BalanceAfter int64
	Reason       string
	Description  string
	ReferenceID  string
	ExpiresAt    *time.Time
	CreatedAt    time.Time `gorm:"index:idx_entries_tenant_created,priority:2"`
}

// TableName 指定表名
func (LedgerEntryDO) TableName() string {
	return "ledger_entries"
}

// LedgerRepository 账本仓储实现
type LedgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository 创建账本仓储
func NewLedgerRepository(db *gorm.DB) domain.LedgerRepository {
	return &LedgerRepository{
		db: db,
	}
}

// CreateAccount 创建账户
func (r *LedgerRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	do := toAccountDO(account)
	if err := r.db.WithContext(ctx).Create(do).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrAccountExists
		}
		return err
	}
	return nil
}

// GetAccount 获取账户
func (r *LedgerRepository) GetAccount(ctx context.Context, tenantID string) (*domain.Account, error) {
	var do AccountDO
	if err := r.db.WithContext(ctx).Where("id = ?", tenantID).First(&do).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return toAccount(&do), nil
}

// DeductWithEntry 条件原子扣减并追加 DEBIT 流水
//
// 单条条件 UPDATE 是防竞态机制：只有当前余额 >= amount 时才扣减，
// 消除了先读后写的间隙，并发扣减不可能共同透支。扣减与流水在同
// 一个事务内提交或回滚。
func (r *LedgerRepository) DeductWithEntry(ctx context.Context, tenantID string, amount int64, entry *domain.LedgerEntry) (bool, int64, error) {
	var (
		applied bool
		balance int64
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&AccountDO{}).
			Where("id = ? AND balance >= ?", tenantID, amount).
			Update("balance", gorm.Expr("balance - ?", amount))
		if result.Error != nil {
			return result.Error
		}

		if result.RowsAffected == 0 {
			// 没有命中：余额不足或账户不存在，重读区分
			var do AccountDO
			if err := tx.Where("id = ?", tenantID).First(&do).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return domain.ErrAccountNotFound
				}
				return err
			}
			balance = do.Balance
			return nil
		}

		var do AccountDO
		if err := tx.Where("id = ?", tenantID).First(&do).Error; err != nil {
			return err
		}
		balance = do.Balance

		entry.BalanceAfter = balance
		if err := tx.Create(toEntryDO(entry)).Error; err != nil {
			return err
		}

		applied = true
		return nil
	})
	if err != nil {
		return false, 0, err
	}

	return applied, balance, nil
}

// CreditWithEntry 原子加款并追加 CREDIT 流水
// 相对增量更新在数据库层原子执行，并发加款不会丢失更新。
func (r *LedgerRepository) CreditWithEntry(ctx context.Context, tenantID string, amount int64, entry *domain.LedgerEntry) (int64, error) {
	var balance int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&AccountDO{}).
			Where("id = ?", tenantID).
			Update("balance", gorm.Expr("balance + ?", amount))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrAccountNotFound
		}

		var do AccountDO
		if err := tx.Where("id = ?", tenantID).First(&do).Error; err != nil {
			return err
		}
		balance = do.Balance

		entry.BalanceAfter = balance
		return tx.Create(toEntryDO(entry)).Error
	})
	if err != nil {
		return 0, err
	}

	return balance, nil
}

// GetBalance 读取当前余额
func (r *LedgerRepository) GetBalance(ctx context.Context, tenantID string) (int64, error) {
	var do AccountDO
	if err := r.db.WithContext(ctx).Select("balance").Where("id = ?", tenantID).First(&do).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, domain.ErrAccountNotFound
		}
		return 0, err
	}
	return do.Balance, nil
}

// SumDebits 统计 since 起的 DEBIT 金额之和
func (r *LedgerRepository) SumDebits(ctx context.Context, tenantID string, since time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&LedgerEntryDO{}).
		Where("tenant_id = ? AND type = ? AND created_at >= ?", tenantID, string(domain.EntryDebit), since).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

// ListEntries 倒序分页列出流水
func (r *LedgerRepository) ListEntries(ctx context.Context, tenantID string, limit, offset int) ([]*domain.LedgerEntry, int64, error) {
	var total int64
	db := r.db.WithContext(ctx).Model(&LedgerEntryDO{}).Where("tenant_id = ?", tenantID)

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var dos []LedgerEntryDO
	if err := db.Order("created_at DESC").Limit(limit).Offset(offset).Find(&dos).Error; err != nil {
		return nil, 0, err
	}

	entries := make([]*domain.LedgerEntry, len(dos))
	for i := range dos {
		entries[i] = toEntry(&dos[i])
	}

	return entries, total, nil
}

// toAccountDO 转换为数据对象
func toAccountDO(account *domain.Account) *AccountDO {
	return &AccountDO{
		ID:            account.TenantID,
		Balance:       account.Balance,
		MonthlyBudget: account.MonthlyBudget,
		PlanTier:      string(account.PlanTier),
		CreatedAt:     account.CreatedAt,
		UpdatedAt:     account.UpdatedAt,
	}
}

// toAccount 转换为领域对象
func toAccount(do *AccountDO) *domain.Account {
	return &domain.Account{
		TenantID:      do.ID,
		Balance:       do.Balance,
		MonthlyBudget: do.MonthlyBudget,
		PlanTier:      domain.PlanTier(do.PlanTier),
		CreatedAt:     do.CreatedAt,
		UpdatedAt:     do.UpdatedAt,
	}
}

// toEntryDO 转换为数据对象
func toEntryDO(entry *domain.LedgerEntry) *LedgerEntryDO {
	return &LedgerEntryDO{
		ID:           entry.ID,
		TenantID:     entry.TenantID,
		UserID:       entry.UserID,
		Type:         string(entry.Type),
		Amount:       entry.Amount,
		BalanceAfter: entry.BalanceAfter,
		Reason:       string(entry.Reason),
		Description:  entry.Description,
		ReferenceID:  entry.ReferenceID,
		ExpiresAt:    entry.ExpiresAt,
		CreatedAt:    entry.CreatedAt,
	}
}

// toEntry 转换为领域对象
func toEntry(do *LedgerEntryDO) *domain.LedgerEntry {
	return &domain.LedgerEntry{
		ID:           do.ID,
		TenantID:     do.TenantID,
		UserID:       do.UserID,
		Type:         domain.EntryType(do.Type),
		Amount:       do.Amount,
		BalanceAfter: do.BalanceAfter,
		Reason:       domain.Reason(do.Reason),
		Description:  do.Description,
		ReferenceID:  do.ReferenceID,
		ExpiresAt:    do.ExpiresAt,
		CreatedAt:    do.CreatedAt,
	}
}
