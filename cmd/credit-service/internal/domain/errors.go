package domain

import "errors"

var (
	// ErrAccountNotFound 账户未找到
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountExists 账户已存在
	ErrAccountExists = errors.New("account already exists")

	// ErrInvalidAmount 金额必须为正整数
	ErrInvalidAmount = errors.New("amount must be a positive integer")

	// ErrInvalidReason 原因码不在枚举内
	ErrInvalidReason = errors.New("invalid ledger reason")

	// ErrInvalidPlanTier 无效的套餐等级
	ErrInvalidPlanTier = errors.New("invalid plan tier")
)
