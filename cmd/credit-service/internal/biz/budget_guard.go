package biz

// BudgetGuard 月度预算守卫
//
// (当月已用量, 本次金额, 预算上限) 的纯函数，无副作用。
// 作为 Deduct 的前置条件嵌入，也可单独用于预检（例如在入队
// 昂贵任务前提前拒绝，不产生任何扣费）。
//
// 预算检查是建议性的：读取用量发生在硬性余额扣减之前，高并发
// 下两次同时扣减可能都通过检查并共同超出预算。这是已接受并
// 记录在案的软限制放宽，与永不可违反的余额不变量不同。
type BudgetGuard struct{}

// NewBudgetGuard 创建预算守卫
func NewBudgetGuard() *BudgetGuard {
	return &BudgetGuard{}
}

// Allow 判断本次扣减是否在预算内
// cap <= 0 表示未配置预算，放行。
func (g *BudgetGuard) Allow(used, amount, cap int64) bool {
	if cap <= 0 {
		return true
	}
	return used+amount <= cap
}
