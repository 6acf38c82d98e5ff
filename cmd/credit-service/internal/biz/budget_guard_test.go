package biz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBudgetGuard_Allow(t *testing.T) {
	guard := NewBudgetGuard()

	t.Run("无预算时放行", func(t *testing.T) {
		assert.True(t, guard.Allow(1000000, 1, 0))
		assert.True(t, guard.Allow(0, 1, -1))
	})

	t.Run("用量加金额不超预算时放行", func(t *testing.T) {
		assert.True(t, guard.Allow(0, 100, 100))
		assert.True(t, guard.Allow(50, 50, 100))
		assert.True(t, guard.Allow(99, 1, 100))
	})

	t.Run("超预算时拒绝", func(t *testing.T) {
		assert.False(t, guard.Allow(100, 1, 100))
		assert.False(t, guard.Allow(51, 50, 100))
		assert.False(t, guard.Allow(0, 101, 100))
	})

	t.Run("恰好到达预算上限时放行", func(t *testing.T) {
		assert.True(t, guard.Allow(60, 40, 100))
	})
}
