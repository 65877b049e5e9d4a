package service_test

import (
	"testing"

	"loanbook/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUndoCounter(t *testing.T) {
	c := service.NewUndoCounter(3)

	for i := 1; i <= 3; i++ {
		require.True(t, c.TryAcquire(1))
		assert.Equal(t, i, c.Count(1))
	}
	assert.False(t, c.TryAcquire(1))

	// 撤销失败归还额度
	c.Release(1)
	assert.Equal(t, 2, c.Count(1))
	assert.True(t, c.TryAcquire(1))

	// 按用户独立计数
	assert.Equal(t, 0, c.Count(2))
	assert.True(t, c.TryAcquire(2))

	// 正向操作清零
	c.Reset(1)
	assert.Equal(t, 0, c.Count(1))
	assert.True(t, c.TryAcquire(1))
}
