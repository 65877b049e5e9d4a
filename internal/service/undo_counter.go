package service

import (
	"sync"
)

// UndoCounter 连续撤销计数器
//
// 按用户维护连续撤销次数，任何一次成功的非撤销变更都会清零。
// 进程内状态即可满足语义：计数只约束同一操作人短时间内的连续回退。
type UndoCounter struct {
	mu     sync.Mutex
	counts map[int64]int
	limit  int
}

func NewUndoCounter(limit int) *UndoCounter {
	if limit <= 0 {
		limit = 3
	}
	return &UndoCounter{
		counts: make(map[int64]int),
		limit:  limit,
	}
}

// TryAcquire 判断该用户是否还有撤销额度，有则占用一次
func (c *UndoCounter) TryAcquire(userID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts[userID] >= c.limit {
		return false
	}
	c.counts[userID]++
	return true
}

// Release 撤销失败时归还额度
func (c *UndoCounter) Release(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts[userID] > 0 {
		c.counts[userID]--
	}
}

// Reset 成功的非撤销变更清零计数
func (c *UndoCounter) Reset(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counts, userID)
}

// Count 当前连续撤销次数
func (c *UndoCounter) Count(userID int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[userID]
}
